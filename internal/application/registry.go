package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EngineFactory builds an engine for principal.
type EngineFactory func(principal Principal) (*SessionEngine, error)

// EngineRegistry keeps one SessionEngine per faculty member for a host serving
// many clients. Engines are created on first use and recovered from the store
// before they are handed out.
type EngineRegistry struct {
	mu      sync.Mutex
	engines map[string]*SessionEngine
	factory EngineFactory
	logger  *slog.Logger
}

// NewEngineRegistry constructs a registry backed by factory.
func NewEngineRegistry(factory EngineFactory, logger *slog.Logger) *EngineRegistry {
	return &EngineRegistry{
		engines: make(map[string]*SessionEngine),
		factory: factory,
		logger:  defaultLogger(logger),
	}
}

// Engine returns the engine of principal, creating and recovering it if needed.
func (r *EngineRegistry) Engine(ctx context.Context, principal Principal) (*SessionEngine, error) {
	if r == nil || r.factory == nil {
		return nil, fmt.Errorf("EngineRegistry is not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if engine, ok := r.engines[principal.FacultyID]; ok {
		return engine, nil
	}

	engine, err := r.factory(principal)
	if err != nil {
		return nil, err
	}
	if err := engine.Recover(ctx); err != nil {
		return nil, err
	}
	r.engines[principal.FacultyID] = engine
	serviceLogger(ctx, r.logger, "EngineRegistry", "Engine", "faculty_id", principal.FacultyID).
		DebugContext(ctx, "engine registered", "state", engine.State().String())
	return engine, nil
}

// Len reports how many engines are registered.
func (r *EngineRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
