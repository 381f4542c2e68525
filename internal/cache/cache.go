// Package cache keeps a client's snapshot of its active session between
// restarts. The snapshot is a hint: the engine only uses it to learn which
// session a surviving occupancy pointer refers to.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/room-occupancy/internal/persistence"
)

// SelectedScheduleKey names the snapshot inside the cache document.
const SelectedScheduleKey = "selectedSchedule"

const fileName = SelectedScheduleKey + ".json"

type document struct {
	SelectedSchedule *persistence.SessionRecord `json:"selectedSchedule,omitempty"`
}

// FileCache stores the snapshot as a JSON document on local disk. Writes
// replace the file atomically so a crash never leaves a torn document.
type FileCache struct {
	mu   sync.Mutex
	path string
}

// NewFileCache returns a cache persisted at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// ForFaculty returns the cache file of facultyID under dir.
func ForFaculty(dir, facultyID string) (*FileCache, error) {
	if !persistence.ValidSegment(facultyID) {
		return nil, fmt.Errorf("cache: invalid faculty id %q", facultyID)
	}
	return NewFileCache(filepath.Join(dir, facultyID, fileName)), nil
}

// Path returns the backing file.
func (c *FileCache) Path() string {
	return c.path
}

// Load returns the cached snapshot. A missing file is an empty cache.
func (c *FileCache) Load(ctx context.Context) (persistence.SessionRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return persistence.SessionRecord{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return persistence.SessionRecord{}, false, nil
	}
	if err != nil {
		return persistence.SessionRecord{}, false, fmt.Errorf("cache: read %s: %w", c.path, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return persistence.SessionRecord{}, false, fmt.Errorf("cache: decode %s: %w", c.path, err)
	}
	if doc.SelectedSchedule == nil {
		return persistence.SessionRecord{}, false, nil
	}
	return *doc.SelectedSchedule, true, nil
}

// Save replaces the cached snapshot.
func (c *FileCache) Save(ctx context.Context, rec persistence.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(document{SelectedSchedule: &rec})
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cache: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("cache: replace %s: %w", c.path, err)
	}
	return nil
}

// Clear removes the snapshot. Clearing an empty cache is not an error.
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: remove %s: %w", c.path, err)
	}
	return nil
}

// MemoryCache keeps the snapshot in process memory. It survives engine
// restarts within one process, which is what tests and the in-memory host need.
type MemoryCache struct {
	mu  sync.Mutex
	rec *persistence.SessionRecord
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Load returns the cached snapshot.
func (c *MemoryCache) Load(context.Context) (persistence.SessionRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return persistence.SessionRecord{}, false, nil
	}
	return *c.rec, true, nil
}

// Save replaces the cached snapshot.
func (c *MemoryCache) Save(_ context.Context, rec persistence.SessionRecord) error {
	c.mu.Lock()
	c.rec = &rec
	c.mu.Unlock()
	return nil
}

// Clear drops the snapshot.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	c.rec = nil
	c.mu.Unlock()
	return nil
}
