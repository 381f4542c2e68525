// Package memory provides an in-process implementation of the occupancy store
// and the schedule catalog. It is used by tests and by single-node deployments
// that do not need durable state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
)

const watchBuffer = 256

// Storage keeps the keyspace and the schedule catalog in maps guarded by a mutex.
type Storage struct {
	mu          sync.RWMutex
	entries     map[persistence.Key]persistence.Entry
	revision    int64
	schedules   map[string]persistence.ScheduleEntry
	watchers    map[uint64]*watcher
	nextWatcher uint64
	closed      bool
	now         func() time.Time
}

type watcher struct {
	prefix string
	ch     chan persistence.Event
	done   bool
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		entries:   make(map[persistence.Key]persistence.Entry),
		schedules: make(map[string]persistence.ScheduleEntry),
		watchers:  make(map[uint64]*watcher),
		now:       time.Now,
	}
}

// Close stops every watch. Subsequent operations return persistence.ErrClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for id, w := range s.watchers {
		w.stopLocked()
		delete(s.watchers, id)
	}
	return nil
}

// Ping reports persistence.ErrClosed once the storage is closed.
func (s *Storage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return persistence.ErrClosed
	}
	return nil
}

// --- Store implementation ---

// Read returns the entry stored under key.
func (s *Storage) Read(ctx context.Context, key persistence.Key) (persistence.Entry, error) {
	if err := key.Validate(); err != nil {
		return persistence.Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return persistence.Entry{}, persistence.ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return persistence.Entry{}, persistence.ErrNotFound
	}
	return cloneEntry(entry), nil
}

// Write stores value unconditionally; a nil value deletes the key.
func (s *Storage) Write(ctx context.Context, key persistence.Key, value []byte) (persistence.Entry, error) {
	if err := key.Validate(); err != nil {
		return persistence.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.Entry{}, persistence.ErrClosed
	}
	return s.applyLocked(key, value), nil
}

// Delete removes key if present.
func (s *Storage) Delete(ctx context.Context, key persistence.Key) error {
	_, err := s.Write(ctx, key, nil)
	return err
}

// CompareAndWrite applies value only when the key is at expectedRevision.
func (s *Storage) CompareAndWrite(ctx context.Context, key persistence.Key, expectedRevision int64, value []byte) (persistence.Entry, error) {
	if err := key.Validate(); err != nil {
		return persistence.Entry{}, err
	}
	if expectedRevision < 0 {
		return persistence.Entry{}, fmt.Errorf("%w: negative revision", persistence.ErrConstraintViolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.Entry{}, persistence.ErrClosed
	}
	var current int64
	if entry, ok := s.entries[key]; ok {
		current = entry.Revision
	}
	if current != expectedRevision {
		return persistence.Entry{}, fmt.Errorf("%w: %s is at revision %d, expected %d", persistence.ErrConflict, key, current, expectedRevision)
	}
	return s.applyLocked(key, value), nil
}

// List returns entries whose key starts with prefix, ordered by key.
func (s *Storage) List(ctx context.Context, prefix string) ([]persistence.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, persistence.ErrClosed
	}
	entries := make([]persistence.Entry, 0)
	for key, entry := range s.entries {
		if strings.HasPrefix(string(key), prefix) {
			entries = append(entries, cloneEntry(entry))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

// Watch streams changes under prefix. A watcher that stops draining its channel
// is dropped and its channel closed; callers re-subscribe and re-list.
func (s *Storage) Watch(ctx context.Context, prefix string) (<-chan persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, persistence.ErrClosed
	}
	s.nextWatcher++
	id := s.nextWatcher
	w := &watcher{prefix: prefix, ch: make(chan persistence.Event, watchBuffer)}
	s.watchers[id] = w

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.watchers[id]; ok && current == w {
			w.stopLocked()
			delete(s.watchers, id)
		}
	}()

	return w.ch, nil
}

func (s *Storage) applyLocked(key persistence.Key, value []byte) persistence.Entry {
	s.revision++
	entry := persistence.Entry{
		Key:       key,
		Value:     cloneBytes(value),
		Revision:  s.revision,
		UpdatedAt: s.now().UTC(),
	}

	event := persistence.Event{Type: persistence.EventPut, Entry: entry}
	if value == nil {
		if _, ok := s.entries[key]; !ok {
			return persistence.Entry{Key: key}
		}
		delete(s.entries, key)
		event.Type = persistence.EventDelete
	} else {
		s.entries[key] = entry
	}

	s.publishLocked(event)
	return cloneEntry(entry)
}

func (s *Storage) publishLocked(event persistence.Event) {
	for id, w := range s.watchers {
		if !strings.HasPrefix(string(event.Entry.Key), w.prefix) {
			continue
		}
		select {
		case w.ch <- cloneEvent(event):
		default:
			w.stopLocked()
			delete(s.watchers, id)
		}
	}
}

func (w *watcher) stopLocked() {
	if w.done {
		return
	}
	w.done = true
	close(w.ch)
}

// --- Schedule catalog implementation ---

// PutSchedule adds a catalog entry.
func (s *Storage) PutSchedule(ctx context.Context, entry persistence.ScheduleEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("%w: schedule id is required", persistence.ErrConstraintViolation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrClosed
	}
	if _, ok := s.schedules[entry.ID]; ok {
		return fmt.Errorf("%w: schedule %s", persistence.ErrDuplicate, entry.ID)
	}
	s.schedules[entry.ID] = entry
	return nil
}

// GetSchedule returns a catalog entry by ID.
func (s *Storage) GetSchedule(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return persistence.ScheduleEntry{}, persistence.ErrClosed
	}
	entry, ok := s.schedules[id]
	if !ok {
		return persistence.ScheduleEntry{}, persistence.ErrNotFound
	}
	return entry, nil
}

// ListSchedules returns catalog entries matching filter ordered by day, time and subject.
func (s *Storage) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, persistence.ErrClosed
	}
	entries := make([]persistence.ScheduleEntry, 0)
	for _, entry := range s.schedules {
		if matchesScheduleFilter(entry, filter) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.SubjectCode != b.SubjectCode {
			return a.SubjectCode < b.SubjectCode
		}
		return a.ID < b.ID
	})
	return entries, nil
}

// --- Helpers ---

func matchesScheduleFilter(entry persistence.ScheduleEntry, filter persistence.ScheduleFilter) bool {
	return matchesField(entry.FacultyID, filter.FacultyID) &&
		matchesField(entry.SchoolYear, filter.SchoolYear) &&
		matchesField(entry.Semester, filter.Semester) &&
		matchesField(entry.Day, filter.Day)
}

func matchesField(value, want string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(strings.TrimSpace(value), want)
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

func cloneEntry(entry persistence.Entry) persistence.Entry {
	entry.Value = cloneBytes(entry.Value)
	return entry
}

func cloneEvent(event persistence.Event) persistence.Event {
	event.Entry = cloneEntry(event.Entry)
	return event
}
