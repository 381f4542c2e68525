package persistence

import (
	"context"
	"time"
)

// Entry is a stored value together with its revision. Revisions are assigned by
// the store, strictly increase across all writes, and are never reused.
type Entry struct {
	Key       Key
	Value     []byte
	Revision  int64
	UpdatedAt time.Time
}

// EventType distinguishes writes from deletions in a watch feed.
type EventType string

const (
	// EventPut reports that a key was created or overwritten.
	EventPut EventType = "put"
	// EventDelete reports that a key was removed.
	EventDelete EventType = "delete"
)

// Event is a single change observed through Store.Watch.
type Event struct {
	Type  EventType
	Entry Entry
}

// Store is a remote key-value store holding the occupancy keyspace. It offers no
// multi-key transactions; CompareAndWrite is the only ordering primitive.
type Store interface {
	// Read returns the entry stored under key or ErrNotFound.
	Read(ctx context.Context, key Key) (Entry, error)
	// Write stores value unconditionally. A nil value deletes the key.
	Write(ctx context.Context, key Key, value []byte) (Entry, error)
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error
	// CompareAndWrite stores value only when the current revision equals
	// expectedRevision; zero means the key must be absent. A nil value deletes
	// the key. A mismatch returns ErrConflict.
	CompareAndWrite(ctx context.Context, key Key, expectedRevision int64, value []byte) (Entry, error)
	// List returns every entry whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Watch streams changes for keys starting with prefix until ctx is done.
	// The channel is closed when the watch ends.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
	// Close releases resources held by the store.
	Close() error
}

// ScheduleFilter narrows schedule catalog queries. Empty fields match everything.
type ScheduleFilter struct {
	FacultyID  string
	SchoolYear string
	Semester   string
	Day        string
}

// ScheduleRepository is the read side of the schedule catalog.
type ScheduleRepository interface {
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]ScheduleEntry, error)
	GetSchedule(ctx context.Context, id string) (ScheduleEntry, error)
}

// ScheduleWriter loads schedule entries into the catalog. It is used only for
// seeding; the occupancy engine never writes schedules.
type ScheduleWriter interface {
	PutSchedule(ctx context.Context, entry ScheduleEntry) error
}
