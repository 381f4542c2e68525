// Package sqlite implements the occupancy store and the schedule catalog on a
// SQLite database through modernc.org/sqlite and sqlx.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/room-occupancy/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultPollInterval  = 250 * time.Millisecond
	defaultPruneInterval = time.Minute
	watchBuffer          = 256
)

var errNoop = errors.New("sqlite: nothing to apply")

// Storage is a persistence.Store backed by SQLite. Every write appends a row to
// kv_events whose id becomes the entry revision, so revisions are unique and
// increase in commit order. Watchers poll kv_events; events every watcher has
// read are pruned periodically.
type Storage struct {
	pool         *ConnectionPool
	mapper       *ErrorMapper
	retry        *RetryHelper
	pollInterval time.Duration
	now          func() time.Time

	// cursors holds the last event id delivered by each live watcher.
	cursorMu   sync.Mutex
	cursors    map[int]int64
	nextCursor int

	closeOnce sync.Once
	done      chan struct{}
}

// Open opens the database at dsn with the default configuration.
func Open(dsn string) (*Storage, error) {
	return OpenConfig(DefaultConfig(dsn), defaultPollInterval)
}

// OpenConfig opens the database described by config. pollInterval controls how
// often watchers look for new events; zero selects the default.
func OpenConfig(config Config, pollInterval time.Duration) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	s := &Storage{
		pool:         pool,
		mapper:       NewErrorMapper(),
		retry:        NewRetryHelper(DefaultRetryConfig()),
		pollInterval: pollInterval,
		now:          time.Now,
		cursors:      make(map[int]int64),
		done:         make(chan struct{}),
	}
	go s.pruneLoop(defaultPruneInterval)
	return s, nil
}

// Close stops all watchers and closes the database.
func (s *Storage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pool.Close()
	})
	return err
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if s.closed() {
		return persistence.ErrClosed
	}
	return s.pool.Ping(ctx)
}

// Migrate creates the tables when they do not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range strings.Split(schemaSQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: migrate: %w", err)
			}
		}
		return nil
	})
}

func (s *Storage) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type kvRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	Revision  int64  `db:"revision"`
	UpdatedAt string `db:"updated_at"`
}

func (r kvRow) entry() persistence.Entry {
	updated, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return persistence.Entry{
		Key:       persistence.Key(r.Key),
		Value:     r.Value,
		Revision:  r.Revision,
		UpdatedAt: updated,
	}
}

type eventRow struct {
	ID        int64  `db:"id"`
	Key       string `db:"key"`
	Type      string `db:"type"`
	Value     []byte `db:"value"`
	CreatedAt string `db:"created_at"`
}

func (r eventRow) event() persistence.Event {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return persistence.Event{
		Type: persistence.EventType(r.Type),
		Entry: persistence.Entry{
			Key:       persistence.Key(r.Key),
			Value:     r.Value,
			Revision:  r.ID,
			UpdatedAt: created,
		},
	}
}

// --- Store implementation ---

// Read returns the entry stored under key.
func (s *Storage) Read(ctx context.Context, key persistence.Key) (persistence.Entry, error) {
	if err := key.Validate(); err != nil {
		return persistence.Entry{}, err
	}
	if s.closed() {
		return persistence.Entry{}, persistence.ErrClosed
	}
	var row kvRow
	err := s.pool.DB().GetContext(ctx, &row,
		`SELECT key, value, revision, updated_at FROM kv WHERE key = ?`, string(key))
	if err != nil {
		return persistence.Entry{}, s.mapper.MapError(err)
	}
	return row.entry(), nil
}

// Write stores value unconditionally; a nil value deletes the key.
func (s *Storage) Write(ctx context.Context, key persistence.Key, value []byte) (persistence.Entry, error) {
	return s.apply(ctx, key, nil, value)
}

// Delete removes key if present.
func (s *Storage) Delete(ctx context.Context, key persistence.Key) error {
	_, err := s.apply(ctx, key, nil, nil)
	return err
}

// CompareAndWrite applies value only when the key is at expectedRevision.
func (s *Storage) CompareAndWrite(ctx context.Context, key persistence.Key, expectedRevision int64, value []byte) (persistence.Entry, error) {
	if expectedRevision < 0 {
		return persistence.Entry{}, fmt.Errorf("%w: negative revision", persistence.ErrConstraintViolation)
	}
	return s.apply(ctx, key, &expectedRevision, value)
}

// List returns entries whose key starts with prefix, ordered by key.
func (s *Storage) List(ctx context.Context, prefix string) ([]persistence.Entry, error) {
	if s.closed() {
		return nil, persistence.ErrClosed
	}
	var rows []kvRow
	err := s.pool.DB().SelectContext(ctx, &rows,
		`SELECT key, value, revision, updated_at FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix)
	if err != nil {
		return nil, s.mapper.MapError(err)
	}
	entries := make([]persistence.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

// Watch polls kv_events for changes under prefix. Only changes committed after
// the call are delivered. The channel closes when ctx is done, the storage is
// closed, or polling fails with a non-transient error.
func (s *Storage) Watch(ctx context.Context, prefix string) (<-chan persistence.Event, error) {
	if s.closed() {
		return nil, persistence.ErrClosed
	}
	s.cursorMu.Lock()
	var last int64
	if err := s.pool.DB().GetContext(ctx, &last, `SELECT COALESCE(MAX(id), 0) FROM kv_events`); err != nil {
		s.cursorMu.Unlock()
		return nil, s.mapper.MapError(err)
	}
	cursor := s.nextCursor
	s.nextCursor++
	s.cursors[cursor] = last
	s.cursorMu.Unlock()

	out := make(chan persistence.Event, watchBuffer)
	go func() {
		defer close(out)
		defer s.dropCursor(cursor)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
			}

			var rows []eventRow
			err := s.pool.DB().SelectContext(ctx, &rows,
				`SELECT id, key, type, value, created_at FROM kv_events
				 WHERE id > ? AND substr(key, 1, ?) = ? ORDER BY id`,
				last, len(prefix), prefix)
			if err != nil {
				if errors.Is(s.mapper.MapError(err), ErrBusy) {
					continue
				}
				return
			}
			for _, row := range rows {
				select {
				case out <- row.event():
					last = row.ID
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
			}
			s.advanceCursor(cursor, last)
		}
	}()
	return out, nil
}

func (s *Storage) advanceCursor(cursor int, id int64) {
	s.cursorMu.Lock()
	s.cursors[cursor] = id
	s.cursorMu.Unlock()
}

func (s *Storage) dropCursor(cursor int) {
	s.cursorMu.Lock()
	delete(s.cursors, cursor)
	s.cursorMu.Unlock()
}

// Prune deletes events that every live watcher has already delivered and
// reports how many rows were removed. The newest event is kept so revisions
// and watcher start positions stay monotonic.
func (s *Storage) Prune(ctx context.Context) (int64, error) {
	if s.closed() {
		return 0, persistence.ErrClosed
	}
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()

	var floor int64
	if err := s.pool.DB().GetContext(ctx, &floor, `SELECT COALESCE(MAX(id), 0) FROM kv_events`); err != nil {
		return 0, s.mapper.MapError(err)
	}
	for _, delivered := range s.cursors {
		if delivered < floor {
			floor = delivered
		}
	}
	res, err := s.pool.DB().ExecContext(ctx, `DELETE FROM kv_events WHERE id < ?`, floor)
	if err != nil {
		return 0, s.mapper.MapError(err)
	}
	return res.RowsAffected()
}

// pruneLoop runs Prune every interval until the storage is closed. A failed
// run is retried on the next tick.
func (s *Storage) pruneLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		_, _ = s.Prune(ctx)
		cancel()
	}
}

func (s *Storage) apply(ctx context.Context, key persistence.Key, expected *int64, value []byte) (persistence.Entry, error) {
	if err := key.Validate(); err != nil {
		return persistence.Entry{}, err
	}
	if s.closed() {
		return persistence.Entry{}, persistence.ErrClosed
	}

	var result persistence.Entry
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			entry, err := s.applyTx(ctx, tx, key, expected, value)
			result = entry
			return err
		})
	})
	if errors.Is(err, errNoop) {
		return persistence.Entry{Key: key}, nil
	}
	if err != nil {
		return persistence.Entry{}, err
	}
	return result, nil
}

func (s *Storage) applyTx(ctx context.Context, tx *sqlx.Tx, key persistence.Key, expected *int64, value []byte) (persistence.Entry, error) {
	var current int64
	err := tx.GetContext(ctx, &current, `SELECT revision FROM kv WHERE key = ?`, string(key))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return persistence.Entry{}, err
	}
	if expected != nil && *expected != current {
		return persistence.Entry{}, fmt.Errorf("%w: %s is at revision %d, expected %d", persistence.ErrConflict, key, current, *expected)
	}
	if value == nil && current == 0 {
		return persistence.Entry{}, errNoop
	}

	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)
	eventType := persistence.EventPut
	if value == nil {
		eventType = persistence.EventDelete
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO kv_events (key, type, value, created_at) VALUES (?, ?, ?, ?)`,
		string(key), string(eventType), value, stamp)
	if err != nil {
		return persistence.Entry{}, err
	}
	revision, err := res.LastInsertId()
	if err != nil {
		return persistence.Entry{}, err
	}

	switch {
	case value == nil:
		res, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND revision = ?`, string(key), current)
	case current == 0:
		res, err = tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, revision, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(key) DO NOTHING`,
			string(key), value, revision, stamp)
	default:
		res, err = tx.ExecContext(ctx,
			`UPDATE kv SET value = ?, revision = ?, updated_at = ? WHERE key = ? AND revision = ?`,
			value, revision, stamp, string(key), current)
	}
	if err != nil {
		return persistence.Entry{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.Entry{}, err
	}
	if affected != 1 {
		return persistence.Entry{}, fmt.Errorf("%w: %s changed concurrently", persistence.ErrConflict, key)
	}

	return persistence.Entry{Key: key, Value: value, Revision: revision, UpdatedAt: now}, nil
}
