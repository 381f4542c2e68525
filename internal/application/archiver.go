package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
)

const defaultMaxKeySuffix = 16

// HistoryStore is the slice of the occupancy store the archiver writes to.
type HistoryStore interface {
	AppendHistory(ctx context.Context, key string, rec persistence.HistoryRecord) (persistence.HistoryRecord, error)
	ReadHistory(ctx context.Context, key string) (persistence.HistoryRecord, error)
	ListHistory(ctx context.Context) ([]persistence.HistoryRecord, error)
}

// HistoryArchiver appends ended sessions to the history log. Entries are keyed
// by their end time in unix milliseconds; a key already taken by a different
// session gets a numeric suffix. Existing entries are never replaced.
type HistoryArchiver struct {
	store     HistoryStore
	maxSuffix int
	logger    *slog.Logger
}

// NewHistoryArchiver constructs an archiver over store.
func NewHistoryArchiver(store HistoryStore) *HistoryArchiver {
	return NewHistoryArchiverWithLogger(store, nil)
}

// NewHistoryArchiverWithLogger constructs an archiver with a specified logger.
func NewHistoryArchiverWithLogger(store HistoryStore, logger *slog.Logger) *HistoryArchiver {
	return &HistoryArchiver{store: store, maxSuffix: defaultMaxKeySuffix, logger: defaultLogger(logger)}
}

// HistoryKeyFor returns the base history key for an end instant.
func HistoryKeyFor(endedAt time.Time) string {
	return fmt.Sprintf("%013d", endedAt.UnixMilli())
}

// Archive stores session under the first free key derived from endedAt.
// Retrying with the same session and endedAt returns the entry written before
// instead of adding a second one.
func (a *HistoryArchiver) Archive(ctx context.Context, session Session, endedAt time.Time) (entry HistoryEntry, err error) {
	if a == nil || a.store == nil {
		return HistoryEntry{}, fmt.Errorf("HistoryArchiver is not configured")
	}

	base := HistoryKeyFor(endedAt)
	logger := serviceLogger(ctx, a.logger, "HistoryArchiver", "Archive",
		"session_id", session.SessionID,
		"room", session.Room,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to archive session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_key", entry.Key).InfoContext(ctx, "session archived")
	}()

	ended := endedAt
	session.EndedAt = &ended
	rec := persistence.HistoryRecord{SessionRecord: session.record(), TimeEnded: endedAt.UnixMilli()}

	for attempt := 0; attempt <= a.maxSuffix; attempt++ {
		key := base
		if attempt > 0 {
			key = fmt.Sprintf("%s-%d", base, attempt)
		}

		stored, appendErr := a.store.AppendHistory(ctx, key, rec)
		if appendErr == nil {
			entry = historyEntry(stored)
			return entry, nil
		}
		if !errors.Is(appendErr, persistence.ErrConflict) {
			err = storeError("append_history", appendErr)
			return HistoryEntry{}, err
		}

		existing, readErr := a.store.ReadHistory(ctx, key)
		if readErr == nil && sameArchivedSession(existing, rec) {
			entry = historyEntry(existing)
			return entry, nil
		}
		if readErr != nil && !errors.Is(readErr, persistence.ErrNotFound) {
			err = storeError("read_history", readErr)
			return HistoryEntry{}, err
		}
	}

	err = storeError("append_history", fmt.Errorf("history key %s still taken after %d suffixes: %w", base, a.maxSuffix, persistence.ErrConflict))
	return HistoryEntry{}, err
}

// List returns every archived session ordered by end time and suffix.
func (a *HistoryArchiver) List(ctx context.Context) ([]HistoryEntry, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("HistoryArchiver is not configured")
	}
	records, err := a.store.ListHistory(ctx)
	if err != nil {
		return nil, storeError("list_history", err)
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry(rec))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		mi, si := splitHistoryKey(entries[i].Key)
		mj, sj := splitHistoryKey(entries[j].Key)
		if mi != mj {
			return mi < mj
		}
		if si != sj {
			return si < sj
		}
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

func historyEntry(rec persistence.HistoryRecord) HistoryEntry {
	return HistoryEntry{
		Key:       rec.Key,
		Session:   sessionFromRecord(rec.SessionRecord),
		TimeEnded: time.UnixMilli(rec.TimeEnded).UTC(),
	}
}

func sameArchivedSession(existing, candidate persistence.HistoryRecord) bool {
	return existing.SessionID == candidate.SessionID &&
		existing.FacultyID == candidate.FacultyID &&
		existing.TimeEnded == candidate.TimeEnded
}

func splitHistoryKey(key string) (int64, int) {
	base, suffix, _ := strings.Cut(key, "-")
	millis, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, 0
	}
	n, _ := strconv.Atoi(suffix)
	return millis, n
}
