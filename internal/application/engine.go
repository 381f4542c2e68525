package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/recurrence"
)

// OccupancyStore is the set of conditional writes the engine relies on.
type OccupancyStore interface {
	ReadRoom(ctx context.Context, room string) (persistence.RoomRecord, error)
	ClaimRoom(ctx context.Context, rec persistence.RoomRecord) (persistence.RoomRecord, error)
	ReleaseRoom(ctx context.Context, room string, revision int64) error
	ReadPointer(ctx context.Context, userID string) (persistence.UserPointer, error)
	ClaimPointer(ctx context.Context, userID, room string) (persistence.UserPointer, error)
	MarkAttending(ctx context.Context, userID string) error
	ClearPointer(ctx context.Context, userID string, revision int64) error
}

// Archiver records ended sessions.
type Archiver interface {
	Archive(ctx context.Context, session Session, endedAt time.Time) (HistoryEntry, error)
}

// SessionCache is a local mirror of the active session. It only tells a
// restarted engine which session a remote pointer refers to.
type SessionCache interface {
	Load(ctx context.Context) (persistence.SessionRecord, bool, error)
	Save(ctx context.Context, rec persistence.SessionRecord) error
	Clear(ctx context.Context) error
}

// EngineConfig wires a SessionEngine.
type EngineConfig struct {
	Principal Principal
	Store     OccupancyStore
	Archiver  Archiver
	// Cache is optional.
	Cache SessionCache
	// Gate defaults to VerificationGate.
	Gate Verifier
	// Calendar places session windows on dates; defaults to recurrence.NewEngine(nil).
	Calendar *recurrence.Engine
	Now      func() time.Time
	// NewToken issues holder tokens; defaults to uuid.NewString.
	NewToken func() string
	Logger   *slog.Logger
}

// SessionEngine drives one faculty member's session through Idle,
// AwaitingVerification, Attending and Ended. Operations are serialised per
// engine; exclusivity across engines rests on the store's conditional writes.
type SessionEngine struct {
	mu sync.Mutex

	principal Principal
	store     OccupancyStore
	archiver  Archiver
	cache     SessionCache
	gate      Verifier
	calendar  *recurrence.Engine
	now       func() time.Time
	newToken  func() string
	logger    *slog.Logger

	state   State
	current *Session
	marker  string

	holderToken     string
	roomRevision    int64
	pointerRevision int64

	ending *pendingEnd
}

// pendingEnd tracks an EndSession that did not complete so a retry reuses the
// same end instant and skips finished steps.
type pendingEnd struct {
	endedAt        time.Time
	roomReleased   bool
	pointerCleared bool
	archived       bool
	historyKey     string
}

// NewSessionEngine constructs an engine in the Idle state. Call Recover before
// use to pick up a session left active by a previous client.
func NewSessionEngine(cfg EngineConfig) (*SessionEngine, error) {
	if !persistence.ValidSegment(cfg.Principal.FacultyID) {
		return nil, newValidationError("facultyId", "must not be blank or contain '/'")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session engine requires an occupancy store")
	}
	if cfg.Archiver == nil {
		return nil, fmt.Errorf("session engine requires an archiver")
	}
	if cfg.Cache == nil {
		cfg.Cache = noopCache{}
	}
	if cfg.Gate == nil {
		cfg.Gate = NewVerificationGate()
	}
	if cfg.Calendar == nil {
		cfg.Calendar = recurrence.NewEngine(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewToken == nil {
		cfg.NewToken = uuid.NewString
	}
	return &SessionEngine{
		principal: cfg.Principal,
		store:     cfg.Store,
		archiver:  cfg.Archiver,
		cache:     cfg.Cache,
		gate:      cfg.Gate,
		calendar:  cfg.Calendar,
		now:       cfg.Now,
		newToken:  cfg.NewToken,
		logger:    defaultLogger(cfg.Logger),
		state:     StateIdle,
	}, nil
}

func (e *SessionEngine) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	attrs = append([]any{"faculty_id", e.principal.FacultyID}, attrs...)
	return serviceLogger(ctx, e.logger, "SessionEngine", operation, attrs...)
}

// Principal returns the faculty member the engine acts for.
func (e *SessionEngine) Principal() Principal {
	return e.principal
}

// State returns the current state.
func (e *SessionEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns a copy of the selected or active session.
func (e *SessionEngine) Current() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Session{}, false
	}
	return *e.current, true
}

// SelectSession picks a scheduled class and opens verification. Nothing is
// written to the store.
func (e *SessionEngine) SelectSession(ctx context.Context, candidate Session) (selected Session, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.loggerWith(ctx, "SelectSession", "room", candidate.Room, "schedule_id", candidate.ScheduleID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session not selected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", selected.SessionID).InfoContext(ctx, "session selected")
	}()

	if e.state == StateAttending || e.state == StateEnded {
		err = fmt.Errorf("%w: cannot select a session while %s", ErrInvalidState, e.state)
		return Session{}, err
	}

	if candidate.FacultyID == "" {
		candidate.FacultyID = e.principal.FacultyID
	}
	if candidate.FacultyID != e.principal.FacultyID {
		err = newValidationError("facultyId", "must match the signed-in faculty member")
		return Session{}, err
	}
	if candidate.FacultyName == "" {
		candidate.FacultyName = e.principal.FacultyName
	}
	candidate.Room = strings.TrimSpace(candidate.Room)
	if vErr := validateStruct(candidate); vErr != nil {
		err = vErr
		return Session{}, err
	}

	pointer, readErr := e.store.ReadPointer(ctx, e.principal.FacultyID)
	switch {
	case readErr == nil && pointer.OccupiedRoom != "":
		err = &ConflictError{Reason: ConflictAttendingElsewhere, Room: pointer.OccupiedRoom}
		return Session{}, err
	case readErr != nil && !errors.Is(readErr, persistence.ErrNotFound):
		err = storeError("read_pointer", readErr)
		return Session{}, err
	}

	window, winErr := candidate.TimeWindow.Window()
	if winErr != nil {
		err = newValidationError("timeWindow", winErr.Error())
		return Session{}, err
	}
	start := e.calendar.StartOn(e.now(), window)
	candidate.SessionID = fmt.Sprintf("%s-%d", candidate.Room, start.UnixMilli())
	candidate.AttendedAt = nil
	candidate.EndedAt = nil

	e.state = StateAwaitingVerification
	e.current = &candidate
	e.marker = RoomMarker(candidate.Room)
	return candidate, nil
}

// Cancel abandons verification. It has no persisted effect.
func (e *SessionEngine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle:
		return nil
	case StateAwaitingVerification:
		e.resetLocked()
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel while %s", ErrInvalidState, e.state)
	}
}

// SubmitScan verifies decodedText against the selected room and, on success,
// claims the user pointer and the room with conditional writes. Any failure
// leaves the engine in AwaitingVerification.
func (e *SessionEngine) SubmitScan(ctx context.Context, decodedText string) (session Session, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.loggerWith(ctx, "SubmitScan")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "scan rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room", session.Room, "session_id", session.SessionID).InfoContext(ctx, "session attending")
	}()

	switch e.state {
	case StateAwaitingVerification:
	case StateIdle:
		err = newValidationError("session", "no session selected")
		return Session{}, err
	default:
		err = fmt.Errorf("%w: cannot scan while %s", ErrInvalidState, e.state)
		return Session{}, err
	}

	candidate := *e.current
	room := candidate.Room
	logger = logger.With("room", room)

	if !e.gate.Verify(e.marker, decodedText) {
		err = &VerificationError{Room: room}
		return Session{}, err
	}

	existing, readErr := e.store.ReadRoom(ctx, room)
	switch {
	case readErr == nil && existing.FacultyID != e.principal.FacultyID:
		err = &ConflictError{Reason: ConflictRoomOccupied, Room: room}
		return Session{}, err
	case readErr != nil && !errors.Is(readErr, persistence.ErrNotFound):
		err = storeError("read_room", readErr)
		return Session{}, err
	}

	session, err = e.commitLocked(ctx, logger, candidate)
	return session, err
}

func (e *SessionEngine) commitLocked(ctx context.Context, logger *slog.Logger, candidate Session) (Session, error) {
	facultyID := e.principal.FacultyID
	room := candidate.Room

	pointer, err := e.store.ClaimPointer(ctx, facultyID, room)
	if errors.Is(err, persistence.ErrConflict) {
		return e.resumeLocked(ctx, room)
	}
	if err != nil {
		return Session{}, storeError("claim_pointer", err)
	}

	if err := e.store.MarkAttending(ctx, facultyID); err != nil {
		e.compensateLocked(ctx, logger, pointer.Revision)
		return Session{}, storeError("mark_attending", err)
	}

	attendedAt := e.now().UTC()
	candidate.AttendedAt = &attendedAt
	token := e.newToken()
	claimed, err := e.claimRoomLocked(ctx, candidate, token)
	if err != nil {
		e.compensateLocked(ctx, logger, pointer.Revision)
		if errors.Is(err, persistence.ErrConflict) {
			return Session{}, &ConflictError{Reason: ConflictRoomOccupied, Room: room}
		}
		return Session{}, storeError("claim_room", err)
	}

	e.enterAttendingLocked(ctx, logger, candidate, claimed.HolderToken, claimed.Revision, pointer.Revision)
	return candidate, nil
}

// claimRoomLocked claims the room. A leftover record of this faculty member,
// for instance from a client that crashed halfway through ending, is released
// and the claim retried once.
func (e *SessionEngine) claimRoomLocked(ctx context.Context, candidate Session, token string) (persistence.RoomRecord, error) {
	rec := persistence.RoomRecord{SessionRecord: candidate.record(), HolderToken: token}
	claimed, err := e.store.ClaimRoom(ctx, rec)
	if !errors.Is(err, persistence.ErrConflict) {
		return claimed, err
	}

	stale, readErr := e.store.ReadRoom(ctx, candidate.Room)
	if readErr != nil || stale.FacultyID != e.principal.FacultyID {
		return persistence.RoomRecord{}, err
	}
	if releaseErr := e.store.ReleaseRoom(ctx, candidate.Room, stale.Revision); releaseErr != nil {
		return persistence.RoomRecord{}, releaseErr
	}
	return e.store.ClaimRoom(ctx, rec)
}

// resumeLocked handles a pointer that already exists. If it names the selected
// room and the room record is ours, the engine adopts the existing claim.
func (e *SessionEngine) resumeLocked(ctx context.Context, room string) (Session, error) {
	pointer, err := e.store.ReadPointer(ctx, e.principal.FacultyID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Session{}, &ConflictError{Reason: ConflictAttendingElsewhere}
		}
		return Session{}, storeError("read_pointer", err)
	}
	if pointer.OccupiedRoom != room {
		return Session{}, &ConflictError{Reason: ConflictAttendingElsewhere, Room: pointer.OccupiedRoom}
	}

	rec, err := e.store.ReadRoom(ctx, room)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Session{}, &ConflictError{Reason: ConflictAttendingElsewhere, Room: room}
		}
		return Session{}, storeError("read_room", err)
	}
	if rec.FacultyID != e.principal.FacultyID {
		return Session{}, &ConflictError{Reason: ConflictRoomOccupied, Room: room}
	}
	if !pointer.AttendingClass {
		if err := e.store.MarkAttending(ctx, e.principal.FacultyID); err != nil {
			return Session{}, storeError("mark_attending", err)
		}
	}

	session := sessionFromRecord(rec.SessionRecord)
	logger := e.loggerWith(ctx, "SubmitScan", "room", room)
	logger.InfoContext(ctx, "resumed existing claim", "session_id", session.SessionID)
	e.enterAttendingLocked(ctx, logger, session, rec.HolderToken, rec.Revision, pointer.Revision)
	return session, nil
}

func (e *SessionEngine) compensateLocked(ctx context.Context, logger *slog.Logger, pointerRevision int64) {
	if err := e.store.ClearPointer(ctx, e.principal.FacultyID, pointerRevision); err != nil {
		logger.ErrorContext(ctx, "failed to roll back user pointer", "error", err, "pointer_revision", pointerRevision)
	}
}

func (e *SessionEngine) enterAttendingLocked(ctx context.Context, logger *slog.Logger, session Session, token string, roomRevision, pointerRevision int64) {
	if err := e.cache.Save(ctx, session.record()); err != nil {
		logger.WarnContext(ctx, "failed to cache active session", "error", err)
	}
	e.state = StateAttending
	e.current = &session
	e.marker = ""
	e.holderToken = token
	e.roomRevision = roomRevision
	e.pointerRevision = pointerRevision
	e.ending = nil
}

// EndSession releases the room and the user pointer and archives the session.
// Release and archive are both attempted. If releasing fails the engine stays
// Attending and a retry reuses the same end instant. If only archiving fails
// the engine still returns to Idle and the error wraps ErrNotArchived.
func (e *SessionEngine) EndSession(ctx context.Context) (result EndResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.loggerWith(ctx, "EndSession")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session end incomplete", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("history_key", result.HistoryKey).InfoContext(ctx, "session ended")
	}()

	if e.state != StateAttending {
		err = fmt.Errorf("%w: cannot end a session while %s", ErrInvalidState, e.state)
		return EndResult{}, err
	}

	session := *e.current
	logger = logger.With("room", session.Room, "session_id", session.SessionID)

	if e.ending == nil {
		e.ending = &pendingEnd{endedAt: e.now().UTC()}
	}
	ending := e.ending
	endedAt := ending.endedAt
	session.EndedAt = &endedAt

	var releaseErr error
	if !ending.roomReleased {
		if releaseErr = e.releaseRoomLocked(ctx, session.Room); releaseErr == nil {
			ending.roomReleased = true
		}
	}
	// The pointer outlives a failed release so SelectSession keeps refusing
	// until the room is free.
	if releaseErr == nil && !ending.pointerCleared {
		if releaseErr = e.clearPointerLocked(ctx); releaseErr == nil {
			ending.pointerCleared = true
		}
	}

	var archiveErr error
	if !ending.archived {
		entry, aErr := e.archiver.Archive(ctx, session, endedAt)
		if aErr == nil {
			ending.archived = true
			ending.historyKey = entry.Key
		}
		archiveErr = aErr
	}

	result = EndResult{Session: session, HistoryKey: ending.historyKey, Archived: ending.archived}

	if releaseErr != nil {
		err = storeError("end_session", errors.Join(releaseErr, archiveErr))
		return result, err
	}

	e.state = StateEnded
	if cacheErr := e.cache.Clear(ctx); cacheErr != nil {
		logger.WarnContext(ctx, "failed to clear cached session", "error", cacheErr)
	}
	e.resetLocked()

	if archiveErr != nil {
		err = fmt.Errorf("%w: %w", ErrNotArchived, storeError("archive", archiveErr))
		return result, err
	}
	return result, nil
}

// releaseRoomLocked deletes rooms/{room} if it still carries our holder token.
// A record owned by someone else is left untouched.
func (e *SessionEngine) releaseRoomLocked(ctx context.Context, room string) error {
	err := e.store.ReleaseRoom(ctx, room, e.roomRevision)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrConflict) && !errors.Is(err, persistence.ErrConstraintViolation) {
		return err
	}

	rec, readErr := e.store.ReadRoom(ctx, room)
	if errors.Is(readErr, persistence.ErrNotFound) {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if rec.HolderToken != e.holderToken {
		return nil
	}
	return e.store.ReleaseRoom(ctx, room, rec.Revision)
}

// clearPointerLocked removes the user pointer if it still has the revision we
// wrote. A pointer rewritten by another client of the same user is kept.
func (e *SessionEngine) clearPointerLocked(ctx context.Context) error {
	err := e.store.ClearPointer(ctx, e.principal.FacultyID, e.pointerRevision)
	if err == nil || !errors.Is(err, persistence.ErrConflict) {
		return err
	}
	pointer, readErr := e.store.ReadPointer(ctx, e.principal.FacultyID)
	if errors.Is(readErr, persistence.ErrNotFound) {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if pointer.OccupiedRoom != e.current.Room {
		return nil
	}
	return e.store.ClearPointer(ctx, e.principal.FacultyID, pointer.Revision)
}

// Recover rebuilds the engine state from the store. A pointer with a matching
// room record restores Attending; the cached snapshot is used only when it
// names the same room. A pointer without a matching record is cleared.
func (e *SessionEngine) Recover(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := e.loggerWith(ctx, "Recover")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "recovery failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("state", e.state.String()).InfoContext(ctx, "engine recovered")
	}()

	facultyID := e.principal.FacultyID
	pointer, err := e.store.ReadPointer(ctx, facultyID)
	if errors.Is(err, persistence.ErrNotFound) {
		e.dropCacheLocked(ctx, logger)
		e.resetLocked()
		return nil
	}
	if err != nil {
		return storeError("read_pointer", err)
	}

	rec, err := e.store.ReadRoom(ctx, pointer.OccupiedRoom)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return storeError("read_room", err)
	}
	if err != nil || rec.FacultyID != facultyID {
		logger.WarnContext(ctx, "clearing stale user pointer", "room", pointer.OccupiedRoom)
		if clearErr := e.store.ClearPointer(ctx, facultyID, pointer.Revision); clearErr != nil && !errors.Is(clearErr, persistence.ErrConflict) {
			return storeError("clear_pointer", clearErr)
		}
		e.dropCacheLocked(ctx, logger)
		e.resetLocked()
		return nil
	}

	session := sessionFromRecord(rec.SessionRecord)
	if cached, ok, cacheErr := e.cache.Load(ctx); cacheErr != nil {
		logger.WarnContext(ctx, "failed to read cached session", "error", cacheErr)
	} else if ok && cached.Room == rec.Room && cached.FacultyID == facultyID {
		session = sessionFromRecord(cached)
		if session.AttendedAt == nil {
			session.AttendedAt = copyTime(rec.AttendedAt)
		}
		session.EndedAt = nil
	}

	if !pointer.AttendingClass {
		if markErr := e.store.MarkAttending(ctx, facultyID); markErr != nil {
			return storeError("mark_attending", markErr)
		}
	}

	e.enterAttendingLocked(ctx, logger, session, rec.HolderToken, rec.Revision, pointer.Revision)
	return nil
}

func (e *SessionEngine) dropCacheLocked(ctx context.Context, logger *slog.Logger) {
	if err := e.cache.Clear(ctx); err != nil {
		logger.WarnContext(ctx, "failed to clear cached session", "error", err)
	}
}

func (e *SessionEngine) resetLocked() {
	e.state = StateIdle
	e.current = nil
	e.marker = ""
	e.holderToken = ""
	e.roomRevision = 0
	e.pointerRevision = 0
	e.ending = nil
}

type noopCache struct{}

func (noopCache) Load(context.Context) (persistence.SessionRecord, bool, error) {
	return persistence.SessionRecord{}, false, nil
}

func (noopCache) Save(context.Context, persistence.SessionRecord) error { return nil }

func (noopCache) Clear(context.Context) error { return nil }
