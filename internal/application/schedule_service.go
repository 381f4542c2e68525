package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/recurrence"
)

// FilterAll disables a school year, semester or day filter.
const FilterAll = "All"

// ScheduleCatalog lists the class meetings assigned to a faculty member. The
// catalog is read-only input to the session engine.
type ScheduleCatalog struct {
	schedules persistence.ScheduleRepository
	cache     *catalogCache
	logger    *slog.Logger
}

// NewScheduleCatalog wires the catalog. A non-positive ttl selects the default
// listing cache lifetime.
func NewScheduleCatalog(schedules persistence.ScheduleRepository, ttl time.Duration, now func() time.Time) *ScheduleCatalog {
	return NewScheduleCatalogWithLogger(schedules, ttl, now, nil)
}

// NewScheduleCatalogWithLogger wires the catalog with a specified logger.
func NewScheduleCatalogWithLogger(schedules persistence.ScheduleRepository, ttl time.Duration, now func() time.Time, logger *slog.Logger) *ScheduleCatalog {
	return &ScheduleCatalog{
		schedules: schedules,
		cache:     newCatalogCache(ttl, 0, now),
		logger:    defaultLogger(logger),
	}
}

// ListFor returns the session candidates of facultyID for the given term.
// Empty or "All" filter values match every term.
func (c *ScheduleCatalog) ListFor(ctx context.Context, facultyID, schoolYear, semester string) (sessions []Session, err error) {
	if c == nil || c.schedules == nil {
		return nil, fmt.Errorf("ScheduleCatalog is not configured")
	}

	logger := serviceLogger(ctx, c.logger, "ScheduleCatalog", "ListFor",
		"faculty_id", facultyID,
		"school_year", schoolYear,
		"semester", semester,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(sessions)).DebugContext(ctx, "schedules listed")
	}()

	if strings.TrimSpace(facultyID) == "" {
		err = newValidationError("facultyId", "is required")
		return nil, err
	}

	schoolYear = normalizeFilter(schoolYear)
	semester = normalizeFilter(semester)
	key := buildCatalogCacheKey(facultyID, schoolYear, semester)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	entries, listErr := c.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
		FacultyID:  facultyID,
		SchoolYear: schoolYear,
		Semester:   semester,
	})
	if listErr != nil {
		err = storeError("list_schedules", listErr)
		return nil, err
	}

	sessions = make([]Session, 0, len(entries))
	for _, entry := range entries {
		session, convErr := SessionFromSchedule(entry)
		if convErr != nil {
			logger.WarnContext(ctx, "skipping malformed schedule", "schedule_id", entry.ID, "error", convErr)
			continue
		}
		sessions = append(sessions, session)
	}

	c.cache.Store(key, sessions)
	return sessions, nil
}

// Get returns a single schedule assigned to facultyID as a session candidate.
// Schedules of other faculty members are reported as not found.
func (c *ScheduleCatalog) Get(ctx context.Context, facultyID, scheduleID string) (Session, error) {
	if c == nil || c.schedules == nil {
		return Session{}, fmt.Errorf("ScheduleCatalog is not configured")
	}
	entry, err := c.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Session{}, ErrNotFound
		}
		return Session{}, storeError("get_schedule", err)
	}
	if !strings.EqualFold(entry.FacultyID, facultyID) {
		return Session{}, ErrNotFound
	}
	session, err := SessionFromSchedule(entry)
	if err != nil {
		return Session{}, newValidationError("time", err.Error())
	}
	return session, nil
}

// Invalidate drops cached listings.
func (c *ScheduleCatalog) Invalidate() {
	if c != nil {
		c.cache.Invalidate()
	}
}

// FilterByDay keeps the sessions that meet on day. day may be a full pattern
// ("Mon/Wed") or a single weekday ("Monday"); empty or "All" keeps everything.
func FilterByDay(sessions []Session, day string) []Session {
	day = normalizeFilter(day)
	if day == "" {
		return cloneSessions(sessions)
	}

	wanted, parseErr := recurrence.ParseDays(day)
	out := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		if strings.EqualFold(strings.TrimSpace(session.Day), day) {
			out = append(out, session)
			continue
		}
		if parseErr != nil {
			continue
		}
		days, err := recurrence.ParseDays(session.Day)
		if err != nil {
			continue
		}
		if sharesDay(days, wanted) {
			out = append(out, session)
		}
	}
	return out
}

func sharesDay(a, b []time.Weekday) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func normalizeFilter(value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, FilterAll) {
		return ""
	}
	return value
}
