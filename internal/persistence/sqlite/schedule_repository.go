package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/room-occupancy/internal/persistence"
)

const scheduleColumns = `id, faculty_id, faculty_name, school_year, semester, subject_code,
	subject_description, course, credit_units, lec_hours, lab_hours, day, time_window, building, room`

// PutSchedule inserts a catalog entry.
func (s *Storage) PutSchedule(ctx context.Context, entry persistence.ScheduleEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("%w: schedule id is required", persistence.ErrConstraintViolation)
	}
	if s.closed() {
		return persistence.ErrClosed
	}

	query := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (:id, :faculty_id, :faculty_name, :school_year, :semester, :subject_code,
			:subject_description, :course, :credit_units, :lec_hours, :lab_hours, :day, :time_window, :building, :room)`

	return s.retry.WithRetry(ctx, func() error {
		_, err := s.pool.DB().NamedExecContext(ctx, query, entry)
		return err
	})
}

// GetSchedule returns a catalog entry by ID.
func (s *Storage) GetSchedule(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	if s.closed() {
		return persistence.ScheduleEntry{}, persistence.ErrClosed
	}
	var entry persistence.ScheduleEntry
	err := s.pool.DB().GetContext(ctx, &entry, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	if err != nil {
		return persistence.ScheduleEntry{}, s.mapper.MapError(err)
	}
	return entry, nil
}

// ListSchedules returns catalog entries matching filter ordered by day, time and subject.
func (s *Storage) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.ScheduleEntry, error) {
	if s.closed() {
		return nil, persistence.ErrClosed
	}
	query, args := buildScheduleQuery(filter)
	entries := make([]persistence.ScheduleEntry, 0)
	if err := s.pool.DB().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, s.mapper.MapError(err)
	}
	return entries, nil
}

func buildScheduleQuery(filter persistence.ScheduleFilter) (string, []interface{}) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`

	var conditions []string
	var args []interface{}
	add := func(column, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("lower(trim(%s)) = lower(?)", column))
		args = append(args, value)
	}
	add("faculty_id", filter.FacultyID)
	add("school_year", filter.SchoolYear)
	add("semester", filter.Semester)
	add("day", filter.Day)

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY day ASC, time_window ASC, subject_code ASC, id ASC"
	return query, args
}
