package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/recurrence"
	"github.com/example/room-occupancy/internal/scheduler"
)

// ScheduleStore is the catalog as seen by the seeder.
type ScheduleStore interface {
	persistence.ScheduleRepository
	persistence.ScheduleWriter
}

// SeedReport summarises a seeding run.
type SeedReport struct {
	Inserted []string
	// Skipped maps an entry label to the reason it was not inserted.
	Skipped map[string]string
	// Warnings lists overlaps that were inserted anyway.
	Warnings []string
}

// ScheduleSeeder loads externally maintained schedule rows into the catalog.
// Rows identical in term, room, days and time to an existing row are skipped.
type ScheduleSeeder struct {
	schedules   ScheduleStore
	idGenerator func() string
	logger      *slog.Logger
}

// NewScheduleSeeder constructs a seeder. idGenerator fills missing row IDs.
func NewScheduleSeeder(schedules ScheduleStore, idGenerator func() string, logger *slog.Logger) *ScheduleSeeder {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &ScheduleSeeder{schedules: schedules, idGenerator: idGenerator, logger: defaultLogger(logger)}
}

// Seed inserts entries that are well formed and not duplicates.
func (s *ScheduleSeeder) Seed(ctx context.Context, entries []persistence.ScheduleEntry) (report SeedReport, err error) {
	if s == nil || s.schedules == nil {
		return SeedReport{}, fmt.Errorf("ScheduleSeeder is not configured")
	}
	report.Skipped = make(map[string]string)

	logger := serviceLogger(ctx, s.logger, "ScheduleSeeder", "Seed", "rows", len(entries))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed schedules", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedules seeded",
			"inserted", len(report.Inserted),
			"skipped", len(report.Skipped),
			"warnings", len(report.Warnings),
		)
	}()

	current, listErr := s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{})
	if listErr != nil {
		err = storeError("list_schedules", listErr)
		return report, err
	}
	known := make([]scheduler.Schedule, 0, len(current))
	for _, entry := range current {
		if sched, convErr := toConflictSchedule(entry); convErr == nil {
			known = append(known, sched)
		}
	}

	for i, entry := range entries {
		label := seedLabel(i, entry)
		if entry.ID == "" {
			entry.ID = s.idGenerator()
		}

		if vErr := validateScheduleEntry(entry); vErr.HasErrors() {
			report.Skipped[label] = formatFieldErrors(vErr)
			continue
		}
		candidate, convErr := toConflictSchedule(entry)
		if convErr != nil {
			report.Skipped[label] = convErr.Error()
			continue
		}

		conflicts := scheduler.DetectConflicts(known, candidate)
		if scheduler.HasDuplicate(conflicts) {
			report.Skipped[label] = "duplicate schedule"
			continue
		}

		if putErr := s.schedules.PutSchedule(ctx, entry); putErr != nil {
			if errors.Is(putErr, persistence.ErrDuplicate) {
				report.Skipped[label] = "duplicate id"
				continue
			}
			err = storeError("put_schedule", putErr)
			return report, err
		}

		for _, c := range conflicts {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s conflict with %s", label, c.Type, c.WithScheduleID))
		}
		report.Inserted = append(report.Inserted, entry.ID)
		known = append(known, candidate)
	}

	return report, nil
}

// LoadScheduleFile reads a JSON array of schedule rows.
func LoadScheduleFile(path string) ([]persistence.ScheduleEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var entries []persistence.ScheduleEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode schedule file %s: %w", path, err)
	}
	return entries, nil
}

func validateScheduleEntry(entry persistence.ScheduleEntry) *ValidationError {
	vErr := &ValidationError{}
	required := map[string]string{
		"id":          entry.ID,
		"facultyId":   entry.FacultyID,
		"schoolYear":  entry.SchoolYear,
		"semester":    entry.Semester,
		"subjectCode": entry.SubjectCode,
		"day":         entry.Day,
		"time":        entry.Time,
		"room":        entry.Room,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			vErr.add(field, "is required")
		}
	}
	if entry.Room != "" && !persistence.ValidSegment(entry.Room) {
		vErr.add("room", "must not contain '/'")
	}
	if entry.FacultyID != "" && !persistence.ValidSegment(entry.FacultyID) {
		vErr.add("facultyId", "must not contain '/'")
	}
	return vErr
}

func toConflictSchedule(entry persistence.ScheduleEntry) (scheduler.Schedule, error) {
	meeting, err := recurrence.ParseMeeting(entry.Day, entry.Time)
	if err != nil {
		return scheduler.Schedule{}, err
	}
	return scheduler.Schedule{
		ID:         entry.ID,
		FacultyID:  entry.FacultyID,
		SchoolYear: entry.SchoolYear,
		Semester:   entry.Semester,
		Room:       entry.Room,
		Meeting:    meeting,
	}, nil
}

func seedLabel(index int, entry persistence.ScheduleEntry) string {
	if entry.ID != "" {
		return entry.ID
	}
	return fmt.Sprintf("row %d", index+1)
}

func formatFieldErrors(vErr *ValidationError) string {
	parts := make([]string, 0, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		parts = append(parts, field+" "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
