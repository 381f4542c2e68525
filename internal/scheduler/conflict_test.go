package scheduler

import (
	"testing"

	"github.com/example/room-occupancy/internal/recurrence"
)

func mustMeeting(t *testing.T, days, window string) recurrence.Meeting {
	t.Helper()
	m, err := recurrence.ParseMeeting(days, window)
	if err != nil {
		t.Fatalf("ParseMeeting(%q, %q) failed: %v", days, window, err)
	}
	return m
}

func TestDetectConflicts(t *testing.T) {
	base := Schedule{
		ID:         "s-1",
		FacultyID:  "fac-1",
		SchoolYear: "2024-2025",
		Semester:   "1st",
		Room:       "105",
		Meeting:    mustMeeting(t, "Mon/Wed", "8:00 AM - 9:30 AM"),
	}

	t.Run("identical assignment is a duplicate", func(t *testing.T) {
		candidate := base
		candidate.ID = "s-2"
		candidate.Meeting = mustMeeting(t, "Wed/Mon", "08:00-09:30")

		conflicts := DetectConflicts([]Schedule{base}, candidate)
		if len(conflicts) != 1 || conflicts[0].Type != ConflictTypeDuplicate || conflicts[0].WithScheduleID != "s-1" {
			t.Fatalf("unexpected conflicts: %+v", conflicts)
		}
		if !HasDuplicate(conflicts) {
			t.Fatal("expected HasDuplicate to report the duplicate")
		}
	})

	t.Run("room overlap produces conflict", func(t *testing.T) {
		candidate := Schedule{
			ID:         "s-2",
			FacultyID:  "fac-2",
			SchoolYear: "2024-2025",
			Semester:   "1st",
			Room:       "105",
			Meeting:    mustMeeting(t, "Wednesday", "9:00 AM - 10:00 AM"),
		}

		conflicts := DetectConflicts([]Schedule{base}, candidate)
		if len(conflicts) != 1 || conflicts[0].Type != ConflictTypeRoom || conflicts[0].Room != "105" {
			t.Fatalf("unexpected conflicts: %+v", conflicts)
		}
	})

	t.Run("faculty overlap produces conflict", func(t *testing.T) {
		candidate := Schedule{
			ID:         "s-2",
			FacultyID:  "fac-1",
			SchoolYear: "2024-2025",
			Semester:   "1st",
			Room:       "207",
			Meeting:    mustMeeting(t, "Mon", "9:00 AM - 10:00 AM"),
		}

		conflicts := DetectConflicts([]Schedule{base}, candidate)
		if len(conflicts) != 1 || conflicts[0].Type != ConflictTypeFaculty || conflicts[0].FacultyID != "fac-1" {
			t.Fatalf("unexpected conflicts: %+v", conflicts)
		}
	})

	t.Run("non-overlapping schedules yield no conflicts", func(t *testing.T) {
		later := base
		later.ID = "s-2"
		later.Meeting = mustMeeting(t, "Mon/Wed", "9:30 AM - 11:00 AM")

		otherTerm := base
		otherTerm.ID = "s-3"
		otherTerm.Semester = "2nd"

		if conflicts := DetectConflicts([]Schedule{base, otherTerm}, later); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})
}
