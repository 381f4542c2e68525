package scheduler

import (
	"strings"

	"github.com/example/room-occupancy/internal/recurrence"
)

// Schedule is a class assignment reduced to the fields that matter for clashes.
type Schedule struct {
	ID         string
	FacultyID  string
	SchoolYear string
	Semester   string
	Room       string
	Meeting    recurrence.Meeting
}

// ConflictType describes the type of conflict detected between schedules.
type ConflictType string

const (
	// ConflictTypeDuplicate indicates the same room, term and meeting pattern is already assigned.
	ConflictTypeDuplicate ConflictType = "duplicate"
	// ConflictTypeRoom indicates a room is double-booked.
	ConflictTypeRoom ConflictType = "room"
	// ConflictTypeFaculty indicates a faculty member teaches two classes at once.
	ConflictTypeFaculty ConflictType = "faculty"
)

// Conflict details an overlapping schedule relation that callers can present to users.
type Conflict struct {
	WithScheduleID string
	Type           ConflictType
	Room           string
	FacultyID      string
}

// DetectConflicts identifies conflicts for the candidate schedule against existing ones.
// Only schedules of the same school year and semester are compared. A duplicate
// is reported instead of a room conflict when the meeting pattern is identical.
func DetectConflicts(existing []Schedule, candidate Schedule) []Conflict {
	conflicts := make([]Conflict, 0)
	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if !sameTerm(other, candidate) || !other.Meeting.Overlaps(candidate.Meeting) {
			continue
		}

		sameRoom := equalFold(other.Room, candidate.Room)
		switch {
		case sameRoom && other.Meeting.Equal(candidate.Meeting):
			conflicts = append(conflicts, Conflict{WithScheduleID: other.ID, Type: ConflictTypeDuplicate, Room: other.Room})
		case sameRoom:
			conflicts = append(conflicts, Conflict{WithScheduleID: other.ID, Type: ConflictTypeRoom, Room: other.Room})
		}

		if candidate.FacultyID != "" && equalFold(other.FacultyID, candidate.FacultyID) && !sameRoom {
			conflicts = append(conflicts, Conflict{WithScheduleID: other.ID, Type: ConflictTypeFaculty, FacultyID: other.FacultyID})
		}
	}
	return conflicts
}

// HasDuplicate reports whether conflicts contains a duplicate.
func HasDuplicate(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Type == ConflictTypeDuplicate {
			return true
		}
	}
	return false
}

func sameTerm(a, b Schedule) bool {
	return equalFold(a.SchoolYear, b.SchoolYear) && equalFold(a.Semester, b.Semester)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
