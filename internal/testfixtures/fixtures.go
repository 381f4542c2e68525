package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
)

var (
	scheduleCounter uint64
	facultyCounter  uint64
)

// Manila is the fixed +08:00 zone schedules are written in.
var Manila = time.FixedZone("PHT", 8*60*60)

// referenceTime is a Monday morning, inside the default 08:00-09:30 window.
var referenceTime = time.Date(2024, time.June, 10, 8, 15, 0, 0, Manila)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Faculty fixtures ---------------------------

// FacultyFixture is a signed-in faculty member.
type FacultyFixture struct {
	ID   string
	Name string
}

// NewFacultyFixture returns a faculty member with a unique ID.
func NewFacultyFixture() FacultyFixture {
	idx := atomic.AddUint64(&facultyCounter, 1)
	return FacultyFixture{
		ID:   fmt.Sprintf("fac-%03d", idx),
		Name: fmt.Sprintf("Faculty %03d", idx),
	}
}

// -------------------------- Schedule fixtures ---------------------------

// ScheduleOption configures the generated schedule entry.
type ScheduleOption func(*persistence.ScheduleEntry)

// NewScheduleEntry returns a deterministic catalog row with optional
// overrides. The default meets Mon/Wed 08:00-09:30 in room R101.
func NewScheduleEntry(opts ...ScheduleOption) persistence.ScheduleEntry {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	entry := persistence.ScheduleEntry{
		ID:                 fmt.Sprintf("sched-%03d", idx),
		FacultyID:          "fac-001",
		FacultyName:        "Faculty 001",
		SchoolYear:         "2024-2025",
		Semester:           "1st",
		SubjectCode:        fmt.Sprintf("CS%03d", 100+idx),
		SubjectDescription: "Introduction to Computing",
		Course:             "BSCS",
		CreditUnits:        "3",
		LecHours:           "2",
		LabHours:           "3",
		Day:                "Mon/Wed",
		Time:               "8:00 AM - 9:30 AM",
		Building:           "Main",
		Room:               "R101",
	}
	for _, opt := range opts {
		opt(&entry)
	}
	return entry
}

// WithScheduleID overrides the generated schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.ID = id
	}
}

// WithFaculty assigns the schedule to a faculty member.
func WithFaculty(f FacultyFixture) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.FacultyID = f.ID
		e.FacultyName = f.Name
	}
}

// WithRoom overrides the room.
func WithRoom(room string) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.Room = room
	}
}

// WithMeeting overrides the day pattern and time range.
func WithMeeting(day, timeRange string) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.Day = day
		e.Time = timeRange
	}
}

// WithTerm overrides the school year and semester.
func WithTerm(schoolYear, semester string) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.SchoolYear = schoolYear
		e.Semester = semester
	}
}

// WithSubject overrides the subject code.
func WithSubject(code string) ScheduleOption {
	return func(e *persistence.ScheduleEntry) {
		e.SubjectCode = code
	}
}

// SessionRecord returns a stored session snapshot matching entry, as a room
// record holds it while the class is in progress.
func SessionRecord(entry persistence.ScheduleEntry, attendedAt time.Time) persistence.SessionRecord {
	at := attendedAt.UTC()
	return persistence.SessionRecord{
		SessionID:          fmt.Sprintf("%s-%d", entry.Room, attendedAt.UnixMilli()),
		FacultyID:          entry.FacultyID,
		FacultyName:        entry.FacultyName,
		ScheduleID:         entry.ID,
		Room:               entry.Room,
		Building:           entry.Building,
		Day:                entry.Day,
		StartTime:          "08:00",
		EndTime:            "09:30",
		Time:               entry.Time,
		SubjectCode:        entry.SubjectCode,
		SubjectDescription: entry.SubjectDescription,
		Course:             entry.Course,
		SchoolYear:         entry.SchoolYear,
		Semester:           entry.Semester,
		AttendedAt:         &at,
	}
}
