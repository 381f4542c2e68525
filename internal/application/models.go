package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/room-occupancy/internal/persistence"
	"github.com/example/room-occupancy/internal/recurrence"
)

// Principal identifies the faculty member driving an engine. Identity is issued
// upstream; the service trusts the values it is given.
type Principal struct {
	FacultyID   string
	FacultyName string
}

// State is the lifecycle position of a SessionEngine.
type State int

const (
	// StateIdle means no session is selected.
	StateIdle State = iota
	// StateAwaitingVerification means a scheduled class was selected and a scan is expected.
	StateAwaitingVerification
	// StateAttending means the scan was verified and both occupancy markers are held.
	StateAttending
	// StateEnded is reported while a session is being archived; the engine then returns to Idle.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateAttending:
		return "attending"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TimeWindow is the scheduled start and end of a class meeting as 15:04 clocks.
type TimeWindow struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

// Window converts the clocks into a recurrence window.
func (w TimeWindow) Window() (recurrence.Window, error) {
	return recurrence.ParseWindow(w.Start + " - " + w.End)
}

// Session is one faculty member's claim on a room for one scheduled class meeting.
type Session struct {
	SessionID          string     `json:"sessionId"`
	ScheduleID         string     `json:"scheduleId,omitempty"`
	FacultyID          string     `json:"facultyId" validate:"required,segment"`
	FacultyName        string     `json:"facultyName"`
	Room               string     `json:"room" validate:"required,segment"`
	Building           string     `json:"building"`
	Day                string     `json:"day" validate:"required,daypattern"`
	TimeWindow         TimeWindow `json:"timeWindow"`
	Time               string     `json:"time,omitempty"`
	SubjectCode        string     `json:"subjectCode" validate:"required"`
	SubjectDescription string     `json:"subjectDescription"`
	Course             string     `json:"course"`
	CreditUnits        string     `json:"creditUnits,omitempty"`
	LecHours           string     `json:"lecHours,omitempty"`
	LabHours           string     `json:"labHours,omitempty"`
	SchoolYear         string     `json:"schoolYear" validate:"required"`
	Semester           string     `json:"semester" validate:"required"`
	AttendedAt         *time.Time `json:"attendedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
}

// Active reports whether the session was verified and has not ended.
func (s Session) Active() bool {
	return s.AttendedAt != nil && s.EndedAt == nil
}

// HistoryEntry is an archived session together with its history key.
type HistoryEntry struct {
	Key       string    `json:"key"`
	Session   Session   `json:"session"`
	TimeEnded time.Time `json:"timeEnded"`
}

// RoomStatus is the dashboard view of a room. Absence of a record means free.
type RoomStatus struct {
	Room     string   `json:"room"`
	Occupied bool     `json:"occupied"`
	Session  *Session `json:"session,omitempty"`
	Revision int64    `json:"revision,omitempty"`
}

// EndResult describes a completed EndSession call.
type EndResult struct {
	Session    Session `json:"session"`
	HistoryKey string  `json:"historyKey,omitempty"`
	Archived   bool    `json:"archived"`
}

func (s Session) record() persistence.SessionRecord {
	return persistence.SessionRecord{
		SessionID:          s.SessionID,
		FacultyID:          s.FacultyID,
		FacultyName:        s.FacultyName,
		ScheduleID:         s.ScheduleID,
		Room:               s.Room,
		Building:           s.Building,
		Day:                s.Day,
		StartTime:          s.TimeWindow.Start,
		EndTime:            s.TimeWindow.End,
		Time:               s.Time,
		SubjectCode:        s.SubjectCode,
		SubjectDescription: s.SubjectDescription,
		Course:             s.Course,
		CreditUnits:        s.CreditUnits,
		LecHours:           s.LecHours,
		LabHours:           s.LabHours,
		SchoolYear:         s.SchoolYear,
		Semester:           s.Semester,
		AttendedAt:         copyTime(s.AttendedAt),
		EndedAt:            copyTime(s.EndedAt),
	}
}

func sessionFromRecord(rec persistence.SessionRecord) Session {
	return Session{
		SessionID:          rec.SessionID,
		ScheduleID:         rec.ScheduleID,
		FacultyID:          rec.FacultyID,
		FacultyName:        rec.FacultyName,
		Room:               rec.Room,
		Building:           rec.Building,
		Day:                rec.Day,
		TimeWindow:         TimeWindow{Start: rec.StartTime, End: rec.EndTime},
		Time:               rec.Time,
		SubjectCode:        rec.SubjectCode,
		SubjectDescription: rec.SubjectDescription,
		Course:             rec.Course,
		CreditUnits:        rec.CreditUnits,
		LecHours:           rec.LecHours,
		LabHours:           rec.LabHours,
		SchoolYear:         rec.SchoolYear,
		Semester:           rec.Semester,
		AttendedAt:         copyTime(rec.AttendedAt),
		EndedAt:            copyTime(rec.EndedAt),
	}
}

// SessionFromSchedule turns a catalog entry into a session candidate.
func SessionFromSchedule(entry persistence.ScheduleEntry) (Session, error) {
	window, err := recurrence.ParseWindow(entry.Time)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ScheduleID:         entry.ID,
		FacultyID:          entry.FacultyID,
		FacultyName:        entry.FacultyName,
		Room:               strings.TrimSpace(entry.Room),
		Building:           entry.Building,
		Day:                entry.Day,
		TimeWindow:         TimeWindow{Start: window.StartClock(), End: window.EndClock()},
		Time:               entry.Time,
		SubjectCode:        entry.SubjectCode,
		SubjectDescription: entry.SubjectDescription,
		Course:             entry.Course,
		CreditUnits:        entry.CreditUnits,
		LecHours:           entry.LecHours,
		LabHours:           entry.LabHours,
		SchoolYear:         entry.SchoolYear,
		Semester:           entry.Semester,
	}, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
