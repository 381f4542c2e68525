package persistence

import "time"

// SessionRecord is the stored snapshot of a faculty member's claim on a room.
// Field names follow the documents written by the web client.
type SessionRecord struct {
	SessionID          string     `json:"sessionId"`
	FacultyID          string     `json:"facultyId"`
	FacultyName        string     `json:"facultyName"`
	ScheduleID         string     `json:"scheduleId,omitempty"`
	Room               string     `json:"room"`
	Building           string     `json:"building"`
	Day                string     `json:"day"`
	StartTime          string     `json:"startTime"`
	EndTime            string     `json:"endTime"`
	Time               string     `json:"time"`
	SubjectCode        string     `json:"subjectCode"`
	SubjectDescription string     `json:"subjectDescription"`
	Course             string     `json:"course"`
	CreditUnits        string     `json:"creditUnits,omitempty"`
	LecHours           string     `json:"lecHours,omitempty"`
	LabHours           string     `json:"labHours,omitempty"`
	SchoolYear         string     `json:"schoolYear"`
	Semester           string     `json:"semester"`
	AttendedAt         *time.Time `json:"attendedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
}

// RoomRecord is the value stored under rooms/{room} while a session is active.
type RoomRecord struct {
	SessionRecord
	HolderToken string `json:"holderToken"`

	Revision int64 `json:"-"`
}

// UserPointer combines users/{id}/occupiedRoom and users/{id}/attendingClass.
type UserPointer struct {
	UserID         string
	OccupiedRoom   string
	AttendingClass bool

	Revision int64
}

// HistoryRecord is an immutable archived session stored under history/{key}.
type HistoryRecord struct {
	SessionRecord
	TimeEnded int64 `json:"timeEnded"`

	Key      string `json:"-"`
	Revision int64  `json:"-"`
}

// ScheduleEntry is a read-only class meeting assignment from the schedule catalog.
type ScheduleEntry struct {
	ID                 string `db:"id" json:"id"`
	FacultyID          string `db:"faculty_id" json:"facultyId"`
	FacultyName        string `db:"faculty_name" json:"facultyName"`
	SchoolYear         string `db:"school_year" json:"schoolYear"`
	Semester           string `db:"semester" json:"semester"`
	SubjectCode        string `db:"subject_code" json:"subjectCode"`
	SubjectDescription string `db:"subject_description" json:"subjectDescription"`
	Course             string `db:"course" json:"course"`
	CreditUnits        string `db:"credit_units" json:"creditUnits"`
	LecHours           string `db:"lec_hours" json:"lecHours"`
	LabHours           string `db:"lab_hours" json:"labHours"`
	Day                string `db:"day" json:"day"`
	Time               string `db:"time_window" json:"time"`
	Building           string `db:"building" json:"building"`
	Room               string `db:"room" json:"room"`
}
