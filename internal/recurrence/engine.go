package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var pht = time.FixedZone("PHT", 8*60*60)

// ErrInvalidDays indicates a day pattern could not be parsed.
var ErrInvalidDays = errors.New("recurrence: invalid day pattern")

// ErrInvalidWindow indicates a time range could not be parsed.
var ErrInvalidWindow = errors.New("recurrence: invalid time window")

// ErrInvalidDuration indicates the window does not end after it starts.
var ErrInvalidDuration = errors.New("recurrence: window must end after it starts")

// Window is a daily time range expressed in minutes after midnight.
type Window struct {
	Start int
	End   int
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Minute
}

// Overlaps reports whether the two windows share any minute.
func (w Window) Overlaps(other Window) bool {
	return w.Start < other.End && other.Start < w.End
}

// StartClock formats the start as 15:04.
func (w Window) StartClock() string {
	return formatClock(w.Start)
}

// EndClock formats the end as 15:04.
func (w Window) EndClock() string {
	return formatClock(w.End)
}

func (w Window) String() string {
	return w.StartClock() + "-" + w.EndClock()
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM"}

// ParseClock parses a wall clock such as "8:00 AM", "08:00" or "1 PM" into
// minutes after midnight.
func ParseClock(value string) (int, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(value), " "))
	normalized = strings.ReplaceAll(normalized, ".", "")
	for _, layout := range clockLayouts {
		parsed, err := time.Parse(layout, normalized)
		if err == nil {
			return parsed.Hour()*60 + parsed.Minute(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, value)
}

// ParseWindow parses a range such as "8:00 AM - 9:30 AM" or "08:00-09:30".
func ParseWindow(value string) (Window, error) {
	startText, endText, ok := strings.Cut(value, "-")
	if !ok {
		return Window{}, fmt.Errorf("%w: %q has no separator", ErrInvalidWindow, value)
	}
	start, err := ParseClock(startText)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(endText)
	if err != nil {
		return Window{}, err
	}
	if end <= start {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidDuration, value)
	}
	return Window{Start: start, End: end}, nil
}

var dayNames = map[string]time.Weekday{
	"m": time.Monday, "mon": time.Monday, "monday": time.Monday,
	"t": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"w": time.Wednesday, "wed": time.Wednesday, "wednesday": time.Wednesday,
	"th": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"f": time.Friday, "fri": time.Friday, "friday": time.Friday,
	"s": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
	"su": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
}

// ParseDays parses a day pattern such as "Mon/Wed", "Tue/Thurs" or "Monday"
// into a sorted, de-duplicated weekday list.
func ParseDays(value string) ([]time.Weekday, error) {
	tokens := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return r == '/' || r == ',' || r == '&' || r == ' '
	})
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrInvalidDays, value)
	}

	seen := make(map[time.Weekday]struct{}, len(tokens))
	days := make([]time.Weekday, 0, len(tokens))
	for _, token := range tokens {
		day, ok := dayNames[strings.TrimSuffix(token, ".")]
		if !ok {
			return nil, fmt.Errorf("%w: unknown day %q", ErrInvalidDays, token)
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// Meeting is the weekly pattern of a scheduled class.
type Meeting struct {
	Days   []time.Weekday
	Window Window
}

// ParseMeeting combines ParseDays and ParseWindow.
func ParseMeeting(days, window string) (Meeting, error) {
	weekdays, err := ParseDays(days)
	if err != nil {
		return Meeting{}, err
	}
	w, err := ParseWindow(window)
	if err != nil {
		return Meeting{}, err
	}
	return Meeting{Days: weekdays, Window: w}, nil
}

// Overlaps reports whether both meetings share a weekday and overlapping windows.
func (m Meeting) Overlaps(other Meeting) bool {
	if !m.Window.Overlaps(other.Window) {
		return false
	}
	for _, day := range m.Days {
		if containsDay(other.Days, day) {
			return true
		}
	}
	return false
}

// Equal reports whether both meetings have the same weekdays and window.
func (m Meeting) Equal(other Meeting) bool {
	if m.Window != other.Window || len(m.Days) != len(other.Days) {
		return false
	}
	for i := range m.Days {
		if m.Days[i] != other.Days[i] {
			return false
		}
	}
	return true
}

// Engine places meetings on the calendar of a fixed location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that resolves wall clocks in loc.
// If loc is nil, Asia/Manila (PHT) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = pht
	}
	return &Engine{location: loc}
}

// Location returns the engine's timezone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return pht
	}
	return e.location
}

// StartOn returns the instant the window starts on ref's calendar date.
func (e *Engine) StartOn(ref time.Time, w Window) time.Time {
	loc := e.Location()
	y, m, d := ref.In(loc).Date()
	return time.Date(y, m, d, w.Start/60, w.Start%60, 0, 0, loc)
}

// Occurs reports whether the meeting falls on ref's weekday.
func (e *Engine) Occurs(m Meeting, ref time.Time) bool {
	return containsDay(m.Days, ref.In(e.Location()).Weekday())
}

// Next returns the start of the first meeting at or after ref.
func (e *Engine) Next(m Meeting, ref time.Time) (time.Time, error) {
	if len(m.Days) == 0 {
		return time.Time{}, ErrInvalidDays
	}
	if m.Window.End <= m.Window.Start {
		return time.Time{}, ErrInvalidDuration
	}
	loc := e.Location()
	ref = ref.In(loc)
	for offset := 0; offset <= 7; offset++ {
		day := ref.AddDate(0, 0, offset)
		if !containsDay(m.Days, day.Weekday()) {
			continue
		}
		start := e.StartOn(day, m.Window)
		if !start.Before(ref) {
			return start, nil
		}
	}
	return time.Time{}, ErrInvalidDays
}

func containsDay(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
