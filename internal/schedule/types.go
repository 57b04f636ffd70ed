// Package schedule guards the class and teacher timetable against
// overlapping lessons.
package schedule

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is a school day, Monday=1 through Saturday=6.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = [...]string{"", "senin", "selasa", "rabu", "kamis", "jumat", "sabtu"}

var weekdayAliases = map[string]Weekday{
	"senin": Monday, "selasa": Tuesday, "rabu": Wednesday, "kamis": Thursday, "jumat": Friday, "jum'at": Friday, "sabtu": Saturday,
	"monday": Monday, "tuesday": Tuesday, "wednesday": Wednesday, "thursday": Thursday, "friday": Friday, "saturday": Saturday,
}

// ParseWeekday accepts Indonesian or English day names, case-insensitive, or
// the ordinals 1..6.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if w, ok := weekdayAliases[s]; ok {
		return w, nil
	}
	if n, err := strconv.Atoi(s); err == nil && Weekday(n).Valid() {
		return Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// WeekdayOf returns the school day of t. Sunday is not a school day.
func WeekdayOf(t time.Time) (Weekday, bool) {
	if t.Weekday() == time.Sunday {
		return 0, false
	}
	return Weekday(t.Weekday()), true
}

// Valid reports whether w is Monday..Saturday.
func (w Weekday) Valid() bool { return w >= Monday && w <= Saturday }

func (w Weekday) String() string {
	if !w.Valid() {
		return "Weekday(" + strconv.Itoa(int(w)) + ")"
	}
	return weekdayNames[w]
}

// MarshalText encodes w as its Indonesian name.
func (w Weekday) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText is the inverse of MarshalText and also accepts English names.
func (w *Weekday) UnmarshalText(b []byte) error {
	v, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock accepts HH:MM or HH:MM:SS. Seconds are truncated.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 || len(parts[0]) != 2 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		// Postgres may render fractional seconds, e.g. 08:00:00.000000.
		sec, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || sec < 0 || sec >= 60 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Minutes returns c as minutes since midnight.
func (c Clock) Minutes() int { return int(c) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText encodes c as HH:MM.
func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText parses HH:MM or HH:MM:SS.
func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Value encodes c for a Postgres TIME column.
func (c Clock) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// Scan decodes a Postgres TIME column.
func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	case time.Time:
		*c = ClockOf(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
}

// Entry is one lesson slot of the weekly timetable.
type Entry struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"kelas_id"`
	SubjectID string    `json:"mata_pelajaran_id"`
	TeacherID string    `json:"guru_id"`
	Weekday   Weekday   `json:"hari"`
	Start     Clock     `json:"jam_mulai"`
	End       Clock     `json:"jam_selesai"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate is the part of an entry the conflict detector inspects.
type Candidate struct {
	ClassID   string
	TeacherID string
	Weekday   Weekday
	Start     Clock
	End       Clock
}

// Candidate returns the detector view of e.
func (e Entry) Candidate() Candidate {
	return Candidate{ClassID: e.ClassID, TeacherID: e.TeacherID, Weekday: e.Weekday, Start: e.Start, End: e.End}
}
