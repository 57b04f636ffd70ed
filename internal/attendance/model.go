package attendance

import (
	"strings"
	"time"

	"absensi/internal/apperr"
)

// Track selects which attendance state machine a scan drives.
type Track string

const (
	TrackSchool Track = "sekolah"
	TrackLesson Track = "kelas"
)

// Action is the transition a scan performed.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionLesson   Action = "lesson"
)

// Status is an attendance status code.
type Status string

const (
	StatusPresent Status = "hadir"
	StatusLate    Status = "terlambat"
	StatusExcused Status = "izin"
	StatusSick    Status = "sakit"
	StatusAbsent  Status = "alpa"
)

var statusAliases = map[string]Status{
	"hadir": StatusPresent, "present": StatusPresent,
	"terlambat": StatusLate, "late": StatusLate,
	"izin": StatusExcused,
	"sakit": StatusSick,
	"alpa": StatusAbsent, "alpha": StatusAbsent,
}

var ErrInvalidStatus = apperr.New(apperr.KindValidation, "invalid_status", "status_code must be one of hadir, terlambat, izin, sakit, alpa")

// ParseStatus accepts the status codes and their English aliases.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", ErrInvalidStatus.WithMessage("unknown status_code %q", s)
}

// Variant distinguishes the plain barcode scan from the on-site, geofenced one.
type Variant int

const (
	VariantPlain Variant = iota
	VariantOnSite
)

// Student is the read-only view of a student the engine needs.
type Student struct {
	ID        string `json:"id"`
	BarcodeID string `json:"barcode_id"`
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	// GuardianContact is empty when no guardian is registered.
	GuardianContact string `json:"-"`
}

// SchoolRecord is a student's whole-day attendance. At most one exists per
// student and date; it is mutated once, on check-out.
type SchoolRecord struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"student_id"`
	Date           time.Time  `json:"date"`
	CheckInTime    *time.Time `json:"check_in_time,omitempty"`
	CheckInStatus  *Status    `json:"check_in_status,omitempty"`
	CheckOutTime   *time.Time `json:"check_out_time,omitempty"`
	CheckOutStatus *Status    `json:"check_out_status,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
}

// Completed reports whether the record has been checked out.
func (r *SchoolRecord) Completed() bool { return r.CheckOutTime != nil }

// LessonRecord is a student's attendance for one timetable entry on one date.
// It is never mutated.
type LessonRecord struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"student_id"`
	TimetableEntryID string    `json:"jadwal_id"`
	Date             time.Time `json:"date"`
	RecordedAt       time.Time `json:"time"`
	Status           Status    `json:"status"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
}

// ScanRequest is one barcode scan.
type ScanRequest struct {
	BarcodeID  string
	Track      Track
	ScheduleID string
	Latitude   *float64
	Longitude  *float64
	// StatusCode overrides the computed status on the on-site variant.
	StatusCode string
	Variant    Variant
}

// Result describes the transition a scan performed.
type Result struct {
	Track           Track         `json:"attendance_type"`
	Action          Action        `json:"action"`
	Student         Student       `json:"student"`
	School          *SchoolRecord `json:"school,omitempty"`
	Lesson          *LessonRecord `json:"lesson,omitempty"`
	LatenessMinutes *int          `json:"lateness_minutes,omitempty"`
	NotificationID  string        `json:"notification_id,omitempty"`
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
