// Package policy holds the immutable engine thresholds read once per request
// from the settings store.
package policy

import (
	"strconv"
	"strings"
	"time"

	"absensi/internal/apperr"
)

// Setting keys as stored in the settings table.
const (
	KeyGeofenceEnabled      = "yolo_enabled"
	KeyMinAttendanceHour    = "min_attendance_hour"
	KeyMaxAttendanceHour    = "max_attendance_hour"
	KeyLateThreshold        = "late_threshold"
	KeyStartHour            = "start_hour"
	KeyNotificationsEnabled = "notification_enabled"
)

// Keys lists every setting the engine consumes.
var Keys = []string{
	KeyGeofenceEnabled,
	KeyMinAttendanceHour,
	KeyMaxAttendanceHour,
	KeyLateThreshold,
	KeyStartHour,
	KeyNotificationsEnabled,
}

const (
	DefaultMinHour       = 5
	DefaultMaxHour       = 18
	DefaultLateThreshold = 15
	DefaultStartHour     = 7
)

// ErrOutsideAllowedHours rejects an on-site scan outside the configured window.
var ErrOutsideAllowedHours = apperr.New(apperr.KindOutsideAllowedHours, "outside_allowed_hours", "attendance is not allowed at this hour")

// Policy is a snapshot of the thresholds the engine consumes. It is passed by
// value into every engine call.
type Policy struct {
	GeofenceEnabled      bool `json:"yolo_enabled"`
	NotificationsEnabled bool `json:"notification_enabled"`
	MinHour              int  `json:"min_attendance_hour"`
	MaxHour              int  `json:"max_attendance_hour"`
	// StartHour is the school day start; check-ins after StartHour:00 are late.
	StartHour int `json:"start_hour"`
	// LateThreshold is the lesson tolerance in minutes.
	LateThreshold int `json:"late_threshold"`
}

// Default returns the policy used when no settings are stored.
func Default() Policy {
	return Policy{
		GeofenceEnabled:      false,
		NotificationsEnabled: true,
		MinHour:              DefaultMinHour,
		MaxHour:              DefaultMaxHour,
		StartHour:            DefaultStartHour,
		LateThreshold:        DefaultLateThreshold,
	}
}

// FromSettings overlays raw key/value settings onto Default. Unparseable or
// out-of-range values keep their default and are reported in invalid.
func FromSettings(settings map[string]string) (p Policy, invalid []string) {
	p = Default()

	boolVal := func(key string, dst *bool) {
		raw, ok := settings[key]
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			invalid = append(invalid, key)
			return
		}
		*dst = v
	}
	intVal := func(key string, dst *int, min, max int) {
		raw, ok := settings[key]
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || v < min || v > max {
			invalid = append(invalid, key)
			return
		}
		*dst = v
	}

	boolVal(KeyGeofenceEnabled, &p.GeofenceEnabled)
	boolVal(KeyNotificationsEnabled, &p.NotificationsEnabled)
	intVal(KeyMinAttendanceHour, &p.MinHour, 0, 23)
	intVal(KeyMaxAttendanceHour, &p.MaxHour, 0, 23)
	intVal(KeyStartHour, &p.StartHour, 0, 23)
	intVal(KeyLateThreshold, &p.LateThreshold, 0, 24*60)
	return p, invalid
}

// CheckTimeWindow rejects t when its hour is before MinHour or after MaxHour.
// Only the on-site scan path calls it.
func (p Policy) CheckTimeWindow(t time.Time) error {
	h := t.Hour()
	if h < p.MinHour || h > p.MaxHour {
		return ErrOutsideAllowedHours.WithMessage("attendance is only allowed between %02d:00 and %02d:59", p.MinHour, p.MaxHour)
	}
	return nil
}

// CheckInLate reports whether a school check-in at t is late: strictly after
// StartHour:00 at minute precision.
func (p Policy) CheckInLate(t time.Time) bool {
	return t.Hour()*60+t.Minute() > p.StartHour*60
}

// LessonLate reports whether a lateness in minutes exceeds the tolerance.
func (p Policy) LessonLate(latenessMinutes int) bool {
	return latenessMinutes > p.LateThreshold
}
