// Package notify reports school attendance events to guardians through an
// outbox of notification records.
package notify

import (
	"time"

	"absensi/internal/apperr"
)

// Status is the delivery state of a notification record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// EventKind is the attendance transition being reported.
type EventKind string

const (
	EventCheckIn  EventKind = "check_in"
	EventCheckOut EventKind = "check_out"
)

// Event is a successful school-level transition.
type Event struct {
	Kind         EventKind
	AttendanceID string
	StudentID    string
	StudentName  string
	ClassName    string
	Recipient    string
	At           time.Time
	Status       string
}

// Record is one outbound guardian message. It is written pending before any
// delivery attempt and moves to sent or failed exactly once.
type Record struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	AttendanceID string     `json:"attendance_id"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient"`
	Message      string     `json:"message"`
	Status       Status     `json:"status"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "notification_not_found", "notification not found")
	// ErrNotPending is returned when a transition targets a record that
	// already left the pending state.
	ErrNotPending = apperr.New(apperr.KindConflict, "notification_not_pending", "notification is no longer pending")
)
