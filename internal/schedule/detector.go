package schedule

import (
	"fmt"

	"absensi/internal/apperr"
)

// Axis names the dimension on which two entries collide.
type Axis string

const (
	AxisClass   Axis = "class"
	AxisTeacher Axis = "teacher"
)

var (
	ErrInvalidRange    = apperr.New(apperr.KindValidation, "invalid_range", "start time must be before end time")
	ErrInvalidWeekday  = apperr.New(apperr.KindValidation, "invalid_weekday", "weekday must be Monday through Saturday")
	ErrClassConflict   = apperr.New(apperr.KindConflict, "class_conflict", "class already has a lesson in this time range")
	ErrTeacherConflict = apperr.New(apperr.KindConflict, "teacher_conflict", "teacher already teaches in this time range")
)

// ConflictError reports the existing entry a candidate overlaps with. It
// unwraps to ErrClassConflict or ErrTeacherConflict.
type ConflictError struct {
	Axis Axis
	With Entry
	err  *apperr.Error
}

func newConflict(axis Axis, with Entry) *ConflictError {
	base := ErrClassConflict
	if axis == AxisTeacher {
		base = ErrTeacherConflict
	}
	return &ConflictError{
		Axis: axis,
		With: with,
		err:  base.WithMessage("%s (%s %s-%s, entry %s)", base.Message, with.Weekday, with.Start, with.End, with.ID),
	}
}

func (e *ConflictError) Error() string { return e.err.Error() }

func (e *ConflictError) Unwrap() error { return e.err }

// Overlaps reports whether the half-open ranges [aStart,aEnd) and
// [bStart,bEnd) intersect. Back-to-back ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

// Detect checks c against the existing timetable, ignoring the entry whose ID
// is excludeID. A class overlap is reported in preference to a teacher
// overlap.
func Detect(c Candidate, existing []Entry, excludeID string) error {
	if !c.Weekday.Valid() {
		return ErrInvalidWeekday
	}
	if c.Start >= c.End {
		return ErrInvalidRange
	}

	var teacherHit *Entry
	for i := range existing {
		e := &existing[i]
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if e.Weekday != c.Weekday || !Overlaps(c.Start, c.End, e.Start, e.End) {
			continue
		}
		if e.ClassID == c.ClassID {
			return newConflict(AxisClass, *e)
		}
		if teacherHit == nil && e.TeacherID == c.TeacherID {
			teacherHit = e
		}
	}
	if teacherHit != nil {
		return newConflict(AxisTeacher, *teacherHit)
	}
	return nil
}

func lockKeys(c Candidate) []string {
	// Fixed order, class before teacher, so concurrent writers cannot deadlock.
	return []string{
		fmt.Sprintf("class:%s:%d", c.ClassID, c.Weekday),
		fmt.Sprintf("teacher:%s:%d", c.TeacherID, c.Weekday),
	}
}
