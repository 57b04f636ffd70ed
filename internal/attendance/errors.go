package attendance

import (
	"errors"

	"absensi/internal/apperr"
)

var (
	ErrMissingBarcode   = apperr.New(apperr.KindValidation, "missing_barcode", "barcode_id is required")
	ErrInvalidTrack     = apperr.New(apperr.KindValidation, "invalid_attendance_type", "attendance_type must be sekolah or kelas")
	ErrMissingSchedule  = apperr.New(apperr.KindValidation, "missing_schedule", "jadwal_id is required for lesson attendance")
	ErrLocationRequired = apperr.New(apperr.KindValidation, "location_required", "latitude and longitude are required")
	ErrInvalidLocation  = apperr.New(apperr.KindValidation, "invalid_location", "latitude or longitude out of range")

	ErrStudentNotFound  = apperr.New(apperr.KindNotFound, "student_not_found", "no student with this barcode")
	ErrScheduleNotFound = apperr.New(apperr.KindNotFound, "schedule_not_found", "schedule not found")

	ErrAlreadyCompleted = apperr.New(apperr.KindConflict, "already_completed", "student has already checked in and out today")
	ErrAlreadyRecorded  = apperr.New(apperr.KindConflict, "already_recorded", "attendance for this lesson is already recorded today")

	ErrGeofenceRejected = apperr.New(apperr.KindGeofenceRejected, "geofence_rejected", "location is outside every attendance zone")
)

// errDuplicate is returned by Tx inserts that hit a uniqueness constraint.
var errDuplicate = errors.New("attendance: duplicate record")
