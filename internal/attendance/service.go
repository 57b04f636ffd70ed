package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"absensi/internal/apperr"
	"absensi/internal/geofence"
	"absensi/internal/metrics"
	"absensi/internal/notify"
	"absensi/internal/policy"
	"absensi/internal/schedule"
)

// Store provides read access to the collaborators a scan needs and opens
// transactions over attendance records.
type Store interface {
	StudentByBarcode(ctx context.Context, barcodeID string) (Student, error)
	TimetableEntry(ctx context.Context, id string) (schedule.Entry, error)
	ActiveZones(ctx context.Context) ([]geofence.Zone, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of attendance writes available inside a transaction.
type Tx interface {
	// SchoolRecord returns the record for student on date, locked for update,
	// or nil when none exists.
	SchoolRecord(ctx context.Context, studentID string, date time.Time) (*SchoolRecord, error)
	// InsertSchoolRecord returns errDuplicate when a record for the same
	// student and date already exists.
	InsertSchoolRecord(ctx context.Context, rec *SchoolRecord) error
	// CheckOut completes record id. It returns ErrAlreadyCompleted when the
	// record was checked out concurrently.
	CheckOut(ctx context.Context, id string, at time.Time, status Status) error
	LessonRecordExists(ctx context.Context, studentID, entryID string, date time.Time) (bool, error)
	// InsertLessonRecord returns errDuplicate on a uniqueness violation.
	InsertLessonRecord(ctx context.Context, rec *LessonRecord) error
	// InsertNotification writes a pending outbox record. A failure must not
	// invalidate the rest of the transaction.
	InsertNotification(ctx context.Context, rec *notify.Record) error
}

// Notifier composes outbox records and hands committed ones to delivery.
type Notifier interface {
	Compose(p policy.Policy, ev notify.Event) (*notify.Record, bool)
	Enqueue(ctx context.Context, id string)
}

// Service runs the school and lesson attendance state machines.
type Service struct {
	store    Store
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// NewService creates an attendance service. loc is the school timezone in
// which dates, lateness and allowed hours are evaluated.
func NewService(store Store, notifier Notifier, loc *time.Location, log *zap.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, notifier: notifier, loc: loc, now: time.Now, log: log}
}

// Scan applies one barcode scan under policy p.
func (s *Service) Scan(ctx context.Context, p policy.Policy, req ScanRequest) (res Result, err error) {
	defer func() {
		track := string(req.Track)
		if track != string(TrackSchool) && track != string(TrackLesson) {
			track = "unknown"
		}
		outcome := "ok"
		if err != nil {
			outcome = apperr.CodeOf(err)
		}
		metrics.Scans.WithLabelValues(track, string(res.Action), outcome).Inc()
	}()

	req.BarcodeID = strings.TrimSpace(req.BarcodeID)
	if req.BarcodeID == "" {
		return Result{}, ErrMissingBarcode
	}
	if req.Track != TrackSchool && req.Track != TrackLesson {
		return Result{}, ErrInvalidTrack.WithMessage("unknown attendance_type %q", req.Track)
	}
	if req.Track == TrackLesson && strings.TrimSpace(req.ScheduleID) == "" {
		return Result{}, ErrMissingSchedule
	}
	if err := checkCoordinates(req.Latitude, req.Longitude); err != nil {
		return Result{}, err
	}

	var override Status
	if req.Variant == VariantOnSite && strings.TrimSpace(req.StatusCode) != "" {
		if override, err = ParseStatus(req.StatusCode); err != nil {
			return Result{}, err
		}
	}

	student, err := s.store.StudentByBarcode(ctx, req.BarcodeID)
	if err != nil {
		return Result{}, err
	}

	now := s.now().In(s.loc)
	if req.Variant == VariantOnSite && p.GeofenceEnabled {
		if err := s.gate(ctx, p, req, student, now); err != nil {
			return Result{}, err
		}
	}

	if req.Track == TrackSchool {
		return s.scanSchool(ctx, p, req, student, now, override)
	}
	return s.scanLesson(ctx, p, req, student, now, override)
}

func checkCoordinates(lat, lon *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return ErrInvalidLocation
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return ErrInvalidLocation
	}
	return nil
}

// gate runs the on-site checks: location first, then allowed hours.
func (s *Service) gate(ctx context.Context, p policy.Policy, req ScanRequest, student Student, now time.Time) error {
	if req.Latitude == nil || req.Longitude == nil {
		return ErrLocationRequired
	}
	zones, err := s.store.ActiveZones(ctx)
	if err != nil {
		return err
	}
	res := geofence.Check(geofence.Point{Lat: *req.Latitude, Lon: *req.Longitude}, zones)
	if !res.Inside {
		fields := []zap.Field{zap.String("student_id", student.ID), zap.Int("zones", len(zones))}
		if res.Nearest != nil {
			fields = append(fields, zap.String("nearest_zone", res.Nearest.Name), zap.Float64("distance_m", res.Distance))
		}
		s.log.Info("scan rejected by geofence", fields...)
		if res.Nearest == nil {
			return ErrGeofenceRejected.WithMessage("no active attendance zone is configured")
		}
		return ErrGeofenceRejected.WithMessage("location is %.0f m from %s, outside its %.0f m radius",
			res.Distance, res.Nearest.Name, res.Nearest.RadiusMeters)
	}
	return p.CheckTimeWindow(now)
}

func (s *Service) scanSchool(ctx context.Context, p policy.Policy, req ScanRequest, student Student, now time.Time, override Status) (Result, error) {
	date := dateOf(now)
	at := now.UTC()
	res := Result{Track: TrackSchool, Student: student}
	var outbox *notify.Record

	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.SchoolRecord(ctx, student.ID, date)
		if err != nil {
			return err
		}

		var rec SchoolRecord
		switch {
		case cur == nil:
			status := StatusPresent
			if p.CheckInLate(now) {
				status = StatusLate
			}
			if override != "" {
				status = override
			}
			rec = SchoolRecord{
				ID:            uuid.NewString(),
				StudentID:     student.ID,
				Date:          date,
				CheckInTime:   &at,
				CheckInStatus: &status,
				Latitude:      req.Latitude,
				Longitude:     req.Longitude,
			}
			if err := tx.InsertSchoolRecord(ctx, &rec); err != nil {
				if errors.Is(err, errDuplicate) {
					return ErrAlreadyCompleted.WithMessage("student %s was checked in concurrently", student.ID)
				}
				return err
			}
			res.Action = ActionCheckIn
		case cur.Completed():
			return ErrAlreadyCompleted
		default:
			status := StatusPresent
			if err := tx.CheckOut(ctx, cur.ID, at, status); err != nil {
				return err
			}
			rec = *cur
			rec.CheckOutTime = &at
			rec.CheckOutStatus = &status
			res.Action = ActionCheckOut
		}
		res.School = &rec
		outbox = s.writeOutbox(ctx, tx, p, student, rec, res.Action)
		return nil
	})
	if err != nil {
		return Result{Track: TrackSchool}, err
	}

	s.log.Info("school attendance recorded",
		zap.String("student_id", student.ID),
		zap.String("action", string(res.Action)),
		zap.String("attendance_id", res.School.ID),
	)
	if outbox != nil {
		res.NotificationID = outbox.ID
		s.notifier.Enqueue(ctx, outbox.ID)
	}
	return res, nil
}

// writeOutbox stores the pending notification for a school transition. A
// failure is logged and never fails the attendance write.
func (s *Service) writeOutbox(ctx context.Context, tx Tx, p policy.Policy, student Student, rec SchoolRecord, action Action) *notify.Record {
	if s.notifier == nil {
		return nil
	}
	ev := notify.Event{
		AttendanceID: rec.ID,
		StudentID:    student.ID,
		StudentName:  student.Name,
		ClassName:    student.ClassName,
		Recipient:    student.GuardianContact,
	}
	if action == ActionCheckOut {
		ev.Kind, ev.At, ev.Status = notify.EventCheckOut, *rec.CheckOutTime, string(*rec.CheckOutStatus)
	} else {
		ev.Kind, ev.At, ev.Status = notify.EventCheckIn, *rec.CheckInTime, string(*rec.CheckInStatus)
	}

	out, ok := s.notifier.Compose(p, ev)
	if !ok {
		return nil
	}
	if err := tx.InsertNotification(ctx, out); err != nil {
		s.log.Warn("write notification outbox failed",
			zap.String("student_id", student.ID),
			zap.String("attendance_id", rec.ID),
			zap.Error(err),
		)
		return nil
	}
	return out
}

func (s *Service) scanLesson(ctx context.Context, p policy.Policy, req ScanRequest, student Student, now time.Time, override Status) (Result, error) {
	if _, err := uuid.Parse(req.ScheduleID); err != nil {
		return Result{Track: TrackLesson}, ErrScheduleNotFound
	}
	entry, err := s.store.TimetableEntry(ctx, req.ScheduleID)
	if err != nil {
		return Result{Track: TrackLesson}, err
	}

	lateness := schedule.ClockOf(now).Minutes() - entry.Start.Minutes()
	status := StatusPresent
	if p.LessonLate(lateness) {
		status = StatusLate
	}
	if override != "" {
		status = override
	}

	date := dateOf(now)
	rec := LessonRecord{
		ID:               uuid.NewString(),
		StudentID:        student.ID,
		TimetableEntryID: entry.ID,
		Date:             date,
		RecordedAt:       now.UTC(),
		Status:           status,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
	}
	err = s.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.LessonRecordExists(ctx, student.ID, entry.ID, date)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyRecorded
		}
		if err := tx.InsertLessonRecord(ctx, &rec); err != nil {
			if errors.Is(err, errDuplicate) {
				return ErrAlreadyRecorded
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Result{Track: TrackLesson}, err
	}

	s.log.Info("lesson attendance recorded",
		zap.String("student_id", student.ID),
		zap.String("schedule_id", entry.ID),
		zap.String("status", string(status)),
		zap.Int("lateness_minutes", lateness),
	)
	return Result{
		Track:           TrackLesson,
		Action:          ActionLesson,
		Student:         student,
		Lesson:          &rec,
		LatenessMinutes: &lateness,
	}, nil
}
