package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"absensi/internal/geofence"
	"absensi/internal/notify"
	"absensi/internal/schedule"
	"absensi/internal/store"
)

// Repository handles persistence for attendance records.
type Repository struct {
	db        *sql.DB
	timetable *schedule.Postgres
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, timetable: schedule.NewPostgres(db)}
}

// StudentByBarcode implements Store.
func (r *Repository) StudentByBarcode(ctx context.Context, barcodeID string) (Student, error) {
	var st Student
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.barcode_id, s.name, COALESCE(c.name, ''), COALESCE(s.guardian_phone, '')
		FROM students s
		LEFT JOIN classes c ON c.id = s.class_id
		WHERE s.barcode_id = $1
	`, barcodeID).Scan(&st.ID, &st.BarcodeID, &st.Name, &st.ClassName, &st.GuardianContact)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound.WithMessage("no student with barcode %q", barcodeID)
	}
	return st, err
}

// TimetableEntry implements Store.
func (r *Repository) TimetableEntry(ctx context.Context, id string) (schedule.Entry, error) {
	e, err := r.timetable.Find(ctx, id)
	if errors.Is(err, schedule.ErrNotFound) {
		return schedule.Entry{}, ErrScheduleNotFound
	}
	return e, err
}

// ActiveZones implements Store.
func (r *Repository) ActiveZones(ctx context.Context) ([]geofence.Zone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, radius_meters
		FROM locations
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []geofence.Zone
	for rows.Next() {
		var z geofence.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lon, &z.RadiusMeters); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// InTx implements Store.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return store.InTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) SchoolRecord(ctx context.Context, studentID string, date time.Time) (*SchoolRecord, error) {
	var (
		rec                   SchoolRecord
		checkInAt, checkOutAt sql.NullTime
		checkInSt, checkOutSt sql.NullString
		lat, lon              sql.NullFloat64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, student_id, attendance_date, check_in_time, check_in_status,
		       check_out_time, check_out_status, latitude, longitude
		FROM school_attendance
		WHERE student_id = $1 AND attendance_date = $2
		FOR UPDATE
	`, studentID, date).Scan(&rec.ID, &rec.StudentID, &rec.Date, &checkInAt, &checkInSt, &checkOutAt, &checkOutSt, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.CheckInTime = nullTime(checkInAt)
	rec.CheckInStatus = nullStatus(checkInSt)
	rec.CheckOutTime = nullTime(checkOutAt)
	rec.CheckOutStatus = nullStatus(checkOutSt)
	rec.Latitude = nullFloat(lat)
	rec.Longitude = nullFloat(lon)
	return &rec, nil
}

func (t pgTx) InsertSchoolRecord(ctx context.Context, rec *SchoolRecord) error {
	var status *string
	if rec.CheckInStatus != nil {
		s := string(*rec.CheckInStatus)
		status = &s
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO school_attendance (id, student_id, attendance_date, check_in_time, check_in_status, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.StudentID, rec.Date, rec.CheckInTime, status, rec.Latitude, rec.Longitude)
	if store.IsUniqueViolation(err) {
		return errDuplicate
	}
	return err
}

func (t pgTx) CheckOut(ctx context.Context, id string, at time.Time, status Status) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE school_attendance
		SET check_out_time = $2, check_out_status = $3, updated_at = NOW()
		WHERE id = $1 AND check_out_time IS NULL
	`, id, at, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

func (t pgTx) LessonRecordExists(ctx context.Context, studentID, entryID string, date time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lesson_attendance
			WHERE student_id = $1 AND timetable_entry_id = $2 AND attendance_date = $3
		)
	`, studentID, entryID, date).Scan(&exists)
	return exists, err
}

func (t pgTx) InsertLessonRecord(ctx context.Context, rec *LessonRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO lesson_attendance (id, student_id, timetable_entry_id, attendance_date, recorded_at, status, latitude, longitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.StudentID, rec.TimetableEntryID, rec.Date, rec.RecordedAt, string(rec.Status), rec.Latitude, rec.Longitude)
	if store.IsUniqueViolation(err) {
		return errDuplicate
	}
	if store.IsForeignKeyViolation(err) {
		return ErrScheduleNotFound
	}
	return err
}

// InsertNotification writes the outbox row under a savepoint so that a
// failure leaves the attendance write intact.
func (t pgTx) InsertNotification(ctx context.Context, rec *notify.Record) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT outbox`); err != nil {
		return err
	}
	if err := notify.Insert(ctx, t.tx, rec); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT outbox`); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT outbox`)
	return err
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullStatus(v sql.NullString) *Status {
	if !v.Valid {
		return nil
	}
	s := Status(v.String)
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
