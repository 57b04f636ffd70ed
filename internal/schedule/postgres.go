package schedule

import (
	"context"
	"database/sql"
	"errors"

	"absensi/internal/apperr"
	"absensi/internal/store"
)

// ErrUnknownReference is returned when the class, teacher or subject of an
// entry does not exist.
var ErrUnknownReference = apperr.New(apperr.KindNotFound, "reference_not_found", "class, teacher or subject not found")

// Postgres persists the timetable.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed Store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// InTx implements Store.
func (p *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return store.InTx(ctx, p.db, nil, func(tx *sql.Tx) error {
		return fn(pgTx{tx: tx})
	})
}

// Find returns a single entry outside any transaction.
func (p *Postgres) Find(ctx context.Context, id string) (Entry, error) {
	return getEntry(ctx, p.db, id)
}

type pgTx struct {
	tx *sql.Tx
}

const entryColumns = `id, class_id, subject_id, teacher_id, weekday, start_time, end_time, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ClassID, &e.SubjectID, &e.TeacherID, &e.Weekday, &e.Start, &e.End, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func getEntry(ctx context.Context, q store.Querier, id string) (Entry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM timetable_entries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (t pgTx) Lock(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return err
		}
	}
	return nil
}

func (t pgTx) EntriesOn(ctx context.Context, w Weekday, classID, teacherID string) ([]Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM timetable_entries
		WHERE weekday = $1 AND (class_id = $2 OR teacher_id = $3)
		ORDER BY start_time
	`, int(w), classID, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (t pgTx) Get(ctx context.Context, id string) (Entry, error) {
	e, err := scanEntry(t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM timetable_entries WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (t pgTx) Insert(ctx context.Context, e *Entry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO timetable_entries (id, class_id, subject_id, teacher_id, weekday, start_time, end_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.ClassID, e.SubjectID, e.TeacherID, int(e.Weekday), e.Start, e.End, e.CreatedAt, e.UpdatedAt)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownReference
	}
	return err
}

func (t pgTx) Update(ctx context.Context, e *Entry) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE timetable_entries
		SET class_id = $2, subject_id = $3, teacher_id = $4, weekday = $5, start_time = $6, end_time = $7, updated_at = $8
		WHERE id = $1
	`, e.ID, e.ClassID, e.SubjectID, e.TeacherID, int(e.Weekday), e.Start, e.End, e.UpdatedAt)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownReference
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) Delete(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM timetable_entries WHERE id = $1`, id)
	if store.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return err
}

func (t pgTx) Referenced(ctx context.Context, id string) (bool, error) {
	var used bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM lesson_attendance WHERE timetable_entry_id = $1)`, id).Scan(&used)
	return used, err
}
