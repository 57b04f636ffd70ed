package notify

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"absensi/internal/store"
)

// Repository persists notification records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a pending record through q, which may be the transaction of
// the attendance write that triggered it.
func Insert(ctx context.Context, q store.Querier, rec *Record) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO notifications (id, student_id, attendance_id, channel, recipient, message, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.StudentID, rec.AttendanceID, rec.Channel, rec.Recipient, rec.Message, string(rec.Status), rec.CreatedAt)
	return err
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, attendance_id, channel, recipient, message, status, error, created_at, sent_at
		FROM notifications WHERE id = $1
	`, id)
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.AttendanceID, &rec.Channel, &rec.Recipient, &rec.Message, &status, &rec.Error, &rec.CreatedAt, &rec.SentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

// MarkSent moves a pending record to sent.
func (r *Repository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, `
		UPDATE notifications SET status = 'sent', sent_at = $2, error = NULL
		WHERE id = $1 AND status = 'pending'
	`, id, at)
}

// MarkFailed moves a pending record to failed with the failure reason.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.transition(ctx, `
		UPDATE notifications SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
}

func (r *Repository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPending
	}
	return nil
}

// StalePending returns ids of records still pending that were created before
// cutoff, oldest first.
func (r *Repository) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM notifications
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
