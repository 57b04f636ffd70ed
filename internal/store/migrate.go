package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent. students, classes, subjects and teachers belong to the
// wider platform; minimal definitions are created so the engine can run alone.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teachers (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id             UUID PRIMARY KEY,
		barcode_id     TEXT NOT NULL UNIQUE,
		name           TEXT NOT NULL,
		class_id       UUID REFERENCES classes(id),
		guardian_phone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id            UUID PRIMARY KEY,
		name          TEXT NOT NULL,
		latitude      DOUBLE PRECISION NOT NULL,
		longitude     DOUBLE PRECISION NOT NULL,
		radius_meters DOUBLE PRECISION NOT NULL CHECK (radius_meters >= 0),
		active        BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS timetable_entries (
		id         UUID PRIMARY KEY,
		class_id   UUID NOT NULL REFERENCES classes(id),
		teacher_id UUID NOT NULL REFERENCES teachers(id),
		subject_id UUID NOT NULL REFERENCES subjects(id),
		weekday    SMALLINT NOT NULL CHECK (weekday BETWEEN 1 AND 6),
		start_time TIME NOT NULL,
		end_time   TIME NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timetable_class_day ON timetable_entries (class_id, weekday)`,
	`CREATE INDEX IF NOT EXISTS idx_timetable_teacher_day ON timetable_entries (teacher_id, weekday)`,
	`CREATE TABLE IF NOT EXISTS school_attendance (
		id               UUID PRIMARY KEY,
		student_id       UUID NOT NULL REFERENCES students(id),
		attendance_date  DATE NOT NULL,
		check_in_time    TIMESTAMPTZ,
		check_in_status  TEXT,
		check_out_time   TIMESTAMPTZ,
		check_out_status TEXT,
		latitude         DOUBLE PRECISION,
		longitude        DOUBLE PRECISION,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_school_attendance_student_date UNIQUE (student_id, attendance_date)
	)`,
	`CREATE TABLE IF NOT EXISTS lesson_attendance (
		id                 UUID PRIMARY KEY,
		student_id         UUID NOT NULL REFERENCES students(id),
		timetable_entry_id UUID NOT NULL REFERENCES timetable_entries(id) ON DELETE RESTRICT,
		attendance_date    DATE NOT NULL,
		recorded_at        TIMESTAMPTZ NOT NULL,
		status             TEXT NOT NULL,
		latitude           DOUBLE PRECISION,
		longitude          DOUBLE PRECISION,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_lesson_attendance_student_entry_date UNIQUE (student_id, timetable_entry_id, attendance_date)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id            UUID PRIMARY KEY,
		student_id    UUID NOT NULL REFERENCES students(id),
		attendance_id UUID NOT NULL,
		channel       TEXT NOT NULL,
		recipient     TEXT NOT NULL,
		message       TEXT NOT NULL,
		status        TEXT NOT NULL CHECK (status IN ('pending', 'sent', 'failed')),
		error         TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		sent_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications (created_at) WHERE status = 'pending'`,
}

// Migrate applies the engine schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
