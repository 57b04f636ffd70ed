package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"absensi/internal/apperr"
	"absensi/internal/metrics"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "schedule_not_found", "schedule not found")
	ErrInUse    = apperr.New(apperr.KindConflict, "schedule_in_use", "schedule is referenced by attendance records")
)

// Store opens transactions over the timetable.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of timetable operations available inside a transaction.
type Tx interface {
	// Lock takes transaction-scoped exclusive locks on keys, in order.
	Lock(ctx context.Context, keys ...string) error
	// EntriesOn returns entries on w belonging to classID or teacherID.
	EntriesOn(ctx context.Context, w Weekday, classID, teacherID string) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Insert(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
	// Referenced reports whether any lesson attendance points at id.
	Referenced(ctx context.Context, id string) (bool, error)
}

// Input is the admin-supplied content of a timetable entry.
type Input struct {
	ClassID   string
	SubjectID string
	TeacherID string
	Weekday   Weekday
	Start     Clock
	End       Clock
}

func (in Input) validate() error {
	for _, f := range []struct{ name, val string }{
		{"kelas_id", in.ClassID},
		{"mata_pelajaran_id", in.SubjectID},
		{"guru_id", in.TeacherID},
	} {
		if f.val == "" {
			return apperr.Validation("missing_field", "%s is required", f.name)
		}
		if _, err := uuid.Parse(f.val); err != nil {
			return apperr.Validation("invalid_id", "%s must be a UUID", f.name)
		}
	}
	return nil
}

func (in Input) candidate() Candidate {
	return Candidate{ClassID: in.ClassID, TeacherID: in.TeacherID, Weekday: in.Weekday, Start: in.Start, End: in.End}
}

// Service creates, updates and deletes timetable entries, running Detect
// under advisory locks in the same transaction as the write.
type Service struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// NewService creates a schedule service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, now: time.Now, log: log}
}

// Create validates and inserts a new entry.
func (s *Service) Create(ctx context.Context, in Input) (Entry, error) {
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	var out Entry
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := s.check(ctx, tx, in.candidate(), ""); err != nil {
			return err
		}
		now := s.now().UTC()
		out = Entry{
			ID:        uuid.NewString(),
			ClassID:   in.ClassID,
			SubjectID: in.SubjectID,
			TeacherID: in.TeacherID,
			Weekday:   in.Weekday,
			Start:     in.Start,
			End:       in.End,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Insert(ctx, &out)
	})
	if err != nil {
		return Entry{}, err
	}
	s.log.Info("schedule created", zap.String("schedule_id", out.ID), zap.String("class_id", out.ClassID), zap.Stringer("weekday", out.Weekday))
	return out, nil
}

// Update replaces the content of entry id. The entry itself is excluded from
// the conflict scan.
func (s *Service) Update(ctx context.Context, id string, in Input) (Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Entry{}, ErrNotFound
	}
	if err := in.validate(); err != nil {
		return Entry{}, err
	}
	var out Entry
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.check(ctx, tx, in.candidate(), id); err != nil {
			return err
		}
		cur.ClassID = in.ClassID
		cur.SubjectID = in.SubjectID
		cur.TeacherID = in.TeacherID
		cur.Weekday = in.Weekday
		cur.Start = in.Start
		cur.End = in.End
		cur.UpdatedAt = s.now().UTC()
		out = cur
		return tx.Update(ctx, &out)
	})
	if err != nil {
		return Entry{}, err
	}
	s.log.Info("schedule updated", zap.String("schedule_id", out.ID))
	return out, nil
}

// Delete removes entry id unless attendance records reference it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		used, err := tx.Referenced(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return ErrInUse
		}
		return tx.Delete(ctx, id)
	})
}

func (s *Service) check(ctx context.Context, tx Tx, c Candidate, excludeID string) error {
	// Range and weekday are rejected before any lock is taken.
	if err := Detect(c, nil, ""); err != nil {
		return err
	}
	if err := tx.Lock(ctx, lockKeys(c)...); err != nil {
		return err
	}
	existing, err := tx.EntriesOn(ctx, c.Weekday, c.ClassID, c.TeacherID)
	if err != nil {
		return err
	}
	if err := Detect(c, existing, excludeID); err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			metrics.ScheduleConflicts.WithLabelValues(string(ce.Axis)).Inc()
			s.log.Info("schedule conflict",
				zap.String("axis", string(ce.Axis)),
				zap.String("conflicts_with", ce.With.ID),
				zap.String("class_id", c.ClassID),
				zap.String("teacher_id", c.TeacherID),
			)
		}
		return err
	}
	return nil
}
