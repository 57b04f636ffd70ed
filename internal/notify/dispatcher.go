package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"absensi/internal/apperr"
	"absensi/internal/metrics"
	"absensi/internal/policy"
	"absensi/internal/queue"
)

// Store is the persistence the dispatcher needs after the outbox write.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Sender delivers a rendered message to a recipient.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Options tunes a Dispatcher.
type Options struct {
	Channel string
	// Timeout bounds each outbound delivery attempt.
	Timeout time.Duration
	// PublishTimeout bounds handing a record id to the queue.
	PublishTimeout time.Duration
}

// Dispatcher composes outbox records for attendance events and delivers them
// from the queue.
type Dispatcher struct {
	store     Store
	sender    Sender
	queue     queue.Queue
	templates *Templates
	opts      Options
	now       func() time.Time
	log       *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store Store, sender Sender, q queue.Queue, templates *Templates, opts Options, log *zap.Logger) *Dispatcher {
	if opts.Channel == "" {
		opts.Channel = ChannelWhatsApp
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		queue:     q,
		templates: templates,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// Compose renders the pending record for ev. It reports false when there is
// nothing to send for ev under p.
func (d *Dispatcher) Compose(p policy.Policy, ev Event) (*Record, bool) {
	if !p.NotificationsEnabled || ev.Recipient == "" {
		return nil, false
	}
	msg, err := d.templates.Render(d.opts.Channel, ev)
	if err != nil {
		d.log.Error("render notification failed", zap.String("student_id", ev.StudentID), zap.Error(err))
		return nil, false
	}
	return &Record{
		ID:           uuid.NewString(),
		StudentID:    ev.StudentID,
		AttendanceID: ev.AttendanceID,
		Channel:      d.opts.Channel,
		Recipient:    ev.Recipient,
		Message:      msg,
		Status:       StatusPending,
		CreatedAt:    d.now().UTC(),
	}, true
}

// Enqueue hands a committed record id to the queue. The publish ignores ctx
// cancellation and is bounded by PublishTimeout. Errors are logged and left
// to the outbox sweep.
func (d *Dispatcher) Enqueue(ctx context.Context, id string) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.PublishTimeout)
	defer cancel()
	if err := d.queue.Publish(pubCtx, queue.Message{Type: queue.TypeDeliverNotification, Body: []byte(id)}); err != nil {
		d.log.Warn("enqueue notification failed", zap.String("notification_id", id), zap.Error(err))
	}
}

// Deliver sends record id if it is still pending and records the outcome.
// Records that already left pending are skipped.
func (d *Dispatcher) Deliver(ctx context.Context, id string) error {
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		d.log.Debug("notification already processed", zap.String("notification_id", id), zap.String("status", string(rec.Status)))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	start := time.Now()
	sendErr := d.sender.Send(sendCtx, rec.Recipient, rec.Message)
	cancel()
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	// The outcome is recorded even if the consumer is shutting down.
	markCtx, markCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer markCancel()

	if sendErr != nil {
		metrics.Notifications.WithLabelValues(string(StatusFailed)).Inc()
		d.log.Warn("notification delivery failed",
			zap.String("notification_id", id),
			zap.String("student_id", rec.StudentID),
			zap.Error(sendErr),
		)
		if err := d.store.MarkFailed(markCtx, id, sendErr.Error()); err != nil && !errors.Is(err, ErrNotPending) {
			d.log.Error("mark notification failed", zap.String("notification_id", id), zap.Error(err))
		}
		return apperr.Wrap(apperr.KindExternalDelivery, "delivery_failed", sendErr)
	}

	if err := d.store.MarkSent(markCtx, id, d.now().UTC()); err != nil {
		if errors.Is(err, ErrNotPending) {
			return nil
		}
		return err
	}
	metrics.Notifications.WithLabelValues(string(StatusSent)).Inc()
	d.log.Info("notification sent", zap.String("notification_id", id), zap.String("student_id", rec.StudentID))
	return nil
}

// Run consumes the queue and delivers each record until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	messages, err := d.queue.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != queue.TypeDeliverNotification {
			continue
		}
		id := string(msg.Body)
		if err := d.Deliver(ctx, id); err != nil && apperr.KindOf(err) != apperr.KindExternalDelivery {
			d.log.Error("deliver notification", zap.String("notification_id", id), zap.Error(err))
		}
	}
	return nil
}

// Sweep re-enqueues records left pending for longer than grace, for example
// after a crash between commit and publish.
func (d *Dispatcher) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	ids, err := d.store.StalePending(ctx, d.now().Add(-grace).UTC(), 100)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		d.Enqueue(ctx, id)
	}
	if len(ids) > 0 {
		d.log.Info("re-enqueued stale notifications", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}
