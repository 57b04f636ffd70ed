package notify

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartSweeper schedules d.Sweep on spec until ctx ends. The caller stops the
// returned cron to wait for a running sweep.
func StartSweeper(ctx context.Context, spec string, grace time.Duration, d *Dispatcher, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.Sweep(ctx, grace); err != nil {
			log.Warn("outbox sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
