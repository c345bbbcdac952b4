// Package scheduler runs the notification batch on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// TickFunc is the batch entrypoint the driver invokes on every interval.
type TickFunc func(ctx context.Context, now time.Time) error

// Driver fires a TickFunc every Interval until its context is canceled.
// One tick runs immediately on Run so a fresh deployment does not wait a
// full interval before catching up.
type Driver struct {
	tick     TickFunc
	logger   *slog.Logger
	interval time.Duration
}

func NewDriver(tick TickFunc, logger *slog.Logger, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Driver{tick: tick, logger: logger, interval: interval}
}

// Run blocks until ctx is done. Tick errors are logged, never fatal.
func (d *Driver) Run(ctx context.Context) {
	d.logger.Info("scheduler started", "interval", d.interval.String())

	d.runOnce(ctx)

	t := time.NewTicker(d.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("scheduler stopped")
			return
		case <-t.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Driver) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := d.tick(ctx, time.Now()); err != nil {
		d.logger.Error("scheduler tick failed", "error", err)
	}
}
