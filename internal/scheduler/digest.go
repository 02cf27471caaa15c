package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DigestFunc builds and delivers one activity digest.
type DigestFunc func(ctx context.Context)

// Digest runs a DigestFunc on a cron schedule. The expression is checked
// once a minute; a tick that matches fires the digest.
type Digest struct {
	schedule string
	run      DigestFunc
	gron     *gronx.Gronx
}

func NewDigest(schedule string, run DigestFunc) *Digest {
	if schedule == "" {
		schedule = "0 8 * * *"
	}
	return &Digest{schedule: schedule, run: run, gron: gronx.New()}
}

// Start blocks until ctx is done, firing the digest on schedule.
func (d *Digest) Start(ctx context.Context) error {
	if !d.gron.IsValid(d.schedule) {
		slog.Error("invalid digest schedule, digest disabled", "schedule", d.schedule)
		return nil
	}
	slog.Info("digest scheduler started", "schedule", d.schedule)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			due, err := d.gron.IsDue(d.schedule, now)
			if err != nil {
				slog.Warn("digest schedule check failed", "error", err)
				continue
			}
			if due {
				d.run(ctx)
			}
		}
	}
}
