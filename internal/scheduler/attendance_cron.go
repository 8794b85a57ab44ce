package scheduler

import (
	"context"
	"time"

	"careops_backend/platform/logger"
)

// AttendanceCron periodically enqueues a punch feed sync for the current
// day. The upsert on the other side keeps the earliest check-in and latest
// check-out, so overlapping runs converge on the same rows.
type AttendanceCron struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewAttendanceCron(client *Client, interval time.Duration, log *logger.Logger) *AttendanceCron {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AttendanceCron{client: client, interval: interval, log: log}
}

func (c *AttendanceCron) Run(ctx context.Context) {
	c.enqueue(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.enqueue(ctx)
		}
	}
}

func (c *AttendanceCron) enqueue(ctx context.Context) {
	now := time.Now()
	if err := c.client.ScheduleAttendanceSync(ctx, now, now); err != nil {
		c.log.Error("failed to enqueue attendance sync", "error", err)
		return
	}
	c.log.Info("attendance sync enqueued", "day", now.Format("2006-01-02"))
}
