package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"careops_backend/internal/email"
	"careops_backend/internal/events"
	"careops_backend/internal/notification/outbox"
	"careops_backend/platform/config"
	"careops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttendanceSyncer pulls the external punch feed for one day.
type AttendanceSyncer interface {
	SyncAttendance(ctx context.Context, day time.Time) (int, error)
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	outbox     *outbox.Repository
	sender     email.Sender
	attendance AttendanceSyncer
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, sender email.Sender, attendance AttendanceSyncer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		outbox:     outbox.New(pool),
		sender:     sender,
		attendance: attendance,
		log:        log,
	}

	mux.HandleFunc(TaskOutboxEmailDue, w.handleOutboxEmailDue)
	mux.HandleFunc(TaskAttendanceSync, w.handleAttendanceSync)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleOutboxEmailDue sends one claimed outbox record. A failed send is
// recorded on the record itself; the task never retries through asynq so
// the outbox stays the single source of truth for attempts.
func (w *Worker) handleOutboxEmailDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxEmailDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	rec, err := w.outbox.Get(ctx, outboxID)
	if err != nil {
		return err
	}
	if rec.Status != outbox.StatusProcessing {
		return nil
	}

	if err := w.sendRecord(ctx, rec); err != nil {
		w.log.Warn("outbox email send failed", "outboxId", rec.ID, "kind", rec.Kind, "error", err)
		return w.outbox.MarkFailed(ctx, rec.ID, err.Error())
	}
	return w.outbox.MarkSucceeded(ctx, rec.ID)
}

func (w *Worker) sendRecord(ctx context.Context, rec outbox.Record) error {
	switch rec.Kind {
	case "case_discharged":
		var e events.CaseDischarged
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.sender.SendCaseDischargedEmail(ctx, rec.Recipient, e.Reference, e.PatientName)
	case "preauth_rejected":
		var e events.PreAuthRejected
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.sender.SendPreAuthRejectedEmail(ctx, rec.Recipient, e.Reference, e.Reason)
	case "leave_decided":
		var e events.LeaveDecided
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return w.sender.SendLeaveDecidedEmail(ctx, rec.Recipient, e.Status, e.Note)
	default:
		return fmt.Errorf("unknown email kind %q", rec.Kind)
	}
}

func (w *Worker) handleAttendanceSync(ctx context.Context, task *asynq.Task) error {
	if w.attendance == nil {
		return nil
	}

	payload, err := ParseAttendanceSyncPayload(task)
	if err != nil {
		return err
	}

	day, err := time.Parse("2006-01-02", payload.Day)
	if err != nil {
		return fmt.Errorf("invalid sync day %q: %w", payload.Day, err)
	}

	synced, err := w.attendance.SyncAttendance(ctx, day)
	if err != nil {
		return err
	}
	w.log.Info("attendance sync complete", "day", payload.Day, "records", synced)
	return nil
}
