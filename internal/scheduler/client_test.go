package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "test" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestClientRequiresRedisURL(t *testing.T) {
	_, err := NewClient(testSchedulerConfig{})
	if err == nil {
		t.Fatal("expected error without a redis url")
	}
}

func TestScheduleAttendanceSyncEnqueues(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testSchedulerConfig{redisURL: "redis://" + srv.Addr()}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	runAt := time.Now().Add(time.Hour)
	if err := client.ScheduleAttendanceSync(context.Background(), day, runAt); err != nil {
		t.Fatalf("ScheduleAttendanceSync: %v", err)
	}

	opt, err := redisClientOpt(cfg.redisURL)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	tasks, err := inspector.ListScheduledTasks("test")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskAttendanceSync {
		t.Errorf("task type = %q, want %q", tasks[0].Type, TaskAttendanceSync)
	}

	payload, err := ParseAttendanceSyncPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("ParseAttendanceSyncPayload: %v", err)
	}
	if payload.Day != "2026-09-01" {
		t.Errorf("payload day = %q, want 2026-09-01", payload.Day)
	}
}
