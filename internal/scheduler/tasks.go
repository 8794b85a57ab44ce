// Package scheduler defines the asynq task surface and the worker that
// processes it: outbox email dispatch and the attendance feed sync.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOutboxEmailDue = "notification.outbox.email_due"

const TaskAttendanceSync = "hr.attendance.sync"

type OutboxEmailDuePayload struct {
	OutboxID string `json:"outboxId"`
}

type AttendanceSyncPayload struct {
	Day string `json:"day"` // YYYY-MM-DD
}

func NewOutboxEmailDueTask(payload OutboxEmailDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxEmailDue, data), nil
}

func ParseOutboxEmailDuePayload(task *asynq.Task) (OutboxEmailDuePayload, error) {
	var payload OutboxEmailDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxEmailDuePayload{}, err
	}
	return payload, nil
}

func NewAttendanceSyncTask(payload AttendanceSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAttendanceSync, data), nil
}

func ParseAttendanceSyncPayload(task *asynq.Task) (AttendanceSyncPayload, error) {
	var payload AttendanceSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AttendanceSyncPayload{}, err
	}
	return payload, nil
}
