// Package reminder schedules and delivers appointment reminders through asynq.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/psicoapp/psicoapp/internal/platform/metrics"
)

const (
	TypeAppointmentReminder = "appointment:reminder"
	Queue                   = "reminders"
)

type Payload struct {
	AppointmentID uuid.UUID `json:"appointmentId"`
	DateTime      time.Time `json:"dateTime"`
}

// Enqueuer schedules a reminder ahead of an appointment.
type Enqueuer interface {
	Enqueue(ctx context.Context, appointmentID uuid.UUID, dateTime time.Time) error
}

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Enqueue(context.Context, uuid.UUID, time.Time) error { return nil }

// TaskEnqueuer is the subset of *asynq.Client used here.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type AsynqEnqueuer struct {
	client  TaskEnqueuer
	lead    time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAsynqEnqueuer(client TaskEnqueuer, lead time.Duration, m *metrics.Metrics) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client, lead: lead, metrics: m, now: time.Now}
}

// TaskID is stable per appointment so re-enqueueing is idempotent.
func TaskID(appointmentID uuid.UUID) string {
	return "appointment-reminder:" + appointmentID.String()
}

func NewTask(p Payload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeAppointmentReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID(TaskID(p.AppointmentID)),
		asynq.Queue(Queue),
		asynq.MaxRetry(5),
		asynq.Retention(24 * time.Hour),
	}
	return task, opts, nil
}

// Enqueue schedules the reminder lead before dateTime. Appointments closer
// than lead get none.
func (e *AsynqEnqueuer) Enqueue(ctx context.Context, appointmentID uuid.UUID, dateTime time.Time) error {
	fireAt := dateTime.Add(-e.lead)
	if !fireAt.After(e.now()) {
		e.metrics.ObserveReminder("enqueue", "skipped")
		return nil
	}

	task, opts, err := NewTask(Payload{AppointmentID: appointmentID, DateTime: dateTime}, fireAt)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			e.metrics.ObserveReminder("enqueue", "duplicate")
			return nil
		}
		e.metrics.ObserveReminder("enqueue", "error")
		return fmt.Errorf("enqueue reminder for %s: %w", appointmentID, err)
	}
	e.metrics.ObserveReminder("enqueue", "ok")
	return nil
}
