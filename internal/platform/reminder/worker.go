package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/metrics"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
)

// Target is what the worker needs to know about an appointment.
type Target struct {
	ID            uuid.UUID
	StudentID     uuid.UUID
	StaffID       uuid.UUID
	InstitutionID uuid.UUID
	DateTime      time.Time
	Modality      string
	// Active is false once the appointment reached a state that makes a
	// reminder pointless.
	Active bool
}

type TargetSource interface {
	ReminderTarget(ctx context.Context, appointmentID uuid.UUID) (Target, error)
}

type Sender interface {
	Send(ctx context.Context, m notification.Message) error
}

// Handler delivers a due reminder to both parties. Cancelled, finished or
// rescheduled appointments are skipped without error.
func Handler(src TargetSource, sender Sender, loc *time.Location, logger zerolog.Logger, m *metrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			m.ObserveReminder("deliver", "bad_payload")
			return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
		}

		t, err := src.ReminderTarget(ctx, p.AppointmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			m.ObserveReminder("deliver", "skipped")
			return nil
		}
		if err != nil {
			m.ObserveReminder("deliver", "error")
			return err
		}
		if !t.Active || !t.DateTime.Equal(p.DateTime) {
			logger.Debug().Str("appointment_id", p.AppointmentID.String()).Msg("reminder no longer applies")
			m.ObserveReminder("deliver", "skipped")
			return nil
		}

		local := t.DateTime.In(loc)
		data := map[string]string{
			"appointmentId": t.ID.String(),
			"date":          local.Format("2006-01-02"),
			"time":          local.Format("15:04"),
			"modality":      t.Modality,
		}
		for _, uid := range []uuid.UUID{t.StudentID, t.StaffID} {
			err := sender.Send(ctx, notification.Message{
				UserID:        uid,
				InstitutionID: t.InstitutionID,
				Type:          notification.TypeAppointmentReminder,
				Data:          data,
			})
			if err != nil {
				m.ObserveReminder("deliver", "error")
				return err
			}
		}
		m.ObserveReminder("deliver", "ok")
		return nil
	}
}

// NewServer builds the asynq worker server for the reminder queue.
func NewServer(opt asynq.RedisConnOpt, concurrency int, logger zerolog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Queue: 1},
		Logger:      asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
}

// NewMux routes reminder tasks to h.
func NewMux(h asynq.HandlerFunc) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAppointmentReminder, h)
	return mux
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
