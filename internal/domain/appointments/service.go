package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/domain/availability"
	"github.com/psicoapp/psicoapp/internal/domain/requests"
	"github.com/psicoapp/psicoapp/internal/platform/db"
	"github.com/psicoapp/psicoapp/internal/platform/metrics"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
	"github.com/psicoapp/psicoapp/internal/platform/reminder"
)

// RequestStore is the part of the request queue the scheduler writes to.
// requests.Repository satisfies it.
type RequestStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*requests.Request, error)
	MarkScheduled(ctx context.Context, id, staffID, appointmentID uuid.UUID) (bool, error)
	CancelScheduled(ctx context.Context, id uuid.UUID) error
}

// Availability is the slot and calendar side. *availability.Service
// satisfies it.
type Availability interface {
	Location() *time.Location
	GetSlot(ctx context.Context, id uuid.UUID) (*availability.Slot, error)
	CheckBreaks(ctx context.Context, staffID uuid.UUID, start, end time.Time) error
	CheckCovered(ctx context.Context, staffID uuid.UUID, start, end time.Time) (*availability.Slot, error)
	ReserveSlot(ctx context.Context, id, studentID uuid.UUID) (*availability.Slot, error)
	ReopenSlot(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	Horizon            time.Duration
	MaxDurationMinutes int
	MinReasonLength    int
}

// DefaultBookingReason is stored when a student books a slot without one.
const DefaultBookingReason = "Reserva de espacio disponible"

type Service struct {
	repo      Repository
	requests  RequestStore
	avail     Availability
	tx        db.TxRunner
	notifier  *notification.Notifier
	reminders reminder.Enqueuer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       Config
	now       func() time.Time
}

type Deps struct {
	Repo      Repository
	Requests  RequestStore
	Avail     Availability
	Tx        db.TxRunner
	Notifier  *notification.Notifier
	Reminders reminder.Enqueuer
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 90 * 24 * time.Hour
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = 240
	}
	if cfg.MinReasonLength <= 0 {
		cfg.MinReasonLength = 10
	}
	if d.Reminders == nil {
		d.Reminders = reminder.Noop{}
	}
	return &Service{
		repo:      d.Repo,
		requests:  d.Requests,
		avail:     d.Avail,
		tx:        d.Tx,
		notifier:  d.Notifier,
		reminders: d.Reminders,
		metrics:   d.Metrics,
		logger:    d.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// eventData is the template data shared by appointment notifications.
func (s *Service) eventData(a *Appointment) map[string]string {
	local := a.DateTime.In(s.avail.Location())
	return map[string]string{
		"appointmentId": a.ID.String(),
		"date":          local.Format("2006-01-02"),
		"time":          local.Format("15:04"),
		"modality":      string(a.Modality),
		"status":        string(a.Status),
	}
}

func (s *Service) notify(ctx context.Context, typ notification.Type, a *Appointment, recipients ...uuid.UUID) {
	data := s.eventData(a)
	msgs := make([]notification.Message, 0, len(recipients))
	for _, uid := range recipients {
		msgs = append(msgs, notification.Message{
			UserID:        uid,
			InstitutionID: a.InstitutionID,
			Type:          typ,
			Data:          data,
		})
	}
	s.notifier.Notify(ctx, msgs...)
}

// afterCreate runs the post-commit side effects of a new appointment. None of
// them can fail the booking.
func (s *Service) afterCreate(ctx context.Context, a *Appointment) {
	s.notify(ctx, notification.TypeAppointmentCreated, a, a.StudentID, a.StaffID)
	if err := s.reminders.Enqueue(context.WithoutCancel(ctx), a.ID, a.DateTime); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder not scheduled")
	}
}

// ReminderTarget implements reminder.TargetSource.
func (s *Service) ReminderTarget(ctx context.Context, id uuid.UUID) (reminder.Target, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return reminder.Target{}, err
	}
	return reminder.Target{
		ID:            a.ID,
		StudentID:     a.StudentID,
		StaffID:       a.StaffID,
		InstitutionID: a.InstitutionID,
		DateTime:      a.DateTime,
		Modality:      string(a.Modality),
		Active:        a.Status.Upcoming(),
	}, nil
}
