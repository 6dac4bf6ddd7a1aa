package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/metrics"
)

const deliveryTimeout = 5 * time.Second

type Notifier struct {
	sink      Sink
	templates *TemplateEngine
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewNotifier(sink Sink, logger zerolog.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		sink:      sink,
		templates: NewTemplateEngine(),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Send renders and delivers one message.
func (n *Notifier) Send(ctx context.Context, m Message) error {
	title, body, err := n.templates.Render(m.Type, m.Data)
	if err != nil {
		return err
	}
	note := &Notification{
		ID:            uuid.New(),
		UserID:        m.UserID,
		InstitutionID: m.InstitutionID,
		Type:          m.Type,
		Title:         title,
		Message:       body,
		Data:          m.Data,
		CreatedAt:     n.now().UTC(),
	}
	if err := n.sink.Deliver(ctx, note); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", m.Type, m.UserID, err)
	}
	return nil
}

// Notify delivers msgs and never fails. It runs detached from the caller's
// cancellation so a finished HTTP request does not abort delivery.
func (n *Notifier) Notify(ctx context.Context, msgs ...Message) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	for _, m := range msgs {
		err := n.Send(ctx, m)
		n.metrics.ObserveNotification(string(m.Type), err)
		if err != nil {
			n.logger.Warn().Err(err).
				Str("type", string(m.Type)).
				Str("user_id", m.UserID.String()).
				Msg("notification dropped")
		}
	}
}
