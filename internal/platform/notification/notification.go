// Package notification creates user-facing notifications for appointment
// events. Delivery is fire-and-forget from the caller's point of view.
package notification

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRequestClaimed       Type = "request.claimed"
	TypeRequestReleased      Type = "request.released"
	TypeRequestWithdrawn     Type = "request.withdrawn"
	TypeAppointmentCreated   Type = "appointment.created"
	TypeAppointmentStatus    Type = "appointment.status_changed"
	TypeAppointmentCancelled Type = "appointment.cancelled"
	TypeAppointmentReminder  Type = "appointment.reminder"
)

// Notification is one stored message for one recipient.
type Notification struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"userId"`
	InstitutionID uuid.UUID         `json:"institutionId"`
	Type          Type              `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Data          map[string]string `json:"data,omitempty"`
	Read          bool              `json:"read"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Message is what domain services hand to the Notifier.
type Message struct {
	UserID        uuid.UUID
	InstitutionID uuid.UUID
	Type          Type
	Data          map[string]string
}

// Template is a title/body pair with {{key}} placeholders.
type Template struct {
	Title string
	Body  string
}

// TemplateEngine renders notification text per type.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Type]Template
}

func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{templates: map[Type]Template{
		TypeRequestClaimed: {
			Title: "Solicitud asignada",
			Body:  "Un profesional tomó tu solicitud y pronto programará tu cita.",
		},
		TypeRequestReleased: {
			Title: "Solicitud en espera",
			Body:  "Tu solicitud volvió a la cola y será atendida por otro profesional.",
		},
		TypeRequestWithdrawn: {
			Title: "Solicitud retirada",
			Body:  "El estudiante retiró una solicitud que tenías asignada.",
		},
		TypeAppointmentCreated: {
			Title: "Nueva cita programada",
			Body:  "Cita programada para el {{date}} a las {{time}} ({{modality}}).",
		},
		TypeAppointmentStatus: {
			Title: "Estado de cita actualizado",
			Body:  "La cita del {{date}} a las {{time}} ahora está {{status}}.",
		},
		TypeAppointmentCancelled: {
			Title: "Cita cancelada",
			Body:  "La cita del {{date}} a las {{time}} fue cancelada.",
		},
		TypeAppointmentReminder: {
			Title: "Recordatorio de cita",
			Body:  "Recuerda tu cita el {{date}} a las {{time}} ({{modality}}).",
		},
	}}
}

// Register adds or replaces the template for typ.
func (e *TemplateEngine) Register(typ Type, t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[typ] = t
}

// Render replaces {{key}} with data values. Unknown keys are left as-is.
func (e *TemplateEngine) Render(typ Type, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[typ]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("no template for notification type %q", typ)
	}

	title, body = t.Title, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}
