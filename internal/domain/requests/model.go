package requests

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested Status = "SOLICITADA"
	StatusAssigned  Status = "ASIGNADA"
	StatusScheduled Status = "PROGRAMADA"
	StatusCancelled Status = "CANCELADA"
)

// Open reports whether the request is still in the triage queue.
func (s Status) Open() bool { return s == StatusRequested || s == StatusAssigned }

type Severity string

const (
	SeverityLow      Severity = "BAJA"
	SeverityMedium   Severity = "MEDIA"
	SeverityHigh     Severity = "ALTA"
	SeverityCritical Severity = "CRITICA"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Channel string

const (
	ChannelWeb      Channel = "WEB"
	ChannelQuiz     Channel = "QUIZ"
	ChannelReferral Channel = "REFERIDO"
	ChannelOther    Channel = "OTRO"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelQuiz, ChannelReferral, ChannelOther:
		return true
	}
	return false
}

type Modality string

const (
	ModalityInPerson Modality = "PRESENCIAL"
	ModalityVirtual  Modality = "VIRTUAL"
)

func (m Modality) Valid() bool { return m == ModalityInPerson || m == ModalityVirtual }

// Request maps to the appointment_request table. ClaimedBy is set exactly
// while the status is ASIGNADA or PROGRAMADA.
type Request struct {
	ID            uuid.UUID  `json:"id"`
	StudentID     uuid.UUID  `json:"studentId"`
	InstitutionID uuid.UUID  `json:"institutionId"`
	StaffID       *uuid.UUID `json:"staffId,omitempty"`
	Severity      Severity   `json:"severity"`
	SourceChannel Channel    `json:"sourceChannel"`
	Reason        string     `json:"reason"`
	Modality      Modality   `json:"modality"`
	Status        Status     `json:"status"`
	ClaimedBy     *uuid.UUID `json:"claimedBy,omitempty"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ClaimedByStaff reports whether staffID currently holds the claim.
func (r *Request) ClaimedByStaff(staffID uuid.UUID) bool {
	return r.ClaimedBy != nil && *r.ClaimedBy == staffID
}

// SubmitInput is the student's ask. Empty enums take their defaults.
type SubmitInput struct {
	Reason        string     `json:"reason" validate:"notblank"`
	Severity      Severity   `json:"severity" validate:"omitempty,oneof=BAJA MEDIA ALTA CRITICA"`
	SourceChannel Channel    `json:"sourceChannel" validate:"omitempty,oneof=WEB QUIZ REFERIDO OTRO"`
	Modality      Modality   `json:"modality" validate:"omitempty,oneof=PRESENCIAL VIRTUAL"`
	StaffID       *uuid.UUID `json:"staffId"`
}

// Viewer is who is asking to read a request.
type Viewer struct {
	UserID uuid.UUID
	Staff  bool
}
