package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/psicoapp/psicoapp/internal/domain/requests"
)

type Status string

const (
	StatusRequested  Status = "SOLICITADA"
	StatusAssigned   Status = "ASIGNADA"
	StatusScheduled  Status = "PROGRAMADA"
	StatusConfirmed  Status = "CONFIRMADA"
	StatusInProgress Status = "EN_PROGRESO"
	StatusCompleted  Status = "COMPLETADA"
	StatusCancelled  Status = "CANCELADA"
	StatusNoShow     Status = "NO_ASISTIO"
)

// transitions lists the legal targets of each state. Terminal states have none.
var transitions = map[Status][]Status{
	StatusRequested:  {StatusAssigned, StatusCancelled, StatusNoShow},
	StatusAssigned:   {StatusScheduled, StatusCancelled, StatusNoShow},
	StatusScheduled:  {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
	StatusNoShow:     nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Upcoming reports whether a reminder still makes sense in this state.
func (s Status) Upcoming() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID            uuid.UUID         `json:"id"`
	InstitutionID uuid.UUID         `json:"institutionId"`
	StudentID     uuid.UUID         `json:"studentId"`
	StaffID       uuid.UUID         `json:"staffId"`
	RequestID     *uuid.UUID        `json:"requestId,omitempty"`
	SlotID        *uuid.UUID        `json:"slotId,omitempty"`
	DateTime      time.Time         `json:"dateTime"`
	Duration      int               `json:"duration"`
	EndTime       time.Time         `json:"endTime"`
	Modality      requests.Modality `json:"modality"`
	Reason        string            `json:"reason"`
	Location      *string           `json:"location,omitempty"`
	Status        Status            `json:"status"`
	StaffNotes    *string           `json:"staffNotes,omitempty"`
	CancelReason  *string           `json:"cancelReason,omitempty"`
	CancelledBy   *uuid.UUID        `json:"cancelledBy,omitempty"`
	ActualStart   *time.Time        `json:"actualStart,omitempty"`
	ActualEnd     *time.Time        `json:"actualEnd,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// IsParty reports whether userID is the student or the staff member.
func (a *Appointment) IsParty(userID uuid.UUID) bool {
	return a.StudentID == userID || a.StaffID == userID
}

// Counterpart returns the other party of the appointment.
func (a *Appointment) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == a.StudentID {
		return a.StaffID
	}
	return a.StudentID
}

type ScheduleInput struct {
	DateTime time.Time `json:"dateTime" validate:"required"`
	Duration int       `json:"duration" validate:"required"`
	Location *string   `json:"location"`
}

type BookInput struct {
	Reason   *string           `json:"reason"`
	Modality requests.Modality `json:"modality" validate:"omitempty,oneof=PRESENCIAL VIRTUAL"`
}

type StatusInput struct {
	Status      Status     `json:"estado" validate:"required"`
	Notes       *string    `json:"notasPsicologo"`
	ActualStart *time.Time `json:"actualStart"`
	ActualEnd   *time.Time `json:"actualEnd"`
}

type CancelInput struct {
	Reason string `json:"reason"`
}

// Role selects which side of the appointment a listing is for.
type Role string

const (
	RoleStaff   Role = "STAFF"
	RoleStudent Role = "STUDENT"
)

type ListFilter struct {
	InstitutionID uuid.UUID
	UserID        uuid.UUID
	Role          Role
	Status        *Status
}

// Viewer is who is asking to read an appointment.
type Viewer struct {
	UserID uuid.UUID
	Admin  bool
}
