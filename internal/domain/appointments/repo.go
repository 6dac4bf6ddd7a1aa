package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/psicoapp/psicoapp/pkg/pagination"
)

// StatusChange is one lifecycle write. Nil fields leave the column unchanged.
type StatusChange struct {
	To          Status
	Notes       *string
	ActualStart *time.Time
	ActualEnd   *time.Time
}

type Repository interface {
	// Create inserts a; an overlapping non-cancelled appointment for the
	// same staff member yields ConflictError.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// HasOverlap reports a non-cancelled appointment for staffID
	// intersecting [start, end).
	HasOverlap(ctx context.Context, staffID uuid.UUID, start, end time.Time) (bool, error)
	// UpdateStatus applies ch only while the row is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from Status, ch StatusChange) (*Appointment, bool, error)
	// Cancel moves the row from from to CANCELADA.
	Cancel(ctx context.Context, id uuid.UUID, from Status, actorID uuid.UUID, reason *string) (*Appointment, bool, error)
	ListByParty(ctx context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error)
}
