package requests

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/psicoapp/psicoapp/pkg/pagination"
)

// Repository persists appointment requests. The state-changing methods are
// conditional updates: ok is false when the row was not in the expected state,
// and callers re-read to classify why.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	ListOpen(ctx context.Context, institutionID uuid.UUID) ([]*Request, error)
	ListByStudent(ctx context.Context, studentID, institutionID uuid.UUID, p pagination.Params) ([]*Request, int, error)

	Claim(ctx context.Context, id, institutionID, staffID uuid.UUID, at time.Time) (r *Request, ok bool, err error)
	Release(ctx context.Context, id, institutionID, staffID uuid.UUID) (r *Request, ok bool, err error)
	Withdraw(ctx context.Context, id, studentID uuid.UUID) (r *Request, ok bool, err error)
	MarkScheduled(ctx context.Context, id, staffID, appointmentID uuid.UUID) (ok bool, err error)
	// CancelScheduled closes the request behind a cancelled appointment.
	CancelScheduled(ctx context.Context, id uuid.UUID) error
}
