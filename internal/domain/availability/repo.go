package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SlotFilter struct {
	InstitutionID uuid.UUID
	StaffID       *uuid.UUID
	From, To      time.Time
}

type SlotRepository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListOpen(ctx context.Context, f SlotFilter) ([]*Slot, error)
	// FindCovering returns an open slot containing [start, end), or nil.
	FindCovering(ctx context.Context, staffID uuid.UUID, start, end time.Time) (*Slot, error)
	// Reserve flips ABIERTA to RESERVADA; ok is false when the slot was not open.
	Reserve(ctx context.Context, id, studentID uuid.UUID) (*Slot, bool, error)
	Reopen(ctx context.Context, id uuid.UUID) error
}

type BreakRepository interface {
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]Break, error)
	Create(ctx context.Context, b *Break) error
	// Delete removes a break owned by staffID; ok is false when none matched.
	Delete(ctx context.Context, id, staffID uuid.UUID) (bool, error)
}

type HoursRepository interface {
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]WorkingHours, error)
	// Replace swaps the full weekly set; callers run it inside a transaction.
	Replace(ctx context.Context, staffID uuid.UUID, hours []WorkingHours) error
}
