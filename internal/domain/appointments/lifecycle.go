package appointments

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
	"github.com/psicoapp/psicoapp/pkg/pagination"
)

func (s *Service) load(ctx context.Context, institutionID, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.InstitutionID != institutionID {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, institutionID, id uuid.UUID, v Viewer) (*Appointment, error) {
	a, err := s.load(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if !v.Admin && !a.IsParty(v.UserID) {
		return nil, apperr.Forbidden("not a party to this appointment")
	}
	return a, nil
}

func (s *Service) ListMine(ctx context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error) {
	if f.Role != RoleStaff && f.Role != RoleStudent {
		return nil, 0, apperr.Validation("role must be STAFF or STUDENT")
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, apperr.Validation("unknown status %q", *f.Status)
	}
	return s.repo.ListByParty(ctx, f, p)
}

// UpdateStatus advances an appointment along the transition table. Only the
// assigned staff member may do so. CANCELADA goes through Cancel so the slot
// and request are released too.
func (s *Service) UpdateStatus(ctx context.Context, institutionID, id, staffID uuid.UUID, in StatusInput) (*Appointment, error) {
	a, err := s.updateStatus(ctx, institutionID, id, staffID, in)
	s.metrics.ObserveTransition(string(in.Status), err)
	return a, err
}

func (s *Service) updateStatus(ctx context.Context, institutionID, id, staffID uuid.UUID, in StatusInput) (*Appointment, error) {
	if !in.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", in.Status)
	}
	cur, err := s.load(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if cur.StaffID != staffID {
		return nil, apperr.Forbidden("only the assigned staff member can change this appointment")
	}
	if !CanTransition(cur.Status, in.Status) {
		return nil, apperr.InvalidState("cannot move appointment from %s to %s", cur.Status, in.Status)
	}
	if in.Status == StatusCancelled {
		return s.cancel(ctx, cur, staffID, in.Notes)
	}

	ch := StatusChange{To: in.Status, Notes: trimmed(in.Notes), ActualStart: in.ActualStart, ActualEnd: in.ActualEnd}
	now := s.now().UTC()
	switch in.Status {
	case StatusInProgress:
		if ch.ActualStart == nil {
			ch.ActualStart = &now
		}
	case StatusCompleted:
		if ch.ActualEnd == nil {
			ch.ActualEnd = &now
		}
	}
	start := ch.ActualStart
	if start == nil {
		start = cur.ActualStart
	}
	if start != nil && ch.ActualEnd != nil && ch.ActualEnd.Before(*start) {
		return nil, apperr.Validation("actualEnd must not be before actualStart")
	}

	a, ok, err := s.repo.UpdateStatus(ctx, id, cur.Status, ch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("appointment %s changed concurrently, reload and retry", id)
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(cur.Status)).
		Str("to", string(a.Status)).
		Msg("appointment status changed")
	s.notify(ctx, notification.TypeAppointmentStatus, a, a.StudentID)
	return a, nil
}

// Cancel is available to either party while the appointment is not terminal.
func (s *Service) Cancel(ctx context.Context, institutionID, id, actorID uuid.UUID, in CancelInput) (*Appointment, error) {
	a, err := s.cancelByActor(ctx, institutionID, id, actorID, in)
	s.metrics.ObserveTransition(string(StatusCancelled), err)
	return a, err
}

func (s *Service) cancelByActor(ctx context.Context, institutionID, id, actorID uuid.UUID, in CancelInput) (*Appointment, error) {
	cur, err := s.load(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if !cur.IsParty(actorID) {
		return nil, apperr.Forbidden("not a party to this appointment")
	}
	if cur.Status.Terminal() {
		return nil, apperr.InvalidState("appointment is already %s", cur.Status)
	}
	return s.cancel(ctx, cur, actorID, &in.Reason)
}

// cancel marks cur CANCELADA, reopens its slot when the time has not come yet
// and closes the source request, all in one transaction.
func (s *Service) cancel(ctx context.Context, cur *Appointment, actorID uuid.UUID, reason *string) (*Appointment, error) {
	var out *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, ok, err := s.repo.Cancel(ctx, cur.ID, cur.Status, actorID, trimmed(reason))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("appointment %s changed concurrently, reload and retry", cur.ID)
		}
		if a.SlotID != nil && a.DateTime.After(s.now()) {
			if err := s.avail.ReopenSlot(ctx, *a.SlotID); err != nil {
				return err
			}
		}
		if a.RequestID != nil {
			if err := s.requests.CancelScheduled(ctx, *a.RequestID); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", out.ID.String()).
		Str("actor_id", actorID.String()).
		Str("reason", strings.TrimSpace(deref(reason))).
		Msg("appointment cancelled")
	s.notify(ctx, notification.TypeAppointmentCancelled, out, out.Counterpart(actorID))
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
