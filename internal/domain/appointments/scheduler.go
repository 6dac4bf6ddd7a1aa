package appointments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psicoapp/psicoapp/internal/domain/availability"
	"github.com/psicoapp/psicoapp/internal/domain/requests"
	"github.com/psicoapp/psicoapp/internal/platform/apperr"
)

func (s *Service) validateTime(dateTime time.Time, duration int) error {
	now := s.now()
	if !dateTime.After(now) {
		return apperr.Validation("dateTime must be in the future")
	}
	if dateTime.After(now.Add(s.cfg.Horizon)) {
		return apperr.Validation("dateTime must be within %d days", int(s.cfg.Horizon/(24*time.Hour)))
	}
	return availability.ValidateDuration(duration, s.cfg.MaxDurationMinutes)
}

// Schedule turns a request claimed by staffID into an appointment. The
// request lock, availability checks, insert and slot reservation share one
// transaction; notifications and the reminder follow the commit.
func (s *Service) Schedule(ctx context.Context, institutionID, requestID, staffID uuid.UUID, in ScheduleInput) (*Appointment, error) {
	a, err := s.schedule(ctx, institutionID, requestID, staffID, in)
	s.metrics.ObserveBooking("request", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("request_id", requestID.String()).
		Str("staff_id", staffID.String()).
		Time("date_time", a.DateTime).
		Msg("appointment scheduled")
	s.afterCreate(ctx, a)
	return a, nil
}

func (s *Service) schedule(ctx context.Context, institutionID, requestID, staffID uuid.UUID, in ScheduleInput) (*Appointment, error) {
	if err := s.validateTime(in.DateTime, in.Duration); err != nil {
		return nil, err
	}
	start := in.DateTime.UTC()
	end := start.Add(time.Duration(in.Duration) * time.Minute)

	var out *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.InstitutionID != institutionID {
			return apperr.NotFound("appointment request %s not found", requestID)
		}
		if req.Status != requests.StatusAssigned {
			return apperr.InvalidState("request is %s, only ASIGNADA requests can be scheduled", req.Status)
		}
		if !req.ClaimedByStaff(staffID) {
			return apperr.Forbidden("request is claimed by another staff member")
		}

		slot, err := s.avail.CheckCovered(ctx, staffID, start, end)
		if err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlap(ctx, staffID, start, end)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict("time conflict: the staff member already has an appointment at that time")
		}

		a := &Appointment{
			ID:            uuid.New(),
			InstitutionID: req.InstitutionID,
			StudentID:     req.StudentID,
			StaffID:       staffID,
			RequestID:     &req.ID,
			DateTime:      start,
			Duration:      in.Duration,
			EndTime:       end,
			Modality:      req.Modality,
			Reason:        req.Reason,
			Location:      trimmed(in.Location),
			Status:        StatusScheduled,
		}
		if slot != nil {
			a.SlotID = &slot.ID
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}

		ok, err := s.requests.MarkScheduled(ctx, req.ID, staffID, a.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("request %s changed while scheduling", req.ID)
		}
		if slot != nil {
			if _, err := s.avail.ReserveSlot(ctx, slot.ID, req.StudentID); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BookSlot lets a student take a published slot. Only one of any number of
// concurrent callers gets the slot; the rest see ConflictError.
func (s *Service) BookSlot(ctx context.Context, institutionID, slotID, studentID uuid.UUID, in BookInput) (*Appointment, error) {
	a, err := s.bookSlot(ctx, institutionID, slotID, studentID, in)
	s.metrics.ObserveBooking("slot", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("slot_id", slotID.String()).
		Str("student_id", studentID.String()).
		Msg("slot booked")
	s.afterCreate(ctx, a)
	return a, nil
}

func (s *Service) bookSlot(ctx context.Context, institutionID, slotID, studentID uuid.UUID, in BookInput) (*Appointment, error) {
	reason := DefaultBookingReason
	if in.Reason != nil && strings.TrimSpace(*in.Reason) != "" {
		reason = strings.TrimSpace(*in.Reason)
		if err := requests.ValidateReason(reason, s.cfg.MinReasonLength); err != nil {
			return nil, err
		}
	}
	modality := in.Modality
	if modality == "" {
		modality = requests.ModalityInPerson
	}
	if !modality.Valid() {
		return nil, apperr.Validation("unknown modality %q", modality)
	}

	var out *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		slot, err := s.avail.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.InstitutionID != institutionID {
			return apperr.NotFound("slot %s not found", slotID)
		}
		now := s.now()
		if !slot.StartTime.After(now) {
			return apperr.Validation("slot has already started")
		}
		if slot.StartTime.After(now.Add(s.cfg.Horizon)) {
			return apperr.Validation("slot starts more than %d days ahead", int(s.cfg.Horizon/(24*time.Hour)))
		}
		if err := s.avail.CheckBreaks(ctx, slot.StaffID, slot.StartTime, slot.EndTime); err != nil {
			return err
		}

		slot, err = s.avail.ReserveSlot(ctx, slotID, studentID)
		if err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlap(ctx, slot.StaffID, slot.StartTime, slot.EndTime)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict("time conflict: the staff member already has an appointment at that time")
		}

		a := &Appointment{
			ID:            uuid.New(),
			InstitutionID: slot.InstitutionID,
			StudentID:     studentID,
			StaffID:       slot.StaffID,
			SlotID:        &slot.ID,
			DateTime:      slot.StartTime,
			Duration:      slot.Duration,
			EndTime:       slot.EndTime,
			Modality:      modality,
			Reason:        reason,
			Status:        StatusScheduled,
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
