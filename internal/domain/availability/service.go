package availability

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/db"
)

type Config struct {
	MaxDurationMinutes int
	Location           *time.Location
	// Horizon bounds how far ahead a block may start.
	Horizon time.Duration
}

type Service struct {
	slots  SlotRepository
	breaks BreakRepository
	hours  HoursRepository
	tx     db.TxRunner
	logger zerolog.Logger
	cfg    Config
	now    func() time.Time
}

func NewService(slots SlotRepository, breaks BreakRepository, hours HoursRepository, tx db.TxRunner, logger zerolog.Logger, cfg Config) *Service {
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = 240
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 90 * 24 * time.Hour
	}
	return &Service{slots: slots, breaks: breaks, hours: hours, tx: tx, logger: logger, cfg: cfg, now: time.Now}
}

func (s *Service) Location() *time.Location { return s.cfg.Location }

// ValidateDuration checks a length in minutes against the configured maximum.
func ValidateDuration(minutes, max int) error {
	if minutes <= 0 {
		return apperr.Validation("duration must be positive, got %d", minutes)
	}
	if minutes > max {
		return apperr.Validation("duration must be at most %d minutes, got %d", max, minutes)
	}
	return nil
}

// -- Slot Publisher --

// Publish creates one open slot per block in a single transaction. Blocks are
// not checked against each other or against existing appointments.
func (s *Service) Publish(ctx context.Context, staffID, institutionID uuid.UUID, blocks []Block) ([]*Slot, error) {
	if len(blocks) == 0 {
		return nil, apperr.Validation("at least one block is required")
	}
	now := s.now()
	out := make([]*Slot, 0, len(blocks))
	for i, b := range blocks {
		if err := ValidateDuration(b.Duration, s.cfg.MaxDurationMinutes); err != nil {
			return nil, apperr.Validation("block %d: %s", i, apperr.MessageOf(err))
		}
		if !b.DateTime.After(now) {
			return nil, apperr.Validation("block %d: start time must be in the future", i)
		}
		if b.DateTime.After(now.Add(s.cfg.Horizon)) {
			return nil, apperr.Validation("block %d: start time must be within %d days", i, int(s.cfg.Horizon/(24*time.Hour)))
		}
		start := b.DateTime.UTC()
		out = append(out, &Slot{
			ID:            uuid.New(),
			StaffID:       staffID,
			InstitutionID: institutionID,
			StartTime:     start,
			Duration:      b.Duration,
			EndTime:       start.Add(time.Duration(b.Duration) * time.Minute),
			Status:        SlotOpen,
		})
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, slot := range out {
			if err := s.slots.Create(ctx, slot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", staffID.String()).Int("slots", len(out)).Msg("slots published")
	return out, nil
}

// ListOpenSlots returns open slots intersecting [from, to). A zero from means
// now; a zero to means two weeks after from.
func (s *Service) ListOpenSlots(ctx context.Context, institutionID uuid.UUID, staffID *uuid.UUID, from, to time.Time) ([]*Slot, error) {
	if from.IsZero() {
		from = s.now()
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 14)
	}
	if !to.After(from) {
		return nil, apperr.Validation("to must be after from")
	}
	return s.slots.ListOpen(ctx, SlotFilter{InstitutionID: institutionID, StaffID: staffID, From: from, To: to})
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

// ReserveSlot flips an open slot to RESERVADA. A slot that exists but is not
// open yields ConflictError.
func (s *Service) ReserveSlot(ctx context.Context, id, studentID uuid.UUID) (*Slot, error) {
	slot, ok, err := s.slots.Reserve(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	if ok {
		return slot, nil
	}
	if _, err := s.slots.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperr.Conflict("slot %s is no longer available", id)
}

func (s *Service) ReopenSlot(ctx context.Context, id uuid.UUID) error {
	return s.slots.Reopen(ctx, id)
}

// CheckBreaks returns UnavailableError when [start, end) touches a break.
func (s *Service) CheckBreaks(ctx context.Context, staffID uuid.UUID, start, end time.Time) error {
	breaks, err := s.breaks.ListByStaff(ctx, staffID)
	if err != nil {
		return err
	}
	if b, hit := BreakHit(breaks, start, end, s.cfg.Location); hit {
		return apperr.Unavailable("requested time overlaps a %s break on %s %s-%s",
			b.Type, b.DayOfWeek, b.StartTime, b.EndTime)
	}
	return nil
}

// CheckCovered resolves what makes [start, end) bookable for the staff
// member. It returns the open slot that covers it, or nil when weekly working
// hours cover it instead, or UnavailableError when neither does. Breaks are
// checked first.
func (s *Service) CheckCovered(ctx context.Context, staffID uuid.UUID, start, end time.Time) (*Slot, error) {
	if err := s.CheckBreaks(ctx, staffID, start, end); err != nil {
		return nil, err
	}
	slot, err := s.slots.FindCovering(ctx, staffID, start, end)
	if err != nil {
		return nil, err
	}
	if slot != nil {
		return slot, nil
	}
	hours, err := s.hours.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if HoursCover(hours, start, end, s.cfg.Location) {
		return nil, nil
	}
	return nil, apperr.Unavailable("staff member has no availability covering %s",
		start.In(s.cfg.Location).Format("2006-01-02 15:04"))
}

// -- Breaks --

func (s *Service) ListBreaks(ctx context.Context, staffID uuid.UUID) ([]Break, error) {
	return s.breaks.ListByStaff(ctx, staffID)
}

func (s *Service) CreateBreak(ctx context.Context, staffID uuid.UUID, in BreakInput) (*Break, error) {
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return nil, apperr.Validation("dayOfWeek must be between 0 and 6")
	}
	if in.StartTime >= in.EndTime {
		return nil, apperr.Validation("startTime must be before endTime")
	}
	if in.Type == "" {
		in.Type = BreakOther
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("unknown break type %q", in.Type)
	}
	b := &Break{
		ID:        uuid.New(),
		StaffID:   staffID,
		DayOfWeek: time.Weekday(in.DayOfWeek),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Type:      in.Type,
	}
	if err := s.breaks.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) DeleteBreak(ctx context.Context, staffID, id uuid.UUID) error {
	ok, err := s.breaks.Delete(ctx, id, staffID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("break %s not found", id)
	}
	return nil
}

// -- Working hours --

func (s *Service) GetWorkingHours(ctx context.Context, staffID uuid.UUID) ([]WorkingHours, error) {
	return s.hours.ListByStaff(ctx, staffID)
}

// ReplaceWorkingHours swaps the staff member's weekly windows. Windows on the
// same day must not overlap.
func (s *Service) ReplaceWorkingHours(ctx context.Context, staffID, institutionID uuid.UUID, in []HoursInput) ([]WorkingHours, error) {
	hours := make([]WorkingHours, 0, len(in))
	for i, h := range in {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return nil, apperr.Validation("hours %d: dayOfWeek must be between 0 and 6", i)
		}
		if h.StartTime >= h.EndTime {
			return nil, apperr.Validation("hours %d: startTime must be before endTime", i)
		}
		hours = append(hours, WorkingHours{
			ID:            uuid.New(),
			StaffID:       staffID,
			InstitutionID: institutionID,
			DayOfWeek:     time.Weekday(h.DayOfWeek),
			StartTime:     h.StartTime,
			EndTime:       h.EndTime,
			Active:        true,
		})
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].DayOfWeek != hours[j].DayOfWeek {
			return hours[i].DayOfWeek < hours[j].DayOfWeek
		}
		return hours[i].StartTime < hours[j].StartTime
	})
	for i := 1; i < len(hours); i++ {
		prev, cur := hours[i-1], hours[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartTime < prev.EndTime {
			return nil, apperr.Validation("working hours overlap on %s", cur.DayOfWeek)
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.hours.Replace(ctx, staffID, hours)
	})
	if err != nil {
		return nil, err
	}
	return hours, nil
}
