package requests

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/metrics"
	"github.com/psicoapp/psicoapp/internal/platform/notification"
	"github.com/psicoapp/psicoapp/pkg/pagination"
)

type Config struct {
	MinReasonLength int
}

type Service struct {
	repo     Repository
	notifier *notification.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(repo Repository, notifier *notification.Notifier, m *metrics.Metrics, logger zerolog.Logger, cfg Config) *Service {
	if cfg.MinReasonLength <= 0 {
		cfg.MinReasonLength = 10
	}
	return &Service{repo: repo, notifier: notifier, metrics: m, logger: logger, cfg: cfg, now: time.Now}
}

// ValidateReason enforces the minimum reason length in characters.
func ValidateReason(reason string, min int) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(reason)); n < min {
		return apperr.Validation("reason must be at least %d characters, got %d", min, n)
	}
	return nil
}

// -- Request Queue --

func (s *Service) Submit(ctx context.Context, studentID, institutionID uuid.UUID, in SubmitInput) (*Request, error) {
	if studentID == uuid.Nil || institutionID == uuid.Nil {
		return nil, apperr.Validation("student and institution are required")
	}
	if err := ValidateReason(in.Reason, s.cfg.MinReasonLength); err != nil {
		return nil, err
	}

	q := &Request{
		ID:            uuid.New(),
		StudentID:     studentID,
		InstitutionID: institutionID,
		StaffID:       in.StaffID,
		Severity:      in.Severity,
		SourceChannel: in.SourceChannel,
		Reason:        strings.TrimSpace(in.Reason),
		Modality:      in.Modality,
		Status:        StatusRequested,
	}
	if q.Severity == "" {
		q.Severity = SeverityMedium
	}
	if q.SourceChannel == "" {
		q.SourceChannel = ChannelWeb
	}
	if q.Modality == "" {
		q.Modality = ModalityInPerson
	}
	if !q.Severity.Valid() {
		return nil, apperr.Validation("unknown severity %q", q.Severity)
	}
	if !q.SourceChannel.Valid() {
		return nil, apperr.Validation("unknown source channel %q", q.SourceChannel)
	}
	if !q.Modality.Valid() {
		return nil, apperr.Validation("unknown modality %q", q.Modality)
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListOpen returns SOLICITADA and ASIGNADA requests oldest first.
func (s *Service) ListOpen(ctx context.Context, institutionID uuid.UUID) ([]*Request, error) {
	return s.repo.ListOpen(ctx, institutionID)
}

func (s *Service) ListMine(ctx context.Context, studentID, institutionID uuid.UUID, p pagination.Params) ([]*Request, int, error) {
	return s.repo.ListByStudent(ctx, studentID, institutionID, p)
}

// Get returns a request visible to its student or any staff member of the
// institution.
func (s *Service) Get(ctx context.Context, institutionID, id uuid.UUID, v Viewer) (*Request, error) {
	q, err := s.scoped(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if !v.Staff && q.StudentID != v.UserID {
		return nil, apperr.Forbidden("request %s belongs to another student", id)
	}
	return q, nil
}

func (s *Service) scoped(ctx context.Context, institutionID, id uuid.UUID) (*Request, error) {
	q, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.InstitutionID != institutionID {
		return nil, apperr.NotFound("appointment request %s not found", id)
	}
	return q, nil
}

// Withdraw lets the student cancel a request that has not been scheduled.
func (s *Service) Withdraw(ctx context.Context, institutionID, id, studentID uuid.UUID) (*Request, error) {
	cur, err := s.scoped(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if cur.StudentID != studentID {
		return nil, apperr.Forbidden("request %s belongs to another student", id)
	}

	q, ok, err := s.repo.Withdraw(ctx, id, studentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidState("request %s is %s and can no longer be withdrawn", id, cur.Status)
	}

	if cur.ClaimedBy != nil {
		s.notifier.Notify(ctx, notification.Message{
			UserID:        *cur.ClaimedBy,
			InstitutionID: institutionID,
			Type:          notification.TypeRequestWithdrawn,
			Data:          map[string]string{"requestId": id.String()},
		})
	}
	return q, nil
}

// -- Claim Manager --

// Claim moves SOLICITADA to ASIGNADA for staffID. Of any number of concurrent
// claims exactly one succeeds; the rest get a conflict.
func (s *Service) Claim(ctx context.Context, institutionID, id, staffID uuid.UUID) (*Request, error) {
	q, err := s.claim(ctx, institutionID, id, staffID)
	s.metrics.ObserveClaim("claim", err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Message{
		UserID:        q.StudentID,
		InstitutionID: q.InstitutionID,
		Type:          notification.TypeRequestClaimed,
		Data:          map[string]string{"requestId": q.ID.String(), "staffId": staffID.String()},
	})
	return q, nil
}

func (s *Service) claim(ctx context.Context, institutionID, id, staffID uuid.UUID) (*Request, error) {
	q, ok, err := s.repo.Claim(ctx, id, institutionID, staffID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if ok {
		return q, nil
	}

	cur, err := s.scoped(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	if cur.ClaimedByStaff(staffID) {
		return nil, apperr.Conflict("request %s is already claimed by you", id)
	}
	return nil, apperr.Conflict("request %s is no longer available (status %s)", id, cur.Status)
}

// Release returns a claimed request to the queue. Only the claimant may
// release it.
func (s *Service) Release(ctx context.Context, institutionID, id, staffID uuid.UUID) (*Request, error) {
	q, err := s.release(ctx, institutionID, id, staffID)
	s.metrics.ObserveClaim("release", err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notification.Message{
		UserID:        q.StudentID,
		InstitutionID: q.InstitutionID,
		Type:          notification.TypeRequestReleased,
		Data:          map[string]string{"requestId": q.ID.String()},
	})
	return q, nil
}

func (s *Service) release(ctx context.Context, institutionID, id, staffID uuid.UUID) (*Request, error) {
	q, ok, err := s.repo.Release(ctx, id, institutionID, staffID)
	if err != nil {
		return nil, err
	}
	if ok {
		return q, nil
	}

	cur, err := s.scoped(ctx, institutionID, id)
	if err != nil {
		return nil, err
	}
	switch {
	case cur.Status != StatusAssigned:
		return nil, apperr.InvalidState("request %s is %s, not %s", id, cur.Status, StatusAssigned)
	case !cur.ClaimedByStaff(staffID):
		return nil, apperr.Forbidden("request %s is claimed by another staff member", id)
	default:
		return nil, apperr.Conflict("request %s changed while releasing", id)
	}
}
