package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/db"
	"github.com/psicoapp/psicoapp/pkg/pagination"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentCols = `id, institution_id, student_id, staff_id, request_id, slot_id, date_time,
	duration_minutes, end_time, modality, reason, location, status, staff_notes, cancel_reason,
	cancelled_by, actual_start, actual_end, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.InstitutionID, &a.StudentID, &a.StaffID, &a.RequestID, &a.SlotID, &a.DateTime,
		&a.Duration, &a.EndTime, &a.Modality, &a.Reason, &a.Location, &a.Status, &a.StaffNotes, &a.CancelReason,
		&a.CancelledBy, &a.ActualStart, &a.ActualEnd, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func scanConditional(row pgx.Row) (*Appointment, bool, error) {
	a, err := scanAppointment(row)
	if db.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, institution_id, student_id, staff_id, request_id, slot_id,
			date_time, duration_minutes, end_time, modality, reason, location, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		a.ID, a.InstitutionID, a.StudentID, a.StaffID, a.RequestID, a.SlotID,
		a.DateTime, a.Duration, a.EndTime, a.Modality, a.Reason, a.Location, a.Status).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.HasCode(err, db.CodeUniqueViolation, db.CodeExclusionViolation) {
		return apperr.Wrap(apperr.KindConflict, err, "time conflict: the staff member already has an appointment at that time")
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointment WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

func (r *repoPG) HasOverlap(ctx context.Context, staffID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE staff_id = $1 AND status <> 'CANCELADA'
			  AND date_time < $3 AND end_time > $2
		)`, staffID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return exists, nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, ch StatusChange) (*Appointment, bool, error) {
	a, ok, err := scanConditional(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET status = $3,
		    staff_notes = COALESCE($4, staff_notes),
		    actual_start = COALESCE($5, actual_start),
		    actual_end = COALESCE($6, actual_end),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentCols, id, from, ch.To, ch.Notes, ch.ActualStart, ch.ActualEnd))
	if err != nil {
		return nil, false, fmt.Errorf("update appointment %s status: %w", id, err)
	}
	return a, ok, nil
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID, from Status, actorID uuid.UUID, reason *string) (*Appointment, bool, error) {
	a, ok, err := scanConditional(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET status = 'CANCELADA', cancelled_by = $3, cancel_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentCols, id, from, actorID, reason))
	if err != nil {
		return nil, false, fmt.Errorf("cancel appointment %s: %w", id, err)
	}
	return a, ok, nil
}

func (r *repoPG) ListByParty(ctx context.Context, f ListFilter, p pagination.Params) ([]*Appointment, int, error) {
	party := "student_id"
	if f.Role == RoleStaff {
		party = "staff_id"
	}
	where := `institution_id = $1 AND ` + party + ` = $2 AND ($3::text IS NULL OR status = $3)`

	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where,
		f.InstitutionID, f.UserID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM appointment
		WHERE `+where+`
		ORDER BY date_time ASC, id ASC
		LIMIT $4 OFFSET $5`, f.InstitutionID, f.UserID, status, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}
