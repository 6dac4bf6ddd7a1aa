package requests

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

const requestCols = `id, student_id, institution_id, staff_id, severity, source_channel,
	reason, modality, status, claimed_by, claimed_at, appointment_id, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var q Request
	err := row.Scan(&q.ID, &q.StudentID, &q.InstitutionID, &q.StaffID, &q.Severity, &q.SourceChannel,
		&q.Reason, &q.Modality, &q.Status, &q.ClaimedBy, &q.ClaimedAt, &q.AppointmentID, &q.CreatedAt, &q.UpdatedAt)
	return &q, err
}

// scanConditional turns "no row matched the WHERE" into ok=false.
func scanConditional(row pgx.Row) (*Request, bool, error) {
	q, err := scanRequest(row)
	if db.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

func (r *repoPG) Create(ctx context.Context, q *Request) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_request (id, student_id, institution_id, staff_id, severity,
			source_channel, reason, modality, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		q.ID, q.StudentID, q.InstitutionID, q.StaffID, q.Severity,
		q.SourceChannel, q.Reason, q.Modality, q.Status).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment request: %w", err)
	}
	return nil
}

func (r *repoPG) getOne(ctx context.Context, sql string, id uuid.UUID) (*Request, error) {
	q, err := scanRequest(r.conn(ctx).QueryRow(ctx, sql, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment request %s: %w", id, err)
	}
	return q, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.getOne(ctx, `SELECT `+requestCols+` FROM appointment_request WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.getOne(ctx, `SELECT `+requestCols+` FROM appointment_request WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *repoPG) ListOpen(ctx context.Context, institutionID uuid.UUID) ([]*Request, error) {
	out, err := r.list(ctx, `
		SELECT `+requestCols+` FROM appointment_request
		WHERE institution_id = $1 AND status IN ('SOLICITADA', 'ASIGNADA')
		ORDER BY created_at ASC, id ASC`, institutionID)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	return out, nil
}

func (r *repoPG) ListByStudent(ctx context.Context, studentID, institutionID uuid.UUID, p pagination.Params) ([]*Request, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment_request WHERE student_id = $1 AND institution_id = $2`,
		studentID, institutionID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count student requests: %w", err)
	}

	out, err := r.list(ctx, `
		SELECT `+requestCols+` FROM appointment_request
		WHERE student_id = $1 AND institution_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, studentID, institutionID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list student requests: %w", err)
	}
	return out, total, nil
}

func (r *repoPG) Claim(ctx context.Context, id, institutionID, staffID uuid.UUID, at time.Time) (*Request, bool, error) {
	q, ok, err := scanConditional(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_request
		SET status = 'ASIGNADA', claimed_by = $3, claimed_at = $4, updated_at = $4
		WHERE id = $1 AND institution_id = $2 AND status = 'SOLICITADA'
		RETURNING `+requestCols, id, institutionID, staffID, at))
	if err != nil {
		return nil, false, fmt.Errorf("claim request %s: %w", id, err)
	}
	return q, ok, nil
}

func (r *repoPG) Release(ctx context.Context, id, institutionID, staffID uuid.UUID) (*Request, bool, error) {
	q, ok, err := scanConditional(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_request
		SET status = 'SOLICITADA', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND institution_id = $2 AND status = 'ASIGNADA' AND claimed_by = $3
		RETURNING `+requestCols, id, institutionID, staffID))
	if err != nil {
		return nil, false, fmt.Errorf("release request %s: %w", id, err)
	}
	return q, ok, nil
}

func (r *repoPG) Withdraw(ctx context.Context, id, studentID uuid.UUID) (*Request, bool, error) {
	q, ok, err := scanConditional(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_request
		SET status = 'CANCELADA', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND student_id = $2 AND status IN ('SOLICITADA', 'ASIGNADA')
		RETURNING `+requestCols, id, studentID))
	if err != nil {
		return nil, false, fmt.Errorf("withdraw request %s: %w", id, err)
	}
	return q, ok, nil
}

func (r *repoPG) MarkScheduled(ctx context.Context, id, staffID, appointmentID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_request
		SET status = 'PROGRAMADA', appointment_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'ASIGNADA' AND claimed_by = $2`, id, staffID, appointmentID)
	if err != nil {
		return false, fmt.Errorf("mark request %s scheduled: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) CancelScheduled(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_request
		SET status = 'CANCELADA', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> 'CANCELADA'`, id)
	if err != nil {
		return fmt.Errorf("cancel request %s: %w", id, err)
	}
	return nil
}
