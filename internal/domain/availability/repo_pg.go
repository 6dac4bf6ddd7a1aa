package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psicoapp/psicoapp/internal/platform/apperr"
	"github.com/psicoapp/psicoapp/internal/platform/db"
)

// -- Slots --

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const slotCols = `id, staff_id, institution_id, start_time, duration_minutes, end_time,
	status, reserved_by, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.StaffID, &s.InstitutionID, &s.StartTime, &s.Duration, &s.EndTime,
		&s.Status, &s.ReservedBy, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_slot (id, staff_id, institution_id, start_time, duration_minutes, end_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		s.ID, s.StaffID, s.InstitutionID, s.StartTime, s.Duration, s.EndTime, s.Status).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM availability_slot WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", id, err)
	}
	return s, nil
}

func (r *slotRepoPG) ListOpen(ctx context.Context, f SlotFilter) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM availability_slot
		WHERE institution_id = $1 AND status = 'ABIERTA'
		  AND start_time < $3 AND end_time > $2
		  AND ($4::uuid IS NULL OR staff_id = $4)
		ORDER BY start_time ASC, id ASC`, f.InstitutionID, f.From, f.To, f.StaffID)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	defer rows.Close()

	var out []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *slotRepoPG) FindCovering(ctx context.Context, staffID uuid.UUID, start, end time.Time) (*Slot, error) {
	s, err := scanSlot(r.conn(ctx).QueryRow(ctx, `
		SELECT `+slotCols+` FROM availability_slot
		WHERE staff_id = $1 AND status = 'ABIERTA' AND start_time <= $2 AND end_time >= $3
		ORDER BY start_time ASC
		LIMIT 1`, staffID, start, end))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find covering slot: %w", err)
	}
	return s, nil
}

func (r *slotRepoPG) Reserve(ctx context.Context, id, studentID uuid.UUID) (*Slot, bool, error) {
	s, err := scanSlot(r.conn(ctx).QueryRow(ctx, `
		UPDATE availability_slot
		SET status = 'RESERVADA', reserved_by = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'ABIERTA'
		RETURNING `+slotCols, id, studentID))
	if db.IsNoRows(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reserve slot %s: %w", id, err)
	}
	return s, true, nil
}

func (r *slotRepoPG) Reopen(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_slot
		SET status = 'ABIERTA', reserved_by = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'RESERVADA'`, id)
	if err != nil {
		return fmt.Errorf("reopen slot %s: %w", id, err)
	}
	return nil
}

// -- Breaks --

type breakRepoPG struct{ pool *pgxpool.Pool }

func NewBreakRepoPG(pool *pgxpool.Pool) BreakRepository { return &breakRepoPG{pool: pool} }

func (r *breakRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]Break, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, staff_id, day_of_week, start_time, end_time, type, created_at
		FROM break_window WHERE staff_id = $1
		ORDER BY day_of_week, start_time`, staffID)
	if err != nil {
		return nil, fmt.Errorf("list breaks: %w", err)
	}
	defer rows.Close()

	var out []Break
	for rows.Next() {
		var (
			b          Break
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&b.ID, &b.StaffID, &day, &start, &end, &b.Type, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan break: %w", err)
		}
		b.DayOfWeek = time.Weekday(day)
		b.StartTime, b.EndTime = clockFromPG(start), clockFromPG(end)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *breakRepoPG) Create(ctx context.Context, b *Break) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO break_window (id, staff_id, day_of_week, start_time, end_time, type)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		b.ID, b.StaffID, int16(b.DayOfWeek), b.StartTime.pg(), b.EndTime.pg(), b.Type).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert break: %w", err)
	}
	return nil
}

func (r *breakRepoPG) Delete(ctx context.Context, id, staffID uuid.UUID) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM break_window WHERE id = $1 AND staff_id = $2`, id, staffID)
	if err != nil {
		return false, fmt.Errorf("delete break %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// -- Working hours --

type hoursRepoPG struct{ pool *pgxpool.Pool }

func NewHoursRepoPG(pool *pgxpool.Pool) HoursRepository { return &hoursRepoPG{pool: pool} }

func (r *hoursRepoPG) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]WorkingHours, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, staff_id, institution_id, day_of_week, start_time, end_time, active
		FROM working_hours WHERE staff_id = $1
		ORDER BY day_of_week, start_time`, staffID)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}
	defer rows.Close()

	var out []WorkingHours
	for rows.Next() {
		var (
			h          WorkingHours
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&h.ID, &h.StaffID, &h.InstitutionID, &day, &start, &end, &h.Active); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		h.DayOfWeek = time.Weekday(day)
		h.StartTime, h.EndTime = clockFromPG(start), clockFromPG(end)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *hoursRepoPG) Replace(ctx context.Context, staffID uuid.UUID, hours []WorkingHours) error {
	q := db.Conn(ctx, r.pool)
	if _, err := q.Exec(ctx, `DELETE FROM working_hours WHERE staff_id = $1`, staffID); err != nil {
		return fmt.Errorf("clear working hours: %w", err)
	}
	for _, h := range hours {
		_, err := q.Exec(ctx, `
			INSERT INTO working_hours (id, staff_id, institution_id, day_of_week, start_time, end_time, active)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			h.ID, h.StaffID, h.InstitutionID, int16(h.DayOfWeek), h.StartTime.pg(), h.EndTime.pg(), h.Active)
		if err != nil {
			return fmt.Errorf("insert working hours: %w", err)
		}
	}
	return nil
}
