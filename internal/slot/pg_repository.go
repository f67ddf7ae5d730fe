package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const slotColumns = `id, staff_id, workstream, start_time, duration_minutes, status, booked_by, created_at, updated_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var st Staff

	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Workstream,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	return &st, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var agency *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Role,
		&agency,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Agency = agency
	return &u, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var bookedBy *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.StaffID,
		&s.Workstream,
		&s.StartTime,
		&s.DurationMinutes,
		&s.Status,
		&bookedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.BookedBy = bookedBy
	return &s, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Interface methods

func (r *PgRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, workstream, created_at, updated_at
		FROM staff
		WHERE id = $1
	`, id)
	return scanStaff(row)
}

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, role, agency, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, s Slot) (*Slot, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, staff_id, workstream, start_time, duration_minutes, status, booked_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, now(), now())
		RETURNING `+slotColumns+`
	`, id, s.StaffID, s.Workstream, s.StartTime, s.DurationMinutes, s.Status)

	created, err := scanSlot(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateSlot
		}
		return nil, err
	}
	return created, nil
}

// BookSlot is the compare-and-set booking write: it only succeeds while the
// slot is still free and its start time has not passed. No matching row
// surfaces as ErrSlotNotFound and the caller classifies the reason.
func (r *PgRepository) BookSlot(ctx context.Context, id, actorID uuid.UUID, now time.Time) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    booked_by = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'free'
		  AND start_time > $3
		RETURNING `+slotColumns+`
	`, id, actorID, now)

	return scanSlot(row)
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'free',
		    booked_by = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+slotColumns+`
	`, id)

	return scanSlot(row)
}

func (r *PgRepository) SetSlotStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns+`
	`, id, to, from)

	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status <> 'booked'
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) DeactivateExpired(ctx context.Context, staffID *uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET status = 'deactivated',
		    updated_at = now()
		WHERE status = 'free'
		  AND start_time + make_interval(mins => duration_minutes) < $1
		  AND ($2::uuid IS NULL OR staff_id = $2)
	`, now, staffID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListSlotsForStaffBetween(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE staff_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time ASC
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListAvailableSlotsForStaff(ctx context.Context, staffID uuid.UUID, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE staff_id = $1
		  AND status = 'free'
		  AND start_time > $2
		ORDER BY start_time ASC
	`, staffID, now)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListBookedSlotsByActor(ctx context.Context, actorID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE booked_by = $1
		  AND status = 'booked'
		ORDER BY start_time ASC
	`, actorID)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListUpcomingBookedForStaff(ctx context.Context, staffID uuid.UUID, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE staff_id = $1
		  AND status = 'booked'
		  AND start_time > $2
		ORDER BY start_time ASC
	`, staffID, now)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, slot_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
