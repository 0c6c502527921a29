package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.DurationMinutes,
		&s.PriceCents,
		&s.DepositPercent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price_cents, deposit_percent, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) WindowsFor(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WorkingWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minutes, end_minutes
		FROM doctor_schedule_windows
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_minutes
	`, doctorID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkingWindow
	for rows.Next() {
		var (
			w              WorkingWindow
			wd, start, end int
		)
		if err := rows.Scan(&wd, &start, &end); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(wd)
		w.Start = TimeOfDay(start)
		w.End = TimeOfDay(end)
		result = append(result, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DoctorPerformsService(ctx context.Context, doctorID, serviceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_services
			WHERE doctor_id = $1 AND service_id = $2
		)
	`, doctorID, serviceID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) IsBlocked(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_dates
			WHERE blocked_on = $1
		)
	`, NormalizeDate(date)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) ListBlockedBetween(ctx context.Context, from, to time.Time) ([]BlockedDate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT blocked_on, reason
		FROM blocked_dates
		WHERE blocked_on >= $1 AND blocked_on <= $2
		ORDER BY blocked_on
	`, NormalizeDate(from), NormalizeDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedDate
	for rows.Next() {
		var b BlockedDate
		if err := rows.Scan(&b.Date, &b.Reason); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
