package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var phone *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a       Appointment
		start   int
		consent *string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ServiceID,
		&a.Date,
		&start,
		&a.Status,
		&consent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = schedule.TimeOfDay(start)
	a.ConsentRef = consent
	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, service_id, appt_date, start_minutes, status, consent_ref, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appt_date = $2
		  AND start_minutes = $3
		  AND status NOT IN ('cancelled', 'no_show', 'completed')
	`, doctorID, schedule.NormalizeDate(date), int(start))
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booked, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.start_minutes, s.duration_minutes
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.doctor_id = $1
		  AND a.appt_date = $2
		  AND a.status NOT IN ('cancelled', 'no_show', 'completed')
		ORDER BY a.start_minutes
	`, doctorID, schedule.NormalizeDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booked
	for rows.Next() {
		var start, duration int
		if err := rows.Scan(&start, &duration); err != nil {
			return nil, err
		}
		result = append(result, Booked{Start: schedule.TimeOfDay(start), DurationMinutes: duration})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, service_id, appt_date, start_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PatientID, a.DoctorID, a.ServiceID, schedule.NormalizeDate(a.Date), int(a.Start), a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return created, nil
}

// Transition performs the guarded status update and the history insert in
// one transaction: either both land or neither does.
func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, reason *string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row missing or status moved under us. Distinguish the two so
			// a stale caller gets the transition error, not a 404.
			var exists bool
			if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); checkErr == nil && exists {
				return nil, ErrInvalidTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_state_history (appointment_id, previous_state, new_state, changed_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, id, from, to, actorID, reason)
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) ListHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, previous_state, new_state, changed_by, reason, created_at
		FROM appointment_state_history
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.AppointmentID, &h.PreviousState, &h.NewState, &h.ChangedBy, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SetConsentRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET consent_ref = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// attentionLeadWindow is how far ahead a confirmed appointment counts as
// due now.
const attentionLeadWindow = 15 * time.Minute

func (r *PgRepository) ListAttention(ctx context.Context, date time.Time, now time.Time) ([]AttentionItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixedAppointmentColumns("a")+`,
		       l.appointment_id IS NOT NULL,
		       COALESCE(l.total_cents - l.deposit_cents - COALESCE(p.paid, 0), 0)
		FROM appointments a
		LEFT JOIN payment_ledgers l ON l.appointment_id = a.id
		LEFT JOIN (
			SELECT appointment_id, SUM(amount_cents) AS paid
			FROM balance_payments
			GROUP BY appointment_id
		) p ON p.appointment_id = a.id
		WHERE a.appt_date = $1
		  AND a.status IN ('pending', 'confirmed', 'in_progress')
		ORDER BY a.start_minutes
	`, schedule.NormalizeDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nowMinute := schedule.TimeOfDay(now.UTC().Hour()*60 + now.UTC().Minute())
	sameDay := schedule.NormalizeDate(date).Equal(schedule.NormalizeDate(now))

	var result []AttentionItem
	for rows.Next() {
		var (
			a         Appointment
			start     int
			consent   *string
			hasLedger bool
			balance   int64
		)
		err := rows.Scan(
			&a.ID, &a.PatientID, &a.DoctorID, &a.ServiceID, &a.Date, &start,
			&a.Status, &consent, &a.CreatedAt, &a.UpdatedAt,
			&hasLedger, &balance,
		)
		if err != nil {
			return nil, err
		}
		a.Start = schedule.TimeOfDay(start)
		a.ConsentRef = consent

		kind, ok := classifyAttention(a, hasLedger, balance, sameDay, nowMinute)
		if !ok {
			continue
		}
		result = append(result, AttentionItem{Appointment: a, Kind: kind, BalanceDue: balance})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func classifyAttention(a Appointment, hasLedger bool, balance int64, sameDay bool, nowMinute schedule.TimeOfDay) (AttentionKind, bool) {
	switch a.Status {
	case StatusPending:
		if hasLedger {
			return AttentionUnconfirmed, true
		}
	case StatusConfirmed:
		if !sameDay {
			return "", false
		}
		if a.Start < nowMinute {
			return AttentionLate, true
		}
		if int(a.Start-nowMinute) <= int(attentionLeadWindow/time.Minute) {
			return AttentionDueNow, true
		}
	case StatusInProgress:
		if balance > 0 {
			return AttentionAwaitingPay, true
		}
	}
	return "", false
}

func prefixedAppointmentColumns(alias string) string {
	return alias + ".id, " + alias + ".patient_id, " + alias + ".doctor_id, " + alias + ".service_id, " +
		alias + ".appt_date, " + alias + ".start_minutes, " + alias + ".status, " + alias + ".consent_ref, " +
		alias + ".created_at, " + alias + ".updated_at"
}
