package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) CreateLedger(ctx context.Context, l Ledger) (*Ledger, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO payment_ledgers (appointment_id, total_cents, deposit_cents, deposit_method, deposit_proof_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING appointment_id, total_cents, deposit_cents, deposit_method, deposit_proof_ref, created_at
	`, l.AppointmentID, l.TotalCents, l.DepositCents, l.DepositMethod, l.DepositProofRef)

	created, err := scanLedger(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadyRecorded
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetLedger(ctx context.Context, appointmentID uuid.UUID) (*Ledger, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT appointment_id, total_cents, deposit_cents, deposit_method, deposit_proof_ref, created_at
		FROM payment_ledgers
		WHERE appointment_id = $1
	`, appointmentID)

	l, err := scanLedger(row)
	if err != nil {
		return nil, err
	}

	payments, err := r.listPayments(ctx, r.pool, appointmentID)
	if err != nil {
		return nil, err
	}
	l.Payments = payments

	return l, nil
}

// AddBalancePayment locks the ledger row, re-reads the remaining balance
// inside the transaction and only then inserts, so two concurrent
// payments cannot jointly overshoot the total.
func (r *PgRepository) AddBalancePayment(ctx context.Context, p BalancePayment) (*Ledger, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin balance payment: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT appointment_id, total_cents, deposit_cents, deposit_method, deposit_proof_ref, created_at
		FROM payment_ledgers
		WHERE appointment_id = $1
		FOR UPDATE
	`, p.AppointmentID)

	l, err := scanLedger(row)
	if err != nil {
		return nil, err
	}

	var paid int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM balance_payments
		WHERE appointment_id = $1
	`, p.AppointmentID).Scan(&paid)
	if err != nil {
		return nil, err
	}

	remaining := l.TotalCents - l.DepositCents - paid
	if p.AmountCents > remaining {
		return nil, ErrOverpayment
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balance_payments (appointment_id, amount_cents, method, proof_ref, recorded_by, paid_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, p.AppointmentID, p.AmountCents, p.Method, p.ProofRef, p.RecordedBy)
	if err != nil {
		return nil, fmt.Errorf("insert balance payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit balance payment: %w", err)
	}

	return r.GetLedger(ctx, p.AppointmentID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PgRepository) listPayments(ctx context.Context, q querier, appointmentID uuid.UUID) ([]BalancePayment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, appointment_id, amount_cents, method, proof_ref, recorded_by, paid_at
		FROM balance_payments
		WHERE appointment_id = $1
		ORDER BY paid_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BalancePayment
	for rows.Next() {
		var p BalancePayment
		if err := rows.Scan(&p.ID, &p.AppointmentID, &p.AmountCents, &p.Method, &p.ProofRef, &p.RecordedBy, &p.PaidAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanLedger(row pgx.Row) (*Ledger, error) {
	var l Ledger

	err := row.Scan(
		&l.AppointmentID,
		&l.TotalCents,
		&l.DepositCents,
		&l.DepositMethod,
		&l.DepositProofRef,
		&l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}

	return &l, nil
}
