package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists ledgers and their balance payments. AddBalancePayment
// must apply the overpayment check and the insert atomically.
type Repository interface {
	// CreateLedger inserts the ledger row; ErrAlreadyRecorded if one
	// already exists for the appointment.
	CreateLedger(ctx context.Context, l Ledger) (*Ledger, error)

	// GetLedger loads the ledger with its payments; ErrLedgerNotFound if
	// no deposit was ever recorded.
	GetLedger(ctx context.Context, appointmentID uuid.UUID) (*Ledger, error)

	// AddBalancePayment appends a payment, rejecting amounts above the
	// remaining balance with ErrOverpayment. Returns the updated ledger.
	AddBalancePayment(ctx context.Context, p BalancePayment) (*Ledger, error)
}
