package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlreadyRecorded = errors.New("deposit already recorded")
	ErrOverpayment     = errors.New("payment exceeds remaining balance")
	ErrLedgerNotFound  = errors.New("payment ledger not found")
)

// Ledger is the payment record attached 1:1 to an appointment once its
// deposit lands. The deposit is immutable; only balance payments are
// additive.
type Ledger struct {
	AppointmentID   uuid.UUID
	TotalCents      int64
	DepositCents    int64
	DepositMethod   string
	DepositProofRef *string
	CreatedAt       time.Time
	Payments        []BalancePayment
}

// RemainingCents is total minus deposit minus all balance payments.
func (l Ledger) RemainingCents() int64 {
	remaining := l.TotalCents - l.DepositCents
	for _, p := range l.Payments {
		remaining -= p.AmountCents
	}
	return remaining
}

// BalancePayment is one append-only payment row against a ledger.
type BalancePayment struct {
	ID            int64
	AppointmentID uuid.UUID
	AmountCents   int64
	Method        string
	ProofRef      *string
	RecordedBy    uuid.UUID
	PaidAt        time.Time
}
