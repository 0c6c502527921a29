package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidAmount = errors.New("payment amount must be positive")

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// RecordDeposit opens the ledger for an appointment. One-shot: deposits
// are never amended, a second call fails with ErrAlreadyRecorded.
func (s *Service) RecordDeposit(ctx context.Context, appointmentID uuid.UUID, totalCents, depositCents int64, method string, proofRef *string) (*Ledger, error) {
	if depositCents <= 0 || totalCents <= 0 || depositCents > totalCents {
		return nil, ErrInvalidAmount
	}

	l, err := s.repo.CreateLedger(ctx, Ledger{
		AppointmentID:   appointmentID,
		TotalCents:      totalCents,
		DepositCents:    depositCents,
		DepositMethod:   method,
		DepositProofRef: proofRef,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("deposit recorded",
		zap.String("appointment_id", appointmentID.String()),
		zap.Int64("deposit_cents", depositCents),
		zap.Int64("total_cents", totalCents),
	)

	return l, nil
}

// RecordBalancePayment appends a payment toward the open balance.
// Overpayment is rejected, never silently clamped.
func (s *Service) RecordBalancePayment(ctx context.Context, appointmentID uuid.UUID, amountCents int64, method string, proofRef *string, actorID uuid.UUID) (*Ledger, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	l, err := s.repo.AddBalancePayment(ctx, BalancePayment{
		AppointmentID: appointmentID,
		AmountCents:   amountCents,
		Method:        method,
		ProofRef:      proofRef,
		RecordedBy:    actorID,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("balance payment recorded",
		zap.String("appointment_id", appointmentID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.Int64("remaining_cents", l.RemainingCents()),
	)

	return l, nil
}

func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID) (*Ledger, error) {
	return s.repo.GetLedger(ctx, appointmentID)
}

// RemainingBalance satisfies the state machine's settlement guard.
func (s *Service) RemainingBalance(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	l, err := s.repo.GetLedger(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}
	return l.RemainingCents(), nil
}

// HasDeposit satisfies the state machine's confirmation guard.
func (s *Service) HasDeposit(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	_, err := s.repo.GetLedger(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
