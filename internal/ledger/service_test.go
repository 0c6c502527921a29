package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRepo mirrors the pg repository's atomicity with a mutex.
type fakeRepo struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*Ledger
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{ledgers: make(map[uuid.UUID]*Ledger)}
}

func (f *fakeRepo) CreateLedger(_ context.Context, l Ledger) (*Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ledgers[l.AppointmentID]; ok {
		return nil, ErrAlreadyRecorded
	}
	stored := l
	f.ledgers[l.AppointmentID] = &stored
	out := stored
	return &out, nil
}

func (f *fakeRepo) GetLedger(_ context.Context, appointmentID uuid.UUID) (*Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[appointmentID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	out := *l
	out.Payments = append([]BalancePayment(nil), l.Payments...)
	return &out, nil
}

func (f *fakeRepo) AddBalancePayment(_ context.Context, p BalancePayment) (*Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.ledgers[p.AppointmentID]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	if p.AmountCents > l.RemainingCents() {
		return nil, ErrOverpayment
	}
	f.nextID++
	p.ID = f.nextID
	l.Payments = append(l.Payments, p)

	out := *l
	out.Payments = append([]BalancePayment(nil), l.Payments...)
	return &out, nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(repo, zap.NewNop()), repo
}

func TestRecordDepositOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	apptID := uuid.New()

	l, err := svc.RecordDeposit(ctx, apptID, 100_000, 50_000, "transfer", nil)
	require.NoError(t, err)
	require.Equal(t, int64(50_000), l.RemainingCents())

	_, err = svc.RecordDeposit(ctx, apptID, 100_000, 50_000, "transfer", nil)
	require.ErrorIs(t, err, ErrAlreadyRecorded)
}

func TestRecordDepositValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RecordDeposit(ctx, uuid.New(), 100_000, 0, "transfer", nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordDeposit(ctx, uuid.New(), 100_000, 120_000, "transfer", nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBalancePaymentSettlesExactly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	apptID := uuid.New()
	actor := uuid.New()

	// $500 deposit on a $1000 total, then a $500 balance payment.
	_, err := svc.RecordDeposit(ctx, apptID, 100_000, 50_000, "transfer", nil)
	require.NoError(t, err)

	l, err := svc.RecordBalancePayment(ctx, apptID, 50_000, "cash", nil, actor)
	require.NoError(t, err)
	require.Equal(t, int64(0), l.RemainingCents())

	remaining, err := svc.RemainingBalance(ctx, apptID)
	require.NoError(t, err)
	require.Zero(t, remaining)
}

func TestBalancePaymentRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	apptID := uuid.New()
	actor := uuid.New()

	_, err := svc.RecordDeposit(ctx, apptID, 100_000, 50_000, "transfer", nil)
	require.NoError(t, err)

	_, err = svc.RecordBalancePayment(ctx, apptID, 50_001, "cash", nil, actor)
	require.ErrorIs(t, err, ErrOverpayment)

	// Partial payments accumulate; the final one must land exactly.
	_, err = svc.RecordBalancePayment(ctx, apptID, 30_000, "cash", nil, actor)
	require.NoError(t, err)

	_, err = svc.RecordBalancePayment(ctx, apptID, 20_001, "cash", nil, actor)
	require.ErrorIs(t, err, ErrOverpayment)

	l, err := svc.RecordBalancePayment(ctx, apptID, 20_000, "cash", nil, actor)
	require.NoError(t, err)
	require.Zero(t, l.RemainingCents())
}

func TestBalancePaymentValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.RecordBalancePayment(context.Background(), uuid.New(), 0, "cash", nil, uuid.New())
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHasDeposit(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	apptID := uuid.New()

	ok, err := svc.HasDeposit(ctx, apptID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.RecordDeposit(ctx, apptID, 100_000, 30_000, "transfer", nil)
	require.NoError(t, err)

	ok, err = svc.HasDeposit(ctx, apptID)
	require.NoError(t, err)
	require.True(t, ok)
}
