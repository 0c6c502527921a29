package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/metrics"
	"github.com/clinovia/clinic-scheduling/internal/notify"
	redisclient "github.com/clinovia/clinic-scheduling/internal/redis"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

var ErrNotSameDay = errors.New("appointment is not scheduled for today")

// LedgerReader is the slice of the payment ledger the state machine
// guards need.
type LedgerReader interface {
	HasDeposit(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	RemainingBalance(ctx context.Context, appointmentID uuid.UUID) (int64, error)
}

type Service struct {
	repo     Repository
	ledger   LedgerReader
	locker   redisclient.Locker
	notifier notify.Notifier
	metrics  *metrics.EngineMetrics
	log      *zap.Logger
	clock    func() time.Time
}

func NewService(repo Repository, ledger LedgerReader, locker redisclient.Locker, notifier notify.Notifier, m *metrics.EngineMetrics, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		log:      log,
		clock:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// ChangeState moves an appointment through the lifecycle graph on behalf
// of an explicit actor. Serialized per appointment so two concurrent
// calls yield at most one success, and the history log never records two
// entries claiming the same previous state.
func (s *Service) ChangeState(ctx context.Context, id uuid.UUID, target Status, actorID uuid.UUID, reason *string) (*Appointment, error) {
	if !target.Valid() {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment

	err := s.locker.WithKeyLock(ctx, "appt:"+id.String(), func(lockCtx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return err
		}

		if !CanTransition(appt.Status, target) {
			return ErrInvalidTransition
		}

		if err := s.checkGuards(lockCtx, appt, target); err != nil {
			return err
		}

		updated, err = s.repo.Transition(lockCtx, id, appt.Status, target, actorID, reason)
		return err
	})
	if err != nil {
		s.metrics.ObserveTransition(string(target), "rejected")
		return nil, err
	}

	s.metrics.ObserveTransition(string(target), "ok")
	s.dispatchEvent(updated, reason)

	return updated, nil
}

func (s *Service) checkGuards(ctx context.Context, appt *Appointment, target Status) error {
	switch target {
	case StatusConfirmed:
		ok, err := s.ledger.HasDeposit(ctx, appt.ID)
		if err != nil {
			return fmt.Errorf("check deposit: %w", err)
		}
		if !ok {
			return ErrDepositNotRecorded
		}
	case StatusInProgress:
		if !schedule.NormalizeDate(appt.Date).Equal(schedule.NormalizeDate(s.clock())) {
			return ErrNotSameDay
		}
	case StatusCompleted:
		balance, err := s.ledger.RemainingBalance(ctx, appt.ID)
		if err != nil {
			return fmt.Errorf("check balance: %w", err)
		}
		if balance != 0 {
			return ErrBalanceNotSettled
		}
	}
	return nil
}

// dispatchEvent notifies downstream channels about confirmed and
// cancelled appointments. Failures are logged and dropped: notification
// must never undo a committed transition.
func (s *Service) dispatchEvent(appt *Appointment, reason *string) {
	var eventType string
	switch appt.Status {
	case StatusConfirmed:
		eventType = notify.EventAppointmentConfirmed
	case StatusCancelled:
		eventType = notify.EventAppointmentCancelled
	default:
		return
	}

	ev := notify.Event{
		Type:          eventType,
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Date:          appt.Date.Format(schedule.DateLayout),
		Time:          appt.Start.String(),
		Status:        string(appt.Status),
		Reason:        reason,
		OccurredAt:    s.clock(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.notifier.Publish(ctx, ev); err != nil {
			s.log.Warn("appointment event publish failed",
				zap.String("type", ev.Type),
				zap.String("appointment_id", ev.AppointmentID.String()),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.repo.GetAppointmentByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Attention is the derived front-desk view: late, due-now, open-balance
// and deposit-paid-but-unconfirmed appointments for a date.
func (s *Service) Attention(ctx context.Context, date time.Time) ([]AttentionItem, error) {
	items, err := s.repo.ListAttention(ctx, date, s.clock())
	if err != nil {
		return nil, fmt.Errorf("list attention: %w", err)
	}
	return items, nil
}
