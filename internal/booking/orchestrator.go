package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/ledger"
	"github.com/clinovia/clinic-scheduling/internal/metrics"
	redisclient "github.com/clinovia/clinic-scheduling/internal/redis"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

var (
	ErrSlotUnavailable     = errors.New("requested slot is not available")
	ErrIncompatibleService = errors.New("doctor does not perform this service")
)

// ScheduleSource is the roster slice the orchestrator reads.
type ScheduleSource interface {
	GetServiceByID(ctx context.Context, id uuid.UUID) (*schedule.Service, error)
	DoctorPerformsService(ctx context.Context, doctorID, serviceID uuid.UUID) (bool, error)
}

// AppointmentStore is the slice of the appointment repository the public
// flow touches.
type AppointmentStore interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*appointment.Appointment, error)
	Create(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error)
	SetConsentRef(ctx context.Context, id uuid.UUID, ref string) error
}

// SlotLister computes free slots; implemented by the availability service.
type SlotLister interface {
	SlotsFor(ctx context.Context, doctorID, serviceID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)
}

// DepositRecorder opens the payment ledger; implemented by the ledger
// service.
type DepositRecorder interface {
	RecordDeposit(ctx context.Context, appointmentID uuid.UUID, totalCents, depositCents int64, method string, proofRef *string) (*ledger.Ledger, error)
}

// Orchestrator drives the four-step public booking flow: intake issues a
// hold, confirm is display-only, proof upload redeems the hold into a
// pending appointment plus deposit, consent attaches the signature.
type Orchestrator struct {
	sched    ScheduleSource
	appts    AppointmentStore
	holds    hold.Manager
	deposits DepositRecorder
	slots    SlotLister
	locker   redisclient.Locker
	validate *validator.Validate
	metrics  *metrics.EngineMetrics
	log      *zap.Logger
}

func NewOrchestrator(
	sched ScheduleSource,
	appts AppointmentStore,
	holds hold.Manager,
	deposits DepositRecorder,
	slots SlotLister,
	locker redisclient.Locker,
	m *metrics.EngineMetrics,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sched:    sched,
		appts:    appts,
		holds:    holds,
		deposits: deposits,
		slots:    slots,
		locker:   locker,
		validate: validator.New(),
		metrics:  m,
		log:      log,
	}
}

// IntakeInput is the step-1 form. Raw strings so validation errors carry
// field names back to the client.
type IntakeInput struct {
	PatientID string `validate:"required,uuid4"`
	DoctorID  string `validate:"required,uuid4"`
	ServiceID string `validate:"required,uuid4"`
	Date      string `validate:"required,datetime=2006-01-02"`
	Time      string `validate:"required,datetime=15:04"`
}

// HoldReceipt is handed back to the client after intake: the token rules
// the rest of the flow, the payment reference goes on the bank transfer.
type HoldReceipt struct {
	Token        string
	ExpiresAt    time.Time
	PaymentRef   string
	TotalCents   int64
	DepositCents int64
}

// PaymentRef derives the human-readable transfer reference from a hold
// token.
func PaymentRef(token string) string {
	clean := strings.ToUpper(strings.ReplaceAll(token, "-", ""))
	if len(clean) > 8 {
		clean = clean[:8]
	}
	return "PAY-" + clean
}

// StartBooking validates intake, re-checks the requested slot is still
// offered, then takes the hold inside the per-slot critical section. Of
// two concurrent calls for the same tuple exactly one wins.
func (o *Orchestrator) StartBooking(ctx context.Context, in IntakeInput) (*HoldReceipt, error) {
	if err := o.validate.Struct(in); err != nil {
		return nil, err
	}

	patientID, _ := uuid.Parse(in.PatientID)
	doctorID, _ := uuid.Parse(in.DoctorID)
	serviceID, _ := uuid.Parse(in.ServiceID)

	date, err := schedule.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	start, err := schedule.ParseTimeOfDay(in.Time)
	if err != nil {
		return nil, err
	}

	if _, err := o.appts.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := o.appts.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	svc, err := o.sched.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	performs, err := o.sched.DoctorPerformsService(ctx, doctorID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("check doctor service: %w", err)
	}
	if !performs {
		return nil, ErrIncompatibleService
	}

	offered, err := o.slots.SlotsFor(ctx, doctorID, serviceID, date)
	if err != nil {
		return nil, err
	}
	if !containsSlot(offered, start) {
		o.metrics.ObserveHold("unavailable")
		return nil, ErrSlotUnavailable
	}

	var created *hold.Hold

	err = o.locker.WithKeyLock(ctx, hold.SlotKey(doctorID, date, start), func(lockCtx context.Context) error {
		// Inside the critical section re-check the persistent layer: an
		// appointment may have landed since the slot list was computed.
		existing, err := o.appts.FindActiveForSlot(lockCtx, doctorID, date, start)
		if err != nil && !errors.Is(err, appointment.ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return appointment.ErrSlotTaken
		}

		created, err = o.holds.Create(lockCtx, hold.CreateInput{
			DoctorID:        doctorID,
			ServiceID:       serviceID,
			Date:            date,
			Start:           start,
			DurationMinutes: svc.DurationMinutes,
		})
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, hold.ErrSlotHeld), errors.Is(err, appointment.ErrSlotTaken), errors.Is(err, redisclient.ErrLockNotAcquired):
			o.metrics.ObserveHold("conflict")
		}
		return nil, err
	}

	o.metrics.ObserveHold("created")
	o.log.Info("slot hold created",
		zap.String("token", created.Token),
		zap.String("doctor_id", doctorID.String()),
		zap.String("date", in.Date),
		zap.String("time", in.Time),
	)

	return &HoldReceipt{
		Token:        created.Token,
		ExpiresAt:    created.ExpiresAt,
		PaymentRef:   PaymentRef(created.Token),
		TotalCents:   svc.PriceCents,
		DepositCents: svc.DepositCents(),
	}, nil
}

// Abandon releases the hold when the patient navigates back or leaves.
// Idempotent by design: a stale or already-expired token is fine.
func (o *Orchestrator) Abandon(ctx context.Context, token string) error {
	if err := o.holds.Release(ctx, token); err != nil {
		return err
	}
	o.metrics.ObserveRelease()
	return nil
}

// ProofInput is the step-3 submission: the uploaded payment proof plus
// the hold token being redeemed.
type ProofInput struct {
	Token     string `validate:"required"`
	PatientID string `validate:"required,uuid4"`
	ProofRef  string `validate:"required"`
	Method    string `validate:"required,oneof=transfer cash card"`
}

// SubmitProof redeems the hold and converts it into a pending appointment
// with its deposit ledger. One-shot: if the hold expired or was already
// consumed the caller restarts slot selection, there is no retry here.
func (o *Orchestrator) SubmitProof(ctx context.Context, in ProofInput) (*appointment.Appointment, error) {
	if err := o.validate.Struct(in); err != nil {
		return nil, err
	}

	patientID, _ := uuid.Parse(in.PatientID)

	if _, err := o.appts.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	h, err := o.holds.Redeem(ctx, in.Token)
	if err != nil {
		if errors.Is(err, hold.ErrHoldNotFound) {
			o.metrics.ObserveRedeem("not_found")
		}
		return nil, err
	}
	o.metrics.ObserveRedeem("ok")

	svc, err := o.sched.GetServiceByID(ctx, h.ServiceID)
	if err != nil {
		return nil, err
	}

	appt, err := o.appts.Create(ctx, &appointment.Appointment{
		PatientID: patientID,
		DoctorID:  h.DoctorID,
		ServiceID: h.ServiceID,
		Date:      h.Date,
		Start:     h.Start,
		Status:    appointment.StatusPending,
	})
	if err != nil {
		// The hold is gone either way; the client must pick a new slot.
		o.metrics.ObserveBooking("failed")
		o.log.Error("appointment create after redeem failed",
			zap.String("token", in.Token),
			zap.Error(err),
		)
		return nil, err
	}

	proofRef := in.ProofRef
	if _, err := o.deposits.RecordDeposit(ctx, appt.ID, svc.PriceCents, svc.DepositCents(), in.Method, &proofRef); err != nil {
		o.metrics.ObserveBooking("failed")
		return nil, fmt.Errorf("record deposit: %w", err)
	}

	o.metrics.ObserveBooking("ok")
	o.log.Info("booking completed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("patient_id", patientID.String()),
	)

	return appt, nil
}

// AttachConsent stores the step-4 signature artifact reference. No engine
// state changes.
func (o *Orchestrator) AttachConsent(ctx context.Context, appointmentID uuid.UUID, consentRef string) error {
	if consentRef == "" {
		return errors.New("consent ref is required")
	}
	return o.appts.SetConsentRef(ctx, appointmentID, consentRef)
}

func containsSlot(slots []schedule.TimeOfDay, t schedule.TimeOfDay) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}
