package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/ledger"
)

type AvailabilityResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	ServiceID uuid.UUID `json:"service_id"`
	Date      string    `json:"date"`
	Slots     []string  `json:"slots"`
}

type CreateHoldRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type HoldResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	PaymentRef   string    `json:"payment_ref"`
	TotalCents   int64     `json:"total_cents"`
	DepositCents int64     `json:"deposit_cents"`
}

type RedeemHoldRequest struct {
	PatientID string `json:"patient_id"`
	ProofRef  string `json:"proof_ref"`
	Method    string `json:"method"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Status     string    `json:"status"`
	ConsentRef *string   `json:"consent_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		DoctorID:   a.DoctorID,
		ServiceID:  a.ServiceID,
		Date:       a.Date.Format("2006-01-02"),
		Time:       a.Start.String(),
		Status:     string(a.Status),
		ConsentRef: a.ConsentRef,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

type ChangeStateRequest struct {
	Target string  `json:"target"`
	Reason *string `json:"reason,omitempty"`
}

type HistoryEntryResponse struct {
	PreviousState string    `json:"previous_state"`
	NewState      string    `json:"new_state"`
	ChangedBy     uuid.UUID `json:"changed_by"`
	Reason        *string   `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type AttentionItemResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Kind        string              `json:"kind"`
	BalanceDue  int64               `json:"balance_due_cents"`
}

type ConsentRequest struct {
	ConsentRef string `json:"consent_ref"`
}

type BalancePaymentRequest struct {
	AmountCents int64   `json:"amount_cents"`
	Method      string  `json:"method"`
	ProofRef    *string `json:"proof_ref,omitempty"`
}

type LedgerResponse struct {
	AppointmentID  uuid.UUID `json:"appointment_id"`
	TotalCents     int64     `json:"total_cents"`
	DepositCents   int64     `json:"deposit_cents"`
	DepositMethod  string    `json:"deposit_method"`
	PaidCents      int64     `json:"paid_cents"`
	RemainingCents int64     `json:"remaining_cents"`
}

func toLedgerResponse(l *ledger.Ledger) LedgerResponse {
	var paid int64
	for _, p := range l.Payments {
		paid += p.AmountCents
	}
	return LedgerResponse{
		AppointmentID:  l.AppointmentID,
		TotalCents:     l.TotalCents,
		DepositCents:   l.DepositCents,
		DepositMethod:  l.DepositMethod,
		PaidCents:      l.DepositCents + paid,
		RemainingCents: l.RemainingCents(),
	}
}

type UploadResponse struct {
	Ref string `json:"ref"`
}

type BlockedDateResponse struct {
	Date   string  `json:"date"`
	Reason *string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
