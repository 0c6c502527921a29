package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/booking"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/ledger"
	redisclient "github.com/clinovia/clinic-scheduling/internal/redis"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
	"github.com/clinovia/clinic-scheduling/internal/storage"
)

// BookingFlow is the public four-step flow.
type BookingFlow interface {
	StartBooking(ctx context.Context, in booking.IntakeInput) (*booking.HoldReceipt, error)
	Abandon(ctx context.Context, token string) error
	SubmitProof(ctx context.Context, in booking.ProofInput) (*appointment.Appointment, error)
	AttachConsent(ctx context.Context, appointmentID uuid.UUID, consentRef string) error
}

// AvailabilityService computes free slots.
type AvailabilityService interface {
	SlotsFor(ctx context.Context, doctorID, serviceID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)
}

// AppointmentService is the staff-facing lifecycle surface.
type AppointmentService interface {
	ChangeState(ctx context.Context, id uuid.UUID, target appointment.Status, actorID uuid.UUID, reason *string) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	History(ctx context.Context, id uuid.UUID) ([]appointment.HistoryEntry, error)
	Attention(ctx context.Context, date time.Time) ([]appointment.AttentionItem, error)
}

// LedgerService records balance payments and reads ledgers.
type LedgerService interface {
	RecordBalancePayment(ctx context.Context, appointmentID uuid.UUID, amountCents int64, method string, proofRef *string, actorID uuid.UUID) (*ledger.Ledger, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (*ledger.Ledger, error)
}

// BlockedDateSource lists clinic-wide closures for the staff calendar.
type BlockedDateSource interface {
	ListBlockedBetween(ctx context.Context, from, to time.Time) ([]schedule.BlockedDate, error)
}

func availabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorID, err := uuid.Parse(q.Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(q.Get("service_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		date, err := schedule.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.SlotsFor(r.Context(), doctorID, serviceID, date)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		out := make([]string, 0, len(slots))
		for _, s := range slots {
			out = append(out, s.String())
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:  doctorID,
			ServiceID: serviceID,
			Date:      date.Format(schedule.DateLayout),
			Slots:     out,
		})
	}
}

func createHoldHandler(flow BookingFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateHoldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		receipt, err := flow.StartBooking(r.Context(), booking.IntakeInput{
			PatientID: req.PatientID,
			DoctorID:  req.DoctorID,
			ServiceID: req.ServiceID,
			Date:      req.Date,
			Time:      req.Time,
		})
		if err != nil {
			mapDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, HoldResponse{
			Token:        receipt.Token,
			ExpiresAt:    receipt.ExpiresAt,
			PaymentRef:   receipt.PaymentRef,
			TotalCents:   receipt.TotalCents,
			DepositCents: receipt.DepositCents,
		})
	}
}

func releaseHoldHandler(flow BookingFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")
		if err := flow.Abandon(r.Context(), token); err != nil {
			mapDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func redeemHoldHandler(flow BookingFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RedeemHoldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := flow.SubmitProof(r.Context(), booking.ProofInput{
			Token:     chi.URLParam(r, "token"),
			PatientID: req.PatientID,
			ProofRef:  req.ProofRef,
			Method:    req.Method,
		})
		if err != nil {
			mapDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func attachConsentHandler(flow BookingFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ConsentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ConsentRef == "" {
			writeError(w, http.StatusBadRequest, "missing_consent_ref", "consent_ref is required")
			return
		}

		if err := flow.AttachConsent(r.Context(), id, req.ConsentRef); err != nil {
			mapDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// uploadMaxBytes caps proof and consent uploads.
const uploadMaxBytes = 10 << 20

func uploadHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, uploadMaxBytes)
		if err := r.ParseMultipartForm(uploadMaxBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_upload", "could not parse multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file", "file field is required")
			return
		}
		defer file.Close()

		key := fmt.Sprintf("artifacts/%s%s", uuid.New(), filepath.Ext(header.Filename))
		ref, err := store.Put(r.Context(), key, file, header.Size, header.Header.Get("Content-Type"))
		if err != nil {
			if errors.Is(err, storage.ErrNoStore) {
				writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "artifact storage is not configured")
				return
			}
			writeError(w, http.StatusInternalServerError, "upload_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, UploadResponse{Ref: ref})
	}
}

func changeStateHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ChangeStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		target := appointment.Status(req.Target)
		if !target.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_target_state", "target must be a known appointment status")
			return
		}

		appt, err := svc.ChangeState(r.Context(), id, target, GetStaffID(r.Context()), req.Reason)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, led LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		resp := struct {
			AppointmentResponse
			Ledger *LedgerResponse `json:"ledger,omitempty"`
		}{AppointmentResponse: toAppointmentResponse(appt)}

		if l, err := led.Get(r.Context(), id); err == nil {
			lr := toLedgerResponse(l)
			resp.Ledger = &lr
		} else if !errors.Is(err, ledger.ErrLedgerNotFound) {
			mapDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func historyHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		entries, err := svc.History(r.Context(), id)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		out := make([]HistoryEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, HistoryEntryResponse{
				PreviousState: string(e.PreviousState),
				NewState:      string(e.NewState),
				ChangedBy:     e.ChangedBy,
				Reason:        e.Reason,
				CreatedAt:     e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func attentionHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := time.Now().UTC()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := schedule.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = parsed
		}

		items, err := svc.Attention(r.Context(), date)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		out := make([]AttentionItemResponse, 0, len(items))
		for _, item := range items {
			a := item.Appointment
			out = append(out, AttentionItemResponse{
				Appointment: toAppointmentResponse(&a),
				Kind:        string(item.Kind),
				BalanceDue:  item.BalanceDue,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func blockedDatesHandler(src BlockedDateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Default window: the coming month.
		from := schedule.NormalizeDate(time.Now().UTC())
		to := from.AddDate(0, 1, 0)

		q := r.URL.Query()
		if raw := q.Get("from"); raw != "" {
			parsed, err := schedule.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			from = parsed
		}
		if raw := q.Get("to"); raw != "" {
			parsed, err := schedule.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			to = parsed
		}

		dates, err := src.ListBlockedBetween(r.Context(), from, to)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		out := make([]BlockedDateResponse, 0, len(dates))
		for _, d := range dates {
			out = append(out, BlockedDateResponse{
				Date:   d.Date.Format(schedule.DateLayout),
				Reason: d.Reason,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func balancePaymentHandler(led LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req BalancePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		l, err := led.RecordBalancePayment(r.Context(), id, req.AmountCents, req.Method, req.ProofRef, GetStaffID(r.Context()))
		if err != nil {
			mapDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toLedgerResponse(l))
	}
}

// mapDomainError translates engine errors into HTTP statuses: conflicts
// and guard rejections are 409, overpayment is 422, unknown entities are
// 404, bad input is 400.
func mapDomainError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors

	switch {
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, "validation_failed", verrs.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, hold.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, "hold_not_found", "hold expired or already used, restart slot selection")
	case errors.Is(err, ledger.ErrLedgerNotFound):
		writeError(w, http.StatusNotFound, "ledger_not_found", err.Error())
	case errors.Is(err, hold.ErrSlotHeld):
		writeError(w, http.StatusConflict, "slot_held", "slot is currently held by another patient")
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot already has an active appointment")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_contended", "slot is being booked, please retry shortly")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrDepositNotRecorded):
		writeError(w, http.StatusConflict, "deposit_not_recorded", err.Error())
	case errors.Is(err, appointment.ErrNotSameDay):
		writeError(w, http.StatusConflict, "not_same_day", err.Error())
	case errors.Is(err, appointment.ErrBalanceNotSettled):
		writeError(w, http.StatusConflict, "balance_not_settled", err.Error())
	case errors.Is(err, ledger.ErrAlreadyRecorded):
		writeError(w, http.StatusConflict, "deposit_already_recorded", err.Error())
	case errors.Is(err, ledger.ErrOverpayment):
		writeError(w, http.StatusUnprocessableEntity, "overpayment_rejected", err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, booking.ErrIncompatibleService):
		writeError(w, http.StatusBadRequest, "incompatible_service", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
