package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/booking"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/ledger"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
	"github.com/clinovia/clinic-scheduling/internal/storage"
)

type stubFlow struct {
	receipt    *booking.HoldReceipt
	startErr   error
	appt       *appointment.Appointment
	redeemErr  error
	consentErr error
}

func (s *stubFlow) StartBooking(context.Context, booking.IntakeInput) (*booking.HoldReceipt, error) {
	return s.receipt, s.startErr
}

func (s *stubFlow) Abandon(context.Context, string) error { return nil }

func (s *stubFlow) SubmitProof(context.Context, booking.ProofInput) (*appointment.Appointment, error) {
	return s.appt, s.redeemErr
}

func (s *stubFlow) AttachConsent(context.Context, uuid.UUID, string) error { return s.consentErr }

type stubAvailability struct {
	slots []schedule.TimeOfDay
	err   error
}

func (s *stubAvailability) SlotsFor(context.Context, uuid.UUID, uuid.UUID, time.Time) ([]schedule.TimeOfDay, error) {
	return s.slots, s.err
}

type stubAppointments struct {
	appt      *appointment.Appointment
	changeErr error
	history   []appointment.HistoryEntry
	attention []appointment.AttentionItem
	lastActor uuid.UUID
}

func (s *stubAppointments) ChangeState(_ context.Context, _ uuid.UUID, _ appointment.Status, actorID uuid.UUID, _ *string) (*appointment.Appointment, error) {
	s.lastActor = actorID
	return s.appt, s.changeErr
}

func (s *stubAppointments) Get(context.Context, uuid.UUID) (*appointment.Appointment, error) {
	if s.appt == nil {
		return nil, appointment.ErrAppointmentNotFound
	}
	return s.appt, nil
}

func (s *stubAppointments) History(context.Context, uuid.UUID) ([]appointment.HistoryEntry, error) {
	return s.history, nil
}

func (s *stubAppointments) Attention(context.Context, time.Time) ([]appointment.AttentionItem, error) {
	return s.attention, nil
}

type stubLedger struct {
	ledger *ledger.Ledger
	payErr error
}

func (s *stubLedger) RecordBalancePayment(context.Context, uuid.UUID, int64, string, *string, uuid.UUID) (*ledger.Ledger, error) {
	return s.ledger, s.payErr
}

func (s *stubLedger) Get(context.Context, uuid.UUID) (*ledger.Ledger, error) {
	if s.ledger == nil {
		return nil, ledger.ErrLedgerNotFound
	}
	return s.ledger, nil
}

type stubBlockedDates struct {
	dates    []schedule.BlockedDate
	lastFrom time.Time
	lastTo   time.Time
}

func (s *stubBlockedDates) ListBlockedBetween(_ context.Context, from, to time.Time) ([]schedule.BlockedDate, error) {
	s.lastFrom = from
	s.lastTo = to
	return s.dates, nil
}

func testAppointment() *appointment.Appointment {
	return &appointment.Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		ServiceID: uuid.New(),
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Start:     540,
		Status:    appointment.StatusPending,
	}
}

func newTestRouter(flow *stubFlow, avail *stubAvailability, appts *stubAppointments, led *stubLedger) http.Handler {
	return NewRouter(RouterConfig{
		Booking:      flow,
		Availability: avail,
		Appointments: appts,
		Ledger:       led,
		BlockedDates: &stubBlockedDates{},
		Artifacts:    storage.Disabled{},
		Log:          zap.NewNop(),
		Env:          "test",
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAvailabilityEndpoint(t *testing.T) {
	avail := &stubAvailability{slots: []schedule.TimeOfDay{540, 570}}
	h := newTestRouter(&stubFlow{}, avail, &stubAppointments{}, &stubLedger{})

	path := "/availability?doctor_id=" + uuid.New().String() +
		"&service_id=" + uuid.New().String() + "&date=2024-06-01"
	rec := doJSON(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"09:00", "09:30"}, resp.Slots)

	rec = doJSON(t, h, http.MethodGet, "/availability?doctor_id=nope", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateHoldEndpoint(t *testing.T) {
	flow := &stubFlow{receipt: &booking.HoldReceipt{
		Token:        "tok",
		ExpiresAt:    time.Now().Add(hold.TTL),
		PaymentRef:   "PAY-ABCD1234",
		TotalCents:   100_000,
		DepositCents: 50_000,
	}}
	h := newTestRouter(flow, &stubAvailability{}, &stubAppointments{}, &stubLedger{})

	rec := doJSON(t, h, http.MethodPost, "/holds", `{"patient_id":"x"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp HoldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PAY-ABCD1234", resp.PaymentRef)
	require.Equal(t, int64(50_000), resp.DepositCents)

	rec = doJSON(t, h, http.MethodPost, "/holds", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateHoldConflict(t *testing.T) {
	flow := &stubFlow{startErr: hold.ErrSlotHeld}
	h := newTestRouter(flow, &stubAvailability{}, &stubAppointments{}, &stubLedger{})

	rec := doJSON(t, h, http.MethodPost, "/holds", `{}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "slot_held", resp.Error)
}

func TestRedeemHoldNotFound(t *testing.T) {
	flow := &stubFlow{redeemErr: hold.ErrHoldNotFound}
	h := newTestRouter(flow, &stubAvailability{}, &stubAppointments{}, &stubLedger{})

	rec := doJSON(t, h, http.MethodPost, "/holds/tok/redeem", `{}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedeemHoldCreatesAppointment(t *testing.T) {
	flow := &stubFlow{appt: testAppointment()}
	h := newTestRouter(flow, &stubAvailability{}, &stubAppointments{}, &stubLedger{})

	rec := doJSON(t, h, http.MethodPost, "/holds/tok/redeem", `{"method":"transfer"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "pending", resp.Status)
	require.Equal(t, "09:00", resp.Time)
}

func TestAttachConsentEndpoint(t *testing.T) {
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, &stubAppointments{}, &stubLedger{})
	id := uuid.New().String()

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+id+"/consent", `{"consent_ref":"consents/x.pdf"}`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+id+"/consent", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadWithoutStore(t *testing.T) {
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, &stubAppointments{}, &stubLedger{})

	rec := doJSON(t, h, http.MethodPost, "/uploads", "", nil)
	// No multipart body at all.
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffRoutesRequireStaffID(t *testing.T) {
	appts := &stubAppointments{appt: testAppointment()}
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, appts, &stubLedger{})
	id := appts.appt.ID.String()

	rec := doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"confirmed"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"confirmed"}`,
		map[string]string{StaffIDHeader: "not-a-uuid"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangeStateEndpoint(t *testing.T) {
	staff := uuid.New()
	appts := &stubAppointments{appt: testAppointment()}
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, appts, &stubLedger{})
	id := appts.appt.ID.String()
	hdr := map[string]string{StaffIDHeader: staff.String()}

	rec := doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"confirmed"}`, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, staff, appts.lastActor)

	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"archived"}`, hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	appts.changeErr = appointment.ErrInvalidTransition
	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"completed"}`, hdr)
	require.Equal(t, http.StatusConflict, rec.Code)

	appts.changeErr = appointment.ErrBalanceNotSettled
	rec = doJSON(t, h, http.MethodPatch, "/appointments/"+id+"/state", `{"target":"completed"}`, hdr)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestBalancePaymentEndpoint(t *testing.T) {
	led := &stubLedger{ledger: &ledger.Ledger{
		AppointmentID: uuid.New(),
		TotalCents:    100_000,
		DepositCents:  50_000,
		DepositMethod: "transfer",
	}}
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, &stubAppointments{appt: testAppointment()}, led)
	id := uuid.New().String()
	hdr := map[string]string{StaffIDHeader: uuid.New().String()}

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+id+"/balance-payments", `{"amount_cents":50000,"method":"cash"}`, hdr)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp LedgerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(50_000), resp.RemainingCents)

	led.payErr = ledger.ErrOverpayment
	rec = doJSON(t, h, http.MethodPost, "/appointments/"+id+"/balance-payments", `{"amount_cents":90000,"method":"cash"}`, hdr)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetAppointmentIncludesLedger(t *testing.T) {
	appts := &stubAppointments{appt: testAppointment()}
	led := &stubLedger{ledger: &ledger.Ledger{
		AppointmentID: appts.appt.ID,
		TotalCents:    100_000,
		DepositCents:  50_000,
	}}
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, appts, led)
	hdr := map[string]string{StaffIDHeader: uuid.New().String()}

	rec := doJSON(t, h, http.MethodGet, "/appointments/"+appts.appt.ID.String(), "", hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"remaining_cents":50000`)

	rec = doJSON(t, h, http.MethodGet, "/appointments/"+uuid.New().String()+"/history", "", hdr)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAttentionEndpoint(t *testing.T) {
	appt := testAppointment()
	appt.Status = appointment.StatusConfirmed
	appts := &stubAppointments{
		appt: appt,
		attention: []appointment.AttentionItem{
			{Appointment: *appt, Kind: appointment.AttentionLate},
		},
	}
	h := newTestRouter(&stubFlow{}, &stubAvailability{}, appts, &stubLedger{})
	hdr := map[string]string{StaffIDHeader: uuid.New().String()}

	rec := doJSON(t, h, http.MethodGet, "/appointments/attention", "", hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"late"`)

	rec = doJSON(t, h, http.MethodGet, "/appointments/attention?date=junk", "", hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockedDatesEndpoint(t *testing.T) {
	reason := "clinic closed"
	src := &stubBlockedDates{dates: []schedule.BlockedDate{
		{Date: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), Reason: &reason},
	}}
	h := NewRouter(RouterConfig{
		Booking:      &stubFlow{},
		Availability: &stubAvailability{},
		Appointments: &stubAppointments{},
		Ledger:       &stubLedger{},
		BlockedDates: src,
		Artifacts:    storage.Disabled{},
		Log:          zap.NewNop(),
		Env:          "test",
	})
	hdr := map[string]string{StaffIDHeader: uuid.New().String()}

	rec := doJSON(t, h, http.MethodGet, "/blocked-dates?from=2024-06-01&to=2024-07-01", "", hdr)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []BlockedDateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "2024-06-14", resp[0].Date)
	require.Equal(t, &reason, resp[0].Reason)
	require.True(t, src.lastFrom.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, src.lastTo.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))

	rec = doJSON(t, h, http.MethodGet, "/blocked-dates?from=junk", "", hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Staff-only: no actor header, no listing.
	rec = doJSON(t, h, http.MethodGet, "/blocked-dates", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
