package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the persisted booking. Cancellation is a terminal status,
// never a delete.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	ServiceID  uuid.UUID
	Date       time.Time
	Start      schedule.TimeOfDay
	Status     Status
	ConsentRef *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HistoryEntry is one row of the append-only transition log.
type HistoryEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	PreviousState Status
	NewState      Status
	ChangedBy     uuid.UUID
	Reason        *string
	CreatedAt     time.Time
}

// Booked is an occupied interval for slot computation: the appointment's
// start plus its service duration.
type Booked struct {
	Start           schedule.TimeOfDay
	DurationMinutes int
}

// AttentionKind classifies appointments the front desk should look at.
// Derived read-only view, no engine state behind it.
type AttentionKind string

const (
	AttentionLate        AttentionKind = "late"             // confirmed, start time passed, not started
	AttentionDueNow      AttentionKind = "due_now"          // confirmed, starting within the lead window
	AttentionAwaitingPay AttentionKind = "awaiting_payment" // in progress with an open balance
	AttentionUnconfirmed AttentionKind = "unconfirmed"      // pending with a recorded deposit
)

type AttentionItem struct {
	Appointment Appointment
	Kind        AttentionKind
	BalanceDue  int64
}
