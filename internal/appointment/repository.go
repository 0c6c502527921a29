package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the service and the
// booking orchestrator.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks: the non-terminal appointment occupying a slot
	// tuple, if any.
	FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) (*Appointment, error)

	// For slot computation: occupied intervals of all non-terminal
	// appointments of a doctor on a date, with their service durations.
	ListActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booked, error)

	// Create inserts the appointment; ErrSlotTaken if a non-terminal row
	// already occupies the slot tuple.
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// Transition updates the status and appends the history row in one
	// transaction. ErrInvalidTransition if the row's status is no longer
	// `from` by the time the update runs.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, actorID uuid.UUID, reason *string) (*Appointment, error)

	ListHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error)

	SetConsentRef(ctx context.Context, id uuid.UUID, ref string) error

	// ListAttention is the derived front-desk view for a date.
	ListAttention(ctx context.Context, date time.Time, now time.Time) ([]AttentionItem, error)
}
