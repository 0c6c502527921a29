package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

// Event is the payload handed to the notification channel after a state
// transition. Fire-and-forget: a publish failure never rolls back the
// transition that produced it.
type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	Reason        *string   `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. Used when no AMQP broker is configured and in
// tests.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
