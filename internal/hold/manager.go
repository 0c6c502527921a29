package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

// TTL is how long a hold reserves its slot. Deliberately a constant:
// no caller or deployment knob may extend a hold once issued.
const TTL = 10 * time.Minute

var (
	ErrSlotHeld     = errors.New("slot already held")
	ErrHoldNotFound = errors.New("hold not found")
)

// Hold is an ephemeral exclusive claim on a slot while a patient walks
// through checkout. At most one unexpired hold exists per slot tuple.
type Hold struct {
	Token           string
	DoctorID        uuid.UUID
	ServiceID       uuid.UUID
	Date            time.Time
	Start           schedule.TimeOfDay
	DurationMinutes int
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired evaluates the expiry predicate. Used at every point of access
// so a hold past its TTL is invisible whether or not a sweep has run.
func (h Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

type CreateInput struct {
	DoctorID        uuid.UUID
	ServiceID       uuid.UUID
	Date            time.Time
	Start           schedule.TimeOfDay
	DurationMinutes int
}

// SlotKey names the contended resource for a slot tuple. Shared between
// the hold store and the booking critical section lock.
func SlotKey(doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) string {
	return fmt.Sprintf("slot:%s:%s:%s", doctorID, date.Format(schedule.DateLayout), start)
}

// Manager owns all hold state. No other component mutates holds.
type Manager interface {
	// Create issues a hold token for the slot. Atomic per tuple: of two
	// concurrent calls for the same slot exactly one succeeds, the other
	// gets ErrSlotHeld.
	Create(ctx context.Context, in CreateInput) (*Hold, error)

	// Redeem consumes the hold and returns its data. Single-use: a second
	// redeem, an unknown token, or an expired hold all return ErrHoldNotFound.
	Redeem(ctx context.Context, token string) (*Hold, error)

	// Release drops a hold early. Idempotent: releasing an unknown or
	// already-gone token is not an error.
	Release(ctx context.Context, token string) error

	// ActiveForDoctorDay lists unexpired holds for one doctor and date.
	ActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Hold, error)

	// SweepExpired removes holds whose expiry has passed, returning the
	// number removed. Housekeeping only: correctness never depends on it.
	SweepExpired(ctx context.Context) (int, error)
}
