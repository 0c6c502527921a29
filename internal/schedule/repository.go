package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound = errors.New("service not found")
)

// Repository contains the read-mostly roster lookups needed by slot
// computation and booking intake.
type Repository interface {
	GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error)

	// WindowsFor returns a doctor's working windows for one weekday,
	// ordered by start time.
	WindowsFor(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WorkingWindow, error)

	// DoctorPerformsService reports membership in the doctor's service set.
	DoctorPerformsService(ctx context.Context, doctorID, serviceID uuid.UUID) (bool, error)

	IsBlocked(ctx context.Context, date time.Time) (bool, error)
	ListBlockedBetween(ctx context.Context, from, to time.Time) ([]BlockedDate, error)
}
