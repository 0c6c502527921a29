package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TimeOfDay is minutes since midnight. Slot arithmetic stays in integer
// minutes so interval overlap checks never touch time zones.
type TimeOfDay int

// ParseTimeOfDay parses "15:04".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// At anchors the time of day on the given calendar date.
func (t TimeOfDay) At(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

// NormalizeDate truncates to midnight UTC so dates compare by calendar day.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Service is a bookable medical service. Duration drives slot width,
// price and deposit percent drive the payment ledger.
type Service struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	PriceCents      int64
	DepositPercent  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DepositCents is the amount due at booking time.
func (s Service) DepositCents() int64 {
	return s.PriceCents * int64(s.DepositPercent) / 100
}

// WorkingWindow is one [Start,End) range of a doctor's weekly roster.
type WorkingWindow struct {
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

// BlockedDate closes the whole clinic for a calendar day.
type BlockedDate struct {
	Date   time.Time
	Reason *string
}
