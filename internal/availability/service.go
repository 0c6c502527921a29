package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

// ScheduleSource is the roster slice slot computation reads.
type ScheduleSource interface {
	GetServiceByID(ctx context.Context, id uuid.UUID) (*schedule.Service, error)
	WindowsFor(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]schedule.WorkingWindow, error)
	IsBlocked(ctx context.Context, date time.Time) (bool, error)
}

// BookedSource lists occupied intervals of non-terminal appointments.
type BookedSource interface {
	ListActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Booked, error)
}

// HoldSource lists unexpired holds.
type HoldSource interface {
	ActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]hold.Hold, error)
}

// Service assembles the inputs of ComputeSlots: roster windows, blocked
// dates, non-terminal appointments and unexpired holds. Read-only over
// all of them.
type Service struct {
	sched ScheduleSource
	appts BookedSource
	holds HoldSource
	log   *zap.Logger
	clock func() time.Time
}

func NewService(sched ScheduleSource, appts BookedSource, holds HoldSource, log *zap.Logger) *Service {
	return &Service{
		sched: sched,
		appts: appts,
		holds: holds,
		log:   log,
		clock: time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// SlotsFor returns the free slot start times for a doctor/service pair on
// a date, ascending. Past dates and blocked dates yield an empty list;
// for today, already-elapsed starts are dropped against the server clock.
func (s *Service) SlotsFor(ctx context.Context, doctorID, serviceID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	day := schedule.NormalizeDate(date)
	now := s.clock()
	today := schedule.NormalizeDate(now)

	if day.Before(today) {
		return nil, nil
	}

	blocked, err := s.sched.IsBlocked(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("check blocked date: %w", err)
	}
	if blocked {
		return nil, nil
	}

	svc, err := s.sched.GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}

	windows, err := s.sched.WindowsFor(ctx, doctorID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load schedule windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	busy, err := s.busyIntervals(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}

	var notBefore schedule.TimeOfDay
	if day.Equal(today) {
		// The current minute counts as elapsed.
		notBefore = schedule.TimeOfDay(now.UTC().Hour()*60 + now.UTC().Minute() + 1)
	}

	return ComputeSlots(windows, busy, svc.DurationMinutes, notBefore), nil
}

func (s *Service) busyIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Interval, error) {
	booked, err := s.appts.ListActiveForDoctorDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	active, err := s.holds.ActiveForDoctorDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load active holds: %w", err)
	}

	busy := make([]Interval, 0, len(booked)+len(active))
	for _, b := range booked {
		busy = append(busy, Interval{Start: b.Start, End: b.Start + schedule.TimeOfDay(b.DurationMinutes)})
	}
	for _, h := range active {
		busy = append(busy, Interval{Start: h.Start, End: h.Start + schedule.TimeOfDay(h.DurationMinutes)})
	}

	return busy, nil
}
