package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinovia/clinic-scheduling/internal/appointment"
	"github.com/clinovia/clinic-scheduling/internal/hold"
	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

type fakeSchedule struct {
	service *schedule.Service
	windows []schedule.WorkingWindow
	blocked map[string]bool
}

func (f *fakeSchedule) GetServiceByID(_ context.Context, id uuid.UUID) (*schedule.Service, error) {
	if f.service == nil || f.service.ID != id {
		return nil, schedule.ErrServiceNotFound
	}
	return f.service, nil
}

func (f *fakeSchedule) WindowsFor(_ context.Context, _ uuid.UUID, weekday time.Weekday) ([]schedule.WorkingWindow, error) {
	var out []schedule.WorkingWindow
	for _, w := range f.windows {
		if w.Weekday == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeSchedule) IsBlocked(_ context.Context, date time.Time) (bool, error) {
	return f.blocked[schedule.NormalizeDate(date).Format(schedule.DateLayout)], nil
}

type fakeBooked struct {
	booked []appointment.Booked
}

func (f *fakeBooked) ListActiveForDoctorDay(context.Context, uuid.UUID, time.Time) ([]appointment.Booked, error) {
	return f.booked, nil
}

type fakeHolds struct {
	holds []hold.Hold
}

func (f *fakeHolds) ActiveForDoctorDay(context.Context, uuid.UUID, time.Time) ([]hold.Hold, error) {
	return f.holds, nil
}

func tod(t *testing.T, s string) schedule.TimeOfDay {
	t.Helper()
	v, err := schedule.ParseTimeOfDay(s)
	require.NoError(t, err)
	return v
}

// 2024-06-01 is a Saturday.
var saturday = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestService(sched *fakeSchedule, booked *fakeBooked, holds *fakeHolds) *Service {
	svc := NewService(sched, booked, holds, zap.NewNop())
	// A fixed "now" well before the test date.
	return svc.WithClock(func() time.Time {
		return time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	})
}

func testFixture(t *testing.T) (*fakeSchedule, *fakeBooked, *fakeHolds, uuid.UUID, uuid.UUID) {
	t.Helper()
	serviceID := uuid.New()
	doctorID := uuid.New()

	sched := &fakeSchedule{
		service: &schedule.Service{ID: serviceID, DurationMinutes: 30},
		windows: []schedule.WorkingWindow{
			{Weekday: time.Saturday, Start: tod(t, "09:00"), End: tod(t, "10:00")},
		},
		blocked: map[string]bool{},
	}
	return sched, &fakeBooked{}, &fakeHolds{}, doctorID, serviceID
}

func TestSlotsForFreeDay(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	svc := newTestService(sched, booked, holds)

	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday)
	require.NoError(t, err)
	require.Equal(t, []schedule.TimeOfDay{tod(t, "09:00"), tod(t, "09:30")}, got)
}

func TestSlotsForExcludesBookedAndHeld(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	booked.booked = []appointment.Booked{{Start: tod(t, "09:00"), DurationMinutes: 30}}
	svc := newTestService(sched, booked, holds)

	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday)
	require.NoError(t, err)
	require.Equal(t, []schedule.TimeOfDay{tod(t, "09:30")}, got)

	holds.holds = []hold.Hold{{Start: tod(t, "09:30"), DurationMinutes: 30}}
	got, err = svc.SlotsFor(context.Background(), doctorID, serviceID, saturday)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSlotsForBlockedDate(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	sched.blocked["2024-06-01"] = true
	svc := newTestService(sched, booked, holds)

	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSlotsForPastDate(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	svc := newTestService(sched, booked, holds)

	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSlotsForTodayDropsElapsed(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	svc := NewService(sched, booked, holds, zap.NewNop()).WithClock(func() time.Time {
		// 09:10 on the requested date itself.
		return time.Date(2024, 6, 1, 9, 10, 0, 0, time.UTC)
	})

	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday)
	require.NoError(t, err)
	require.Equal(t, []schedule.TimeOfDay{tod(t, "09:30")}, got)
}

func TestSlotsForNoWindows(t *testing.T) {
	sched, booked, holds, doctorID, serviceID := testFixture(t)
	svc := newTestService(sched, booked, holds)

	// Sunday: the roster only covers Saturday.
	got, err := svc.SlotsFor(context.Background(), doctorID, serviceID, saturday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSlotsForUnknownService(t *testing.T) {
	sched, booked, holds, doctorID, _ := testFixture(t)
	svc := newTestService(sched, booked, holds)

	_, err := svc.SlotsFor(context.Background(), doctorID, uuid.New(), saturday)
	require.ErrorIs(t, err, schedule.ErrServiceNotFound)
}
