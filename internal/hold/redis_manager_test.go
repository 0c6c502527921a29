package hold

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

func newTestManager(t *testing.T) (*RedisManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisManager(client), mr
}

func testInput() CreateInput {
	return CreateInput{
		DoctorID:        uuid.New(),
		ServiceID:       uuid.New(),
		Date:            time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Start:           schedule.TimeOfDay(600), // 10:00
		DurationMinutes: 30,
	}
}

func TestCreateIssuesToken(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h, err := m.Create(ctx, testInput())
	require.NoError(t, err)
	require.NotEmpty(t, h.Token)
	require.Equal(t, h.CreatedAt.Add(TTL), h.ExpiresAt)
}

func TestCreateConflictOnSameSlot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	_, err := m.Create(ctx, in)
	require.NoError(t, err)

	_, err = m.Create(ctx, in)
	require.ErrorIs(t, err, ErrSlotHeld)
}

func TestCreateConcurrentExactlyOneWinner(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				wins++
			case ErrSlotHeld:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, callers-1, conflicts)
}

func TestCreateDifferentSlotsDoNotConflict(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	in := testInput()
	_, err := m.Create(ctx, in)
	require.NoError(t, err)

	in.Start = schedule.TimeOfDay(630)
	_, err = m.Create(ctx, in)
	require.NoError(t, err)
}

func TestRedeemIsSingleUse(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	h, err := m.Create(ctx, in)
	require.NoError(t, err)

	got, err := m.Redeem(ctx, h.Token)
	require.NoError(t, err)
	require.Equal(t, in.DoctorID, got.DoctorID)
	require.Equal(t, in.ServiceID, got.ServiceID)
	require.Equal(t, in.Start, got.Start)
	require.Equal(t, in.DurationMinutes, got.DurationMinutes)
	require.True(t, got.Date.Equal(in.Date))

	_, err = m.Redeem(ctx, h.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)

	// Slot is free again after consumption.
	_, err = m.Create(ctx, in)
	require.NoError(t, err)
}

func TestRedeemUnknownToken(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Redeem(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrHoldNotFound)
}

func TestRedeemAfterTTLWithoutSweep(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	h, err := m.Create(ctx, testInput())
	require.NoError(t, err)

	// Advance only the manager's clock: keys still present in redis, no
	// sweep has run, yet the expiry predicate must make the hold invisible.
	m.WithClock(func() time.Time { return h.ExpiresAt.Add(time.Second) })

	_, err = m.Redeem(ctx, h.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)
}

func TestExpiredHoldDoesNotBlockCreate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	h, err := m.Create(ctx, in)
	require.NoError(t, err)

	m.WithClock(func() time.Time { return h.ExpiresAt.Add(time.Second) })

	// Keys not yet evicted, but predicate-expired: next Create takes over.
	h2, err := m.Create(ctx, in)
	require.NoError(t, err)
	require.NotEqual(t, h.Token, h2.Token)
}

func TestCreateConcurrentTakeoverOfExpiredHold(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	h, err := m.Create(ctx, in)
	require.NoError(t, err)

	// Keys not yet evicted, but predicate-expired: every caller sees a
	// stale entry to reclaim, and still exactly one may win it.
	m.WithClock(func() time.Time { return h.ExpiresAt.Add(time.Second) })

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []*Hold
		conflicts int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Create(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				winners = append(winners, got)
			case ErrSlotHeld:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, callers-1, conflicts)

	// The winner's hold is intact and redeemable; the stale token is dead.
	got, err := m.Redeem(ctx, winners[0].Token)
	require.NoError(t, err)
	require.Equal(t, winners[0].Token, got.Token)

	_, err = m.Redeem(ctx, h.Token)
	require.ErrorIs(t, err, ErrHoldNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	in := testInput()

	h, err := m.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, h.Token))
	require.NoError(t, m.Release(ctx, h.Token))
	require.NoError(t, m.Release(ctx, uuid.NewString()))

	// Slot freed by the release.
	_, err = m.Create(ctx, in)
	require.NoError(t, err)
}

func TestActiveForDoctorDay(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	in := testInput()
	_, err := m.Create(ctx, in)
	require.NoError(t, err)

	later := in
	later.Start = schedule.TimeOfDay(660)
	_, err = m.Create(ctx, later)
	require.NoError(t, err)

	otherDoctor := testInput()
	otherDoctor.Date = in.Date
	_, err = m.Create(ctx, otherDoctor)
	require.NoError(t, err)

	holds, err := m.ActiveForDoctorDay(ctx, in.DoctorID, in.Date)
	require.NoError(t, err)
	require.Len(t, holds, 2)
}

func TestSweepExpired(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return t0 })

	in := testInput()
	_, err := m.Create(ctx, in)
	require.NoError(t, err)

	// Second hold taken five minutes later on another slot.
	m.WithClock(func() time.Time { return t0.Add(5 * time.Minute) })
	later := in
	later.Start = schedule.TimeOfDay(660)
	h2, err := m.Create(ctx, later)
	require.NoError(t, err)

	// Eleven minutes in: first hold expired, second still live.
	m.WithClock(func() time.Time { return t0.Add(11 * time.Minute) })

	removed, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	active, err := m.ActiveForDoctorDay(ctx, in.DoctorID, in.Date)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, h2.Token, active[0].Token)
}
