package hold

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinovia/clinic-scheduling/internal/schedule"
)

// RedisManager stores one key per held slot plus a token index entry,
// both carrying the hold TTL so Redis itself reclaims abandoned holds.
// ExpiresAt is also stored in the payload and checked as a predicate,
// so an expired-but-present entry is treated as absent regardless of
// key eviction or sweep timing.
type RedisManager struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{
		client: client,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (m *RedisManager) WithClock(clock func() time.Time) *RedisManager {
	m.clock = clock
	return m
}

type holdRecord struct {
	Token           string    `json:"token"`
	DoctorID        string    `json:"doctor_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	Start           string    `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	// ExpiresUnix duplicates ExpiresAt in unix millis so the create script
	// can evaluate the expiry predicate without parsing timestamps in Lua.
	ExpiresUnix int64 `json:"expires_unix"`
}

func slotHoldKey(doctorID uuid.UUID, date time.Time, start schedule.TimeOfDay) string {
	return "hold:" + SlotKey(doctorID, date, start)
}

func tokenKey(token string) string {
	return "hold:token:" + token
}

func toRecord(h Hold) holdRecord {
	return holdRecord{
		Token:           h.Token,
		DoctorID:        h.DoctorID.String(),
		ServiceID:       h.ServiceID.String(),
		Date:            h.Date.Format(schedule.DateLayout),
		Start:           h.Start.String(),
		DurationMinutes: h.DurationMinutes,
		CreatedAt:       h.CreatedAt,
		ExpiresAt:       h.ExpiresAt,
		ExpiresUnix:     h.ExpiresAt.UnixMilli(),
	}
}

func fromRecord(rec holdRecord) (*Hold, error) {
	doctorID, err := uuid.Parse(rec.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("hold record doctor id: %w", err)
	}
	serviceID, err := uuid.Parse(rec.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("hold record service id: %w", err)
	}
	date, err := schedule.ParseDate(rec.Date)
	if err != nil {
		return nil, fmt.Errorf("hold record date: %w", err)
	}
	start, err := schedule.ParseTimeOfDay(rec.Start)
	if err != nil {
		return nil, fmt.Errorf("hold record start: %w", err)
	}

	return &Hold{
		Token:           rec.Token,
		DoctorID:        doctorID,
		ServiceID:       serviceID,
		Date:            date,
		Start:           start,
		DurationMinutes: rec.DurationMinutes,
		CreatedAt:       rec.CreatedAt,
		ExpiresAt:       rec.ExpiresAt,
	}, nil
}

// createScript claims the slot in one step. A present entry blocks the
// claim only while its expiry predicate still holds; a predicate-expired
// entry that Redis has not evicted yet is deleted (together with its
// token index) and replaced in the same script, so concurrent callers
// racing over a stale entry still produce exactly one winner.
var createScript = redis.NewScript(`
local data = redis.call("GET", KEYS[1])
if data then
  local rec = cjson.decode(data)
  if tonumber(rec["expires_unix"]) > tonumber(ARGV[2]) then
    return 0
  end
  redis.call("DEL", KEYS[1], "hold:token:" .. rec["token"])
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], KEYS[1], "PX", ARGV[3])
return 1
`)

func (m *RedisManager) Create(ctx context.Context, in CreateInput) (*Hold, error) {
	now := m.clock()
	h := Hold{
		Token:           uuid.NewString(),
		DoctorID:        in.DoctorID,
		ServiceID:       in.ServiceID,
		Date:            schedule.NormalizeDate(in.Date),
		Start:           in.Start,
		DurationMinutes: in.DurationMinutes,
		CreatedAt:       now,
		ExpiresAt:       now.Add(TTL),
	}

	payload, err := json.Marshal(toRecord(h))
	if err != nil {
		return nil, fmt.Errorf("marshal hold: %w", err)
	}

	slotKey := slotHoldKey(h.DoctorID, h.Date, h.Start)

	won, err := createScript.Run(ctx, m.client,
		[]string{slotKey, tokenKey(h.Token)},
		payload, now.UnixMilli(), TTL.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("store hold: %w", err)
	}
	if won == 0 {
		return nil, ErrSlotHeld
	}

	return &h, nil
}

// consumeScript resolves token -> slot entry and deletes both in one step,
// returning the payload. The token guard mirrors the compare-value unlock
// idiom: it refuses to delete a slot entry that has since been re-held by
// a different token.
var consumeScript = redis.NewScript(`
local slotKey = redis.call("GET", KEYS[1])
if not slotKey then
  return false
end
redis.call("DEL", KEYS[1])
local data = redis.call("GET", slotKey)
if not data then
  return false
end
local rec = cjson.decode(data)
if rec["token"] ~= ARGV[1] then
  return false
end
redis.call("DEL", slotKey)
return data
`)

func (m *RedisManager) consume(ctx context.Context, token string) (*Hold, error) {
	res, err := consumeScript.Run(ctx, m.client, []string{tokenKey(token)}, token).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("consume hold: %w", err)
	}

	raw, ok := res.(string)
	if !ok {
		return nil, ErrHoldNotFound
	}

	var rec holdRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode hold: %w", err)
	}

	return fromRecord(rec)
}

func (m *RedisManager) Redeem(ctx context.Context, token string) (*Hold, error) {
	h, err := m.consume(ctx, token)
	if err != nil {
		return nil, err
	}
	// The entry may survive past its TTL for a short window; the predicate
	// decides, not key eviction.
	if h.Expired(m.clock()) {
		return nil, ErrHoldNotFound
	}
	return h, nil
}

func (m *RedisManager) Release(ctx context.Context, token string) error {
	_, err := m.consume(ctx, token)
	if err != nil {
		if err == ErrHoldNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (m *RedisManager) ActiveForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Hold, error) {
	pattern := fmt.Sprintf("hold:slot:%s:%s:*", doctorID, schedule.NormalizeDate(date).Format(schedule.DateLayout))

	now := m.clock()
	var result []Hold

	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		h, err := m.loadSlot(ctx, iter.Val())
		if err != nil {
			return nil, err
		}
		if h == nil || h.Expired(now) {
			continue
		}
		result = append(result, *h)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan holds: %w", err)
	}

	return result, nil
}

func (m *RedisManager) SweepExpired(ctx context.Context) (int, error) {
	now := m.clock()
	removed := 0

	iter := m.client.Scan(ctx, 0, "hold:slot:*", 100).Iterator()
	for iter.Next(ctx) {
		h, err := m.loadSlot(ctx, iter.Val())
		if err != nil {
			return removed, err
		}
		if h == nil || !h.Expired(now) {
			continue
		}
		m.deletePair(ctx, iter.Val(), h.Token)
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan holds: %w", err)
	}

	return removed, nil
}

func (m *RedisManager) loadSlot(ctx context.Context, slotKey string) (*Hold, error) {
	raw, err := m.client.Get(ctx, slotKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load hold: %w", err)
	}

	var rec holdRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode hold: %w", err)
	}

	return fromRecord(rec)
}

func (m *RedisManager) deletePair(ctx context.Context, slotKey, token string) {
	_ = m.client.Del(ctx, slotKey, tokenKey(token)).Err()
}
