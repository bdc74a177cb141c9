package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	appointmentKeyPrefix = "appointment:"
	slotIndexPrefix      = "appointments:slot:"
	createdIndexKey      = "appointments:created"
	statusIndexPrefix    = "appointments:status:"
	dayIndexPrefix       = "appointments:day:"

	// Update and Delete compare the stored document before writing and retry
	// when a concurrent writer changed it in between.
	maxWriteAttempts = 5
)

// Script results.
const (
	scriptOK       = 1
	scriptTaken    = 0
	scriptChanged  = -1
	scriptNotFound = -2
)

// createScript stores a new appointment together with its indexes. A live
// appointment joins the slot set only if no other live appointment is in it.
// Members whose document no longer exists are pruned.
//
// KEYS: doc, slot set, created zset, status zset, day set
// ARGV: id, json, score, live ("1"/"0"), doc key prefix
var createScript = redis.NewScript(`
if ARGV[4] == '1' then
	for _, member in ipairs(redis.call('SMEMBERS', KEYS[2])) do
		if redis.call('EXISTS', ARGV[5] .. member) == 1 then
			return 0
		end
		redis.call('SREM', KEYS[2], member)
	end
	redis.call('SADD', KEYS[2], ARGV[1])
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[5], ARGV[1])
return 1
`)

// updateScript replaces a document if it still equals the expected value.
// Moving a live appointment onto a slot held by another live appointment is
// refused. Staying on the same slot never is, so several live appointments
// can share one slot set after a restore.
//
// KEYS: doc, old slot set, new slot set, old status zset, new status zset, old day set, new day set
// ARGV: id, expected json, new json, score, live ("1"/"0"), moved ("1"/"0"), doc key prefix
var updateScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -2
end
if current ~= ARGV[2] then
	return -1
end
if ARGV[5] == '1' and ARGV[6] == '1' then
	for _, member in ipairs(redis.call('SMEMBERS', KEYS[3])) do
		if member ~= ARGV[1] then
			if redis.call('EXISTS', ARGV[7] .. member) == 1 then
				return 0
			end
			redis.call('SREM', KEYS[3], member)
		end
	end
end
redis.call('SET', KEYS[1], ARGV[3])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1])
redis.call('SREM', KEYS[6], ARGV[1])
redis.call('SADD', KEYS[7], ARGV[1])
redis.call('SREM', KEYS[2], ARGV[1])
if ARGV[5] == '1' then
	redis.call('SADD', KEYS[3], ARGV[1])
end
return 1
`)

// deleteScript removes a document and every index entry if the document
// still equals the expected value.
//
// KEYS: doc, slot set, created zset, status zset, day set
// ARGV: id, expected json
var deleteScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -2
end
if current ~= ARGV[2] then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('SREM', KEYS[5], ARGV[1])
return 1
`)

// RedisRepository stores each appointment as a JSON document with sorted-set
// indexes for listing and a set of live appointment ids per slot. Every write
// runs as a single script so slot checks and index updates are atomic.
type RedisRepository struct {
	redis *redis.Client
}

// NewRedisRepository wraps an existing Redis client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	if client == nil {
		panic("appointments: redis client required")
	}
	return &RedisRepository{redis: client}
}

func appointmentKey(id string) string { return appointmentKeyPrefix + id }
func slotIndexKey(slot string) string { return slotIndexPrefix + slot }
func statusIndexKey(s Status) string  { return statusIndexPrefix + string(s) }
func dayIndexKey(day string) string   { return dayIndexPrefix + day }

func liveFlag(s Status) string {
	if s.Live() {
		return "1"
	}
	return "0"
}

func (r *RedisRepository) Create(ctx context.Context, appt *Appointment) error {
	data, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	keys := []string{
		appointmentKey(appt.ID),
		slotIndexKey(appt.Slot),
		createdIndexKey,
		statusIndexKey(appt.Status),
		dayIndexKey(appt.Day()),
	}
	res, err := createScript.Run(ctx, r.redis, keys,
		appt.ID, data, score(appt), liveFlag(appt.Status), appointmentKeyPrefix,
	).Int()
	if err != nil {
		return fmt.Errorf("appointments: redis create: %w", err)
	}
	if res == scriptTaken {
		return ErrSlotUnavailable
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	appt, _, err := r.get(ctx, id)
	return appt, err
}

// get returns the decoded appointment and the raw document it came from.
func (r *RedisRepository) get(ctx context.Context, id string) (*Appointment, string, error) {
	raw, err := r.redis.Get(ctx, appointmentKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, "", &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, "", fmt.Errorf("appointments: redis get: %w", err)
	}
	var appt Appointment
	if err := json.Unmarshal([]byte(raw), &appt); err != nil {
		return nil, "", fmt.Errorf("appointments: decode %s: %w", id, err)
	}
	return &appt, raw, nil
}

func (r *RedisRepository) Update(ctx context.Context, appt *Appointment) error {
	data, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("appointments: marshal: %w", err)
	}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		prev, raw, err := r.get(ctx, appt.ID)
		if err != nil {
			return err
		}
		moved := "0"
		if prev.Slot != appt.Slot {
			moved = "1"
		}
		keys := []string{
			appointmentKey(appt.ID),
			slotIndexKey(prev.Slot),
			slotIndexKey(appt.Slot),
			statusIndexKey(prev.Status),
			statusIndexKey(appt.Status),
			dayIndexKey(prev.Day()),
			dayIndexKey(appt.Day()),
		}
		res, err := updateScript.Run(ctx, r.redis, keys,
			appt.ID, raw, data, score(appt), liveFlag(appt.Status), moved, appointmentKeyPrefix,
		).Int()
		if err != nil {
			return fmt.Errorf("appointments: redis update: %w", err)
		}
		switch res {
		case scriptOK:
			return nil
		case scriptTaken:
			return ErrSlotUnavailable
		case scriptNotFound:
			return &NotFoundError{ID: appt.ID}
		case scriptChanged:
			continue
		}
	}
	return fmt.Errorf("appointments: redis update %s: concurrent modification", appt.ID)
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		appt, raw, err := r.get(ctx, id)
		if err != nil {
			return err
		}
		keys := []string{
			appointmentKey(id),
			slotIndexKey(appt.Slot),
			createdIndexKey,
			statusIndexKey(appt.Status),
			dayIndexKey(appt.Day()),
		}
		res, err := deleteScript.Run(ctx, r.redis, keys, id, raw).Int()
		if err != nil {
			return fmt.Errorf("appointments: redis delete: %w", err)
		}
		switch res {
		case scriptOK:
			return nil
		case scriptNotFound:
			return &NotFoundError{ID: id}
		case scriptChanged:
			continue
		}
	}
	return fmt.Errorf("appointments: redis delete %s: concurrent modification", id)
}

func (r *RedisRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	filter = filter.normalize()
	index := createdIndexKey
	if filter.Status != "" {
		index = statusIndexKey(filter.Status)
	}

	total, err := r.redis.ZCard(ctx, index).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: redis count: %w", err)
	}
	start := int64(filter.offset())
	if start >= total {
		return []*Appointment{}, int(total), nil
	}
	ids, err := r.redis.ZRevRange(ctx, index, start, start+int64(filter.PageSize)-1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: redis range: %w", err)
	}
	items, err := r.load(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *RedisRepository) ListByDay(ctx context.Context, day string) ([]*Appointment, error) {
	ids, err := r.redis.SMembers(ctx, dayIndexKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("appointments: redis day index: %w", err)
	}
	return r.load(ctx, ids)
}

// load fetches documents in id order, skipping ids whose document vanished.
func (r *RedisRepository) load(ctx context.Context, ids []string) ([]*Appointment, error) {
	if len(ids) == 0 {
		return []*Appointment{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = appointmentKey(id)
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("appointments: redis mget: %w", err)
	}
	out := make([]*Appointment, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var appt Appointment
		if err := json.Unmarshal([]byte(raw), &appt); err != nil {
			return nil, fmt.Errorf("appointments: decode %s: %w", ids[i], err)
		}
		out = append(out, &appt)
	}
	return out, nil
}

func score(appt *Appointment) float64 {
	return float64(appt.CreatedAt.UnixNano())
}
