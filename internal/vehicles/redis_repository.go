package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	vehicleKeyPrefix = "vehicle:"
	allVehiclesKey   = "vehicles:all"
)

// RedisRepository stores each vehicle as a JSON document indexed by a sorted
// set scored on creation time.
type RedisRepository struct {
	redis *redis.Client
}

// NewRedisRepository wraps an existing Redis client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	if client == nil {
		panic("vehicles: redis client required")
	}
	return &RedisRepository{redis: client}
}

func vehicleKey(id string) string { return vehicleKeyPrefix + id }

func (r *RedisRepository) Create(ctx context.Context, v *Vehicle) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vehicles: marshal: %w", err)
	}
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, vehicleKey(v.ID), data, 0)
	pipe.ZAdd(ctx, allVehiclesKey, redis.Z{Score: float64(v.CreatedAt.UnixNano()), Member: v.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vehicles: redis create: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Vehicle, error) {
	raw, err := r.redis.Get(ctx, vehicleKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("vehicles: redis get: %w", err)
	}
	var v Vehicle
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("vehicles: decode %s: %w", id, err)
	}
	return &v, nil
}

func (r *RedisRepository) Update(ctx context.Context, v *Vehicle) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vehicles: marshal: %w", err)
	}
	// XX only overwrites an existing document.
	ok, err := r.redis.SetXX(ctx, vehicleKey(v.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("vehicles: redis update: %w", err)
	}
	if !ok {
		return &NotFoundError{ID: v.ID}
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	pipe := r.redis.TxPipeline()
	del := pipe.Del(ctx, vehicleKey(id))
	pipe.ZRem(ctx, allVehiclesKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vehicles: redis delete: %w", err)
	}
	if del.Val() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (r *RedisRepository) All(ctx context.Context) ([]*Vehicle, error) {
	ids, err := r.redis.ZRevRange(ctx, allVehiclesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("vehicles: redis index: %w", err)
	}
	if len(ids) == 0 {
		return []*Vehicle{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = vehicleKey(id)
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("vehicles: redis mget: %w", err)
	}
	out := make([]*Vehicle, 0, len(values))
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var v Vehicle
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("vehicles: decode %s: %w", ids[i], err)
		}
		out = append(out, &v)
	}
	return out, nil
}
