package sessions

import (
	"context"
	"fmt"
	"strconv"

	"academy/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

// Return codes shared by the Lua scripts
const (
	luaSessionFull     = -1
	luaSessionNotFound = -2
)

// Lua script for atomic increment bounded by max
const luaIncrementConfirmed = `
-- KEYS[1] = capacity hash
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return -2
end

local confirmed = tonumber(redis.call("HGET", key, "confirmed") or "0")
local max = tonumber(redis.call("HGET", key, "max") or "0")
if confirmed >= max then
    return -1
end

return redis.call("HINCRBY", key, "confirmed", 1)
`

// Lua script for atomic decrement floored at zero
const luaDecrementConfirmed = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return -2
end

local confirmed = tonumber(redis.call("HGET", key, "confirmed") or "0")
if confirmed <= 0 then
    redis.call("HSET", key, "confirmed", 0)
    return 0
end

return redis.call("HINCRBY", key, "confirmed", -1)
`

// Lua script for setting the ceiling, refusing to drop below confirmed
const luaSetMaxCapacity = `
-- ARGV[1] = new max
local key = KEYS[1]
local max = tonumber(ARGV[1])
local confirmed = tonumber(redis.call("HGET", key, "confirmed") or "0")
if confirmed > max then
    return -1
end

redis.call("HSET", key, "max", max, "confirmed", confirmed)
return confirmed
`

// RedisStore keeps counters in a per-session hash and mutates them through Lua
type RedisStore struct {
	redis     *redis.Client
	increment *redis.Script
	decrement *redis.Script
	setMax    *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		redis:     client,
		increment: redis.NewScript(luaIncrementConfirmed),
		decrement: redis.NewScript(luaDecrementConfirmed),
		setMax:    redis.NewScript(luaSetMaxCapacity),
	}
}

// PreloadScripts loads the scripts so the first call does not pay for EVAL
func (s *RedisStore) PreloadScripts(ctx context.Context) error {
	for _, script := range []*redis.Script{s.increment, s.decrement, s.setMax} {
		if err := script.Load(ctx, s.redis).Err(); err != nil {
			return fmt.Errorf("failed to load capacity script: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) GetCapacity(ctx context.Context, sessionID string) (*Capacity, error) {
	values, err := s.redis.HGetAll(ctx, constants.SessionCapacityKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session capacity: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}

	confirmed, err := strconv.Atoi(values["confirmed"])
	if err != nil {
		return nil, fmt.Errorf("corrupt confirmed count for session %s: %w", sessionID, err)
	}
	maxCapacity, err := strconv.Atoi(values["max"])
	if err != nil {
		return nil, fmt.Errorf("corrupt max capacity for session %s: %w", sessionID, err)
	}

	return &Capacity{
		SessionID:      sessionID,
		ConfirmedCount: confirmed,
		MaxCapacity:    maxCapacity,
	}, nil
}

func (s *RedisStore) IncrementConfirmed(ctx context.Context, sessionID string) (int, error) {
	n, err := s.increment.Run(ctx, s.redis, []string{constants.SessionCapacityKey(sessionID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment confirmed count: %w", err)
	}
	switch n {
	case luaSessionFull:
		return 0, ErrSessionFull
	case luaSessionNotFound:
		return 0, ErrSessionNotFound
	}
	return n, nil
}

func (s *RedisStore) DecrementConfirmed(ctx context.Context, sessionID string) (int, error) {
	n, err := s.decrement.Run(ctx, s.redis, []string{constants.SessionCapacityKey(sessionID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement confirmed count: %w", err)
	}
	if n == luaSessionNotFound {
		return 0, ErrSessionNotFound
	}
	return n, nil
}

func (s *RedisStore) SetMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) (*Capacity, error) {
	if maxCapacity < 0 {
		return nil, ErrInvalidCapacity
	}

	confirmed, err := s.setMax.Run(ctx, s.redis, []string{constants.SessionCapacityKey(sessionID)}, maxCapacity).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to set max capacity: %w", err)
	}
	if confirmed == luaSessionFull {
		return nil, ErrInvalidCapacity
	}

	return &Capacity{
		SessionID:      sessionID,
		ConfirmedCount: confirmed,
		MaxCapacity:    maxCapacity,
	}, nil
}
