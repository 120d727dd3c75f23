package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter stores attempts in a hash {count, last} so every API instance
// sees the same lockout state.
type RedisCounter struct {
	rdb    redis.Cmdable
	prefix string
}

// Returns {count, last_unix_ms}.
var incrementScript = redis.NewScript(`
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("HSET", KEYS[1], "last", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {count, tonumber(ARGV[1])}
`)

func NewRedisCounter(rdb redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "login_attempts"
	}
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

func (c *RedisCounter) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCounter) Get(ctx context.Context, key string) (Attempts, error) {
	vals, err := c.rdb.HMGet(ctx, c.key(key), "count", "last").Result()
	if err != nil {
		return Attempts{}, err
	}
	return parseAttempts(vals)
}

func (c *RedisCounter) Increment(ctx context.Context, key string, at time.Time, ttl time.Duration) (Attempts, error) {
	res, err := incrementScript.Run(ctx, c.rdb, []string{c.key(key)}, at.UnixMilli(), ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Attempts{}, err
	}
	if len(res) != 2 {
		return Attempts{}, fmt.Errorf("unexpected redis script result %v", res)
	}
	return Attempts{Count: int(res[0]), Last: time.UnixMilli(res[1])}, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// parseAttempts reads an HMGET reply; missing fields come back as nil.
func parseAttempts(vals []any) (Attempts, error) {
	if len(vals) != 2 || vals[0] == nil {
		return Attempts{}, nil
	}
	count, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return Attempts{}, fmt.Errorf("parse attempt count: %w", err)
	}
	a := Attempts{Count: count}
	if vals[1] != nil {
		ms, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		if err != nil {
			return Attempts{}, errors.Join(errors.New("parse last attempt"), err)
		}
		a.Last = time.UnixMilli(ms)
	}
	return a, nil
}
