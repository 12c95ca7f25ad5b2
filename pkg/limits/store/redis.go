package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript performs the whole fixed-window increment in one atomic
// Redis operation: initialize the counter with a TTL on the first increment,
// otherwise INCR and report remaining capacity or time until the window
// resets. Running it as a script removes the race between INCR and EXPIRE
// that would let keys live forever or windows under-count.
var incrementScript = redis.NewScript(`
	local key = KEYS[1]
	local window = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		redis.call('SET', key, 1, 'PX', window)
		return {1, limit - 1, window}
	end

	local count = redis.call('INCR', key)
	local ttl = redis.call('PTTL', key)
	if ttl == -1 then
		-- Key lost its TTL (flush edge case); restore the window.
		redis.call('PEXPIRE', key, window)
		ttl = window
	end

	if count > limit then
		return {0, 0, ttl}
	end
	return {1, limit - count, ttl}
`)

// RedisCounter implements Counter on a shared Redis instance so that all
// gateway instances draw from one counter namespace.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// RedisCounterConfig configures the Redis backend.
type RedisCounterConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password is the Redis AUTH password, empty for none.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix namespaces all counter keys. Default: "gatekeeper:rl".
	KeyPrefix string

	// DialTimeout, ReadTimeout and WriteTimeout bound each round trip so a
	// slow Redis cannot stall the gating path. Defaults: 2s, 500ms, 500ms.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// PoolSize caps concurrent connections. Default: 10.
	PoolSize int
}

// NewRedisCounter creates a Redis-backed counter.
func NewRedisCounter(cfg RedisCounterConfig) *RedisCounter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gatekeeper:rl"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	return &RedisCounter{client: client, prefix: cfg.KeyPrefix}
}

// NewRedisCounterWithClient wraps an existing client. Used by tests.
func NewRedisCounterWithClient(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "gatekeeper:rl"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// IncrementAndCheck runs the atomic fixed-window script for key.
func (c *RedisCounter) IncrementAndCheck(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidLimit
	}

	fullKey := c.prefix + ":" + key
	raw, err := incrementScript.Run(ctx, c.client, []string{fullKey},
		window.Milliseconds(), limit).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrUnavailable, raw)
	}

	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	ttlMs, _ := vals[2].(int64)

	res := Result{
		Allowed:   allowed == 1,
		Remaining: remaining,
	}
	if !res.Allowed && ttlMs > 0 {
		res.RetryAfter = time.Duration(ttlMs) * time.Millisecond
	}

	return res, nil
}

// Ping checks Redis reachability.
func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
