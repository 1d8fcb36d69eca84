// Package cache keeps pipeline results in Redis, keyed by input fingerprint.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/procluster/internal/pipeline"
	"github.com/thebtf/procluster/pkg/models"
)

const keyPrefix = "procluster:result:"

// Cache stores pipeline results in Redis. A nil *Cache is valid and never hits.
type Cache struct {
	pool *redis.Pool
	ttl  time.Duration
}

// New creates a cache backed by a connection pool to addr.
func New(addr string, ttl time.Duration) *Cache {
	return NewWithPool(&redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second),
			)
		},
	}, ttl)
}

// NewWithPool creates a cache over an existing pool.
func NewWithPool(pool *redis.Pool, ttl time.Duration) *Cache {
	return &Cache{pool: pool, ttl: ttl}
}

// Key returns the Redis key for a fingerprint.
func Key(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Ping checks that Redis answers.
func (c *Cache) Ping(ctx context.Context) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = redis.DoContext(conn, ctx, "PING")
	return err
}

// Get returns the cached result for fingerprint, if any.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*pipeline.Result, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	data, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", Key(fingerprint)))
	if errors.Is(err, redis.ErrNil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, true, nil
}

// Put stores a result under fingerprint. A zero TTL keeps it until evicted.
func (c *Cache) Put(ctx context.Context, fingerprint string, res *pipeline.Result) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := []interface{}{Key(fingerprint), data}
	if c.ttl > 0 {
		args = append(args, "PX", c.ttl.Milliseconds())
	}
	_, err = redis.DoContext(conn, ctx, "SET", args...)
	return err
}

// Run returns the cached result for records and opts, or runs the pipeline
// and caches its output. Cache failures are logged and never fail the run.
func (c *Cache) Run(ctx context.Context, records []models.ProcedureRecord, opts pipeline.Options) (*pipeline.Result, bool, error) {
	if c == nil {
		res, err := pipeline.Run(ctx, records, opts)
		return res, false, err
	}

	fingerprint, err := pipeline.Fingerprint(records, opts)
	if err != nil {
		return nil, false, err
	}

	if res, ok, err := c.Get(ctx, fingerprint); err != nil {
		log.Warn().Err(err).Msg("Result cache lookup failed")
	} else if ok {
		log.Debug().Str("fingerprint", fingerprint).Msg("Result cache hit")
		return res, true, nil
	}

	res, err := pipeline.Run(ctx, records, opts)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(ctx, fingerprint, res); err != nil {
		log.Warn().Err(err).Msg("Result cache store failed")
	}
	return res, false, nil
}

// Close releases pooled connections.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.pool.Close()
}
