package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/ideaforge/billingcore/pkg/retry"
)

var (
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection url")
	ErrFailedToConnect       = errors.New("failed to connect to redis")
	ErrHealthcheckFailed     = errors.New("redis healthcheck failed")
)

// Connect establishes a Redis client and verifies it with a ping, retrying
// on transient startup failures.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	err = retry.Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	},
		retry.WithMaxAttempts(cfg.RetryAttempts),
		retry.WithStrategy(retry.Linear{Interval: cfg.RetryInterval}),
	)
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrFailedToConnect, err)
	}

	return client, nil
}

// Healthcheck returns a probe closure over the client for health endpoints.
func Healthcheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
