// Package cache holds the shared Redis client and cache-aside helpers.
// Redis is optional at runtime: pub/sub fan-out, rate limits, websocket
// tickets, and the user cache all degrade to in-process or disabled behavior
// when it is absent, and the readiness probe reports the gap.
package cache

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"insureconnect/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const connectProbeTimeout = 5 * time.Second

var client *redis.Client

// commandMetricsHook counts failed Redis commands per command name. A cache
// miss (redis.Nil) is not a failure.
type commandMetricsHook struct{}

func (commandMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (commandMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (commandMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			middleware.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// InitRedis connects the shared client. addr is either a bare host:port or a
// redis:// URL. An unreachable Redis leaves the client nil; callers treat
// that as "no Redis" rather than an error.
func InitRedis(addr string) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			log.Printf("Redis disabled: invalid REDIS_URL %q: %v", addr, err)
			client = nil
			return
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client = redis.NewClient(opts)
	client.AddHook(commandMetricsHook{})

	ctx, cancel := context.WithTimeout(context.Background(), connectProbeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis disabled: %v (pushes, rate limits, and caching degrade)", err)
		client = nil
		return
	}
	log.Println("Redis connected")
}

// GetClient returns the shared Redis client, or nil when Redis is absent.
func GetClient() *redis.Client {
	return client
}

// SetClient overrides the shared client. Used by tests with miniredis.
func SetClient(c *redis.Client) {
	client = c
}
