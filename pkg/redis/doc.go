// Package redis provides convenient helpers for connecting to the Redis
// server that backs the shared attempt-limiter store.
//
// The package wraps the go-redis client and adds:
//
//   - A `Connect` helper that retries the connection using the supplied
//     configuration, so a Redis instance still starting up does not fail the
//     whole service.
//   - A health-check helper to integrate Redis into liveness / readiness
//     probes.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	import "github.com/authkit/twofactor/pkg/redis"
//
//	cfg := redis.Config{
//	    ConnectionURL:  "redis://localhost:6379/0",
//	    RetryAttempts:  3,
//	    RetryInterval:  5 * time.Second,
//	    ConnectTimeout: 30 * time.Second,
//	}
//
//	ctx := context.Background()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    // handle error, probably terminate the application
//	}
//	defer client.Close()
//
//	checker := redis.Healthcheck(client)
//	if err := checker(ctx); err != nil {
//	    // redis is not healthy
//	}
//
// # Errors
//
// The package defines sentinel errors (e.g. ErrRedisNotReady) that wrap the
// underlying go-redis errors using errors.Join, so callers can compare with
// errors.Is and still unwrap the cause.
package redis
