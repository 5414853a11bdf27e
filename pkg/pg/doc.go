// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver. It offers a thin abstraction around connection pooling,
// migrations, health checks, and common error helpers so that the credential
// store can bootstrap a resilient database layer with only a few lines of
// code.
//
// The package keeps a very small API surface while relying on battle-tested
// upstream libraries (`pgx/v5` for connectivity and `goose/v3` for schema
// migrations).
//
// # Architecture
//
// The package exposes three cooperating building blocks:
//
//   - Config – a declarative struct whose fields are populated from
//     environment variables via github.com/caarlos0/env. It controls
//     connection pool limits, health-check cadence and migration paths.
//
//   - Connect – opens a *pgxpool.Pool based on Config, retrying with
//     linear back-off until the database becomes available.
//
//   - Migrate – runs goose database migrations against the same connection
//     pool, guaranteeing the schema is up-to-date before the service starts
//     serving traffic.
//
// # Usage
//
//	package main
//
//	import (
//	    "context"
//	    "log/slog"
//
//	    "github.com/authkit/twofactor/pkg/pg"
//	)
//
//	func main() {
//	    var cfg pg.Config
//	    if err := env.Parse(&cfg); err != nil {
//	        panic(err)
//	    }
//
//	    ctx := context.Background()
//	    pool, err := pg.Connect(ctx, cfg)
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer pool.Close()
//
//	    if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	        panic(err)
//	    }
//	}
//
// # Error Handling
//
// Convenience helpers such as [pg.IsDuplicateKeyError] or
// [pg.IsForeignKeyViolationError] unwrap errors returned by pgx/
// `*pgconn.PgError` and make error classification trivial inside store code.
package pg
