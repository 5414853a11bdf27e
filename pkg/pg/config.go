package pg

import "time"

// Config carries the pgx pool and goose migration settings for the Postgres
// instance backing the credential store. Fields are populated from the
// environment via caarlos0/env struct tags.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`                   // postgres:// DSN
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`      // pool ceiling (pgxpool MaxConns)
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`       // connections kept warm (pgxpool MinConns)
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`  // how often the pool pings idle connections
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"` // idle connections older than this are closed
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`  // hard cap on connection reuse

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`  // connection attempts before giving up
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"` // pause between attempts

	MigrationsPath  string `env:"PG_MIGRATIONS_PATH" envDefault:"migrations"`        // directory holding the goose SQL files
	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"goose_db_version"` // goose version bookkeeping table
}
