// internal/common/database/backends.go
package database

import (
	"context"
	"fmt"

	"krishmitra-advisor/internal/common/config"
)

// RetryFunc runs op until it succeeds or attempts run out.
type RetryFunc func(op func() error, attempts int, name string) error

// Backends holds the optional stores. A nil field means the backend is not configured.
type Backends struct {
	Postgres      *PostgresClient
	Elasticsearch *ElasticsearchClient
	Redis         *RedisClient
}

// Open connects every configured backend, verifying each with a ping under retry.
func Open(ctx context.Context, cfg config.DatabaseConfig, retry RetryFunc) (*Backends, error) {
	b := &Backends{}

	if cfg.Postgres.Enabled() {
		err := retry(func() error {
			pg, err := NewPostgres(cfg.Postgres)
			if err != nil {
				return err
			}
			if err := pg.Ping(ctx); err != nil {
				_ = pg.Close()
				return err
			}
			b.Postgres = pg
			return nil
		}, 15, "PostgreSQL connection")
		if err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.Elasticsearch.Enabled() {
		err := retry(func() error {
			es, err := NewElasticsearch(cfg.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(ctx); err != nil {
				return err
			}
			b.Elasticsearch = es
			return nil
		}, 15, "Elasticsearch connection")
		if err != nil {
			b.Close()
			return nil, err
		}
	}

	if cfg.Redis.Enabled() {
		err := retry(func() error {
			rdb, err := NewRedis(cfg.Redis)
			if err != nil {
				return err
			}
			if err := rdb.Ping(ctx); err != nil {
				_ = rdb.Close()
				return err
			}
			b.Redis = rdb
			return nil
		}, 10, "Redis connection")
		if err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// Checks returns one readiness probe per connected backend.
func (b *Backends) Checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if b.Postgres != nil {
		checks["postgres"] = b.Postgres.Ping
	}
	if b.Elasticsearch != nil {
		checks["elasticsearch"] = b.Elasticsearch.Ping
	}
	if b.Redis != nil {
		checks["redis"] = b.Redis.Ping
	}
	return checks
}

// Names lists the connected backends for the startup log.
func (b *Backends) Names() []string {
	var names []string
	for _, n := range []struct {
		name string
		on   bool
	}{
		{"postgres", b.Postgres != nil},
		{"elasticsearch", b.Elasticsearch != nil},
		{"redis", b.Redis != nil},
	} {
		if n.on {
			names = append(names, n.name)
		}
	}
	return names
}

func (b *Backends) Close() {
	if b.Postgres != nil {
		_ = b.Postgres.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}

// NoRetry runs op once; tests and tools use it in place of a backoff loop.
func NoRetry(op func() error, _ int, name string) error {
	if err := op(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
