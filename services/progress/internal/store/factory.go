package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/db"
)

// Options selects and configures the repository backend.
type Options struct {
	DatabaseURL string
	MaxConns    int32
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration
	IsProd      bool
}

// Open creates the best available repository: Postgres > SQLite > in-memory
// (development only), optionally fronted by a Redis cache. The returned
// close function releases every resource Open acquired.
func Open(ctx context.Context, opts Options, log *zap.Logger) (Repository, func(), error) {
	var (
		repo    Repository
		backend string
		closers []func()
	)
	switch {
	case opts.DatabaseURL != "":
		pool, err := db.Open(ctx, opts.DatabaseURL, db.PoolOptions{MaxConns: opts.MaxConns, Logger: log})
		if err != nil {
			return nil, nil, err
		}
		pg := NewPostgresRepository(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		repo, backend = pg, "postgres"
		closers = append(closers, pool.Close)
	case opts.SQLitePath != "":
		lite, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo, backend = lite, "sqlite"
		closers = append(closers, func() { _ = lite.Close() })
	case opts.IsProd:
		return nil, nil, errors.New("production requires DATABASE_URL or SQLITE_PATH; in-memory store is not allowed")
	default:
		repo, backend = NewMemoryRepository(), "memory"
	}
	log.Info("progress store opened", zap.String("backend", backend))

	if opts.RedisURL != "" {
		client := NewRedisClient(opts.RedisURL)
		repo = NewCachedRepository(repo, client, opts.CacheTTL, log)
		closers = append(closers, func() { _ = client.Close() })
		log.Info("progress cache enabled", zap.Duration("ttl", opts.CacheTTL))
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return NewInstrumented(repo, backend), closeAll, nil
}
