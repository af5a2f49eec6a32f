package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/example/course-platform/internal/platform/db"
	"github.com/example/course-platform/internal/progress"
)

// newPostgres connects to PROGRESS_TEST_DATABASE_URL or skips.
func newPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("PROGRESS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PROGRESS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn, db.PoolOptions{PingAttempts: 1})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	repo := NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func TestPostgresMerge_ConcurrentFirstWritesKeepEveryVideo(t *testing.T) {
	repo := newPostgres(t)
	ctx := context.Background()
	user := "learner-" + uuid.NewString()
	videos := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}

	start := make(chan struct{})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i, v := range videos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ch, err := repo.Merge(ctx, user, "go-101", progress.Record{
				VideoProgress: map[string]progress.VideoProgress{v: {CurrentTime: float64(10 * (i + 1))}}})
			if err != nil {
				t.Errorf("merge %s: %v", v, err)
				return
			}
			if ch.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	got, err := repo.GetOrCreate(ctx, user, "go-101")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.VideoProgress) != len(videos) {
		t.Fatalf("expected %d videos, got %+v", len(videos), got.VideoProgress)
	}
	if created != 1 {
		t.Fatalf("expected exactly one write to create the row, got %d", created)
	}
}
