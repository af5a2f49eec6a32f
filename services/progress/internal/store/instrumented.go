package store

import (
	"context"
	"time"

	"github.com/example/course-platform/internal/platform/metrics"
	"github.com/example/course-platform/internal/progress"
)

// Instrumented records operation latency for another Repository.
type Instrumented struct {
	next    Repository
	backend string
}

func NewInstrumented(next Repository, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

func (i *Instrumented) GetOrCreate(ctx context.Context, userID, courseID string) (rec progress.Record, err error) {
	defer func(start time.Time) { metrics.ObserveStoreOp(i.backend, "get", start, err) }(time.Now())
	return i.next.GetOrCreate(ctx, userID, courseID)
}

func (i *Instrumented) Merge(ctx context.Context, userID, courseID string, in progress.Record) (ch Change, err error) {
	defer func(start time.Time) { metrics.ObserveStoreOp(i.backend, "merge", start, err) }(time.Now())
	return i.next.Merge(ctx, userID, courseID, in)
}

func (i *Instrumented) List(ctx context.Context, userID string, limit int) (out []progress.Record, err error) {
	defer func(start time.Time) { metrics.ObserveStoreOp(i.backend, "list", start, err) }(time.Now())
	return i.next.List(ctx, userID, limit)
}

func (i *Instrumented) Ping(ctx context.Context) error {
	return i.next.Ping(ctx)
}
