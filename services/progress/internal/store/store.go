package store

import (
	"context"
	"errors"
	"strings"

	"github.com/example/course-platform/internal/progress"
)

var ErrInvalidKey = errors.New("user id and course id are required")

// Change is the outcome of a merge: the stored record before and after.
type Change struct {
	Before  progress.Record
	After   progress.Record
	Created bool
}

// Completed reports whether this merge moved the course to completed.
func (c Change) Completed() bool {
	return c.Before.Status != progress.StatusCompleted && c.After.Status == progress.StatusCompleted
}

// Repository defines persistence operations for course progress records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetOrCreate returns the record for (userID, courseID), creating a
	// not-started one on first access.
	GetOrCreate(ctx context.Context, userID, courseID string) (progress.Record, error)
	// Merge applies progress.Merge(stored, in) atomically per record.
	Merge(ctx context.Context, userID, courseID string, in progress.Record) (Change, error)
	// List returns up to limit records ordered by updated_at DESC.
	List(ctx context.Context, userID string, limit int) ([]progress.Record, error)
	Ping(ctx context.Context) error
}

func validKey(userID, courseID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(courseID) == "" {
		return ErrInvalidKey
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	if limit > 100 {
		return 100
	}
	return limit
}
