package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/course-platform/internal/progress"
)

// MemoryRepository is a development-only in-memory implementation.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]progress.Record // user -> course -> record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]map[string]progress.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryRepository) GetOrCreate(_ context.Context, userID, courseID string) (progress.Record, error) {
	if err := validKey(userID, courseID); err != nil {
		return progress.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.userLocked(userID)[courseID]
	if !ok {
		rec = progress.New(courseID)
		rec.UpdatedAt = s.now()
		s.records[userID][courseID] = rec
	}
	return rec.Clone(), nil
}

func (s *MemoryRepository) Merge(_ context.Context, userID, courseID string, in progress.Record) (Change, error) {
	if err := validKey(userID, courseID); err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	courses := s.userLocked(userID)
	before, ok := courses[courseID]
	if !ok {
		before = progress.New(courseID)
	}
	in.CourseID = courseID
	after := progress.Merge(before, in)
	after.UpdatedAt = s.now()
	courses[courseID] = after
	return Change{Before: before.Clone(), After: after.Clone(), Created: !ok}, nil
}

func (s *MemoryRepository) List(_ context.Context, userID string, limit int) ([]progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]progress.Record, 0, len(s.records[userID]))
	for _, r := range s.records[userID] {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].CourseID < out[j].CourseID
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRepository) Ping(context.Context) error { return nil }

func (s *MemoryRepository) userLocked(userID string) map[string]progress.Record {
	courses, ok := s.records[userID]
	if !ok {
		courses = make(map[string]progress.Record)
		s.records[userID] = courses
	}
	return courses
}
