// Package progress holds the course watch-progress record shared by the
// progress store service and the player core.
package progress

import (
	"math"
	"time"
)

// Status is the course-level completion state.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// VideoProgress is the saved offset of one video within a course.
type VideoProgress struct {
	CurrentTime float64 `json:"currentTime"`
}

// Record is the progress of one user in one course.
type Record struct {
	CourseID         string                   `json:"courseId"`
	Status           Status                   `json:"status"`
	CurrentVideoTime float64                  `json:"currentVideoTime"`
	TotalHoursSpent  float64                  `json:"totalHoursSpent"`
	Progress         int                      `json:"progress"`
	VideoProgress    map[string]VideoProgress `json:"videoProgress,omitempty"`
	UpdatedAt        time.Time                `json:"updatedAt,omitzero"`
}

// New returns an empty not-started record for courseID.
func New(courseID string) Record {
	return Record{
		CourseID:      courseID,
		Status:        StatusNotStarted,
		VideoProgress: map[string]VideoProgress{},
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.VideoProgress = make(map[string]VideoProgress, len(r.VideoProgress))
	for k, v := range r.VideoProgress {
		out.VideoProgress[k] = v
	}
	return out
}

// StatusFor derives the course status from a completion percentage.
func StatusFor(percent int) Status {
	switch {
	case percent >= 100:
		return StatusCompleted
	case percent > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// Normalize clamps r into its invariants.
func Normalize(r Record) Record {
	out := r.Clone()
	out.Progress = clampPercent(out.Progress)
	out.CurrentVideoTime = nonNegative(out.CurrentVideoTime)
	out.TotalHoursSpent = nonNegative(out.TotalHoursSpent)
	for k, v := range out.VideoProgress {
		if k == "" {
			delete(out.VideoProgress, k)
			continue
		}
		out.VideoProgress[k] = VideoProgress{CurrentTime: nonNegative(v.CurrentTime)}
	}
	if !out.Status.Valid() {
		out.Status = StatusFor(out.Progress)
	}
	return out
}

// Merge applies incoming on top of base at field level.
//
// videoProgress entries are merged per key and never removed; each key keeps
// the larger offset. progress and totalHoursSpent never decrease and a
// completed course stays completed. currentVideoTime is the course-level
// fallback for the most recently active video and is taken from incoming.
func Merge(base, incoming Record) Record {
	base = Normalize(base)
	incoming = Normalize(incoming)

	out := base.Clone()
	if out.CourseID == "" {
		out.CourseID = incoming.CourseID
	}
	for k, v := range incoming.VideoProgress {
		if cur, ok := out.VideoProgress[k]; !ok || v.CurrentTime > cur.CurrentTime {
			out.VideoProgress[k] = v
		}
	}
	out.CurrentVideoTime = incoming.CurrentVideoTime
	out.Progress = max(base.Progress, incoming.Progress)
	out.TotalHoursSpent = math.Max(base.TotalHoursSpent, incoming.TotalHoursSpent)

	switch {
	case base.Status == StatusCompleted || incoming.Status == StatusCompleted:
		out.Status = StatusCompleted
	case incoming.Status == StatusInProgress || base.Status == StatusInProgress:
		out.Status = StatusInProgress
	default:
		out.Status = StatusFor(out.Progress)
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}

// ResumeOffset picks the offset to seek to when videoID starts playing:
// the video's own saved offset, else the course-level fallback, else zero.
func ResumeOffset(r *Record, videoID string) float64 {
	if r == nil {
		return 0
	}
	if v, ok := r.VideoProgress[videoID]; ok && v.CurrentTime > 0 {
		return v.CurrentTime
	}
	if r.CurrentVideoTime > 0 {
		return r.CurrentVideoTime
	}
	return 0
}

// Percent returns round(current/duration*100) clamped to 0..100. ok is false
// when duration is not known yet.
func Percent(current, duration float64) (pct int, ok bool) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, false
	}
	return clampPercent(int(math.Round(current / duration * 100))), true
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
