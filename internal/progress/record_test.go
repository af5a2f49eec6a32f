package progress

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestResumeOffset_PrefersVideoEntry(t *testing.T) {
	r := New("course-1")
	r.CurrentVideoTime = 30
	r.VideoProgress["v"] = VideoProgress{CurrentTime: 120}

	if got := ResumeOffset(&r, "v"); got != 120 {
		t.Fatalf("expected 120, got %v", got)
	}
}

func TestResumeOffset_FallsBackToCourseTime(t *testing.T) {
	r := New("course-1")
	r.CurrentVideoTime = 45
	r.VideoProgress["other"] = VideoProgress{CurrentTime: 300}

	if got := ResumeOffset(&r, "v"); got != 45 {
		t.Fatalf("expected 45, got %v", got)
	}
}

func TestResumeOffset_ZeroVideoEntryFallsBack(t *testing.T) {
	r := New("course-1")
	r.CurrentVideoTime = 12
	r.VideoProgress["v"] = VideoProgress{CurrentTime: 0}

	if got := ResumeOffset(&r, "v"); got != 12 {
		t.Fatalf("expected 12, got %v", got)
	}
}

func TestResumeOffset_ColdStart(t *testing.T) {
	if got := ResumeOffset(nil, "v"); got != 0 {
		t.Fatalf("expected 0 for nil record, got %v", got)
	}
	r := New("course-1")
	if got := ResumeOffset(&r, "v"); got != 0 {
		t.Fatalf("expected 0 for empty record, got %v", got)
	}
}

func TestPercent(t *testing.T) {
	if _, ok := Percent(10, 0); ok {
		t.Fatal("expected zero duration to be rejected")
	}
	if _, ok := Percent(10, math.Inf(1)); ok {
		t.Fatal("expected infinite duration to be rejected")
	}
	if p, ok := Percent(50, 200); !ok || p != 25 {
		t.Fatalf("expected 25, got %d (ok=%v)", p, ok)
	}
	if p, _ := Percent(199.5, 200); p != 100 {
		t.Fatalf("expected rounding to 100, got %d", p)
	}
	if p, _ := Percent(250, 200); p != 100 {
		t.Fatalf("expected clamp to 100, got %d", p)
	}
}

func TestMerge_KeepsOtherVideos(t *testing.T) {
	base := New("course-1")
	base.VideoProgress["a"] = VideoProgress{CurrentTime: 90}
	base.Status = StatusInProgress

	incoming := New("course-1")
	incoming.VideoProgress["b"] = VideoProgress{CurrentTime: 15}
	incoming.CurrentVideoTime = 15
	incoming.Status = StatusInProgress

	got := Merge(base, incoming)
	want := map[string]VideoProgress{"a": {CurrentTime: 90}, "b": {CurrentTime: 15}}
	if diff := cmp.Diff(want, got.VideoProgress); diff != "" {
		t.Fatalf("videoProgress mismatch (-want +got):\n%s", diff)
	}
	if got.CurrentVideoTime != 15 {
		t.Fatalf("expected course fallback 15, got %v", got.CurrentVideoTime)
	}
}

func TestMerge_Monotonic(t *testing.T) {
	base := New("course-1")
	base.VideoProgress["a"] = VideoProgress{CurrentTime: 90}
	base.Progress = 60
	base.TotalHoursSpent = 2.5
	base.Status = StatusCompleted

	stale := New("course-1")
	stale.VideoProgress["a"] = VideoProgress{CurrentTime: 40}
	stale.Progress = 20
	stale.TotalHoursSpent = 1
	stale.Status = StatusInProgress

	got := Merge(base, stale)
	want := Record{
		CourseID:         "course-1",
		Status:           StatusCompleted,
		CurrentVideoTime: 0,
		TotalHoursSpent:  2.5,
		Progress:         60,
		VideoProgress:    map[string]VideoProgress{"a": {CurrentTime: 90}},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Record{}, "UpdatedAt")); diff != "" {
		t.Fatalf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	r := Record{
		CourseID:         "c",
		Status:           "bogus",
		CurrentVideoTime: -4,
		TotalHoursSpent:  math.NaN(),
		Progress:         140,
		VideoProgress:    map[string]VideoProgress{"": {CurrentTime: 3}, "v": {CurrentTime: -1}},
	}
	got := Normalize(r)
	if got.Progress != 100 || got.Status != StatusCompleted {
		t.Fatalf("expected clamped completed record, got %+v", got)
	}
	if got.CurrentVideoTime != 0 || got.TotalHoursSpent != 0 {
		t.Fatalf("expected non-negative times, got %+v", got)
	}
	if _, ok := got.VideoProgress[""]; ok {
		t.Fatal("expected empty video key to be dropped")
	}
	if got.VideoProgress["v"].CurrentTime != 0 {
		t.Fatalf("expected clamped video offset, got %v", got.VideoProgress["v"])
	}
	if r.VideoProgress["v"].CurrentTime != -1 {
		t.Fatal("normalize must not mutate its input")
	}
}

func TestRecordJSON_OmitsUnsetUpdatedAt(t *testing.T) {
	b, err := json.Marshal(New("course-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "updatedAt") {
		t.Fatalf("expected no updatedAt for a fresh record, got %s", b)
	}

	r := New("course-1")
	r.UpdatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err = json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"updatedAt":"2026-03-01T12:00:00Z"`) {
		t.Fatalf("expected updatedAt to be encoded, got %s", b)
	}
}
