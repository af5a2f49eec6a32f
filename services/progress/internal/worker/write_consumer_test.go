package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/progress/internal/store"
)

type fakeMsg struct {
	delivered uint64
	acked     bool
	termed    bool
	nakDelay  time.Duration
}

func (m *fakeMsg) Ack(...nats.AckOpt) error  { m.acked = true; return nil }
func (m *fakeMsg) Term(...nats.AckOpt) error { m.termed = true; return nil }
func (m *fakeMsg) NakWithDelay(d time.Duration, _ ...nats.AckOpt) error {
	m.nakDelay = d
	return nil
}
func (m *fakeMsg) Metadata() (*nats.MsgMetadata, error) {
	return &nats.MsgMetadata{NumDelivered: m.delivered}, nil
}

type failingRepo struct {
	store.Repository
}

func (failingRepo) Merge(context.Context, string, string, progress.Record) (store.Change, error) {
	return store.Change{}, errors.New("db down")
}

func encode(t *testing.T, ev WriteEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandle_AppliesAndAcks(t *testing.T) {
	repo := store.NewMemoryRepository()
	var changes []store.Change
	c := &Consumer{Repo: repo, Log: zap.NewNop(), OnChange: func(_ string, ch store.Change) { changes = append(changes, ch) }}

	rec := progress.New("course-1")
	rec.Progress = 100
	rec.Status = progress.StatusCompleted
	rec.VideoProgress["v1"] = progress.VideoProgress{CurrentTime: 42}

	m := &fakeMsg{delivered: 1}
	c.Handle(context.Background(), encode(t, WriteEvent{EventID: "e1", UserID: "learner-1", CourseID: "course-1", Record: rec}), m)

	if !m.acked || m.termed || m.nakDelay != 0 {
		t.Fatalf("expected ack only, got %+v", m)
	}
	got, err := repo.GetOrCreate(context.Background(), "learner-1", "course-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.VideoProgress["v1"].CurrentTime != 42 || got.Status != progress.StatusCompleted {
		t.Fatalf("write not applied: %+v", got)
	}
	if len(changes) != 1 || !changes[0].Completed() {
		t.Fatalf("expected one completing change, got %+v", changes)
	}
}

func TestHandle_InvalidJSONTerminates(t *testing.T) {
	c := &Consumer{Repo: store.NewMemoryRepository(), Log: zap.NewNop()}
	m := &fakeMsg{delivered: 1}
	c.Handle(context.Background(), []byte("{not json"), m)
	if !m.termed || m.acked {
		t.Fatalf("expected term, got %+v", m)
	}
}

func TestHandle_MissingKeyTerminates(t *testing.T) {
	c := &Consumer{Repo: store.NewMemoryRepository(), Log: zap.NewNop()}
	m := &fakeMsg{delivered: 1}
	c.Handle(context.Background(), encode(t, WriteEvent{EventID: "e1", CourseID: "course-1"}), m)
	if !m.termed {
		t.Fatalf("expected term, got %+v", m)
	}
}

func TestHandle_StoreErrorNaksWithBackoff(t *testing.T) {
	c := &Consumer{Repo: failingRepo{}, Log: zap.NewNop()}
	m := &fakeMsg{delivered: 3}
	c.Handle(context.Background(), encode(t, WriteEvent{EventID: "e1", UserID: "u", CourseID: "c"}), m)
	if m.acked || m.termed {
		t.Fatalf("expected nak only, got %+v", m)
	}
	if m.nakDelay != 4*time.Second {
		t.Fatalf("expected 4s delay, got %s", m.nakDelay)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := map[uint64]time.Duration{
		0:   time.Second,
		1:   time.Second,
		2:   2 * time.Second,
		6:   32 * time.Second,
		7:   60 * time.Second,
		100: 60 * time.Second,
	}
	for n, want := range cases {
		if got := backoffDelay(n); got != want {
			t.Errorf("backoffDelay(%d) = %s, want %s", n, got, want)
		}
	}
}
