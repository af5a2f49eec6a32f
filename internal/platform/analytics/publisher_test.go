package analytics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type fakeJS struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeJS) PublishAsync(subj string, data []byte, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil, nil
}

func TestPublish_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectProgressUpdated, "progress_updated", "u", nil)
	New(nil, nil).Publish(SubjectProgressUpdated, "progress_updated", "u", nil)
}

func TestPublish_Envelope(t *testing.T) {
	js := &fakeJS{}
	New(js, zap.NewNop()).Publish(SubjectCourseCompleted, "course_completed", "learner-1", map[string]any{"course_id": "go-101"})

	if len(js.subjects) != 1 || js.subjects[0] != SubjectCourseCompleted {
		t.Fatalf("unexpected subjects: %v", js.subjects)
	}
	var ev Event
	if err := json.Unmarshal(js.payloads[0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventID == "" || ev.UserID != "learner-1" || ev.Properties["course_id"] != "go-101" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPublish_ErrorSwallowed(t *testing.T) {
	js := &fakeJS{err: errors.New("no responders")}
	New(js, zap.NewNop()).Publish(SubjectProgressUpdated, "progress_updated", "u", nil)
}
