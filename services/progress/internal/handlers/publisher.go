package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/course-platform/services/progress/internal/worker"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// Publisher is the subset of nats.JetStreamContext used for write events.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type WritePublisher struct {
	js          Publisher
	asyncWrites bool
}

func NewWritePublisher(js Publisher, asyncWrites bool) *WritePublisher {
	return &WritePublisher{js: js, asyncWrites: asyncWrites}
}

func (p *WritePublisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

// PublishWrite publishes ev under a fresh event id and returns that id.
// The id doubles as the JetStream dedup key.
func (p *WritePublisher) PublishWrite(ev worker.WriteEvent) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}
	ev.EventID = uuid.NewString()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(worker.Subject, body, nats.MsgId(ev.EventID)); err != nil {
		return "", err
	}
	return ev.EventID, nil
}
