// Package worker applies asynchronous progress writes from JetStream.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/progress/internal/store"
)

const (
	// Subject carries PUT /progress bodies accepted in async mode.
	Subject = "progress.write"
	Durable = "progress_writer"
)

// WriteEvent is the JetStream payload for an asynchronous progress write.
type WriteEvent struct {
	EventID   string          `json:"event_id"`
	UserID    string          `json:"user_id"`
	CourseID  string          `json:"course_id"`
	Record    progress.Record `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
}

// Message is the subset of *nats.Msg the consumer acknowledges through.
type Message interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	Metadata() (*nats.MsgMetadata, error)
}

// ChangeFunc observes every applied write, e.g. to emit analytics events.
type ChangeFunc func(userID string, ch store.Change)

type Consumer struct {
	Repo      store.Repository
	Log       *zap.Logger
	OnChange  ChangeFunc
	BatchSize int
	MaxWait   time.Duration
}

// Run pull-subscribes to Subject and applies batches until ctx is done.
func (c *Consumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	sub, err := js.PullSubscribe(Subject, Durable)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	batch := c.BatchSize
	if batch <= 0 {
		batch = 100
	}
	wait := c.MaxWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	c.Log.Info("write consumer started", zap.String("subject", Subject), zap.Int("batch", batch))

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("write consumer fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, m := range msgs {
			c.Handle(ctx, m.Data, m)
		}
	}
}

// Handle applies one message and settles it: Ack on success, Term on a
// payload that can never apply, NakWithDelay otherwise.
func (c *Consumer) Handle(ctx context.Context, data []byte, m Message) {
	var ev WriteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.Log.Warn("write consumer: invalid json, terminating", zap.Error(err))
		_ = m.Term()
		return
	}

	ch, err := c.Repo.Merge(ctx, ev.UserID, ev.CourseID, ev.Record)
	if errors.Is(err, store.ErrInvalidKey) {
		c.Log.Warn("write consumer: invalid key, terminating", zap.String("event_id", ev.EventID))
		_ = m.Term()
		return
	}
	if err != nil {
		var delivered uint64 = 1
		if md, mdErr := m.Metadata(); mdErr == nil {
			delivered = md.NumDelivered
		}
		delay := backoffDelay(delivered)
		c.Log.Warn("write consumer: merge failed, retrying",
			zap.String("event_id", ev.EventID), zap.Uint64("delivered", delivered),
			zap.Duration("delay", delay), zap.Error(err))
		_ = m.NakWithDelay(delay)
		return
	}
	if err := m.Ack(); err != nil {
		c.Log.Warn("write consumer: ack", zap.String("event_id", ev.EventID), zap.Error(err))
	}
	if c.OnChange != nil {
		c.OnChange(ev.UserID, ch)
	}
}

// backoffDelay doubles from 1s per redelivery, capped at 60s.
func backoffDelay(numDelivered uint64) time.Duration {
	attempt := int(min(numDelivered, 7))
	if attempt < 1 {
		attempt = 1
	}
	sec := 1 << (attempt - 1)
	if sec > 60 {
		sec = 60
	}
	return time.Duration(sec) * time.Second
}
