package natsconn

import (
	"errors"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamConfig describes a JetStream stream owned by a service.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// EnsureStream creates the stream if missing and widens its subjects if an
// older deployment created it with a narrower set.
func EnsureStream(js nats.JetStreamContext, sc StreamConfig) error {
	info, err := js.StreamInfo(sc.Name)
	if err == nil {
		missing := false
		for _, s := range sc.Subjects {
			if !slices.Contains(info.Config.Subjects, s) {
				missing = true
				break
			}
		}
		if !missing {
			return nil
		}
		cfg := info.Config
		cfg.Subjects = mergeSubjects(cfg.Subjects, sc.Subjects)
		_, err := js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	maxAge := sc.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     sc.Name,
		Subjects: sc.Subjects,
		Storage:  nats.FileStorage,
		MaxAge:   maxAge,
	})
	return err
}

func mergeSubjects(have, want []string) []string {
	out := slices.Clone(have)
	for _, s := range want {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
