// Package adapter is the uniform command/event surface over an embeddable
// video player. The reconciler only ever talks to these interfaces.
package adapter

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPlayerInit means the container is missing or the player SDK could not load.
	ErrPlayerInit = errors.New("player init failed")
	// ErrPlayback is reported through Handlers.OnError.
	ErrPlayback = errors.New("playback error")
)

// State mirrors the embed player states the reconciler reacts to.
type State int

const (
	StateUnstarted State = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for st := StateUnstarted; st <= StateEnded; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Handlers are registered at Initialize. OnReady fires exactly once per
// player. None of them fire after Destroy.
type Handlers struct {
	OnReady       func()
	OnStateChange func(State)
	OnError       func(error)
}

type Options struct {
	Handlers Handlers
	Autoplay bool
}

// Player is a live embed bound to one container.
type Player interface {
	CurrentTime() float64
	// Duration is 0 until the media metadata has loaded.
	Duration() float64
	// SeekTo is best effort; the position may land later or elsewhere.
	SeekTo(seconds float64, allowSeekAhead bool)
	Play()
	// Destroy releases the container and deregisters handlers. Idempotent.
	Destroy()
}

// Factory constructs players. Initialize wraps ErrPlayerInit on failure and
// is not retried.
type Factory interface {
	Initialize(ctx context.Context, containerID, videoID string, opts Options) (Player, error)
}

// SDK loads the player library once per process and reuses it afterwards.
// A failed load is returned to the caller; the next Load tries again.
type SDK struct {
	mu     sync.Mutex
	loaded bool
	loads  int
	load   func(ctx context.Context) error
}

func NewSDK(load func(ctx context.Context) error) *SDK {
	return &SDK{load: load}
}

func (s *SDK) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loads++
	if s.load != nil {
		if err := s.load(ctx); err != nil {
			return err
		}
	}
	s.loaded = true
	return nil
}

// Loads reports how many times the loader ran.
func (s *SDK) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
