package reconciler

import (
	"fmt"
	"math"
)

// State is the reconciler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAwaitingProgress
	StateResuming
	StateTracking
	StatePaused
	StateUnmounted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAwaitingProgress:
		return "awaiting-progress"
	case StateResuming:
		return "resuming"
	case StateTracking:
		return "tracking"
	case StatePaused:
		return "paused"
	case StateUnmounted:
		return "unmounted"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Snapshot is a point-in-time view of the reconciler for display.
type Snapshot struct {
	State       State
	VideoID     string
	CurrentTime float64
	Duration    float64
	MaxWatched  float64
	Percent     int
	Resumed     bool

	// ProgressLoaded is set once the saved record, or a fetch failure, arrived.
	ProgressLoaded bool
	// Err is the user-visible error, if any.
	Err error
	// ProgressErr is the last swallowed fetch or write failure.
	ProgressErr error
}

// Overlay renders the playback line shown under the player.
func (s Snapshot) Overlay() string {
	if s.Err != nil {
		return s.Err.Error()
	}
	return fmt.Sprintf("%s / %s (Max: %s)  %d%% completed",
		FormatClock(s.CurrentTime), FormatClock(s.Duration), FormatClock(s.MaxWatched), s.Percent)
}

// FormatClock renders seconds as m:ss.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
