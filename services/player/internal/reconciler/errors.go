package reconciler

import (
	"errors"

	"github.com/example/course-platform/services/player/internal/adapter"
)

var (
	ErrInvalidVideoID = errors.New("invalid video id")
	ErrPlayerInit     = adapter.ErrPlayerInit
	ErrProgressFetch  = errors.New("progress fetch failed")
	ErrProgressWrite  = errors.New("progress write failed")
	ErrPlayback       = adapter.ErrPlayback
	ErrAlreadyMounted = errors.New("reconciler already mounted")
)

// IsUserVisible reports whether err blocks playback and must be shown.
// Progress fetch and write failures are recovered locally and never are.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrInvalidVideoID) ||
		errors.Is(err, ErrPlayerInit) ||
		errors.Is(err, ErrPlayback)
}
