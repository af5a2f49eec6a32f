package adapter

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// Host is the set of containers a player may be bound to.
type Host struct {
	mu         sync.Mutex
	containers map[string]*SimPlayer
}

func NewHost(containerIDs ...string) *Host {
	h := &Host{containers: make(map[string]*SimPlayer)}
	for _, id := range containerIDs {
		h.Register(id)
	}
	return h
}

func (h *Host) Register(containerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.containers[containerID]; !ok {
		h.containers[containerID] = nil
	}
}

func (h *Host) Remove(containerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.containers, containerID)
}

// bind attaches p to containerID, replacing any previous player there.
func (h *Host) bind(containerID string, p *SimPlayer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev, ok := h.containers[containerID]
	if !ok {
		return fmt.Errorf("%w: container %q not found", ErrPlayerInit, containerID)
	}
	if prev != nil {
		prev.detach()
	}
	h.containers[containerID] = p
	return nil
}

func (h *Host) unbind(containerID string, p *SimPlayer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.containers[containerID]; ok && cur == p {
		h.containers[containerID] = nil
	}
}

func (h *Host) player(containerID string) *SimPlayer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.containers[containerID]
}

// Simulator is an in-process Factory. Players never advance on their own;
// tests and the CLI drive them through the SimPlayer methods.
type Simulator struct {
	Host *Host
	SDK  *SDK
}

func NewSimulator(host *Host) *Simulator {
	return &Simulator{Host: host, SDK: NewSDK(nil)}
}

func (s *Simulator) Initialize(ctx context.Context, containerID, videoID string, opts Options) (Player, error) {
	if err := s.SDK.Load(ctx); err != nil {
		return nil, fmt.Errorf("%w: sdk: %v", ErrPlayerInit, err)
	}
	p := &SimPlayer{
		host:        s.Host,
		containerID: containerID,
		videoID:     videoID,
		handlers:    opts.Handlers,
		autoplay:    opts.Autoplay,
		state:       StateUnstarted,
	}
	if err := s.Host.bind(containerID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Player returns the live player bound to containerID, if any.
func (s *Simulator) Player(containerID string) (*SimPlayer, bool) {
	p := s.Host.player(containerID)
	return p, p != nil
}

// SimPlayer is a deterministic Player. Handlers run on the caller's
// goroutine, never while the player's lock is held.
type SimPlayer struct {
	host        *Host
	containerID string
	videoID     string
	autoplay    bool

	mu        sync.Mutex
	handlers  Handlers
	readyOnce sync.Once
	destroyed bool
	state     State
	current   float64
	duration  float64
	seeks     []float64
	plays     int
}

func (p *SimPlayer) VideoID() string { return p.videoID }

// Autoplay reports whether the player was created with Options.Autoplay.
func (p *SimPlayer) Autoplay() bool { return p.autoplay }

func (p *SimPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *SimPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *SimPlayer) SeekTo(seconds float64, allowSeekAhead bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.seeks = append(p.seeks, seconds)
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.current = seconds
}

// Play records the request; the viewer still reports "playing" through SetState.
func (p *SimPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.destroyed {
		p.plays++
	}
}

func (p *SimPlayer) Destroy() {
	if p.detach() {
		p.host.unbind(p.containerID, p)
	}
}

// detach marks the player destroyed and drops its handlers. It reports
// whether this call did the work.
func (p *SimPlayer) detach() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return false
	}
	p.destroyed = true
	p.handlers = Handlers{}
	return true
}

// Ready loads metadata with the given duration and fires OnReady once.
func (p *SimPlayer) Ready(duration float64) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.duration = duration
	fn := p.handlers.OnReady
	p.mu.Unlock()

	p.readyOnce.Do(func() {
		if fn != nil {
			fn()
		}
	})
}

// SetState moves the player to s and notifies OnStateChange.
func (p *SimPlayer) SetState(s State) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.state = s
	fn := p.handlers.OnStateChange
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// SetTime moves the playhead without notifying anyone, as a user scrub would.
func (p *SimPlayer) SetTime(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = seconds
}

func (p *SimPlayer) SetDuration(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = seconds
}

// Advance moves the playhead forward by d while playing. Reaching the end
// switches to StateEnded and notifies OnStateChange.
func (p *SimPlayer) Advance(d time.Duration) {
	p.mu.Lock()
	if p.destroyed || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.current += d.Seconds()
	ended := p.duration > 0 && p.current >= p.duration
	if ended {
		p.current = p.duration
		p.state = StateEnded
	}
	fn := p.handlers.OnStateChange
	p.mu.Unlock()
	if ended && fn != nil {
		fn(StateEnded)
	}
}

// Fail reports a playback error with the embed's numeric code.
func (p *SimPlayer) Fail(code int) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	fn := p.handlers.OnError
	p.mu.Unlock()
	if fn != nil {
		fn(fmt.Errorf("%w (code: %d)", ErrPlayback, code))
	}
}

func (p *SimPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *SimPlayer) Seeks() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.seeks)
}

func (p *SimPlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *SimPlayer) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}
