// Package reconciler decides where a video resumes and when watch progress
// is written back to the progress store.
//
// All inputs (player callbacks, fetch and write results, ticks, queries and
// unmount) are serialized through one event-loop goroutine, so the state
// below is only ever touched by that goroutine.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/metrics"
	"github.com/example/course-platform/internal/progress"
	"github.com/example/course-platform/services/player/internal/adapter"
	"github.com/example/course-platform/services/player/internal/videoid"
)

// Store is the progress store as seen by the reconciler.
type Store interface {
	Get(ctx context.Context, courseID string) (progress.Record, error)
	Put(ctx context.Context, courseID string, rec progress.Record) (progress.Record, error)
}

type Config struct {
	CourseID string
	// Video is a raw YouTube URL or id.
	Video string
	// ExternalVideoID, when set, is the id used instead of the one parsed from Video.
	ExternalVideoID string
	ContainerID     string
	Autoplay        bool

	TickInterval  time.Duration // default 1s
	WriteInterval time.Duration // default 10s; rounded up to whole ticks
	FetchTimeout  time.Duration // default 8s
	WriteTimeout  time.Duration // default 10s

	// TimeScale is media seconds per wall-clock second, for hosts that play
	// faster than real time. Watch time accrues in media seconds. Default 1.
	TimeScale float64
}

func (c Config) withDefaults() Config {
	if c.TimeScale <= 0 || math.IsNaN(c.TimeScale) || math.IsInf(c.TimeScale, 0) {
		c.TimeScale = 1
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.WriteInterval <= 0 {
		c.WriteInterval = 10 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 8 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

type Option func(*Reconciler)

func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithTicker replaces the timer used while tracking.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(r *Reconciler) { r.newTicker = newTicker }
}

type Reconciler struct {
	cfg       Config
	factory   adapter.Factory
	store     Store
	log       *zap.Logger
	newTicker func(time.Duration) Ticker

	mounted  atomic.Bool
	events   chan event
	done     chan struct{}
	final    Snapshot
	inflight sync.WaitGroup
}

func New(cfg Config, factory adapter.Factory, store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		cfg:       cfg.withDefaults(),
		factory:   factory,
		store:     store,
		log:       zap.NewNop(),
		newTicker: newRealTicker,
		events:    make(chan event),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With(zap.String("course_id", r.cfg.CourseID))
	return r
}

type event any

type playerEvent struct {
	player adapter.Player
	err    error
}

type readyEvent struct{}

type stateEvent struct{ state adapter.State }

type errorEvent struct{ err error }

type fetchEvent struct {
	rec progress.Record
	err error
}

type writeEvent struct {
	saved progress.Record
	hours float64
	err   error
}

type snapshotEvent struct{ reply chan Snapshot }

type unmountEvent struct{}

// Mount resolves the video id, initializes the player and starts loading
// saved progress. It returns ErrInvalidVideoID or ErrPlayerInit when the
// mount is terminally failed; Snapshot reports the same error.
func (r *Reconciler) Mount(ctx context.Context) error {
	if !r.mounted.CompareAndSwap(false, true) {
		return ErrAlreadyMounted
	}

	videoID, err := videoid.Resolve(r.cfg.Video, r.cfg.ExternalVideoID)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidVideoID, r.cfg.Video)
		r.log.Warn("mount rejected", zap.Error(err))
		r.final = Snapshot{State: StateError, Err: err}
		close(r.done)
		return err
	}

	l := &loop{
		r:          r,
		log:        r.log.With(zap.String("video_id", videoID)),
		videoID:    videoID,
		state:      StateInitializing,
		writeEvery: writeEvery(r.cfg.WriteInterval, r.cfg.TickInterval),
	}
	go l.run()

	p, err := r.factory.Initialize(ctx, r.cfg.ContainerID, videoID, adapter.Options{
		Handlers: r.handlers(),
		Autoplay: r.cfg.Autoplay,
	})
	if err != nil && !errors.Is(err, ErrPlayerInit) {
		err = fmt.Errorf("%w: %v", ErrPlayerInit, err)
	}
	if !r.send(playerEvent{player: p, err: err}) && p != nil {
		p.Destroy()
	}
	return err
}

// Unmount stops tracking, destroys the player and fires one last write-back
// without waiting for it. Nothing is read or written afterwards. Safe to
// call more than once.
func (r *Reconciler) Unmount() {
	if !r.mounted.Load() {
		return
	}
	r.send(unmountEvent{})
	<-r.done
}

// Wait blocks until every request started so far has finished. Call it
// after Unmount to let the final write-back land.
func (r *Reconciler) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) Snapshot() Snapshot {
	if !r.mounted.Load() {
		return Snapshot{State: StateIdle}
	}
	reply := make(chan Snapshot, 1)
	if r.send(snapshotEvent{reply: reply}) {
		return <-reply
	}
	return r.final
}

// Done is closed once the reconciler has unmounted or its Mount failed. A
// playback error after a successful mount leaves it open until Unmount.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

func (r *Reconciler) send(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reconciler) handlers() adapter.Handlers {
	return adapter.Handlers{
		OnReady:       func() { r.send(readyEvent{}) },
		OnStateChange: func(s adapter.State) { r.send(stateEvent{state: s}) },
		OnError:       func(err error) { r.send(errorEvent{err: err}) },
	}
}

func writeEvery(write, tick time.Duration) int {
	n := int(math.Ceil(float64(write) / float64(tick)))
	return max(n, 1)
}

// loop is the state owned by the event-loop goroutine.
type loop struct {
	r       *Reconciler
	log     *zap.Logger
	videoID string
	state   State
	player  adapter.Player

	ready   bool
	fetched bool
	resumed bool
	playing bool

	// record is the last-known full record; write-backs merge into it.
	record     progress.Record
	current    float64
	duration   float64
	maxWatched float64
	percent    int

	ticker          Ticker
	tickC           <-chan time.Time
	ticksSinceWrite int
	writeEvery      int

	sessionSeconds float64
	baseHours      float64
	persistedHours float64

	err         error
	progressErr error
	cancelFetch context.CancelFunc

	// stopped ends the loop: set on unmount and on a failed mount.
	stopped bool
}

func (l *loop) run() {
	defer close(l.r.done)
	for !l.stopped {
		select {
		case ev := <-l.r.events:
			l.handle(ev)
		case <-l.tickC:
			l.onTick()
		}
	}
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	l.r.final = l.snapshot()
}

func (l *loop) handle(ev event) {
	switch ev := ev.(type) {
	case playerEvent:
		l.onPlayer(ev)
	case readyEvent:
		l.onReady()
	case stateEvent:
		l.onState(ev.state)
	case errorEvent:
		l.fail(ev.err)
	case fetchEvent:
		l.onFetch(ev)
	case writeEvent:
		l.onWrite(ev)
	case snapshotEvent:
		ev.reply <- l.snapshot()
	case unmountEvent:
		l.unmount()
	}
}

func (l *loop) onPlayer(ev playerEvent) {
	if ev.err != nil {
		// Mount failed: nothing can recover the session, so the loop ends
		// here and Done closes without waiting for Unmount.
		if ev.player != nil {
			ev.player.Destroy()
		}
		l.fail(ev.err)
		l.stopped = true
		return
	}
	l.player = ev.player
	if l.state == StateError {
		return
	}
	l.startFetch()
	if l.ready {
		l.onPlayerReady()
	}
}

func (l *loop) onReady() {
	if l.state == StateError || l.ready {
		return
	}
	l.ready = true
	if l.player != nil {
		l.onPlayerReady()
	}
}

func (l *loop) onPlayerReady() {
	l.duration = l.player.Duration()
	if l.r.cfg.Autoplay {
		l.player.Play()
	}
	if !l.fetched {
		l.state = StateAwaitingProgress
	}
	l.tryResume()
}

func (l *loop) startFetch() {
	ctx, cancel := context.WithTimeout(context.Background(), l.r.cfg.FetchTimeout)
	l.cancelFetch = cancel
	courseID := l.r.cfg.CourseID
	l.r.inflight.Add(1)
	go func() {
		defer l.r.inflight.Done()
		rec, err := l.r.store.Get(ctx, courseID)
		l.r.send(fetchEvent{rec: rec, err: err})
	}()
}

func (l *loop) onFetch(ev fetchEvent) {
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	metrics.ObserveReconcilerOp("fetch", ev.err)
	if l.state == StateError {
		return
	}
	l.fetched = true

	rec := progress.New(l.r.cfg.CourseID)
	if ev.err != nil {
		l.progressErr = fmt.Errorf("%w: %v", ErrProgressFetch, ev.err)
		l.log.Warn("progress fetch failed, starting from the beginning", zap.Error(ev.err))
	} else {
		rec = progress.Normalize(ev.rec)
		rec.CourseID = l.r.cfg.CourseID
	}
	l.record = rec
	l.baseHours = rec.TotalHoursSpent
	l.persistedHours = rec.TotalHoursSpent
	l.tryResume()
}

// tryResume joins player readiness with the fetched record and issues the
// single resume seek.
func (l *loop) tryResume() {
	if l.resumed || l.player == nil || !l.ready || !l.fetched || l.state == StateError {
		return
	}
	offset := progress.ResumeOffset(&l.record, l.videoID)
	if d := l.player.Duration(); d > 0 {
		l.duration = d
		offset = math.Min(offset, d)
	}
	l.player.SeekTo(offset, true)
	l.resumed = true
	l.current = offset
	l.maxWatched = math.Max(l.maxWatched, offset)
	l.state = StateResuming
	l.log.Info("resumed playback", zap.Float64("offset", offset))

	if l.playing {
		l.startTracking()
	}
}

func (l *loop) onState(s adapter.State) {
	if l.state == StateError {
		return
	}
	if s == adapter.StatePlaying {
		l.playing = true
		if l.resumed {
			l.startTracking()
		}
		return
	}

	l.playing = false
	l.stopTicker()
	if !l.resumed {
		return
	}
	l.state = StatePaused
	switch s {
	case adapter.StateEnded:
		l.sample()
		l.writeBack("ended")
	case adapter.StatePaused:
		l.writeBack("paused")
	}
}

func (l *loop) startTracking() {
	if l.ticker == nil {
		l.ticker = l.r.newTicker(l.r.cfg.TickInterval)
		l.tickC = l.ticker.C()
	}
	l.state = StateTracking
}

func (l *loop) stopTicker() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	l.ticker = nil
	l.tickC = nil
}

func (l *loop) onTick() {
	if l.state != StateTracking || l.player == nil {
		return
	}
	l.sample()
	l.sessionSeconds += l.r.cfg.TickInterval.Seconds() * l.r.cfg.TimeScale
	l.ticksSinceWrite++
	if l.ticksSinceWrite >= l.writeEvery {
		l.writeBack("interval")
	}
}

// sample reads the playhead and folds it into max watched and percent.
func (l *loop) sample() {
	cur := l.player.CurrentTime()
	dur := l.player.Duration()
	if cur < 0 || math.IsNaN(cur) {
		cur = 0
	}
	if dur > 0 {
		l.duration = dur
	}
	if l.duration > 0 {
		cur = math.Min(cur, l.duration)
	}
	l.current = cur
	l.maxWatched = math.Max(l.maxWatched, cur)
	if l.duration > 0 {
		l.maxWatched = math.Min(l.maxWatched, l.duration)
	}
	if pct, ok := progress.Percent(cur, dur); ok {
		l.percent = pct
	}
}

// writeBack merges the session into the last-known record and sends it
// without waiting. Failures surface later as a writeEvent.
func (l *loop) writeBack(reason string) {
	if !l.resumed || l.state == StateError || l.state == StateUnmounted {
		return
	}
	l.ticksSinceWrite = 0

	status := progress.StatusInProgress
	if l.percent >= 100 {
		status = progress.StatusCompleted
	}
	hours := math.Max(l.persistedHours, l.baseHours+l.sessionSeconds/3600)
	payload := progress.Merge(l.record, progress.Record{
		CourseID:         l.r.cfg.CourseID,
		Status:           status,
		CurrentVideoTime: l.maxWatched,
		TotalHoursSpent:  hours,
		Progress:         l.percent,
		VideoProgress:    map[string]progress.VideoProgress{l.videoID: {CurrentTime: l.maxWatched}},
	})
	l.record = payload

	l.log.Debug("writing progress", zap.String("reason", reason),
		zap.Float64("max_watched", l.maxWatched), zap.Int("percent", l.percent))

	body := payload.Clone()
	courseID := l.r.cfg.CourseID
	timeout := l.r.cfg.WriteTimeout
	l.r.inflight.Add(1)
	go func() {
		defer l.r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		saved, err := l.r.store.Put(ctx, courseID, body)
		metrics.ObserveReconcilerOp("write", err)
		l.r.send(writeEvent{saved: saved, hours: body.TotalHoursSpent, err: err})
	}()
}

func (l *loop) onWrite(ev writeEvent) {
	if ev.err != nil {
		l.progressErr = fmt.Errorf("%w: %v", ErrProgressWrite, ev.err)
		l.log.Warn("progress write failed", zap.Error(ev.err))
		return
	}
	l.persistedHours = math.Max(l.persistedHours, ev.hours)
	l.record = progress.Merge(l.record, ev.saved)
}

func (l *loop) fail(err error) {
	if !IsUserVisible(err) {
		err = fmt.Errorf("%w: %v", ErrPlayback, err)
	}
	l.err = err
	l.state = StateError
	l.stopTicker()
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	l.log.Error("playback stopped", zap.Error(err))
}

func (l *loop) unmount() {
	l.stopTicker()
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	l.writeBack("unmount")
	if l.player != nil {
		l.player.Destroy()
	}
	l.state = StateUnmounted
	l.stopped = true
}

func (l *loop) snapshot() Snapshot {
	return Snapshot{
		State:          l.state,
		VideoID:        l.videoID,
		CurrentTime:    l.current,
		Duration:       l.duration,
		MaxWatched:     l.maxWatched,
		Percent:        l.percent,
		Resumed:        l.resumed,
		ProgressLoaded: l.fetched,
		Err:            l.err,
		ProgressErr:    l.progressErr,
	}
}
