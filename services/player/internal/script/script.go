// Package script drives a simulated player from a YAML viewing session.
//
//	course: intro-to-go
//	video: https://youtu.be/dQw4w9WgXcQ
//	duration: 600
//	steps:
//	  - do: ready
//	  - do: play
//	  - do: advance
//	    for: 30s
//	  - do: seek
//	    to: 120
//	  - do: pause
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/example/course-platform/services/player/internal/adapter"
)

const (
	ActionReady   = "ready"
	ActionPlay    = "play"
	ActionPause   = "pause"
	ActionBuffer  = "buffer"
	ActionEnd     = "end"
	ActionAdvance = "advance"
	ActionSeek    = "seek"
	ActionWait    = "wait"
	ActionFail    = "fail"
)

type Script struct {
	CourseID        string  `yaml:"course"`
	Video           string  `yaml:"video"`
	ExternalVideoID string  `yaml:"externalVideoId,omitempty"`
	Duration        float64 `yaml:"duration"`
	Steps           []Step  `yaml:"steps"`
}

type Step struct {
	Do   string        `yaml:"do"`
	For  time.Duration `yaml:"for,omitempty"`
	To   float64       `yaml:"to,omitempty"`
	Code int           `yaml:"code,omitempty"`
}

func (s Step) String() string {
	switch s.Do {
	case ActionAdvance, ActionWait:
		return fmt.Sprintf("%s %s", s.Do, s.For)
	case ActionSeek:
		return fmt.Sprintf("seek %.0fs", s.To)
	case ActionFail:
		return fmt.Sprintf("fail %d", s.Code)
	}
	return s.Do
}

// Load reads and validates a script file.
func Load(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	return Parse(bytes.NewReader(b))
}

func Parse(r io.Reader) (Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, errors.New("script is empty")
		}
		return Script{}, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

func (s Script) Validate() error {
	if s.CourseID == "" {
		return errors.New("script: course is required")
	}
	if s.Video == "" && s.ExternalVideoID == "" {
		return errors.New("script: video is required")
	}
	if s.Duration < 0 {
		return errors.New("script: duration must not be negative")
	}
	for i, st := range s.Steps {
		switch st.Do {
		case ActionReady, ActionPlay, ActionPause, ActionBuffer, ActionEnd, ActionSeek, ActionFail:
		case ActionAdvance, ActionWait:
			if st.For <= 0 {
				return fmt.Errorf("script: step %d (%s) needs a positive 'for'", i+1, st.Do)
			}
		default:
			return fmt.Errorf("script: step %d: unknown action %q", i+1, st.Do)
		}
	}
	return nil
}

// Runner plays steps against a SimPlayer. Media time advances in Step
// increments; each increment sleeps Step/Speed of wall time so a real
// ticker sees playback progress.
type Runner struct {
	Duration float64
	Step     time.Duration // default 1s
	Speed    float64       // default 1
	Log      *zap.Logger
	// Sleep defaults to a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// AfterStep is called after each step, e.g. to print the overlay.
	AfterStep func(Step)
}

func (r *Runner) Run(ctx context.Context, p *adapter.SimPlayer, steps []Step) error {
	step := r.Step
	if step <= 0 {
		step = time.Second
	}
	speed := r.Speed
	if speed <= 0 {
		speed = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug("script step", zap.String("step", st.String()))
		switch st.Do {
		case ActionReady:
			p.Ready(r.Duration)
		case ActionPlay:
			p.SetState(adapter.StatePlaying)
		case ActionPause:
			p.SetState(adapter.StatePaused)
		case ActionBuffer:
			p.SetState(adapter.StateBuffering)
		case ActionEnd:
			if d := p.Duration(); d > 0 {
				p.SetTime(d)
			}
			p.SetState(adapter.StateEnded)
		case ActionSeek:
			p.SetTime(st.To)
		case ActionFail:
			p.Fail(st.Code)
		case ActionWait:
			if err := sleep(ctx, time.Duration(float64(st.For)/speed)); err != nil {
				return err
			}
		case ActionAdvance:
			for left := st.For; left > 0; left -= step {
				inc := min(left, step)
				p.Advance(inc)
				if err := sleep(ctx, time.Duration(float64(inc)/speed)); err != nil {
					return err
				}
				if p.State() == adapter.StateEnded {
					break
				}
			}
		}
		if r.AfterStep != nil {
			r.AfterStep(st)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
