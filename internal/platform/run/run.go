package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// Component is a long-running part of a service. Start blocks until ctx is
// cancelled or the component fails; Stop, if set, is called on shutdown with
// a bounded context.
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// WithSignals runs all components until SIGINT/SIGTERM or the first failure
// and returns the process exit code.
func (r *Runner) WithSignals(components ...Component) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.Run(ctx, components...)
}

// Run is WithSignals without signal handling.
func (r *Runner) Run(ctx context.Context, components ...Component) int {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		g.Go(func() error {
			err := c.Start(gctx)
			if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
				r.Logger.Error("component exited with error", zap.String("component", c.Name), zap.Error(err))
				return err
			}
			return nil
		})
		if c.Stop != nil {
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
				defer cancel()
				if err := c.Stop(sctx); err != nil {
					r.Logger.Warn("component stop", zap.String("component", c.Name), zap.Error(err))
				}
				return nil
			})
		}
	}

	err := g.Wait()
	if ctx.Err() != nil {
		r.Logger.Info("shutdown signal received")
	}
	if err != nil {
		return 1
	}
	return 0
}

func Exit(code int) {
	os.Exit(code)
}
