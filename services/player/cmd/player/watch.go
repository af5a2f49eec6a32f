package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/course-platform/services/player/internal/adapter"
	"github.com/example/course-platform/services/player/internal/progressapi"
	"github.com/example/course-platform/services/player/internal/reconciler"
	"github.com/example/course-platform/services/player/internal/script"
)

const containerID = "player"

func newWatchCmd(root *rootOptions) *cobra.Command {
	var (
		scriptPath    string
		tick          time.Duration
		writeInterval time.Duration
		speed         float64
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Play a scripted viewing session and sync progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if speed <= 0 {
				return fmt.Errorf("--speed must be positive, got %v", speed)
			}
			s, err := script.Load(scriptPath)
			if err != nil {
				return err
			}
			client, err := progressapi.New(root.apiURL, root.token)
			if err != nil {
				return err
			}
			log := root.logger()
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sim := adapter.NewSimulator(adapter.NewHost(containerID))
			rc := reconciler.New(reconciler.Config{
				CourseID:        s.CourseID,
				Video:           s.Video,
				ExternalVideoID: s.ExternalVideoID,
				ContainerID:     containerID,
				Autoplay:        true,
				TickInterval:    time.Duration(float64(tick) / speed),
				WriteInterval:   time.Duration(float64(writeInterval) / speed),
				TimeScale:       speed,
			}, sim, client, reconciler.WithLogger(log))

			return watch(ctx, cmd, rc, sim, s, speed, log)
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "YAML viewing session")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "sampling interval in media time")
	cmd.Flags().DurationVar(&writeInterval, "write-interval", 10*time.Second, "write-back interval in media time")
	cmd.Flags().Float64Var(&speed, "speed", 1, "playback speed multiplier")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, rc *reconciler.Reconciler, sim *adapter.Simulator, s script.Script, speed float64, log *zap.Logger) error {
	out := cmd.OutOrStdout()
	if err := rc.Mount(ctx); err != nil {
		return err
	}
	defer func() {
		rc.Unmount()
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rc.Wait(waitCtx); err != nil {
			log.Warn("final write still pending", zap.Error(err))
		}
		fmt.Fprintln(out, rc.Snapshot().Overlay())
	}()

	sp, ok := sim.Player(containerID)
	if !ok {
		return errors.New("player not attached")
	}
	runner := &script.Runner{
		Duration: s.Duration,
		Speed:    speed,
		Log:      log,
		AfterStep: func(st script.Step) {
			snap := rc.Snapshot()
			fmt.Fprintf(out, "%-14s %-17s %s\n", st, snap.State, snap.Overlay())
		},
	}
	if err := runner.Run(ctx, sp, s.Steps); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if snap := rc.Snapshot(); snap.Err != nil {
		return snap.Err
	}
	return nil
}
