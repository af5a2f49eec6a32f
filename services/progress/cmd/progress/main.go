package main

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/auth"
	"github.com/example/course-platform/internal/platform/config"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/internal/platform/logging"
	"github.com/example/course-platform/internal/platform/natsconn"
	"github.com/example/course-platform/internal/platform/run"
	progressconfig "github.com/example/course-platform/services/progress/internal/config"
	"github.com/example/course-platform/services/progress/internal/handlers"
	"github.com/example/course-platform/services/progress/internal/ratelimit"
	"github.com/example/course-platform/services/progress/internal/store"
	"github.com/example/course-platform/services/progress/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewWithOptions(cfg.LogLevel, logging.Options{File: cfg.LogFile})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName))

	pcfg, err := progressconfig.LoadProgress()
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()
	repo, closeRepo, err := store.Open(ctx, store.Options{
		DatabaseURL: pcfg.DatabaseURL,
		MaxConns:    int32(pcfg.DBMaxConns),
		SQLitePath:  pcfg.SQLitePath,
		RedisURL:    pcfg.RedisURL,
		CacheTTL:    pcfg.CacheTTL,
		IsProd:      cfg.IsProd(),
	}, log)
	if err != nil {
		log.Error("store open", zap.Error(err))
		run.Exit(1)
	}

	// NATS is optional: without it writes are synchronous and analytics are dropped.
	var (
		js     nats.JetStreamContext
		events *analytics.Publisher
	)
	nc, err := natsconn.Connect(natsconn.Options{Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats unavailable, running without events", zap.Error(err))
	} else {
		js, err = natsconn.JetStream(nc,
			natsconn.StreamConfig{Name: "PROGRESS_WRITES", Subjects: []string{worker.Subject}, MaxAge: 24 * time.Hour},
			natsconn.StreamConfig{Name: "ANALYTICS_PROGRESS", Subjects: []string{"analytics.progress.>"}},
		)
		if err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		events = analytics.New(js, log)
	}

	var writes *handlers.WritePublisher
	if js != nil {
		writes = handlers.NewWritePublisher(js, pcfg.AsyncWrites)
	}
	if pcfg.AsyncWrites && !writes.Enabled() {
		log.Warn("PROGRESS_ASYNC_WRITES set but JetStream is unavailable; writes are synchronous")
	}

	deps := handlers.Deps{Repo: repo, Writes: writes, Events: events, Log: log}
	limiter := ratelimit.New(pcfg.RateLimitRPS, pcfg.RateLimitBurst)
	verifier := auth.JWTVerifier{Secret: pcfg.JWTSecret}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return repo.Ping(pctx)
		},
		Logger:  log,
		Metrics: true,
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(limiter.Middleware)
		r.Get("/progress", handlers.ListProgress(deps))
		r.Get("/progress/{courseId}", handlers.GetProgress(deps))
		r.Put("/progress/{courseId}", handlers.PutProgress(deps))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})
	components := []run.Component{
		{Name: "http", Start: srv.Start, Stop: srv.Shutdown},
		{Name: "ratelimit-sweeper", Start: func(ctx context.Context) error {
			t := time.NewTicker(time.Minute)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if n := limiter.Sweep(); n > 0 {
						log.Debug("rate limiter swept", zap.Int("entries", n))
					}
				}
			}
		}},
	}
	if writes.Enabled() {
		consumer := &worker.Consumer{
			Repo:      repo,
			Log:       log.Named("write-consumer"),
			OnChange:  func(uid string, ch store.Change) { handlers.PublishChange(events, uid, ch) },
			BatchSize: pcfg.WorkerBatchSize,
			MaxWait:   pcfg.WorkerMaxWait,
		}
		components = append(components, run.Component{
			Name:  "write-consumer",
			Start: func(ctx context.Context) error { return consumer.Run(ctx, js) },
		})
	}

	code := run.New(log).WithSignals(components...)
	if nc != nil {
		_ = nc.Drain()
	}
	closeRepo()
	_ = log.Sync()
	run.Exit(code)
}
