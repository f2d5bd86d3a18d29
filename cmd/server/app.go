package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gradegate/internal/dashboard/bus"
	dashboardhandler "gradegate/internal/dashboard/handler"
	dashboardmetrics "gradegate/internal/dashboard/metrics"
	"gradegate/internal/dashboard/notifier"
	"gradegate/internal/dashboard/snapshot"
	learnerhandler "gradegate/internal/learner/handler"
	learnerservice "gradegate/internal/learner/service"
	"gradegate/internal/platform/config"
	"gradegate/internal/platform/database"
	"gradegate/internal/platform/metrics"
	redisclient "gradegate/internal/platform/redis"
	proposalhandler "gradegate/internal/proposal/handler"
	proposalmetrics "gradegate/internal/proposal/metrics"
	proposalservice "gradegate/internal/proposal/service"
	"gradegate/internal/ratelimit"
	ratelimitmetrics "gradegate/internal/ratelimit/metrics"
	"gradegate/internal/storage"
	httptransport "gradegate/internal/transport/http"
	"gradegate/pkg/platform/audit"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
	limiterSweep     = time.Minute
)

// app is the wired process: the HTTP handler plus the background loops that
// serve it.
type app struct {
	handler  http.Handler
	notifier *notifier.Notifier
	changes  bus.Bus
	audit    *audit.Async

	// runners are extra background loops started by serve.
	runners []func(ctx context.Context) error
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close(log)
		}
	}()

	var checks []httptransport.HealthCheck

	store, check, err := a.openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if check != nil {
		checks = append(checks, *check)
	}

	dashMetrics := dashboardmetrics.New(reg)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		checks = append(checks, httptransport.HealthCheck{Name: "redis", Check: rc.Health})
		a.changes = bus.NewRedis(rc.Client,
			bus.WithChannel(cfg.Redis.Channel),
			bus.WithRedisLogger(log),
			bus.WithRedisMetrics(dashMetrics),
		)
		log.InfoContext(ctx, "change bus: redis", "channel", cfg.Redis.Channel)
	} else {
		a.changes = bus.NewLocal(bus.WithLocalLogger(log), bus.WithLocalMetrics(dashMetrics))
		log.InfoContext(ctx, "change bus: in-process")
	}

	sink, check, err := a.openAuditSink(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if check != nil {
		checks = append(checks, *check)
	}
	a.audit = audit.NewAsync(sink,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithBufferSize(cfg.Audit.BufferSize),
		audit.WithFlushInterval(cfg.Audit.FlushInterval),
		audit.WithBreaker(audit.NewCircuitBreaker(breakerThreshold, breakerCooldown)),
	)

	limiter := a.newRateLimiter(cfg, log, rc, reg)

	learners := learnerservice.New(store,
		learnerservice.WithLogger(log),
		learnerservice.WithChangePublisher(a.changes),
	)
	proposals := proposalservice.New(store, store,
		proposalservice.WithLogger(log),
		proposalservice.WithMetrics(proposalmetrics.New(reg)),
		proposalservice.WithChangePublisher(a.changes),
		proposalservice.WithAuditPublisher(a.audit),
		proposalservice.WithDecideRetry(
			cfg.Proposal.DecideRetryAttempts,
			cfg.Proposal.DecideRetryInitial,
			cfg.Proposal.DecideRetryMax,
		),
	)

	builder := snapshot.New(store,
		snapshot.WithConcurrency(cfg.Dashboard.SnapshotConcurrency),
		snapshot.WithMetrics(dashMetrics),
	)
	a.notifier = notifier.New(builder,
		notifier.WithLogger(log),
		notifier.WithMetrics(dashMetrics),
		notifier.WithRefreshInterval(cfg.Dashboard.RefreshInterval),
		notifier.WithBufferSize(cfg.Dashboard.BufferSize),
	)

	a.handler = httptransport.NewRouter(httptransport.Deps{
		Logger:       log,
		Metrics:      metrics.New(reg),
		AdminToken:   cfg.Server.AdminToken,
		RateLimit:    limiter.Handler,
		Learners:     learnerhandler.New(learners, log),
		Proposals:    proposalhandler.New(proposals, log),
		Dashboard:    dashboardhandler.New(a.notifier, builder, log),
		HealthChecks: checks,
	})
	return a, nil
}

func (a *app) newRateLimiter(cfg *config.Config, log *slog.Logger, rc *redisclient.Client, reg prometheus.Registerer) *ratelimit.Middleware {
	var store ratelimit.Store
	if rc != nil {
		store = ratelimit.NewRedis(rc.Client, "")
	} else {
		mem := ratelimit.NewMemory()
		a.runners = append(a.runners, func(ctx context.Context) error {
			return mem.RunSweeper(ctx, limiterSweep)
		})
		store = mem
	}
	return ratelimit.New(store, log,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimit.WithLimit(ratelimit.ClassRead, ratelimit.Limit{Requests: cfg.RateLimit.Read, Window: cfg.RateLimit.Window}),
		ratelimit.WithLimit(ratelimit.ClassWrite, ratelimit.Limit{Requests: cfg.RateLimit.Write, Window: cfg.RateLimit.Window}),
	)
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, *httptransport.HealthCheck, error) {
	if cfg.Database.Driver == database.DriverMemory {
		log.WarnContext(ctx, "using in-memory storage; data is lost on restart")
		return storage.NewMemory(), nil, nil
	}

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.DatabaseOptions())
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	dialect := dialectFor(cfg.Database.Driver)
	if cfg.Database.AutoMigrate {
		if err := storage.Migrate(ctx, db, dialect); err != nil {
			return nil, nil, err
		}
	}
	log.InfoContext(ctx, "storage: sql", "driver", cfg.Database.Driver, "auto_migrate", cfg.Database.AutoMigrate)
	return storage.NewSQL(db, dialect), &httptransport.HealthCheck{Name: "database", Check: db.PingContext}, nil
}

func (a *app) openAuditSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (audit.Sink, *httptransport.HealthCheck, error) {
	if len(cfg.Audit.Brokers) == 0 {
		log.InfoContext(ctx, "audit sink: log")
		return audit.NewLog(log), nil, nil
	}

	k, err := audit.NewKafka(cfg.Audit.Brokers, cfg.Audit.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("audit kafka: %w", err)
	}
	a.closers = append(a.closers, k.Close)
	if err := k.EnsureTopic(ctx, cfg.Audit.Partitions, cfg.Audit.ReplicationFactor); err != nil {
		// Delivery retries through the breaker; the topic may be managed elsewhere.
		log.WarnContext(ctx, "audit topic not ensured", "topic", cfg.Audit.Topic, "error", err)
	}
	log.InfoContext(ctx, "audit sink: kafka", "brokers", cfg.Audit.Brokers, "topic", cfg.Audit.Topic)
	return k, &httptransport.HealthCheck{Name: "kafka", Check: k.Ping}, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(log *slog.Logger) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		log.Error("closing resources", "error", err)
	}
}
