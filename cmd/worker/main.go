package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"notifsync/internal/domain/entity"
	"notifsync/internal/infra/notifier"
	"notifsync/internal/infra/remote"
	workerPkg "notifsync/internal/infra/worker"
	"notifsync/internal/observability/logging"
	"notifsync/internal/observability/tracing"
	"notifsync/internal/resilience/circuitbreaker"
	"notifsync/internal/store"
	"notifsync/internal/store/rediskv"
	"notifsync/internal/store/sqlkv"
	syncUC "notifsync/internal/usecase/sync"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Load worker configuration (fail-open strategy)
	metrics := workerPkg.NewWorkerMetrics()
	metrics.MustRegister()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, metrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := workerPkg.ApplyFile(cfg, path); err != nil {
			logger.Warn("config file ignored", slog.String("path", path), slog.Any("error", err))
		} else {
			logger.Info("config file applied", slog.String("path", path))
		}
	}
	logger.Info("worker configuration loaded",
		slog.Int("poll_interval_minutes", cfg.PollIntervalMinutes),
		slog.Duration("fetch_timeout", cfg.FetchTimeout),
		slog.String("kv_driver", cfg.KVDriver),
		slog.Int("health_port", cfg.HealthPort))

	kv, closeKV, err := openKV(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to open storage backend",
			slog.String("driver", cfg.KVDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := closeKV(); err != nil {
			logger.Error("failed to close storage backend", slog.Any("error", err))
		}
	}()

	notifiers := buildNotifiers(logger, cfg)

	cache := store.NewResilientStore(kv,
		store.Config{
			RetryAttempts:  cfg.StorageRetryAttempts,
			InitialBackoff: cfg.StorageInitialBackoff,
			MaxBackoff:     cfg.StorageMaxBackoff,
			ErrorThreshold: cfg.StorageErrorThreshold,
		},
		store.WithStoreLogger(logging.WithComponent(logger, "store")),
		store.WithRetryMetrics(metrics.StorageRetriesTotal, metrics.StorageExhaustionsTotal),
		store.WithDegradedHooks(
			func(status store.ErrorStatus) {
				metrics.SetStorageDegraded(true)
				dispatch(notifiers, logger, notifier.DegradedEvent(status))
			},
			func() {
				metrics.SetStorageDegraded(false)
				dispatch(notifiers, logger, notifier.RecoveredEvent())
			},
		),
	)

	breaker := circuitbreaker.New(
		circuitbreaker.Config{
			Name:             "remote-fetch",
			FailureThreshold: cfg.FailureThreshold,
			InitialBackoff:   cfg.CircuitInitialBackoff,
			MaxBackoff:       cfg.CircuitMaxBackoff,
		},
		circuitbreaker.WithStateStore(store.NewCircuitStateStore(cache, "remote-fetch")),
		circuitbreaker.WithLogger(logging.WithComponent(logger, "circuitbreaker")),
	)

	remoteClient := remote.NewClient(cfg.RemoteBaseURL, nil)

	svc := syncUC.New(ctx, remoteClient, breaker, cache,
		syncUC.Config{
			FetchTimeout: cfg.FetchTimeout,
			CacheKey:     "sync:cache",
		},
		syncUC.WithLogger(logging.WithComponent(logger, "poller")),
	)
	svc.OnChange(func(set entity.NotificationSet) {
		metrics.SetCachedNotifications(len(set.Records))
		dispatch(notifiers, logger, notifier.ChangeEvent(set))
	})
	metrics.SetCachedNotifications(len(svc.Notifications()))
	metrics.SetBreakerState(svc.BreakerStats().Status)

	healthServer := workerPkg.NewHealthServer(
		fmt.Sprintf(":%d", cfg.HealthPort), svc, logging.WithComponent(logger, "health"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := healthServer.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := runMetricsServer(gctx, logging.WithComponent(logger, "metrics")); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %dm", cfg.PollIntervalMinutes), func() {
		runPoll(gctx, logger, svc, metrics)
	})
	if err != nil {
		logger.Error("failed to schedule poll job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", fmt.Sprintf("@every %dm", cfg.PollIntervalMinutes)))

	// First poll runs immediately rather than waiting out a full interval.
	runPoll(gctx, logger, svc, metrics)

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// runPoll executes one poll cycle under a trace span and records metrics.
func runPoll(ctx context.Context, logger *slog.Logger, svc *syncUC.Service, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	pollCtx, span := tracing.StartSpan(ctx, "sync.poll")
	defer span.End()

	result := svc.Poll(pollCtx)
	elapsed := time.Since(start)

	metrics.RecordPoll(string(result.Outcome), elapsed.Seconds())
	metrics.SetBreakerState(svc.BreakerStats().Status)
	metrics.SetStorageDegraded(svc.HasError())

	attrs := []any{
		slog.String("outcome", string(result.Outcome)),
		slog.String("version", result.Version),
		slog.Duration("duration", elapsed),
	}
	if result.Err != nil {
		attrs = append(attrs, slog.Any("error", result.Err))
		logger.Warn("poll finished", attrs...)
		return
	}
	logger.Info("poll finished", attrs...)
}

// openKV opens the storage backend selected by KV_DRIVER. The returned
// closer is a no-op for backends without a connection to release.
func openKV(ctx context.Context, logger *slog.Logger, cfg *workerPkg.WorkerConfig) (store.KV, func() error, error) {
	switch cfg.KVDriver {
	case "memory":
		logger.Warn("using in-memory storage, state will not survive restarts")
		return store.NewMemoryKV(), func() error { return nil }, nil

	case "sqlite":
		s, err := sqlkv.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite storage opened", slog.String("path", cfg.SQLitePath))
		return s, s.Close, nil

	case "postgres":
		s, err := sqlkv.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("postgres storage opened")
		return s, s.Close, nil

	case "redis":
		s, err := rediskv.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("redis storage opened", slog.String("addr", cfg.RedisAddr))
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown kv driver %q", cfg.KVDriver)
	}
}

// buildNotifiers assembles the enabled webhook channels. With none enabled
// the worker still runs; events go to a no-op sink.
func buildNotifiers(logger *slog.Logger, cfg *workerPkg.WorkerConfig) []notifier.Notifier {
	var notifiers []notifier.Notifier

	if cfg.SlackEnabled {
		notifiers = append(notifiers, notifier.NewSlackNotifier(notifier.SlackConfig{
			Enabled:    true,
			WebhookURL: cfg.SlackWebhookURL,
			Timeout:    cfg.SlackTimeout,
		}))
		logger.Info("slack channel enabled")
	}
	if cfg.DiscordEnabled {
		notifiers = append(notifiers, notifier.NewDiscordNotifier(notifier.DiscordConfig{
			Enabled:    true,
			WebhookURL: cfg.DiscordWebhookURL,
			Timeout:    cfg.DiscordTimeout,
		}))
		logger.Info("discord channel enabled")
	}
	if len(notifiers) == 0 {
		logger.Info("no notification channels enabled")
		notifiers = append(notifiers, notifier.NewNoOpNotifier())
	}
	return notifiers
}

// dispatch sends one event to every channel. Delivery failures are logged
// and never interrupt the sync loop.
func dispatch(notifiers []notifier.Notifier, logger *slog.Logger, event notifier.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, n := range notifiers {
		if err := n.Notify(ctx, event); err != nil {
			logger.Error("notification delivery failed",
				slog.String("kind", string(event.Kind)),
				slog.Any("error", err))
		}
	}
}
