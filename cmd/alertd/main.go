// Command alertd runs the Gujarat taluka alert service: the Telegram bot, the
// delivery engine, the scheduled weather and fire checks, and the dashboard
// API.
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

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/taluka-alert-service/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/taluka-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/taluka-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/taluka-alert-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/taluka-alert-service/internal/adapter/telegram"
	"github.com/couchcryptid/taluka-alert-service/internal/bot"
	"github.com/couchcryptid/taluka-alert-service/internal/catalog"
	"github.com/couchcryptid/taluka-alert-service/internal/config"
	"github.com/couchcryptid/taluka-alert-service/internal/dashboard"
	"github.com/couchcryptid/taluka-alert-service/internal/delivery"
	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/evaluator"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/couchcryptid/taluka-alert-service/internal/onboarding"
	"github.com/couchcryptid/taluka-alert-service/internal/scheduler"
	"github.com/couchcryptid/taluka-alert-service/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	clock := clockwork.NewRealClock()

	// A missing or corrupt catalog is not fatal: every flow that needs it
	// answers "unavailable" and readiness reports it.
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("geo catalog unavailable", "path", cfg.CatalogPath, "error", err)
	} else {
		logger.Info("geo catalog loaded", "districts", len(cat.Districts()), "areas", len(cat.Areas()))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	subs, err := store.OpenSubscriptions(cfg.SubscriptionsPath, cat, clock)
	if err != nil {
		return err
	}
	queue, err := store.OpenAlerts(cfg.AlertsPath, clock)
	if err != nil {
		return err
	}
	fires, err := store.OpenFires(cfg.FiresPath, cfg.FireRetention, clock)
	if err != nil {
		return err
	}
	metrics.Subscribers.Set(float64(subs.Count()))
	logger.Info("state loaded", "subscribers", subs.Count(), "pending_alerts", queue.Status().Pending, "fire_records", fires.Len())

	weather := openmeteo.NewCachedProvider(
		openmeteo.NewClient(cfg.OpenMeteoURL, cfg.WeatherTimeout, metrics, logger),
		cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clock, metrics,
	)
	fireFeed := firms.NewClient(cfg.FIRMSBaseURL, firms.Gujarat, cfg.FIRMSTimeout, metrics, logger)

	eval := evaluator.New(evaluator.Deps{
		Areas:    subs,
		Catalog:  cat,
		Weather:  weather,
		FireFeed: fireFeed,
		Queue:    queue,
		Fires:    fires,
		Cooldown: evaluator.NewCooldown(cfg.AlertCooldown, clock),
		Clock:    clock,
		Logger:   logger,
		Metrics:  metrics,
	}, evaluator.Thresholds{
		HotC:            cfg.HotThresholdC,
		ColdC:           cfg.ColdThresholdC,
		FireMaxDistance: cfg.FireMaxDistance,
	})

	var publisher delivery.EventPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("alert event stream enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	}

	var (
		transport delivery.Transport = disabledTransport{}
		tg        *telegram.Client
	)
	if cfg.TelegramEnabled {
		tg = telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramRatePerSec,
			cfg.TelegramPollTimeout+10*time.Second, logger)
		transport = tg
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, bot and delivery are disabled")
	}

	engine := delivery.New(queue, subs, transport, publisher, delivery.Options{
		Interval:    cfg.SweepInterval,
		SendTimeout: cfg.SendTimeout,
		Concurrency: cfg.DispatchConcurrency,
		MaxAttempts: cfg.MaxDeliveryAttempts,
	}, clock, logger, metrics)

	var poller *telegram.Poller
	if tg != nil {
		handler := bot.NewHandler(bot.Deps{
			Dialog:  onboarding.New(cat, subs, logger),
			Subs:    subs,
			Catalog: cat,
			Weather: weather,
			Fires:   fires,
			Sweeper: engine,
			Out:     tg,
			Clock:   clock,
			Logger:  logger,
			Metrics: metrics,
		})
		poller = telegram.NewPoller(tg, handler, cfg.TelegramPollTimeout, logger)
	}

	sched := scheduler.New(domain.IST, logger, metrics)
	jobs := []scheduler.Job{
		{Name: "weather", Spec: cfg.WeatherSchedule, Run: func(ctx context.Context) error {
			_, err := eval.EvaluateWeather(ctx)
			engine.Trigger()
			return err
		}},
		{Name: "fire", Spec: cfg.FireSchedule, Run: func(ctx context.Context) error {
			_, err := eval.RunFireCycle(ctx)
			engine.Trigger()
			return err
		}},
		{Name: "gauges", Spec: "@every 1m", Run: func(context.Context) error {
			metrics.Subscribers.Set(float64(subs.Count()))
			return nil
		}},
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return err
		}
	}

	api := dashboard.NewService(cat, queue, subs, engine, logger, metrics)
	ready := httpadapter.AllReady(
		httpadapter.ReadinessFunc(func(context.Context) error {
			if !cat.Available() {
				return domain.ErrCatalogUnavailable
			}
			return nil
		}),
		readiness(cfg.TelegramEnabled, engine),
		readiness(cfg.TelegramEnabled, poller),
	)
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, api, httpadapter.Options{
		RatePerSec:     cfg.DashboardRatePerSec,
		Burst:          cfg.DashboardBurst,
		AllowedOrigins: cfg.DashboardOrigins,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if poller != nil {
		g.Go(func() error { return engine.Run(gctx) })
		g.Go(func() error { return poller.Run(gctx) })
	}

	<-gctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	err = g.Wait()
	if writer != nil {
		if cerr := writer.Close(); cerr != nil {
			logger.Error("kafka writer close error", "error", cerr)
		}
	}
	return err
}

type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// readiness drops c from the readiness set when its component is disabled.
func readiness(enabled bool, c readinessChecker) readinessChecker {
	if !enabled {
		return nil
	}
	return c
}

// disabledTransport backs the engine when no bot token is configured. The
// engine is not run in that case, so it is never called in practice.
type disabledTransport struct{}

func (disabledTransport) Send(context.Context, domain.SubscriberID, string) error {
	return errors.New("telegram transport disabled")
}
