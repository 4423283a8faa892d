package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/analysis"
	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/fyrsmithlabs/coachd/internal/gateway"
	"github.com/fyrsmithlabs/coachd/internal/insights"
	"github.com/fyrsmithlabs/coachd/internal/logging"
	"github.com/fyrsmithlabs/coachd/internal/prioritizer"
	"github.com/fyrsmithlabs/coachd/internal/services"
	"github.com/fyrsmithlabs/coachd/internal/store"
	"github.com/fyrsmithlabs/coachd/internal/telemetry"
)

// app holds the wired services and the resources they own.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	store     store.Store
	natsConn  *nats.Conn
	registry  services.Registry
}

// newLogger builds the service logger. With telemetry enabled entries are
// also sent through the OpenTelemetry log bridge.
func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}
	logCfg.ServiceName = cfg.Observability.ServiceName
	provider := tel.LoggerProvider()
	logCfg.Output.OTEL = provider != nil
	return logging.New(logCfg, provider)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Observability.EnableTelemetry
	tc.Endpoint = cfg.Observability.Endpoint
	tc.Protocol = cfg.Observability.Protocol
	tc.ServiceName = cfg.Observability.ServiceName
	tc.ServiceVersion = version
	tc.Insecure = cfg.Observability.Insecure
	tc.TLSSkipVerify = cfg.Observability.TLSSkipVerify
	tc.SampleRate = cfg.Observability.SampleRate
	return tc
}

// newApp initializes every dependency in order:
//  1. Logger and telemetry
//  2. Document store
//  3. AI gateway, wrapped so every call is tracked
//  4. Feedback monitor with its alert sinks
//  5. Insight engine and the service registry
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	bootstrap, err := newLogger(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg), bootstrap.Underlying())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	base := bootstrap
	if tel.LoggerProvider() != nil {
		if base, err = newLogger(cfg, tel); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	logger := base.Underlying()

	a := &app{cfg: cfg, logger: logger, telemetry: tel}

	a.store, err = store.Open(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Provider, err)
	}
	logger.Info("store opened", zap.String("provider", cfg.Store.Provider))

	client, err := gateway.New(cfg.Gateway, logger.Named("gateway"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	alerter, err := a.alerter()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	monitor, err := feedback.NewMonitor(a.store, cfg.Feedback, logger.Named("feedback"),
		feedback.WithTiers(cfg.Gateway.Tiers),
		feedback.WithAlerter(alerter))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create feedback monitor: %w", err)
	}

	tracked := feedback.NewTrackedGateway(client, monitor, feedback.InteractionCoaching)

	records := coaching.NewRepository(a.store)
	repo := insights.NewRepository(a.store)
	engine, err := insights.NewEngine(insights.Options{
		Analyzers:   analysis.All(cfg.Analysis),
		Prioritizer: prioritizer.New(tracked, cfg.Insights, logger.Named("prioritizer")),
		Repository:  repo,
		Loader:      insights.NewLoader(records, repo, cfg.Insights.WindowDays, logger.Named("loader")),
		Retention:   cfg.Insights.Retention,
		Logger:      logger.Named("insights"),
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to create insight engine: %w", err)
	}

	a.registry = services.NewRegistry(services.Options{
		Records:  records,
		Insights: repo,
		Engine:   engine,
		Monitor:  monitor,
	})

	logger.Info("services initialized",
		zap.String("gateway", cfg.Gateway.Provider),
		logging.Secret("gateway_api_key", cfg.Gateway.APIKey),
		zap.Strings("tiers", client.Tiers()),
		zap.Bool("nats_alerts", a.natsConn != nil),
		zap.Bool("telemetry_degraded", tel.Degraded()))
	return a, nil
}

// alerter returns the log sink, fanned out to NATS when a URL is configured.
func (a *app) alerter() (feedback.Alerter, error) {
	logAlerter := feedback.NewLogAlerter(a.logger.Named("alerts"))
	if a.cfg.Alerts.NATSURL == "" {
		return logAlerter, nil
	}

	nc, err := nats.Connect(a.cfg.Alerts.NATSURL,
		nats.Name("coachd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", a.cfg.Alerts.NATSURL, err)
	}
	a.natsConn = nc
	a.logger.Info("connected to NATS", zap.String("url", a.cfg.Alerts.NATSURL))

	natsAlerter, err := feedback.NewNATSAlerter(nc, a.cfg.Alerts.Subject)
	if err != nil {
		return nil, err
	}
	return feedback.MultiAlerter{logAlerter, natsAlerter}, nil
}

// Close releases the resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
