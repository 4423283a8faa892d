package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coachd/internal/config"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	httpserver "github.com/fyrsmithlabs/coachd/internal/http"
	"github.com/fyrsmithlabs/coachd/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the coachd HTTP API and, when scheduler.enabled is set, the periodic
performance report task. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve runs the API until ctx is cancelled or the listener fails.
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	srv, err := httpserver.NewServer(a.registry, a.logger.Named("http"), &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	if cfg.Scheduler.Enabled {
		sched, err := newScheduler(a, cfg.Scheduler)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func newScheduler(a *app, cfg config.SchedulerConfig) (*scheduler.Scheduler, error) {
	periods := make([]feedback.Period, 0, len(cfg.Periods))
	for _, p := range cfg.Periods {
		periods = append(periods, feedback.Period(p))
	}
	sched, err := scheduler.New(a.registry.Monitor(), a.logger.Named("scheduler"),
		scheduler.WithInterval(cfg.Interval),
		scheduler.WithPeriods(periods...),
		scheduler.WithPurger(a.registry.Insights()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return sched, nil
}
