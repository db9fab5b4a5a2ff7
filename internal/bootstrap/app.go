// Package bootstrap assembles process-wide dependencies and owns the
// run-until-signal lifecycle.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gridbot/internal/config"
	"gridbot/internal/core"
	"gridbot/pkg/logging"
	"gridbot/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// App holds the process-level dependencies every component hangs off.
type App struct {
	Cfg       *config.Config
	Logger    core.ILogger
	Telemetry *telemetry.Telemetry
}

// NewApp loads configuration and initializes telemetry and logging.
// Telemetry comes first: the zap logger tees into the OTel log bridge,
// which needs the provider registered before the logger is built.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	tel, err := telemetry.Setup("gridbot")
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	return &App{
		Cfg:       cfg,
		Logger:    logger,
		Telemetry: tel,
	}, nil
}

// Runner is a component the app drives until shutdown.
type Runner interface {
	Run(ctx context.Context) error
}

// Run drives the runners until one fails or a termination signal
// arrives, then flushes telemetry.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting application")
	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	err := g.Wait()

	if shutdownErr := a.Telemetry.Shutdown(context.Background()); shutdownErr != nil {
		a.Logger.Error("Telemetry shutdown failed", "error", shutdownErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("Application shut down gracefully")
	return nil
}
