// Package main runs the PriceLens backend: the HTTP message channel for the browser
// extension plus one-shot commands against the same core.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
	httpDelivery "github.com/pricelens/backend/internal/delivery/http"
	"github.com/pricelens/backend/internal/logging"
)

var (
	// logLevel overrides logging.level when set
	logLevel string
	// version information
	version = "1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pricelens",
	Short: "PriceLens price tracking backend",
	Long: `pricelens serves the browser extension: product detection, marketplace search,
price history, price-drop alerts and image classification.

Running without a subcommand starts the server.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

// serveCmd starts the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server and the scheduled price check.

The config file is watched; log level changes apply without a restart.

Examples:
  # Serve with config.yaml from the working directory
  pricelens serve

  # Override the port
  PRICELENS_SERVER_PORT=9090 pricelens serve`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(historyCmd)
}

// newLogger builds the process logger from configuration and the --log-level flag
func newLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	lc := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if logLevel != "" {
		lc.Level = logLevel
	}
	return logging.New(lc)
}

// bootstrap loads configuration once and wires the core for one-shot commands
func bootstrap(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, _, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		_ = logger.Sync()
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	reloads := make(chan *config.Config, 1)
	reloadErrs := make(chan error, 1)
	watcher, cfg, err := config.Watch(
		func(next *config.Config) {
			select {
			case reloads <- next:
			default:
			}
		},
		func(err error) {
			select {
			case reloadErrs <- err:
			default:
			}
		},
	)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, level, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	go applyReloads(ctx, reloads, reloadErrs, level, logger)

	logger.Info("starting PriceLens backend",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("transport", cfg.Marketplace.Transport),
		zap.String("store", cfg.Store.Driver),
		zap.String("config_file", watcher.File()),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startScheduler(); err != nil {
		return fmt.Errorf("schedule price check: %w", err)
	}
	if !a.classify.Enabled() {
		logger.Info("image classification is off until vision is enabled with an API key in settings")
	}

	// Streams and in-flight requests end when shutdown starts
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           httpDelivery.SetupRouter(cfg, a.handler(), logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelRequests)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// applyReloads applies the hot-reloadable parts of a changed config file
func applyReloads(ctx context.Context, reloads <-chan *config.Config, errs <-chan error, level zap.AtomicLevel, logger *zap.Logger) {
	for {
		select {
		case next := <-reloads:
			if logLevel != "" {
				continue
			}
			lvl, err := logging.ParseLevel(next.Logging.Level)
			if err != nil {
				logger.Warn("ignoring log level from reloaded config", zap.Error(err))
				continue
			}
			level.SetLevel(lvl)
			logger.Info("configuration reloaded", zap.String("log_level", lvl.String()))
		case err := <-errs:
			logger.Error("configuration reload rejected", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}
