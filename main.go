package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/simstream/cmd"
	"github.com/smazurov/simstream/internal/api"
	"github.com/smazurov/simstream/internal/capture"
	"github.com/smazurov/simstream/internal/config"
	"github.com/smazurov/simstream/internal/events"
	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/metrics/collectors"
	"github.com/smazurov/simstream/internal/metrics/exporters"
	"github.com/smazurov/simstream/internal/session"
	"github.com/smazurov/simstream/internal/simctl"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")

		captureCfg, err := opts.CaptureConfig()
		if err != nil {
			logger.Error("Invalid capture configuration", "error", err)
			os.Exit(1)
		}
		startTimeout, err := opts.StartTimeout()
		if err != nil {
			logger.Error("Invalid stream configuration", "error", err)
			os.Exit(1)
		}
		metricsInterval, err := opts.MetricsSampleInterval()
		if err != nil {
			logger.Error("Invalid metrics configuration", "error", err)
			os.Exit(1)
		}
		logger.Info("Capture backend order", "order", captureCfg.Order)

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Application logs reach /api/logs/stream through the bus
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEntryFromLogging(entry))
		})

		simulators := simctl.New(opts.XcrunPath)

		ctx, cancel := context.WithCancel(context.Background())
		registry := session.NewRegistry(ctx, func(capture.Request) ([]capture.Backend, error) {
			return capture.NewBackends(captureCfg, capture.Dependencies{Shooter: simulators})
		}, eventBus)

		sessionCollector := collectors.NewSessionCollector(registry, logging.GetLogger("metrics"))
		sessionCollector.SetInterval(metricsInterval)
		sseExporter := exporters.NewSSEExporter(eventBus)
		sseExporter.SetInterval(metricsInterval)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Registry:     registry,
			Simulators:   simulators,
			EventBus:     eventBus,
			Defaults:     opts.StreamDefaults(),
			StartTimeout: startTimeout,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		// Logging levels follow the config file without a restart
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
		watcher.OnReload(func(cfg logging.Config) {
			logging.ApplyLevels(cfg)
			logger.Info("Logging levels reloaded", "level", cfg.Level)
		})

		hooks.OnStart(func() {
			if opts.MetricsEnabled {
				if startErr := sessionCollector.Start(ctx); startErr != nil {
					logger.Warn("Failed to start session collector", "error", startErr)
				}
				sseExporter.Start(ctx)
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config hot reload disabled", "path", opts.Config, "error", watchErr)
			}

			// SIGHUP re-reads the config even where file events are unreliable
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-ctx.Done():
						signal.Stop(hup)
						return
					case <-hup:
						logger.Info("SIGHUP received, reloading config", "path", opts.Config)
						watcher.Reload()
					}
				}
			}()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Capture processes are reaped after the listener is gone
			logger.Info("Stopping all capture sessions", "count", registry.Len())
			registry.CloseAll()
			cancel()

			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			if opts.MetricsEnabled {
				sseExporter.Stop()
				if stopErr := sessionCollector.Stop(); stopErr != nil {
					logger.Warn("Error stopping session collector", "error", stopErr)
				}
			}
		})
	})

	cli.Root().Use = "simstream"
	cli.Root().Short = "Stream iOS simulator screens as MJPEG"

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateSnapshotCmd())
	cli.Root().AddCommand(cmd.CreateSimulatorsCmd())

	// Run the CLI
	cli.Run()
}
