package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/shadercam/cmd"
	"github.com/smazurov/shadercam/internal/api"
	"github.com/smazurov/shadercam/internal/capture"
	"github.com/smazurov/shadercam/internal/config"
	"github.com/smazurov/shadercam/internal/events"
	"github.com/smazurov/shadercam/internal/led"
	"github.com/smazurov/shadercam/internal/logging"
	"github.com/smazurov/shadercam/internal/metrics/exporters"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Flags set on the command line win over the file and environment
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.Logging())
		logger := logging.GetLogger("main")

		settings, err := opts.Parse()
		if err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEvent(entry))
		})

		rt, err := cmd.NewRuntime(settings, eventBus)
		if err != nil {
			logger.Error("Failed to create capture runtime", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			CORSOrigin:        opts.AllowOrigin,
			Camera:            rt.Manager,
			Preview:           rt.Preview,
			Viewport:          settings.Viewport,
			Shaders:           rt.Library,
			EventBus:          eventBus,
			PrometheusHandler: exporters.HTTPHandler(),
		})

		sseExporter := exporters.NewSSEExporter(eventBus)

		var tally *led.Tally
		if settings.IndicatorLED != "" {
			if indicator := led.New(settings.IndicatorLED, logging.GetLogger("led")); indicator != nil {
				tally = led.NewTally(indicator, eventBus, logging.GetLogger("led"))
			}
		}

		ctx, cancel := context.WithCancel(context.Background())

		// Hot reload of the active shader
		var shaderWatcher *config.Watcher[string]
		if settings.ShaderWatch && settings.ShaderDir != "" {
			shaderWatcher = config.NewShaderWatcher(settings.ShaderDir, logging.GetLogger("shader"))
			shaderWatcher.OnReload(func(name string) {
				if name != rt.Manager.State().Shader {
					return
				}
				reloadCtx, reloadCancel := context.WithTimeout(ctx, 10*time.Second)
				defer reloadCancel()
				if reloadErr := rt.Manager.ReloadShader(reloadCtx); reloadErr != nil && !errors.Is(reloadErr, capture.ErrNotInitialized) {
					logger.Warn("Shader reload failed", "shader", name, "error", reloadErr)
				}
			})
		}

		// Logging levels follow the config file
		configWatcher := config.NewWatcher(opts.Config, func(path string) (logging.Config, error) {
			return config.LoadLoggingConfig(path), nil
		}, logger)
		configWatcher.OnReload(applyLogLevels)

		hooks.OnStart(func() {
			sseExporter.Start(ctx)
			if tally != nil {
				tally.Start(rt.Manager.State().Event())
			}

			if shaderWatcher != nil {
				if startErr := shaderWatcher.Start(); startErr != nil {
					logger.Warn("Shader hot reload disabled", "dir", settings.ShaderDir, "error", startErr)
				}
			}
			if startErr := configWatcher.Start(); startErr != nil {
				logger.Debug("Config file not watched", "path", opts.Config, "error", startErr)
			}

			go func() {
				initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
				defer initCancel()
				if initErr := rt.Start().Wait(initCtx); initErr != nil {
					logger.Error("Camera initialization failed", "error", initErr)
				}
			}()

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("sd_notify failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Release the camera after the API stops taking requests
			if shaderWatcher != nil {
				_ = shaderWatcher.Stop()
			}
			_ = configWatcher.Stop()
			cancel()
			rt.Close()
			sseExporter.Stop()
			if tally != nil {
				tally.Stop()
			}
			logging.SetLogCallback(nil)
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateShadersCmd())
	cli.Root().AddCommand(cmd.CreateRecordCmd())

	cli.Run()
}

// applyLogLevels sets every module to its configured level, falling back to
// the global level for modules the file does not name.
func applyLogLevels(cfg logging.Config) {
	logger := logging.GetLogger("main")
	for module := range logging.Levels() {
		level, ok := cfg.Modules[module]
		if !ok || level == "" {
			level = cfg.Level
		}
		if err := logging.SetLevel(module, level); err != nil {
			logger.Warn("Ignoring log level", "module", module, "level", level, "error", err)
		}
	}
	for module, level := range cfg.Modules {
		if err := logging.SetLevel(module, level); err != nil {
			logger.Warn("Ignoring log level", "module", module, "level", level, "error", err)
		}
	}
	logger.Info("Log levels reloaded", "level", cfg.Level)
}
