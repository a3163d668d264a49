package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/botroyale/gridroyale/internal/cache"
	"github.com/botroyale/gridroyale/internal/config"
	"github.com/botroyale/gridroyale/internal/dispatcher"
	"github.com/botroyale/gridroyale/internal/engine"
	"github.com/botroyale/gridroyale/internal/influx"
	"github.com/botroyale/gridroyale/internal/logging"
	"github.com/botroyale/gridroyale/internal/matchmaking"
	"github.com/botroyale/gridroyale/internal/monitor"
	intOtel "github.com/botroyale/gridroyale/internal/otel"
	"github.com/botroyale/gridroyale/internal/rating"
	"github.com/botroyale/gridroyale/internal/registry"
	"github.com/botroyale/gridroyale/internal/royale"
	"github.com/botroyale/gridroyale/internal/scheduler"
	"github.com/botroyale/gridroyale/internal/server"
	"github.com/botroyale/gridroyale/internal/worker"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gridroyale: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (string, error) {
	flags := pflag.NewFlagSet("gridroyale", pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory containing "+config.FileName)
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("storage", "memory", "storage backend: memory, sqlite or postgres")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return "", err
	}

	for key, name := range map[string]string{
		"server.listen": "listen",
		"storage.type":  "storage",
		"logLevel":      "log-level",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return "", fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return *configDir, nil
}

func run(args []string) error {
	sessionStart := time.Now()

	configDir, err := parseFlags(args)
	if err != nil {
		return err
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, viper.GetString("logLevel"), nil, nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config", "path", filepath.Join(configDir, config.FileName))
	}

	logLevel := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")
	logFile, err := logging.OpenLogFile(logsDir, logging.ServiceName, sessionStart)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logOut := io.MultiWriter(os.Stdout, logFile)

	// OpenTelemetry
	otelCfg := config.GetOTelConfig()
	providerCfg := intOtel.Config{
		Enabled:         otelCfg.Enabled,
		ServiceName:     otelCfg.ServiceName,
		BatchTimeout:    otelCfg.BatchTimeout,
		MetricsInterval: otelCfg.MetricsInterval,
		Endpoint:        otelCfg.Endpoint,
		Insecure:        otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		otelFile, err := logging.OpenLogFile(logsDir, logging.ServiceName+".otel", sessionStart)
		if err != nil {
			return err
		}
		defer otelFile.Close()
		providerCfg.LogWriter = otelFile
		providerCfg.MetricWriter = otelFile
	}
	otelProvider, err := intOtel.New(providerCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OTel: %w", err)
	}

	// Log records carry the latest monitor snapshot once it exists.
	var statusMonitor atomic.Pointer[monitor.Service]
	slogManager.Setup(logOut, logLevel, otelProvider.LoggerProvider(), func() []slog.Attr {
		if m := statusMonitor.Load(); m != nil {
			return m.LogContext()
		}
		return nil
	})
	logger = slogManager.Logger()
	logger.Info("Starting gridroyale", "version", Version, "buildDate", BuildDate, "otel", otelProvider.Enabled())

	zl := logging.NewZerolog(logOut, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background event fan-out
	eventDispatcher, err := dispatcher.New(logging.NewKVLogger(zl.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var points worker.PointWriter
	influxCfg := config.GetInfluxConfig()
	var influxManager *influx.Manager
	if influxCfg.Enabled {
		influxManager = influx.NewManager(zl.With().Str("component", "influx").Logger(), influxCfg)
		if err := influxManager.Connect(ctx); err != nil {
			logger.Error("Failed to set up InfluxDB, match metrics disabled", "error", err)
			influxManager = nil
		} else {
			points = influxManager
		}
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Influx: points,
		Logger: slogManager.Component("worker"),
	})
	workerManager.RegisterHandlers(eventDispatcher)

	// Storage
	store, err := initStorage(config.GetStorageConfig(), slogManager.Component("storage"))
	if err != nil {
		return err
	}

	// Game services
	gameCfg := config.GetGameConfig()
	updater, err := rating.New(gameCfg.Rating)
	if err != nil {
		return err
	}

	agents := registry.New(registry.Dependencies{
		Store:  store,
		Cache:  cache.NewAgentCache(),
		Events: eventDispatcher,
		Logger: slogManager.Component("registry"),
	})

	matchEngine, err := engine.New(engine.Dependencies{
		Store:         store,
		Rules:         gameCfg.Rules,
		Rating:        updater,
		Rand:          royale.NewRand(gameCfg.Seed),
		ActionTimeout: gameCfg.ActionTimeout,
		Directory:     agents,
		Events:        eventDispatcher,
		Logger:        slogManager.Component("engine"),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	queue, err := matchmaking.NewManager(matchmaking.Dependencies{
		Store:           store,
		Engine:          matchEngine,
		MinPlayers:      gameCfg.Rules.MinPlayers,
		MaxPlayers:      gameCfg.Rules.MaxPlayers,
		RequireVerified: gameCfg.RequireVerified,
		Logger:          slogManager.Component("matchmaking"),
	})
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	resolver := scheduler.NewService(scheduler.Dependencies{
		Resolver: matchEngine,
		Interval: gameCfg.ResolveInterval,
		Logger:   slogManager.Component("scheduler"),
	})
	resolver.Start(ctx)

	monitorCfg := config.GetMonitorConfig()
	monitorService := monitor.NewService(monitor.Dependencies{
		Queue:      queue,
		Matches:    matchEngine,
		Scheduler:  resolver,
		Worker:     workerManager,
		StatusFile: monitorCfg.StatusFile,
		Interval:   monitorCfg.Interval,
		Logger:     slogManager.Component("monitor"),
	})
	statusMonitor.Store(monitorService)
	if err := monitorService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	// HTTP
	serverCfg := config.GetServerConfig()
	if serverCfg.AdminKey == "" {
		logger.Warn("server.adminKey is empty, agent verification is disabled")
	}
	api := server.New(server.Dependencies{
		Registry: agents,
		Queue:    queue,
		Engine:   matchEngine,
		Status:   monitorService,
		AdminKey: serverCfg.AdminKey,
		Logger:   slogManager.Component("http"),
	})
	httpServer := &http.Server{
		Addr:         serverCfg.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", serverCfg.Listen, "storage", config.GetStorageConfig().Type)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	resolver.Stop()
	monitorService.Stop()
	eventDispatcher.Close()
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("influx close: %w", err))
		}
	}
	if err := store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	logger.Info("Stopped", "uptime", time.Since(sessionStart).Round(time.Second))
	return errors.Join(errs...)
}
