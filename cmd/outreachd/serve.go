package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/admission"
	"github.com/fyrsmithlabs/outreachd/internal/cache"
	"github.com/fyrsmithlabs/outreachd/internal/config"
	"github.com/fyrsmithlabs/outreachd/internal/contextstore"
	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/httpapi"
	"github.com/fyrsmithlabs/outreachd/internal/logging"
	"github.com/fyrsmithlabs/outreachd/internal/pipeline"
	"github.com/fyrsmithlabs/outreachd/internal/segments"
	"github.com/fyrsmithlabs/outreachd/internal/services"
	"github.com/fyrsmithlabs/outreachd/internal/staleness"
	"github.com/fyrsmithlabs/outreachd/internal/store"
	"github.com/fyrsmithlabs/outreachd/internal/telemetry"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outreachd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		if err := run(ctx); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Initialization order: configuration, logger, telemetry, store, cache,
// event bus with NATS bridge, domain engines, service registry, HTTP
// server. Shutdown unwinds in reverse.
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting outreachd",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_path", cfg.Storage.Path),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("embedded_nats", cfg.Events.Embedded),
	)

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Observability.EnableTelemetry,
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	var ch cache.Cache = cache.NewNoop()
	if cfg.Cache.Enabled {
		ch = cache.NewLRU(&cache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL,
		}, logger)
	}

	bus := events.NewBus(logger)

	var embedded *natsserver.Server
	var nc *nats.Conn
	if cfg.Events.Embedded {
		embedded, nc, err = events.StartEmbeddedServer()
		if err != nil {
			return fmt.Errorf("starting embedded NATS server: %w", err)
		}
	} else {
		nc, err = events.Connect(cfg.Events.URL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
	}
	defer func() {
		nc.Close()
		if embedded != nil {
			embedded.Shutdown()
		}
	}()
	bus.AttachNATS(nc)

	registry, err := buildServices(cfg, st, ch, bus, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	srv := httpapi.NewServer(httpapi.Config{
		Port:            cfg.Server.Port,
		ServiceName:     cfg.Observability.ServiceName,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, registry, logger)

	logger.Info("server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("api_prefix", "/api/v1"),
	)

	return srv.Start(ctx)
}

// buildServices wires the domain engines into the service registry.
func buildServices(cfg *config.Config, st *store.Store, ch cache.Cache, bus *events.Bus, logger *zap.Logger) (services.Registry, error) {
	contexts, err := contextstore.NewService(contextstore.DefaultConfig(), st, ch, segments.NewStoreResolver(st), logger)
	if err != nil {
		return nil, fmt.Errorf("context store service: %w", err)
	}

	adm, err := admission.NewEngine(st, ch, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("admission engine: %w", err)
	}

	stale, err := staleness.NewEngine(st, staleness.DefaultGraph(), bus, logger)
	if err != nil {
		return nil, fmt.Errorf("staleness engine: %w", err)
	}

	generator := pipeline.NewHTTPGenerator(cfg.Pipeline.GeneratorURL, cfg.Pipeline.GeneratorTimeout)
	runner, err := pipeline.NewRunner(
		&pipeline.Config{MarkRetries: cfg.Pipeline.MarkRetries},
		contexts, stale, adm, generator, bus, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline runner: %w", err)
	}

	return services.NewRegistry(services.Options{
		Store:     st,
		Cache:     ch,
		Contexts:  contexts,
		Admission: adm,
		Staleness: stale,
		Pipeline:  runner,
		Bus:       bus,
	}), nil
}
