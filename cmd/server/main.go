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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cartridge/replay/internal/config"
	"github.com/cartridge/replay/internal/events"
	httpServer "github.com/cartridge/replay/internal/http"
	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/middleware"
	"github.com/cartridge/replay/internal/monitor"
	"github.com/cartridge/replay/internal/service"
	"github.com/cartridge/replay/internal/storage"
	replayv1 "github.com/cartridge/replay/pkg/api/replay/v1"
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Cartridge prioritized replay buffer service",
	Long: `Replay service that stores transitions from actors and serves
prioritized training batches to the learner over gRPC.

An admin HTTP listener exposes health, Prometheus metrics and buffer stats.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "replay").Logger(), nil
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.NoopPublisher{}, func() {}, nil
	}
	publisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(logger, registry)
	if err != nil {
		return fmt.Errorf("create metrics collector: %w", err)
	}

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect event publisher: %w", err)
	}
	defer closePublisher()

	// Assigned before any listener starts, so evictions always see it.
	var reporter *monitor.Reporter
	backend, err := storage.NewMemoryBackend(storage.MemoryConfig{
		Capacity:   cfg.Capacity,
		Alpha:      cfg.Alpha,
		Beta:       cfg.Beta,
		Prefetch:   cfg.Prefetch,
		Seed:       cfg.Seed,
		Logger:     logger,
		Registerer: registry,
		OnEvict: func(n int) {
			collector.Eviction(n)
			reporter.RecordEviction(n)
		},
	})
	if err != nil {
		return fmt.Errorf("create replay backend: %w", err)
	}
	defer backend.Close()
	reporter = monitor.NewReporter(backend, publisher, cfg.StatsInterval, logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(middleware.UnaryLogger(logger, collector)))
	replayv1.RegisterReplayServer(grpcServer, service.NewReplayService(backend, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(replayv1.ServiceName, healthpb.HealthCheckResponse_SERVING)

	var adminServer *http.Server
	if cfg.AdminAddr != "" {
		admin := httpServer.NewServer(backend, registry, collector, logger)
		adminServer = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info().
			Str("addr", cfg.GRPCAddr).
			Int("capacity", cfg.Capacity).
			Float32("alpha", cfg.Alpha).
			Float32("beta", cfg.Beta).
			Int("prefetch", cfg.Prefetch).
			Msg("Replay gRPC server starting")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	if adminServer != nil {
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("Admin HTTP server starting")
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin http server: %w", err)
			}
		}()
	}

	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Start(ctx)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Server failed")
		stop()
	}

	shutdown(cfg.ShutdownTimeout, grpcServer, healthServer, adminServer, logger)
	<-reporterDone
	reporter.Report(context.Background())

	logger.Info().Msg("Replay service stopped")
	return serveErr
}

func shutdown(timeout time.Duration, grpcServer *grpc.Server, healthServer *health.Server, adminServer *http.Server, logger zerolog.Logger) {
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if adminServer != nil {
		if err := adminServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Admin HTTP graceful shutdown failed")
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn().Dur("timeout", timeout).Msg("Graceful stop timed out, forcing gRPC shutdown")
		grpcServer.Stop()
		<-stopped
	}
}
