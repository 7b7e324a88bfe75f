package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bus-tracker/internal/apiclient"
	"bus-tracker/internal/config"
	"bus-tracker/internal/db"
	"bus-tracker/internal/httpapi"
	"bus-tracker/internal/logging"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/refdata"
	"bus-tracker/internal/static"
	"bus-tracker/internal/tracker"
)

func main() {
	// Load configuration from .env, optional YAML file and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logging.LogError(logger, "tracker failed", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PollInterval, cfg.HealthInterval)
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer shutdown(srv, logger)
	}

	// Optional NATS fan-out
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		p, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), logger)
		if err != nil {
			return err
		}
		pub = p
		defer pub.Close()
		logger.Info("nats connected", slog.String("url", cfg.NATSURL), slog.String("prefix", cfg.NATSSubjectPrefix))
	}

	api := apiclient.New(cfg.APIBaseURL, cfg.DataTimeout, cfg.HealthTimeout, apiclient.WithLogger(logger))
	resources := static.NewFetcher(cfg.StaticBase, cfg.StaticCacheTTL, cfg.DataTimeout, logger)
	loader := refdata.NewLoader(api, resources, logger)

	var vehicles tracker.VehicleSource = api
	if cfg.VehicleSource == config.SourceDB {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer logging.SafeCloseWithLogging(sqlDB, logger, "database")
		if err := db.Ping(ctx, sqlDB); err != nil {
			return err
		}
		logger.Info("reading vehicles from database",
			slog.String("dsn", db.Redact(cfg.DatabaseURL)),
			slog.String("table", cfg.PositionsTable))
		vehicles = db.NewSource(sqlDB, cfg.PositionsTable)
	}

	opts := tracker.Options{
		Vehicles:       vehicles,
		Health:         api,
		Reference:      loader,
		Logger:         logger,
		PollInterval:   cfg.PollInterval,
		HealthInterval: cfg.HealthInterval,
		StopsLimit:     cfg.StopsLimit,
	}
	if mcol != nil {
		opts.Metrics = mcol
	}
	if pub != nil {
		opts.Publisher = pub
	}
	trk := tracker.New(opts)
	trk.Start(ctx)
	defer trk.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(trk, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", slog.String("addr", cfg.ListenAddr), slog.String("api", cfg.APIBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Block until context cancelled or the server dies
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdown(srv, logger)
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.LogError(logger, "server shutdown", err, slog.String("addr", srv.Addr))
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
