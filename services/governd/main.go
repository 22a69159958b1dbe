package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	runtimeconfig "stakegov/config"
	"stakegov/core"
	"stakegov/core/audit"
	"stakegov/gateway/middleware"
	"stakegov/observability"
	"stakegov/observability/logging"
	"stakegov/observability/metrics"
	telemetry "stakegov/observability/otel"
	"stakegov/services/governd/config"
	"stakegov/services/governd/server"
	"stakegov/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/governd/config.yaml", "path to governd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.Setup("governd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	runtimeCfg, err := runtimeconfig.Load(cfg.RuntimeConfig)
	if err != nil {
		log.Fatalf("load runtime config: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: "governd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes:  map[string]string{"stakegov.token.symbol": runtimeCfg.Token.Symbol},
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openJournalDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open audit database: %v", err)
	}
	defer db.Close()
	journal, err := audit.Open(db)
	if err != nil {
		log.Fatalf("open audit journal: %v", err)
	}
	if err := journal.Verify(); err != nil {
		log.Fatalf("audit journal failed verification: %v", err)
	}

	rt, err := core.New(runtimeCfg,
		core.WithLogger(logger.With(slog.String("component", "runtime"))),
		core.WithJournal(journal),
		core.WithMetrics(metrics.Governance()),
		core.WithEmitter(observability.Events()),
		core.WithEventBuffer(cfg.EventBuffer),
	)
	if err != nil {
		log.Fatalf("start runtime: %v", err)
	}
	defer rt.Close()
	observability.Events().ObserveHub(rt.Events())

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	httpLogger := logger.With(slog.String("component", "http"))
	service := server.New(rt, server.Options{
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.Secret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, httpLogger),
		RateLimiter: middleware.NewRateLimiter(limits, httpLogger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			Operation:   "governd",
			LogRequests: cfg.Logging.LogRequests,
		}, httpLogger),
		CORS:   middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger: httpLogger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           service.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("governd listening",
			slog.String("listen", cfg.ListenAddress),
			slog.Bool("auth", cfg.Auth.Enabled),
			logging.MaskField("hmacSecret", cfg.Auth.Secret()),
			slog.Uint64("auditRecords", journal.Len()))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing shutdown", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve HTTP: %v", err)
		}
	}
}

// openJournalDB opens the LevelDB audit store under dataDir, or an in-memory
// store when no data directory is configured.
func openJournalDB(dataDir string) (storage.Database, error) {
	if dataDir == "" {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "audit"))
	if err != nil {
		return nil, err
	}
	return db, nil
}
