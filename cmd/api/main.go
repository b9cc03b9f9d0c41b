package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andredfaria/daily/internal/app"
	"github.com/andredfaria/daily/internal/audit"
	"github.com/andredfaria/daily/internal/config"
	"github.com/andredfaria/daily/internal/identity"
	"github.com/andredfaria/daily/internal/notify"
	"github.com/andredfaria/daily/internal/store"
	"github.com/andredfaria/daily/internal/waha"
)

func newLogger(cfg config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// newIdentityProvider expects a config that passed Validate.
func newIdentityProvider(cfg config.Config, dataStore *store.PostgresStore, logger *zap.Logger) identity.Provider {
	if cfg.IdentityBackend == "local" {
		return identity.NewLocal(dataStore, cfg.JWTSecret, cfg.AccessTTL)
	}
	return identity.NewGoTrue(identity.GoTrueConfig{
		BaseURL:    cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		ServiceKey: cfg.SupabaseServiceKey,
		Timeout:    cfg.IdentityTimeout,
	}, logger)
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	dataStore := store.NewPostgresStore(db)

	sinks := []audit.Sink{audit.NewLogSink(logger.Named("audit")), audit.NewPostgresSink(dataStore)}
	if cfg.RedisURL != "" {
		redisSink, err := audit.NewRedisSink(cfg.RedisURL, cfg.AuditStream)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisSink.Close()
		sinks = append(sinks, redisSink)
		logger.Info("audit records mirrored to redis stream", zap.String("stream", cfg.AuditStream))
	}
	recorder := audit.NewRecorder(logger, sinks...)

	gateway := waha.NewGateway(waha.Config{
		BaseURL: cfg.WAHABaseURL,
		APIKey:  cfg.WAHAAPIKey,
		Session: cfg.WAHASession,
		Timeout: cfg.WAHATimeout,
	}, logger)
	if !gateway.Configured() {
		logger.Warn("WAHA_BASE_URL not set; phone validation and profile lookups are disabled")
	}

	webhook := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout, logger)
	defer webhook.Wait()

	service := app.New(cfg, app.Deps{
		Store:      dataStore,
		Identities: newIdentityProvider(cfg, dataStore, logger),
		Gateway:    gateway,
		Audit:      recorder,
		Notifier:   webhook,
		Logger:     logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("daily API listening", zap.String("addr", cfg.Addr), zap.String("identity_backend", cfg.IdentityBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
