package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	_ "github.com/mikepea/linkcash/api/swagger"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/cache"
	"github.com/mikepea/linkcash/pkg/linkcash/config"
	"github.com/mikepea/linkcash/pkg/linkcash/database"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/logging"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/models"
	"github.com/mikepea/linkcash/pkg/linkcash/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// @title Linkcash API
// @version 1.0
// @description Link shortening with click attribution, earnings and analytics.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT or OIDC ID token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load(os.Getenv("LINKCASH_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations completed", zap.String("driver", cfg.Database.Driver))

	if err := auth.EnsureAdmin(ctx, db, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, logger); err != nil {
		logger.Fatal("failed to ensure admin user exists", zap.Error(err))
	}

	var codeCache links.CodeCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		codeCache = cache.NewRedisCodeCache(client, cfg.Redis.CacheTTL)
		logger.Info("short code cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var external auth.Verifier
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			logger.Fatal("failed to initialise OIDC verifier", zap.Error(err))
		}
		external = v
	}

	app, err := server.New(server.Options{
		Config:           cfg,
		DB:               db,
		Logger:           logger,
		Metrics:          metrics.New(prometheus.DefaultRegisterer),
		Gatherer:         prometheus.DefaultGatherer,
		CodeCache:        codeCache,
		ExternalVerifier: external,
	})
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: app.Router,
	}

	go func() {
		logger.Info("starting linkcash server", zap.String("addr", srv.Addr), zap.String("base_url", cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
