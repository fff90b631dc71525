package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkcash/pkg/linkcash/admin"
	"github.com/mikepea/linkcash/pkg/linkcash/analytics"
	"github.com/mikepea/linkcash/pkg/linkcash/auth"
	"github.com/mikepea/linkcash/pkg/linkcash/clicks"
	"github.com/mikepea/linkcash/pkg/linkcash/config"
	"github.com/mikepea/linkcash/pkg/linkcash/dashboard"
	"github.com/mikepea/linkcash/pkg/linkcash/idgen"
	"github.com/mikepea/linkcash/pkg/linkcash/links"
	"github.com/mikepea/linkcash/pkg/linkcash/metrics"
	"github.com/mikepea/linkcash/pkg/linkcash/middleware"
	"github.com/mikepea/linkcash/pkg/linkcash/redirect"
	"github.com/mikepea/linkcash/pkg/linkcash/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries the process-level dependencies the router is built from.
type Options struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Gatherer backs the metrics endpoint. Nil disables it.
	Gatherer prometheus.Gatherer
	// CodeCache is optional.
	CodeCache links.CodeCache
	// ExternalVerifier, when set, is accepted alongside local JWTs.
	ExternalVerifier auth.Verifier
}

// App is the assembled service.
type App struct {
	Router     *gin.Engine
	Store      *store.GormStore
	Registry   *links.Registry
	Recorder   *clicks.Recorder
	Engine     *analytics.Engine
	Reconciler *analytics.Reconciler
	Tokens     *auth.JWTManager
}

// New wires every component and registers all routes.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}

	st := store.NewGormStore(opts.DB)

	gen, err := idgen.New(idgen.WithLength(cfg.Links.CodeLength))
	if err != nil {
		return nil, fmt.Errorf("failed to create code generator: %w", err)
	}

	registry := links.NewRegistry(st, gen, opts.CodeCache, logger, m, links.Config{
		MaxAttempts:          cfg.Links.MaxAttempts,
		DefaultRedirectDelay: cfg.Links.DefaultRedirectDelay,
	})
	recorder := clicks.NewRecorder(st, clicks.NewPricer(cfg.Pricing), logger, m)
	engine := analytics.NewEngine(st, logger, m)
	reconciler := analytics.NewReconciler(st, logger, m)
	dash := dashboard.NewService(st, registry, engine, logger)

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	var verifier auth.Verifier = tokens
	if opts.ExternalVerifier != nil {
		verifier = auth.ChainVerifier{tokens, opts.ExternalVerifier}
	}
	requireAuth := auth.AuthMiddleware(verifier, st)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Metrics(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled && opts.Gatherer != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	redirectHandler := redirect.NewHandler(registry, recorder, clicks.DefaultGeoLocator(), cfg.Server.RecordTimeout, logger)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "linkcash",
			})
		})

		auth.NewHandler(opts.DB, tokens, verifier, logger).RegisterRoutes(api.Group("/auth"), st)

		protected := api.Group("", requireAuth)
		links.NewHandler(registry, cfg.Server.BaseURL, logger).RegisterRoutes(protected)
		analytics.NewHandler(engine, registry, logger).RegisterRoutes(protected)
		dashboard.NewHandler(dash, logger).RegisterRoutes(protected)

		adminGroup := api.Group("/admin")
		adminGroup.Use(requireAuth, auth.RequireAdmin())
		admin.NewHandler(opts.DB, st, reconciler, logger).RegisterRoutes(adminGroup)

		redirectHandler.RegisterTrackRoutes(api)
	}

	// Short codes live at the root, so this goes last.
	redirectHandler.RegisterRoutes(r)

	return &App{
		Router:     r,
		Store:      st,
		Registry:   registry,
		Recorder:   recorder,
		Engine:     engine,
		Reconciler: reconciler,
		Tokens:     tokens,
	}, nil
}
