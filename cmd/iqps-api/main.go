package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/metakgp/iqps-backend/api/swagger"
	"github.com/metakgp/iqps-backend/internal/handler"
	"github.com/metakgp/iqps-backend/internal/middleware"
	"github.com/metakgp/iqps-backend/internal/paths"
	"github.com/metakgp/iqps-backend/internal/repository"
	"github.com/metakgp/iqps-backend/internal/service"
	"github.com/metakgp/iqps-backend/pkg/cache"
	"github.com/metakgp/iqps-backend/pkg/config"
	"github.com/metakgp/iqps-backend/pkg/database"
	"github.com/metakgp/iqps-backend/pkg/logger"
	"github.com/metakgp/iqps-backend/pkg/observability"
	corsmiddleware "github.com/metakgp/iqps-backend/pkg/middleware/cors"
	reqidmiddleware "github.com/metakgp/iqps-backend/pkg/middleware/requestid"
	"github.com/metakgp/iqps-backend/pkg/storage"
)

// @title IQPS API
// @version 1.0.0
// @description Search, upload and review of university exam question papers.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, membership cache disabled", zap.Error(err))
	}

	resolver, err := paths.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("resolve storage paths: %w", err)
	}
	files, err := storage.NewLocalStorage(cfg.Storage.StorageRoot)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.GitHub.MembershipCacheTTL, logr, redisClient != nil)

	notifier := service.NewNotificationService(cfg.Notify, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	papers := repository.NewPaperRepository(db, cfg.Database.AcquireTimeout)
	paperSvc := service.NewPaperService(papers, resolver, metrics, logr)
	lifecycleSvc := service.NewLifecycleService(papers, files, resolver, notifier, metrics, validate, logr, service.LifecycleConfig{
		MaxFiles:    cfg.Uploads.MaxFiles,
		MaxFileSize: cfg.Uploads.MaxFileSize,
	})
	authSvc := service.NewAuthService(service.AuthConfig{
		TokenSecret:    cfg.JWT.Secret,
		TokenExpiry:    cfg.JWT.Expiration,
		ClientID:       cfg.GitHub.ClientID,
		ClientSecret:   cfg.GitHub.ClientSecret,
		OrgName:        cfg.GitHub.OrgName,
		TeamSlug:       cfg.GitHub.TeamSlug,
		OrgAdminToken:  cfg.GitHub.OrgAdminToken,
		AdminUsernames: cfg.GitHub.AdminUsernames,
		MembershipTTL:  cfg.GitHub.MembershipCacheTTL,
	}, cacheSvc, validate, logr)
	if !authSvc.Configured() {
		logr.Warn("github oauth is not configured, admin login will fail")
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/healthcheck", "/metrics"))
	r.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	searchHandler := handler.NewSearchHandler(paperSvc)
	uploadHandler := handler.NewUploadHandler(lifecycleSvc, cfg.Uploads.MaxRequestBytes)
	paperHandler := handler.NewPaperHandler(paperSvc, lifecycleSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r.GET("/health", metricsHandler.Health)
	r.GET("/healthcheck", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/search", searchHandler.Search)
	r.POST("/oauth", authHandler.OAuth)
	r.POST("/upload", uploadHandler.Upload)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := r.Group("/")
	admin.Use(middleware.JWT(authSvc))
	admin.GET("/profile", authHandler.Profile)
	admin.GET("/unapproved", paperHandler.Unapproved)
	admin.GET("/trash", paperHandler.Trash)
	admin.GET("/similar", paperHandler.Similar)
	admin.POST("/edit", middleware.Audit(logr, "paper.edit"), paperHandler.Edit)
	admin.POST("/delete", middleware.Audit(logr, "paper.delete"), paperHandler.Delete)
	admin.POST("/permanent-delete", middleware.Audit(logr, "paper.permanent_delete"), paperHandler.PermanentDelete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
