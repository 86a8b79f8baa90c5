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

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/arc-docs-api/api/swagger"
	"github.com/noah-isme/arc-docs-api/internal/handler"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	"github.com/noah-isme/arc-docs-api/internal/router"
	"github.com/noah-isme/arc-docs-api/internal/service"
	"github.com/noah-isme/arc-docs-api/pkg/cache"
	"github.com/noah-isme/arc-docs-api/pkg/config"
	"github.com/noah-isme/arc-docs-api/pkg/database"
	"github.com/noah-isme/arc-docs-api/pkg/events"
	"github.com/noah-isme/arc-docs-api/pkg/logger"
	"github.com/noah-isme/arc-docs-api/pkg/storage"
)

// @title ARC Document Governance API
// @version 1.0.0
// @description Controlled document lifecycle, approvals, numbering and audit trail.
// @BasePath /api/v1
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.ApplyMigrations(ctx, db)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			// statistics fall back to uncached queries
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "arc", logr),
		metrics,
		cfg.Stats.CacheTTL,
		logr,
		cfg.Stats.CacheEnabled && redisClient != nil,
	)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATS, logr)
		if err != nil {
			logr.Warn("nats unavailable, lifecycle events will not be published", zap.Error(err))
		} else {
			publisher = natsPublisher
		}
	}
	dispatcher := service.NewEventDispatcher(publisher, cfg.Events, metrics, logr)
	dispatcher.Start(ctx)

	documentRepo := repository.NewDocumentRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	roleRepo := repository.NewRoleRepository(db)

	directorySvc := service.NewDirectoryService(db, departmentRepo, roleRepo, nil, cacheSvc, validate, logr)
	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), directorySvc, validate, logr)
	directorySvc.SetAuditRecorder(auditSvc)
	if cfg.Bootstrap.AdminUserID != "" {
		if err := directorySvc.BootstrapAdmin(ctx, cfg.Bootstrap.AdminUserID); err != nil {
			logr.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	sequenceSvc := service.NewSequenceService(db, repository.NewSequenceRepository(db), departmentRepo, directorySvc, metrics, cfg.Sequences, validate, logr)
	signer := storage.NewSignedURLSigner(cfg.Downloads.SignedURLSecret, cfg.Downloads.SignedURLTTL)
	versionSvc := service.NewVersionService(repository.NewDocumentVersionRepository(db), documentRepo, directorySvc, auditSvc, signer, cfg.Downloads.BaseURL, logr)
	lifecycle := service.NewLifecycle(documentRepo, auditSvc)

	approvalSvc := service.NewApprovalService(service.ApprovalServiceDeps{
		DB:         db,
		Documents:  documentRepo,
		Approvals:  approvalRepo,
		Directory:  roleRepo,
		Subjects:   directorySvc,
		Lifecycle:  lifecycle,
		Audit:      auditSvc,
		Dispatcher: dispatcher,
		Cache:      cacheSvc,
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
	})

	documentSvc := service.NewDocumentService(service.DocumentServiceDeps{
		DB:          db,
		Documents:   documentRepo,
		Departments: departmentRepo,
		Approvals:   approvalSvc,
		Slots:       approvalRepo,
		Versions:    versionSvc,
		Sequences:   sequenceSvc,
		Lifecycle:   lifecycle,
		Subjects:    directorySvc,
		Audit:       auditSvc,
		Dispatcher:  dispatcher,
		Cache:       cacheSvc,
		Metrics:     metrics,
		StatsTTL:    cfg.Stats.CacheTTL,
		Validator:   validate,
		Logger:      logr,
	})

	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
	}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	engine := router.New(cfg, router.Dependencies{
		Documents: handler.NewDocumentHandler(documentSvc),
		Approvals: handler.NewApprovalHandler(approvalSvc),
		Versions:  handler.NewVersionHandler(versionSvc),
		Audit:     handler.NewAuditHandler(auditSvc),
		Directory: handler.NewDirectoryHandler(directorySvc),
		Sequences: handler.NewSequenceHandler(sequenceSvc),
		Ops:       handler.NewMetricsHandler(metrics, checks),
		Auth: service.NewAuthService(service.AuthConfig{
			Secret:    cfg.JWT.Secret,
			Issuer:    cfg.JWT.Issuer,
			Audience:  cfg.JWT.Audience,
			RoleClaim: cfg.JWT.RoleClaim,
		}, logr),
		Metrics: metrics,
		Logger:  logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	waitForShutdown(ctx, srv, dispatcher, logr)
}

func waitForShutdown(ctx context.Context, srv *http.Server, dispatcher *service.EventDispatcher, logr *zap.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	// committed transitions still in the queue are delivered before exit
	dispatcher.Stop()
	logr.Info("server stopped")
}
