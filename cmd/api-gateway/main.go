package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academic-enrollment-api/api/swagger"
	"github.com/noah-isme/academic-enrollment-api/internal/academic"
	"github.com/noah-isme/academic-enrollment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/academic-enrollment-api/internal/middleware"
	"github.com/noah-isme/academic-enrollment-api/internal/models"
	"github.com/noah-isme/academic-enrollment-api/internal/repository"
	"github.com/noah-isme/academic-enrollment-api/internal/service"
	"github.com/noah-isme/academic-enrollment-api/pkg/cache"
	"github.com/noah-isme/academic-enrollment-api/pkg/config"
	"github.com/noah-isme/academic-enrollment-api/pkg/database"
	"github.com/noah-isme/academic-enrollment-api/pkg/jobs"
	"github.com/noah-isme/academic-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academic-enrollment-api/pkg/middleware/requestid"
)

// @title Academic Enrollment API
// @version 1.0.0
// @description Subject enrollment, group management and change request workflows
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	subjectRepo := repository.NewSubjectRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	changeSetRepo := repository.NewChangeSetRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	registry := repository.NewRegistry(repository.RegistrySources{
		Subjects:    subjectRepo,
		Groups:      groupRepo,
		Students:    studentRepo,
		Enrollments: enrollmentRepo,
		Requests:    requestRepo,
	}, cfg.Cache.CatalogTTL, logr)
	ops := academic.New(registry)

	writer := service.NewChangeSetWriter(changeSetRepo, requestRepo, metrics, logr)
	commitQueue := jobs.NewQueue("changeset-retry", writer.Handle, jobs.QueueConfig{
		Workers:    cfg.Persistence.CommitWorkers,
		MaxRetries: cfg.Persistence.CommitRetries,
		RetryDelay: cfg.Persistence.RetryDelay,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			logr.Error("change set abandoned, database is behind memory", zap.String("job_id", job.ID), zap.String("job_type", job.Type), zap.Error(err))
		},
	})
	commitQueue.Start(ctx)
	writer.UseQueue(commitQueue)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.StatsTTL, logr, redisClient != nil)
	invalidator := service.NewStatsInvalidator(cacheSvc, logr)
	invalidationQueue := jobs.NewQueue("stats-invalidation", invalidator.Handle, jobs.QueueConfig{
		Workers:    cfg.Persistence.InvalidationWorkers,
		MaxRetries: cfg.Persistence.InvalidationRetries,
		RetryDelay: cfg.Persistence.RetryDelay,
		Logger:     logr,
	})
	invalidationQueue.Start(ctx)
	invalidator.UseQueue(invalidationQueue)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            cfg.JWT.Leeway,
	})
	enrollmentSvc := service.NewEnrollmentService(ops, registry, writer, metrics, validate, logr)
	requestSvc := service.NewRequestService(ops, registry, requestRepo, writer, metrics, validate, logr,
		service.WithStatsCache(cacheSvc, invalidator, cfg.Cache.StatsTTL))
	catalogSvc := service.NewCatalogService(ops, registry, subjectRepo, groupRepo, writer, metrics, validate, logr)

	warmGroups(ctx, groupRepo, registry, metrics, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	auditHandler := handler.NewAuditHandler(auditRepo)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(authSvc))
	staff := internalmiddleware.RequireStaff()
	staffOrSelf := internalmiddleware.RequireStaffOrSelf()
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(auditRepo, logr, action, resource)
	}

	api.GET("/subjects", catalogHandler.ListSubjects)
	api.POST("/subjects", staff, audit(models.AuditActionSubjectCreate, "subjects"), catalogHandler.CreateSubject)
	api.GET("/groups", catalogHandler.ListGroups)
	api.POST("/groups", staff, audit(models.AuditActionGroupCreate, "groups"), catalogHandler.CreateGroup)
	api.GET("/groups/:id", catalogHandler.GetGroup)
	api.POST("/groups/:id/open", staff, audit(models.AuditActionGroupOpen, "groups"), catalogHandler.OpenGroup)
	api.POST("/groups/:id/close", staff, audit(models.AuditActionGroupClose, "groups"), catalogHandler.CloseGroup)
	api.DELETE("/groups/:id", staff, audit(models.AuditActionGroupDelete, "groups"), catalogHandler.DeleteGroup)

	api.POST("/enrollments", enrollmentHandler.Enroll)
	api.POST("/enrollments/unenroll", enrollmentHandler.Unenroll)
	api.POST("/enrollments/grade", staff, audit(models.AuditActionEnrollmentGrade, "enrollments"), enrollmentHandler.Grade)

	students := api.Group("/students/:id", staffOrSelf)
	students.GET("/enrollments", enrollmentHandler.StudentEnrollments)
	students.GET("/eligibility", enrollmentHandler.Eligibility)
	students.GET("/requests/stats", requestHandler.Stats)
	students.GET("/requests/history", requestHandler.History)
	students.GET("/requests/history/export", requestHandler.ExportHistory)

	api.POST("/requests/group-change", requestHandler.CreateGroupChange)
	api.POST("/requests/subject-change", requestHandler.CreateSubjectChange)
	api.DELETE("/requests/:id", requestHandler.Cancel)
	api.POST("/requests/:id/review", staff, audit(models.AuditActionRequestReview, "requests"), requestHandler.Review)
	api.POST("/requests/:id/approve", staff, audit(models.AuditActionRequestApprove, "requests"), requestHandler.Approve)
	api.POST("/requests/:id/reject", staff, audit(models.AuditActionRequestReject, "requests"), requestHandler.Reject)

	api.GET("/metrics/summary", staff, metricsHandler.Summary)
	api.GET("/audit-logs", staff, auditHandler.List)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	commitQueue.Stop()
	invalidationQueue.Stop()
	logr.Info("server stopped",
		zap.Uint64("commit_retries_abandoned", commitQueue.Stats().Abandoned),
		zap.Uint64("invalidations_abandoned", invalidationQueue.Stats().Abandoned),
	)
}

// warmGroups makes every group resident so occupancy gauges are populated from the start.
func warmGroups(ctx context.Context, groups *repository.GroupRepository, registry *repository.Registry, metrics *service.MetricsService, logr *zap.Logger) {
	rows, err := groups.List(ctx, models.GroupFilter{})
	if err != nil {
		logr.Warn("group warm-up skipped", zap.Error(err))
		return
	}
	for _, row := range rows {
		if _, err := registry.LoadGroup(ctx, row.ID); err != nil {
			logr.Warn("group warm-up failed", zap.String("group_id", row.ID), zap.Error(err))
		}
	}
	for _, group := range registry.Groups() {
		metrics.SetGroupOccupancy(group)
	}
	logr.Info("groups loaded", zap.Int("count", len(rows)))
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
