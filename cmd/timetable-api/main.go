package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/schoolhub-dev/timetable-api/api/swagger"
	"github.com/schoolhub-dev/timetable-api/internal/handler"
	"github.com/schoolhub-dev/timetable-api/internal/middleware"
	"github.com/schoolhub-dev/timetable-api/internal/repository"
	"github.com/schoolhub-dev/timetable-api/internal/service"
	"github.com/schoolhub-dev/timetable-api/pkg/cache"
	"github.com/schoolhub-dev/timetable-api/pkg/config"
	"github.com/schoolhub-dev/timetable-api/pkg/database"
	"github.com/schoolhub-dev/timetable-api/pkg/logger"
	corsmiddleware "github.com/schoolhub-dev/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/schoolhub-dev/timetable-api/pkg/middleware/requestid"
	"github.com/schoolhub-dev/timetable-api/pkg/storage"
)

// @title School Timetable API
// @version 1.0.0
// @description Automatic weekly timetable generation and editing for school classes
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Timetable.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, running without timetable cache", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, true)
			defer cacheRepo.Close()
		}
	}

	timetableRepo := repository.NewTimetableRepository(db)
	classRepo := repository.NewClassRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	grid := service.DefaultPeriodGrid()
	detector := service.NewConflictDetector()
	generator := service.NewTimetableGenerator(grid, detector, logr)

	draftCfg := service.DraftConfig{
		AcademicYear: cfg.Timetable.AcademicYear,
		Term:         cfg.Timetable.Term,
	}
	draftSvc := service.NewDraftService(classRepo, rosterRepo, timetableRepo, generator, cacheSvc, nil, logr, draftCfg)
	bulkSvc := service.NewBulkScheduleService(classRepo, timetableRepo, draftSvc, nil, logr, cfg.Timetable.AcademicYear)

	var exportSvc *service.ExportService
	if cfg.Export.Enabled {
		var archive *storage.LocalStorage
		if cfg.Export.ArchiveDir != "" {
			archive, err = storage.NewLocalStorage(cfg.Export.ArchiveDir)
			if err != nil {
				logr.Warn("export archive unavailable", zap.Error(err))
			} else if deleted, cleanupErr := archive.CleanupOlderThan(cfg.Export.ArchiveTTL); cleanupErr != nil {
				logr.Warn("export archive cleanup failed", zap.Error(cleanupErr))
			} else if len(deleted) > 0 {
				logr.Info("expired export archives removed", zap.Int("count", len(deleted)))
			}
		}
		if archive != nil {
			exportSvc = service.NewExportService(timetableRepo, classRepo, rosterRepo, grid, cfg.Timetable.AcademicYear, logr, nil, nil, archive)
		} else {
			exportSvc = service.NewExportService(timetableRepo, classRepo, rosterRepo, grid, cfg.Timetable.AcademicYear, logr, nil, nil, nil)
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	var timetableHandler *handler.TimetableHandler
	if exportSvc != nil {
		timetableHandler = handler.NewTimetableHandler(draftSvc, bulkSvc, exportSvc, cacheSvc, metricsSvc)
	} else {
		timetableHandler = handler.NewTimetableHandler(draftSvc, bulkSvc, nil, cacheSvc, metricsSvc)
	}
	timetableHandler.RegisterRoutes(api)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	srv := &http.Server{Addr: addr, Handler: r}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
