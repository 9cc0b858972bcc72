// Package main runs the stream recorder HTTP server, monitor loop and
// background worker with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamvault/backend/config"
	"github.com/streamvault/backend/internal/capture"
	"github.com/streamvault/backend/internal/clock"
	"github.com/streamvault/backend/internal/middleware"
	"github.com/streamvault/backend/internal/platform"
	"github.com/streamvault/backend/internal/realtime"
	"github.com/streamvault/backend/internal/recordings"
	"github.com/streamvault/backend/internal/rotation"
	"github.com/streamvault/backend/internal/scheduler"
	"github.com/streamvault/backend/internal/schedules"
	"github.com/streamvault/backend/internal/system"
	"github.com/streamvault/backend/internal/worker"
	"github.com/streamvault/backend/pkg/database"
	"github.com/streamvault/backend/pkg/queue"
	"github.com/streamvault/backend/pkg/redis"
	"github.com/streamvault/backend/pkg/response"
	"github.com/streamvault/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Recording.Dir, 0o755); err != nil {
		logger.Fatal("recordings dir", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 archiving disabled", zap.Error(err))
		}
	}

	// Time authority. Without an upstream source the local clock is used
	// and durations are best-effort.
	var timeSource clock.Source
	if cfg.Clock.SourceURL != "" {
		timeSource = clock.NewHTTPSource(cfg.Clock.SourceURL, cfg.Clock.SyncTimeout)
	}
	authority := clock.NewAuthority(timeSource, logger)
	if timeSource != nil {
		if _, err := authority.Sync(ctx); err != nil {
			logger.Warn("initial clock sync failed, running degraded", zap.Error(err))
		}
	}

	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Repositories
	scheduleRepo := schedules.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	policyRepo := rotation.NewRepository(pool)
	systemRepo := system.NewRepository(pool, cfg.Scheduler.MonitoringIntervalSec)

	// Rotation
	applier := rotation.NewApplier(scheduleRepo, recordingRepo, policyRepo,
		authority, hub, jobQueue, logger)

	// Capture + lifecycle + monitor loop
	agent := capture.NewClient(cfg.Capture.AgentURL, cfg.Capture.PollInterval,
		cfg.Capture.StopTimeout, logger)
	lifecycle := scheduler.NewLifecycle(recordingRepo, agent, applier, hub,
		jobQueue, authority, cfg.Recording.Dir, logger)
	checker := platform.NewHTTPChecker(cfg.Scheduler.LivenessTimeout, logger)
	monitor := scheduler.NewScheduler(scheduleRepo, checker, lifecycle, systemRepo,
		cfg.Scheduler.MonitoringIntervalSec, cfg.Scheduler.LivenessTimeout, logger)

	// Recordings left in "recording" by a previous crash are closed out and
	// their schedules rotated before the loop starts.
	if _, err := lifecycle.RecoverStuck(ctx); err != nil {
		logger.Error("crash recovery", zap.Error(err))
	}

	// Handlers
	scheduleHandler := schedules.NewHandler(scheduleRepo, lifecycle, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, presigner(s3Client), logger)
	rotationHandler := rotation.NewHandler(policyRepo, applier, recordingRepo,
		cfg.Recording.Dir, logger)
	schedulerHandler := scheduler.NewHandler(monitor, lifecycle, authority, logger)
	systemHandler := system.NewHandler(systemRepo, authority, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	scheduleHandler.RegisterRoutes(router)
	recordingHandler.RegisterRoutes(router)
	rotationHandler.RegisterRoutes(router)
	schedulerHandler.RegisterRoutes(router)
	systemHandler.RegisterRoutes(router)
	router.GET("/ws", realtime.ServeWs(hub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go monitor.Run(bgCtx)
	if timeSource != nil {
		go authority.Run(bgCtx, 10*time.Minute)
	}

	jobWorker := worker.New(recordingRepo, applier, s3Client, jobQueue, logger)
	go jobWorker.Run(bgCtx)

	// Periodic full rotation sweep catches drift from external file changes
	// and policies edited while nothing was recording.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Scheduler.RotationSweepSpec, func() {
		if _, err := applier.ApplyAll(bgCtx); err != nil {
			logger.Error("rotation sweep", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("rotation sweep spec", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Stop captures first so their terminal transitions land before the
	// pool closes.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Capture.StopTimeout)
	lifecycle.StopAll(stopCtx)
	stopCancel()

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// presigner avoids handing a typed nil to the recordings handler when
// archiving is disabled.
func presigner(s3Client *storage.S3) recordings.Presigner {
	if s3Client == nil {
		return nil
	}
	return s3Client
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
