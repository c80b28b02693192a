package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/config"
	"github.com/noah-isme/labgrade-api/internal/database"
	"github.com/noah-isme/labgrade-api/internal/handler"
	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/repository"
	"github.com/noah-isme/labgrade-api/internal/router"
	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/pkg/ai"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if !cfg.IsProduction() {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured: caches disabled, grade lock is process-local")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	predictor, err := ai.NewPredictor(ai.Config{
		Provider: cfg.AIProvider,
		OpenAI: ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  logger,
		},
	})
	if err != nil {
		log.Fatalf("failed to create grade predictor: %v", err)
	}
	policyName := ai.ProviderName(predictor)
	logger.Info().Str("policy", policyName).Msg("grade predictor ready")

	validate := validator.New(validator.WithRequiredStructEnabled())
	aggregator := grading.DefaultAggregator()
	classifier := grading.NewClassifier(predictor)

	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	recordRepo := repository.NewWeeklyRecordRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	events := service.NewEventPublisher(redisClient, natsConn, cfg.EventsChannel, logger)

	performanceService := service.NewPerformanceService(enrollmentRepo, recordRepo, aggregator, validate, service.PerformanceServiceConfig{
		Activity: activityService,
		Events:   events,
		Cache:    redisClient,
		CacheTTL: cfg.ProgressCacheTTL,
	}, logger)
	gradeService := service.NewGradeService(enrollmentRepo, recordRepo, aggregator, classifier, service.GradeServiceConfig{
		Locker:            service.NewEnrollmentLocker(redisClient, cfg.GradeLockTTL),
		Activity:          activityService,
		Events:            events,
		Cache:             redisClient,
		PredictionTimeout: cfg.PredictionTimeout,
		PolicyName:        policyName,
	}, logger)
	reportService := service.NewCourseReportService(courseRepo, enrollmentRepo, redisClient, cfg.ReportCacheTTL, logger)
	seedService := service.NewSeedService(courseRepo, studentRepo, enrollmentRepo, activityService, redisClient, cfg.SeedEnabled, cfg.SeedToken, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    2 * 1024 * 1024,
	})

	healthChecks := []handler.DependencyCheck{{
		Name:     "postgres",
		Required: true,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		healthChecks = append(healthChecks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if natsConn != nil {
		healthChecks = append(healthChecks, handler.DependencyCheck{
			Name: "nats",
			Ping: func(context.Context) error {
				if !natsConn.IsConnected() {
					return nats.ErrConnectionClosed
				}
				return nil
			},
		})
	}

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    !cfg.IsProduction(),
	})
	router.Register(app, cfg, router.Dependencies{
		PerformanceHandler: handler.NewPerformanceHandler(performanceService, logger),
		GradeHandler:       handler.NewGradeHandler(gradeService, middleware.RateLimit("grade", cfg.GradeRateLimit, time.Minute), logger),
		ReportHandler:      handler.NewReportHandler(reportService, logger),
		ActivityHandler:    handler.NewActivityHandler(activityService, logger),
		SeedHandler:        handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
		HealthChecks:       healthChecks,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
