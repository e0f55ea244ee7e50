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
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/config"
	"github.com/gradeflow/gradeflow-api/internal/database"
	"github.com/gradeflow/gradeflow-api/internal/events"
	"github.com/gradeflow/gradeflow-api/internal/handler"
	"github.com/gradeflow/gradeflow-api/internal/middleware"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/queue"
	"github.com/gradeflow/gradeflow-api/internal/ratelimit"
	"github.com/gradeflow/gradeflow-api/internal/repository"
	"github.com/gradeflow/gradeflow-api/internal/router"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/internal/worker"
	"github.com/gradeflow/gradeflow-api/pkg/ai"
	cloud "github.com/gradeflow/gradeflow-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Student{},
		&models.ExamTemplate{},
		&models.AnswerRubric{},
		&models.StudentSubmission{},
		&models.GradingResult{},
		&models.UploadRecord{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	} else {
		logger.Warn().Msg("nats url not configured, grading events stay in-process")
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		VisionModel: cfg.AIVisionModel,
		ChatModel:   cfg.AIChatModel,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		MaxRetries:  cfg.AIMaxRetries,
		RetryDelay:  cfg.AIRetryBaseDelay,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai grader: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	metrics := observability.NewRecorder()

	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	rubricRepo := repository.NewRubricRepository(db)
	resultRepo := repository.NewGradingResultRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	gradingQueue := queue.NewRedisQueue(redisClient, cfg.Queue.Name, cfg.Queue.MaxReceiveCount, logger)

	// Without a worker to drain the queue, enqueued jobs would be stranded;
	// a nil enqueuer makes the grading service grade synchronously instead.
	var enqueuer service.JobEnqueuer
	if cfg.Queue.Enabled {
		enqueuer = queue.NewPublisher(gradingQueue, metrics, logger)
	}

	broker := events.NewBroker(natsConn, logger)

	thresholdService := service.NewThresholdService(userRepo, cfg.ConfidenceDefault, validate, logger)
	gradingService := service.NewGradingService(
		submissionRepo, rubricRepo, resultRepo, grader,
		thresholdService, enqueuer, broker, metrics, validate, logger,
	)
	uploadService := service.NewUploadService(uploader, uploadRepo, submissionRepo, cfg.UploadMaxSizeMB, logger)
	examService := service.NewExamService(grader, validate, logger)

	gradingHandler := handler.NewGradingHandler(gradingService, broker, logger)
	settingsHandler := handler.NewSettingsHandler(thresholdService, logger)
	uploadHandler := handler.NewUploadHandler(uploadService, logger)
	examHandler := handler.NewExamHandler(examService, logger)

	limiter := ratelimit.New(ratelimit.Config{
		Enabled: cfg.RateLimitEnabled,
		API:     ratelimit.PlanLimits{Limit: cfg.RateLimitAPI.Limit, Window: cfg.RateLimitAPI.Window},
		Upload:  ratelimit.PlanLimits{Limit: cfg.RateLimitUpload.Limit, Window: cfg.RateLimitUpload.Window},
		AI:      ratelimit.PlanLimits{Limit: cfg.RateLimitAI.Limit, Window: cfg.RateLimitAI.Window},
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	app.Get("/metrics", observability.MetricsHandler())

	router.Register(app, cfg, router.Dependencies{
		GradingHandler:  gradingHandler,
		SettingsHandler: settingsHandler,
		UploadHandler:   uploadHandler,
		ExamHandler:     examHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		RateLimiter:     middleware.RateLimit(limiter),
	})

	runCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if err := broker.Start(runCtx); err != nil {
		log.Fatalf("failed to start event broker: %v", err)
	}

	if cfg.Queue.Enabled {
		gradingWorker := worker.New(gradingQueue, gradingService, cfg.Queue, metrics, logger)
		go gradingWorker.Run(runCtx)
	} else {
		logger.Warn().Msg("grading queue disabled, submissions grade synchronously on enqueue")
	}

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopWorker)
}

func waitForShutdown(app *fiber.App, stopWorker context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
