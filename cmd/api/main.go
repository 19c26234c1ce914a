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

	"github.com/noah-isme/gradehub-go-api/internal/config"
	"github.com/noah-isme/gradehub-go-api/internal/database"
	"github.com/noah-isme/gradehub-go-api/internal/handler"
	"github.com/noah-isme/gradehub-go-api/internal/middleware"
	"github.com/noah-isme/gradehub-go-api/internal/models"
	"github.com/noah-isme/gradehub-go-api/internal/repository"
	"github.com/noah-isme/gradehub-go-api/internal/router"
	"github.com/noah-isme/gradehub-go-api/internal/service"
	"github.com/noah-isme/gradehub-go-api/pkg/events"
	ghclient "github.com/noah-isme/gradehub-go-api/pkg/github"
	"github.com/noah-isme/gradehub-go-api/pkg/oidc"
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
		&models.Assignment{},
		&models.AssignmentGraderConfig{},
		&models.Repository{},
		&models.Submission{},
		&models.SubmissionFile{},
		&models.GraderResult{},
		&models.GraderResultOutput{},
		&models.GraderResultTest{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		natsConn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		publisher = events.NewPublisher(natsConn, "gradehub", logger)
	}

	verifierCtx, cancelVerifier := context.WithCancel(context.Background())
	defer cancelVerifier()

	verifier, err := oidc.New(verifierCtx, oidc.Config{
		Issuer:   cfg.OIDCIssuer,
		Audience: cfg.OIDCAudience,
		JWKSURL:  cfg.OIDCJWKSURL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create token verifier: %v", err)
	}

	snapshots := ghclient.New(ghclient.Config{
		Token:   cfg.GitHubToken,
		Timeout: cfg.SnapshotTimeout,
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	repoLinkRepo := repository.NewRepoLinkRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	graderResultRepo := repository.NewGraderResultRepository(db)

	intakeService := service.NewIntakeService(verifier, snapshots, assignmentRepo, repoLinkRepo, submissionRepo, redisClient, publisher, service.IntakeConfig{
		WorkflowPath:         cfg.GraderWorkflowPath,
		GraderConfigCacheTTL: cfg.GraderConfigCacheTTL,
	}, logger)
	feedbackService := service.NewFeedbackService(verifier, submissionRepo, graderResultRepo, validate, publisher, service.FeedbackConfig{
		PublicBaseURL: cfg.PublicBaseURL,
	}, logger)

	submissionHandler := handler.NewSubmissionHandler(intakeService, feedbackService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
