package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/adapter"
	"github.com/stemforge/api/internal/client"
	"github.com/stemforge/api/internal/config"
	"github.com/stemforge/api/internal/handler"
	"github.com/stemforge/api/internal/middleware"
	"github.com/stemforge/api/internal/orchestrator"
	"github.com/stemforge/api/internal/queue"
	"github.com/stemforge/api/internal/store"
	ws "github.com/stemforge/api/internal/websocket"
	"github.com/stemforge/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	separatorClient := client.NewSeparatorClient(&cfg.Separator)

	// Initialize R2 client (optional - falls back to local disk)
	var storageClient client.StorageClient
	r2Configured := cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != ""
	if r2Configured {
		r2Client, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize R2 client: %v", err)
		}
		storageClient = r2Client
	} else {
		log.Println("Info: R2 storage not configured, publishing artifacts to local disk")
		storageClient = client.NewLocalStorage(filepath.Join(cfg.Import.WorkDir, "stemforge-artifacts"))
	}

	// Initialize metadata client (optional)
	var metadataClient client.MetadataEnricher
	if cfg.Metadata.ServiceURL != "" {
		metadataClient = client.NewMetadataClient(&cfg.Metadata)
	}

	retention := time.Duration(cfg.Redis.JobTTLHours) * time.Hour

	// Initialize store, scheduler, adapters
	jobStore := store.NewRedisStore(redisClient, retention)
	scheduler := queue.NewAsynqScheduler(asynqClient, retention)

	importer := adapter.NewHTTPImporter(&cfg.Import)
	transformer := adapter.NewSeparationTransformer(separatorClient, &cfg.Separator, cfg.Import.WorkDir)
	finalizer := adapter.NewUploadFinalizer(storageClient, metadataClient)

	orch := orchestrator.New(
		jobStore,
		hub,
		scheduler,
		importer,
		transformer,
		finalizer,
		time.Duration(cfg.Progress.ThrottleMs)*time.Millisecond,
	)

	// Initialize handlers
	jobsHandler := handler.NewJobsHandler(orch, validate)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else if cfg.JWT.Secret != "" {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	} else {
		log.Println("Warning: JWT secret not set, API is unauthenticated")
		apiAuthMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"separator": separatorClient.IsConfigured(),
				"r2":        r2Configured,
				"metadata":  metadataClient != nil && metadataClient.IsConfigured(),
				"auth":      cfg.Gateway.Enabled || cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), jobsHandler.Create)
	jobs.Get("/:jobId", jobsHandler.Status)
	jobs.Post("/:jobId/cancel", jobsHandler.Cancel)
	jobs.Get("/:jobId/result", jobsHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	app.Get("/ws/jobs", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.ScopeAll)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, orch)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, orch *orchestrator.Orchestrator) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.JobQueue: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	jobWorker := worker.NewJobWorker(orch)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeProcessJob, jobWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
