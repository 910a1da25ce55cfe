// Package server contains the HTTP handlers for the signing workflow API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"firma/internal/blob"
	"firma/internal/cache"
	"firma/internal/config"
	"firma/internal/database"
	"firma/internal/liveness"
	"firma/internal/middleware"
	"firma/internal/notify"
	"firma/internal/pdfkit"
	"firma/internal/repository"
	"firma/internal/signing"
)

// Server holds all dependencies and provides handlers.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	blobs          *blob.Store
	docRepo        repository.DocumentRepository
	workflow       *signing.Service
}

// NewServer creates a server instance with all dependencies. The PDF engine
// and face detector come from the registered toolkit packages.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	engine, err := pdfkit.DefaultEngine()
	if err != nil {
		return nil, err
	}
	detector, err := liveness.DefaultDetector()
	if err != nil {
		return nil, err
	}

	return NewServerWithDeps(cfg, db, cache.GetClient(), engine, detector)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use this with an in-memory database, miniredis and fake toolkits.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, engine pdfkit.Engine, detector liveness.Detector) (*Server, error) {
	blobs, err := blob.NewStore(cfg.PendingDir, cfg.SignedDir, cfg.CompletedDir, cfg.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}

	docRepo := repository.NewDocumentRepository(db)
	checker := liveness.NewChecker(detector, liveness.DefaultParams())
	notifier := notify.NewNotifier(cfg.NotifyURL)
	workflow := signing.NewService(docRepo, blobs, engine, checker, notifier, cfg.PublicBaseURL, cfg.TemplateFile)

	prom := middleware.InitMetrics("firma-api")

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		blobs:          blobs,
		docRepo:        docRepo,
		workflow:       workflow,
	}, nil
}

// Workflow exposes the signing service for bootstrap tasks.
func (s *Server) Workflow() *signing.Service {
	return s.workflow
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	s.app = app

	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware to propagate request and document IDs
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Document intake
	requests := api.Group("/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "intake_upload"), s.CreateUploadRequest)
	requests.Post("/template", middleware.RateLimit(
		s.redis, 10, time.Minute, "intake_template"), s.CreateTemplateRequest)

	// Signing surface
	app.Get("/sign/:id", s.GetSigningRequest)
	app.Get("/sign/:id/pages/:page", s.GetPreviewPage)
	app.Get("/sign/:id/files/:filename", s.GetPendingFile)
	app.Post("/sign/:id", middleware.RateLimit(
		s.redis, 5, time.Minute, "submit_signature"), s.SubmitSignature)
	app.Delete("/sign/:id", s.DeleteOwnRequest)

	// Signed artifact download
	app.Get("/download/:id", s.DownloadSignedDocument)

	// Admin surface
	admin := api.Group("/admin", middleware.AdminRequired)
	admin.Get("/requests", s.ListRequests)
	admin.Delete("/requests/:id", s.DeleteRequestAdmin)
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}
	return nil
}
