// Command main is the entry point for the firma signing server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"firma/internal/bootstrap"
	"firma/internal/config"
	"firma/internal/liveness"
	"firma/internal/pdfkit"
	"firma/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, redisClient, stopTracing, err := bootstrap.InitRuntime(cfg, bootstrap.Options{Tracing: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	engine, err := pdfkit.DefaultEngine()
	if err != nil {
		log.Fatalf("Failed to initialize PDF engine: %v", err)
	}
	detector, err := liveness.DefaultDetector()
	if err != nil {
		log.Fatalf("Failed to initialize face detector: %v", err)
	}

	srv, err := server.NewServerWithDeps(cfg, db, redisClient, engine, detector)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Repair signings interrupted between commit and archive.
	if moved, err := srv.Workflow().Reconcile(context.Background()); err != nil {
		log.Printf("Reconcile warning: %v", err)
	} else if moved > 0 {
		log.Printf("Reconciled %d interrupted signing(s)", moved)
	}

	app := fiber.New(fiber.Config{
		AppName:   "Firma Signing API",
		BodyLimit: cfg.MaxUploadSizeMB * 1024 * 1024,
	})

	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server resource shutdown error: %v", err)
		}
		stopTracing(ctx)
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
