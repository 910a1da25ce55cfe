// Package bootstrap performs runtime initialization shared by the server
// and the migration command.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"firma/internal/cache"
	"firma/internal/config"
	"firma/internal/database"
	"firma/internal/middleware"
	"firma/internal/observability"
)

// Options control runtime initialization behavior.
type Options struct {
	// Tracing enables the OpenTelemetry pipeline.
	Tracing bool
}

// InitRuntime connects to the database and Redis and wires middleware
// configuration. Redis being down is tolerated; the database is not.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, func(context.Context), error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	middleware.InitMiddleware(cfg)

	shutdown := func(context.Context) {}
	if opts.Tracing {
		stop, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "firma-api",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Env,
			Enabled:        cfg.TracingEnabled,
			Exporter:       cfg.TracingExporter,
			OTLPEndpoint:   cfg.TracingOTLPAddress,
			SamplerRatio:   1.0,
		})
		if err != nil {
			log.Printf("tracing initialization warning: %v (continuing without tracing)", err)
		} else {
			shutdown = func(ctx context.Context) {
				if err := stop(ctx); err != nil {
					log.Printf("tracing shutdown error: %v", err)
				}
			}
		}
	}

	return db, r, shutdown, nil
}
