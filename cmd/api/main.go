package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gourmet-house/pricing-service/db"
	"github.com/gourmet-house/pricing-service/internal/config"
	"github.com/gourmet-house/pricing-service/internal/handler"
	"github.com/gourmet-house/pricing-service/internal/repository"
	"github.com/gourmet-house/pricing-service/internal/service"
	appvalidator "github.com/gourmet-house/pricing-service/internal/validator"
	"github.com/gourmet-house/pricing-service/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if cfg.DB.ApplySchema {
		if _, err := pool.Exec(ctx, db.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to apply database schema")
		}
		log.Info().Msg("database schema applied")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Restaurant Pricing Service",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := appvalidator.New()

	// Initialize components (layered architecture)
	instrumentRepo := repository.NewInstrumentRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)

	instrumentService := service.NewInstrumentService(instrumentRepo, usageRepo)
	orderService := service.NewOrderService(pool, instrumentRepo, usageRepo, orderRepo)

	instrumentHandler := handler.NewInstrumentHandler(instrumentService, validate)
	orderHandler := handler.NewOrderHandler(orderService, validate)

	// Health handler
	healthHandler := handler.NewHealthHandler(pool)
	app.Get("/health", healthHandler.Check)

	// Instrument routes
	app.Post("/api/coupons", instrumentHandler.CreateCoupon)
	app.Post("/api/promotions", instrumentHandler.CreatePromotion)
	app.Get("/api/instruments/:code", instrumentHandler.GetInstrument)
	app.Delete("/api/instruments/:code", instrumentHandler.DeleteInstrument)
	app.Get("/api/restaurants/:id/promotions", instrumentHandler.ListPromotions)

	// Order routes
	app.Post("/api/orders/quote", orderHandler.QuoteOrder)
	app.Post("/api/orders", orderHandler.CreateOrder)
	app.Patch("/api/orders/:id/status", orderHandler.UpdateOrderStatus)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
