package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/aquasense/water-telemetry/internal/api/http"
	"github.com/aquasense/water-telemetry/internal/config"
	"github.com/aquasense/water-telemetry/internal/scheduler"
	"github.com/aquasense/water-telemetry/internal/store"
	"github.com/aquasense/water-telemetry/internal/telemetry"
	"github.com/aquasense/water-telemetry/internal/telemetry/device"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Device connection, opened once and reused for every poll. An
	// unreachable device leaves the pipeline in no-data mode; it is never
	// fatal.
	var reader telemetry.Reader
	switch cfg.Transport {
	case config.TransportSerial:
		reader = device.NewSerialReader(cfg.SerialPort, cfg.SerialBaud, cfg.PollTimeout)
	default:
		reader = device.NewTCPReader(cfg.DeviceAddr, cfg.PollTimeout)
	}
	reader = device.NewBreakerReader(reader)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("error closing device connection: %v", err)
		}
	}()

	// Durable log with configured retention.
	csvLog := store.NewCSVLog(cfg.LogPath, cfg.Retention)

	// Core pipeline orchestrating reader, store and forecaster.
	pipeline := telemetry.NewPipeline(reader, csvLog, cfg.Channel, cfg.ForecastHorizon)

	// Scheduler that ticks the pipeline.
	sched := scheduler.New(cfg.PollInterval, pipeline)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "water-telemetry",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "water-telemetry",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, pipeline)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
