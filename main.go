package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"mailsprint/app"
	"mailsprint/config"
	"mailsprint/middleware"
	"mailsprint/routes"
	"mailsprint/runner"
	"mailsprint/worker"
)

func main() {
	logger := log.New(os.Stdout, "MAILSPRINT: ", log.Ldate|log.Ltime|log.Lshortfile)

	application, err := app.Build()
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}

	// Create Fiber app
	fiberApp := fiber.New()
	fiberApp.Use(middleware.CORS())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduled ticks run live only when the process is armed;
	// otherwise the worker keeps ticking in dry-run so the logs still
	// show what would happen.
	tickOpts := runner.Options{
		SequenceID: "opener_followups",
		DryRun:     !config.AppConfig.LiveArmed,
		LiveArmed:  config.AppConfig.LiveArmed,
	}
	tickWorker := worker.NewTickWorker(application.Runner, config.AppConfig.TickSchedule, tickOpts,
		log.New(os.Stdout, "TICK: ", log.LstdFlags))
	go tickWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(config.DB, application.State,
		time.Duration(config.AppConfig.ReplyPollInterval)*time.Minute,
		log.New(os.Stdout, "REPLY: ", log.LstdFlags))
	go replyWorker.Start(ctx)

	// Sender quota counters reset at local midnight
	go application.Mailer.ResetDailyCounters(ctx)

	// Setup routes
	routes.SetupAPIRoutes(fiberApp, config.DB, application.Policy, application.Runner)

	// Health check endpoint
	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := fiberApp.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
