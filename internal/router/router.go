package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gradehub-go-api/internal/config"
	"github.com/noah-isme/gradehub-go-api/internal/handler"
	"github.com/noah-isme/gradehub-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// CI callbacks authenticate per request via OIDC inside the handler;
	// there is no session middleware to apply here.
	if deps.SubmissionHandler != nil {
		submission := app.Group("/submission")
		deps.SubmissionHandler.Register(submission)
	}
}
