package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-insights/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Webhooks  *handlers.WebhookHandler
	Analytics *handlers.AnalyticsHandler
	Jobs      *handlers.JobsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/webhooks/ticketing", cfg.Webhooks.Receive)

	analytics := app.Group("/analytics")
	analytics.Get("/lifecycle", cfg.Analytics.Lifecycle)
	analytics.Get("/statuses", cfg.Analytics.Statuses)
	analytics.Get("/closures", cfg.Analytics.Closures)
	analytics.Post("/aggregate", cfg.Jobs.TriggerAggregation)
	analytics.Post("/reconcile", cfg.Jobs.TriggerReconcile)
}
