package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/labgrade-api/internal/config"
	"github.com/noah-isme/labgrade-api/internal/handler"
	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PerformanceHandler *handler.PerformanceHandler
	GradeHandler       *handler.GradeHandler
	ReportHandler      *handler.ReportHandler
	ActivityHandler    *handler.ActivityHandler
	SeedHandler        *handler.SeedHandler
	JWTMiddleware      fiber.Handler
	HealthChecks       []handler.DependencyCheck
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	// Enrollment records, progress and grades. Role checks live on each route.
	if deps.PerformanceHandler != nil || deps.GradeHandler != nil {
		enrollments := api.Group("/enrollments", jwtMiddleware)
		if deps.PerformanceHandler != nil {
			deps.PerformanceHandler.Register(enrollments)
		}
		if deps.GradeHandler != nil {
			deps.GradeHandler.Register(enrollments)
		}
	}

	if deps.ReportHandler != nil {
		courses := api.Group("/courses", jwtMiddleware, middleware.RequireInstructor())
		deps.ReportHandler.Register(courses)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, middleware.RequireInstructor())
		deps.ActivityHandler.Register(activity)
	}

	// Seeding authenticates with X-Seed-Token instead of a JWT.
	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
