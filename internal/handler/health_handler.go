package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/labgrade-api/internal/config"
	"github.com/noah-isme/labgrade-api/internal/utils"
)

const dependencyCheckTimeout = 2 * time.Second

// DependencyCheck pings one backing service. A failing required dependency makes
// the API unavailable; an optional one only degrades it.
type DependencyCheck struct {
	Name     string
	Required bool
	Ping     func(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	Predictor    string            `json:"predictor"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck reports the service, its grade predictor and the state of each dependency.
func HealthCheck(cfg config.Config, checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Predictor:   cfg.AIProvider,
		}

		status := fiber.StatusOK
		if len(checks) > 0 {
			payload.Dependencies = make(map[string]string, len(checks))
		}
		for _, check := range checks {
			ctx, cancel := context.WithTimeout(c.UserContext(), dependencyCheckTimeout)
			err := check.Ping(ctx)
			cancel()

			if err == nil {
				payload.Dependencies[check.Name] = "up"
				continue
			}
			payload.Dependencies[check.Name] = "down"
			if check.Required {
				payload.Status = "unavailable"
				status = fiber.StatusServiceUnavailable
			} else if payload.Status == "ok" {
				payload.Status = "degraded"
			}
		}

		return utils.SendSuccessWithStatus(c, status, "service "+payload.Status, payload)
	}
}
