package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/internal/utils"
)

const maxHistoryLimit = 100

// GradeHandler exposes grade calculation and retrieval.
type GradeHandler struct {
	service service.GradeService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewGradeHandler constructs the handler. limiter guards the calculate route and may be nil.
func NewGradeHandler(service service.GradeService, limiter fiber.Handler, logger zerolog.Logger) *GradeHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &GradeHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "grade_handler").Logger(),
	}
}

// Register attaches grade routes to the enrollments router group.
func (h *GradeHandler) Register(router fiber.Router) {
	instructor := middleware.AuthOptions{Role: middleware.AuthRoleInstructor}
	router.Post("/:id/grade", h.limiter, middleware.WithAuth(h.calculate, instructor))
	router.Get("/:id/grade", middleware.WithAuth(h.get, middleware.AuthOptions{Role: middleware.AuthRoleAny}))
	router.Get("/:id/grade/history", middleware.WithAuth(h.history, instructor))
}

func (h *GradeHandler) calculate(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}

	result, err := h.service.Calculate(c.UserContext(), activityActorFromContext(c), enrollmentID)
	if err != nil {
		status, message := gradingErrorStatus(err)
		logger := requestLogger(h.logger, c)
		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("grade calculation failed")
		case status == fiber.StatusServiceUnavailable:
			logger.Warn().Err(err).Uint("enrollment_id", enrollmentID).Msg("grade prediction unavailable")
		}
		if status == fiber.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "30")
		}
		return utils.SendError(c, status, message)
	}

	return utils.SendSuccess(c, "grade calculated", result)
}

func (h *GradeHandler) get(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}

	if err := authorizeEnrollment(c, h.service, enrollmentID); err != nil {
		return sendAuthorizationError(c, h.logger, enrollmentID, err)
	}

	grade, err := h.service.Get(c.UserContext(), enrollmentID)
	if err != nil {
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("failed to load grade")
		}
		return utils.SendError(c, status, message)
	}

	return utils.SendSuccess(c, "grade", grade)
}

func (h *GradeHandler) history(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	history, err := h.service.History(c.UserContext(), enrollmentID, limit)
	if err != nil {
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("failed to list grade history")
		}
		return utils.SendError(c, status, message)
	}

	return utils.OK(c, history, "grade history", fiber.Map{"count": len(history), "limit": limit})
}
