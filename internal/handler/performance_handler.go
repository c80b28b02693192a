package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/internal/utils"
)

// PerformanceHandler serves weekly record entry and the progress view.
type PerformanceHandler struct {
	service service.PerformanceService
	logger  zerolog.Logger
}

// NewPerformanceHandler constructs the handler.
func NewPerformanceHandler(service service.PerformanceService, logger zerolog.Logger) *PerformanceHandler {
	return &PerformanceHandler{
		service: service,
		logger:  logger.With().Str("component", "performance_handler").Logger(),
	}
}

// Register attaches enrollment record routes to the router group.
func (h *PerformanceHandler) Register(router fiber.Router) {
	instructor := middleware.AuthOptions{Role: middleware.AuthRoleInstructor}
	router.Put("/:id/weeks/:week", middleware.WithAuth(h.recordWeek, instructor))
	router.Get("/:id/weeks", middleware.WithAuth(h.listWeeks, instructor))
	router.Get("/:id/progress", middleware.WithAuth(h.progress, middleware.AuthOptions{Role: middleware.AuthRoleAny}))
}

func (h *PerformanceHandler) recordWeek(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}
	week, err := strconv.Atoi(c.Params("week"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid week")
	}

	var payload dto.WeeklyRecordRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.service.RecordWeek(c.UserContext(), activityActorFromContext(c), enrollmentID, week, payload)
	if err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid weekly record", validationDetails(err))
		}
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Int("week", week).Msg("failed to save weekly record")
		}
		return utils.SendError(c, status, message)
	}

	return utils.SendSuccess(c, "weekly record saved", record)
}

func (h *PerformanceHandler) listWeeks(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}

	records, err := h.service.ListWeeks(c.UserContext(), enrollmentID)
	if err != nil {
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("failed to list weekly records")
		}
		return utils.SendError(c, status, message)
	}

	return utils.OK(c, records, "weekly records", fiber.Map{"count": len(records)})
}

func (h *PerformanceHandler) progress(c *fiber.Ctx) error {
	enrollmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid enrollment id")
	}

	if err := authorizeEnrollment(c, h.service, enrollmentID); err != nil {
		return sendAuthorizationError(c, h.logger, enrollmentID, err)
	}

	progress, err := h.service.Progress(c.UserContext(), enrollmentID)
	if err != nil {
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("failed to build progress")
		}
		return utils.SendError(c, status, message)
	}

	return utils.SendSuccess(c, "progress", progress)
}
