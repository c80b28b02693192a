package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/internal/utils"
)

// ReportHandler serves course-level grade reports.
type ReportHandler struct {
	service service.CourseReportService
	logger  zerolog.Logger
}

// NewReportHandler constructs the handler.
func NewReportHandler(service service.CourseReportService, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.With().Str("component", "report_handler").Logger(),
	}
}

// Register attaches report routes to the courses router group.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Get("/:id/report", h.report)
}

func (h *ReportHandler) report(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course id")
	}

	report, err := h.service.Report(c.UserContext(), courseID)
	if err != nil {
		status, message := gradingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			requestLogger(h.logger, c).Error().Err(err).Uint("course_id", courseID).Msg("failed to build course report")
		}
		return utils.SendError(c, status, message)
	}

	return utils.SendSuccess(c, "course report", report)
}
