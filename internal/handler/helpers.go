package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/internal/utils"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

var errInvalidIdentifier = errors.New("invalid identifier")

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errInvalidIdentifier
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if id, ok := c.Locals(middleware.LocalUserID).(uint); ok {
		return id
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if role, ok := c.Locals(middleware.LocalUserRole).(string); ok {
		return role
	}
	return ""
}

func studentIDFromContext(c *fiber.Ctx) uint {
	if id, ok := c.Locals(middleware.LocalStudentID).(uint); ok {
		return id
	}
	return 0
}

func activityActorFromContext(c *fiber.Ctx) service.ActivityActor {
	return service.ActivityActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

var errEnrollmentForbidden = errors.New("enrollment belongs to another student")

type enrollmentOwners interface {
	StudentOf(ctx context.Context, enrollmentID uint) (uint, error)
}

// authorizeEnrollment runs before any enrollment data is loaded. Instructors pass;
// students pass only for their own enrollment, and unknown enrollments look the
// same to them as foreign ones.
func authorizeEnrollment(c *fiber.Ctx, owners enrollmentOwners, enrollmentID uint) error {
	if middleware.IsInstructor(userRoleFromContext(c)) {
		return nil
	}
	own := studentIDFromContext(c)
	if own == 0 {
		return errEnrollmentForbidden
	}

	studentID, err := owners.StudentOf(c.UserContext(), enrollmentID)
	if err != nil {
		if errors.Is(err, service.ErrEnrollmentNotFound) {
			return errEnrollmentForbidden
		}
		return err
	}
	if studentID != own {
		return errEnrollmentForbidden
	}
	return nil
}

func sendAuthorizationError(c *fiber.Ctx, logger zerolog.Logger, enrollmentID uint, err error) error {
	if errors.Is(err, errEnrollmentForbidden) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
	requestLogger(logger, c).Error().Err(err).Uint("enrollment_id", enrollmentID).Msg("failed to resolve enrollment owner")
	return utils.SendError(c, fiber.StatusInternalServerError, "failed to resolve enrollment")
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
	}
	return details
}

// gradingErrorStatus maps service and grading errors to an HTTP status and message.
func gradingErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEnrollmentNotFound):
		return fiber.StatusNotFound, "enrollment not found"
	case errors.Is(err, service.ErrCourseNotFound):
		return fiber.StatusNotFound, "course not found"
	case errors.Is(err, service.ErrGradeNotCalculated):
		return fiber.StatusNotFound, "grade not calculated"
	case errors.Is(err, service.ErrWeekOutOfRange):
		return fiber.StatusBadRequest, "week outside the course schedule"
	case errors.Is(err, service.ErrInvalidAttendance):
		return fiber.StatusBadRequest, "invalid attendance status"
	case errors.Is(err, service.ErrGradeConflict):
		return fiber.StatusConflict, "grade changed concurrently, retry"
	case errors.Is(err, service.ErrGradeLocked):
		return fiber.StatusConflict, "grade calculation already in progress"
	case grading.IsNoData(err):
		return fiber.StatusUnprocessableEntity, "no weekly records to grade"
	case grading.IsPredictionUnavailable(err):
		return fiber.StatusServiceUnavailable, "grade prediction unavailable, retry later"
	case grading.IsRubricBounds(err):
		return fiber.StatusInternalServerError, "grade outside rubric bounds"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}
