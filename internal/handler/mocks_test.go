package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/service"
)

type mockPerformanceService struct {
	recordErr   error
	progressErr error
	lastActor   service.ActivityActor
	lastWeek    int
	lastPayload dto.WeeklyRecordRequest
	progress    dto.ProgressResponse
	records     []dto.WeeklyRecordResponse
	owner       uint
	ownerErr    error
	loads       int
}

func (m *mockPerformanceService) RecordWeek(_ context.Context, actor service.ActivityActor, enrollmentID uint, week int, payload dto.WeeklyRecordRequest) (dto.WeeklyRecordResponse, error) {
	m.lastActor = actor
	m.lastWeek = week
	m.lastPayload = payload
	if m.recordErr != nil {
		return dto.WeeklyRecordResponse{}, m.recordErr
	}
	return dto.WeeklyRecordResponse{EnrollmentID: enrollmentID, Week: week, LabMarks: payload.LabMarks, Attendance: payload.Attendance}, nil
}

func (m *mockPerformanceService) ListWeeks(_ context.Context, _ uint) ([]dto.WeeklyRecordResponse, error) {
	return m.records, nil
}

func (m *mockPerformanceService) Progress(_ context.Context, _ uint) (dto.ProgressResponse, error) {
	m.loads++
	if m.progressErr != nil {
		return dto.ProgressResponse{}, m.progressErr
	}
	return m.progress, nil
}

func (m *mockPerformanceService) StudentOf(_ context.Context, _ uint) (uint, error) {
	return m.owner, m.ownerErr
}

type mockGradeService struct {
	calculateErr error
	getErr       error
	result       dto.GradeResponse
	history      []dto.GradeCalculationResponse
	lastActor    service.ActivityActor
	lastLimit    int
	calls        int
	owner        uint
	ownerErr     error
	loads        int
}

func (m *mockGradeService) Calculate(_ context.Context, actor service.ActivityActor, _ uint) (dto.GradeResponse, error) {
	m.calls++
	m.lastActor = actor
	if m.calculateErr != nil {
		return dto.GradeResponse{}, m.calculateErr
	}
	return m.result, nil
}

func (m *mockGradeService) Get(_ context.Context, _ uint) (dto.GradeResponse, error) {
	m.loads++
	if m.getErr != nil {
		return dto.GradeResponse{}, m.getErr
	}
	return m.result, nil
}

func (m *mockGradeService) History(_ context.Context, _ uint, limit int) ([]dto.GradeCalculationResponse, error) {
	m.lastLimit = limit
	return m.history, nil
}

func (m *mockGradeService) StudentOf(_ context.Context, _ uint) (uint, error) {
	return m.owner, m.ownerErr
}

// authAs stands in for JWTProtected in handler tests.
func authAs(userID uint, role string, studentID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID > 0 {
			c.Locals(middleware.LocalUserID, userID)
			c.Locals(middleware.LocalUserRole, role)
		}
		if studentID > 0 {
			c.Locals(middleware.LocalStudentID, studentID)
		}
		return c.Next()
	}
}

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]interface{} `json:"details"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}
