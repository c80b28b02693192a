package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/handler"
	"github.com/noah-isme/labgrade-api/internal/middleware"
	"github.com/noah-isme/labgrade-api/internal/service"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

func gradeApp(svc *mockGradeService, limiter fiber.Handler, userID uint, role string, studentID uint) *fiber.App {
	app := fiber.New()
	app.Use(authAs(userID, role, studentID))
	handler.NewGradeHandler(svc, limiter, zerolog.Nop()).Register(app.Group("/api/v1/enrollments"))
	return app
}

func sampleGrade(mode, tag string) dto.GradeResponse {
	gradedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return dto.GradeResponse{
		EnrollmentID:    1,
		CourseID:        2,
		StudentID:       3,
		LetterGrade:     "B",
		TotalPercentage: 69,
		Mode:            mode,
		BehaviorTag:     tag,
		Version:         1,
		GradedAt:        &gradedAt,
		Breakdown: &dto.BreakdownResponse{
			WeightedLab:        36,
			WeightedQuiz:       15,
			WeightedViva:       10,
			WeightedAttendance: 8,
			TotalPercentage:    69,
		},
	}
}

func postGrade(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func TestGradeHandlerCalculateMatchesContract(t *testing.T) {
	schema, err := jsonschema.Compile("testdata/grade_response.schema.json")
	require.NoError(t, err)

	cases := map[string]dto.GradeResponse{
		"complete": sampleGrade("complete", ""),
		"partial":  sampleGrade("partial", "Improving"),
	}

	for name, grade := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &mockGradeService{result: grade}
			resp := postGrade(t, gradeApp(svc, nil, 4, "teacher", 0), "/api/v1/enrollments/1/grade")
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var document interface{}
			decodeResponse(t, resp, &document)
			require.NoError(t, schema.Validate(document))
			require.Equal(t, service.ActivityActor{ID: 4, Role: "teacher"}, svc.lastActor)
		})
	}
}

func TestGradeResponseContractRejectsTagInCompleteMode(t *testing.T) {
	schema, err := jsonschema.Compile("testdata/grade_response.schema.json")
	require.NoError(t, err)

	payload, err := json.Marshal(fiber.Map{"success": true, "message": "grade", "data": sampleGrade("complete", "At Risk")})
	require.NoError(t, err)

	var document interface{}
	require.NoError(t, json.Unmarshal(payload, &document))
	require.Error(t, schema.Validate(document))
}

func TestGradeHandlerCalculateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no data", grading.NoDataError{}, fiber.StatusUnprocessableEntity},
		{"prediction", &grading.PredictionUnavailableError{Err: errors.New("timeout")}, fiber.StatusServiceUnavailable},
		{"bounds", grading.RubricBoundsError{Percentage: 101}, fiber.StatusInternalServerError},
		{"conflict", service.ErrGradeConflict, fiber.StatusConflict},
		{"locked", service.ErrGradeLocked, fiber.StatusConflict},
		{"missing", service.ErrEnrollmentNotFound, fiber.StatusNotFound},
		{"unexpected", errors.New("db down"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockGradeService{calculateErr: tc.err}
			resp := postGrade(t, gradeApp(svc, nil, 4, "admin", 0), "/api/v1/enrollments/1/grade")
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.status == fiber.StatusServiceUnavailable {
				require.Equal(t, "30", resp.Header.Get("Retry-After"))
			}
		})
	}
}

func TestGradeHandlerCalculateRequiresInstructor(t *testing.T) {
	svc := &mockGradeService{result: sampleGrade("complete", "")}
	resp := postGrade(t, gradeApp(svc, nil, 9, "student", 3), "/api/v1/enrollments/1/grade")
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.calls)
}

func TestGradeHandlerCalculateIsRateLimited(t *testing.T) {
	svc := &mockGradeService{result: sampleGrade("complete", "")}
	app := gradeApp(svc, middleware.RateLimit("grade", 1, time.Minute), 4, "teacher", 0)

	require.Equal(t, fiber.StatusOK, postGrade(t, app, "/api/v1/enrollments/1/grade").StatusCode)
	require.Equal(t, fiber.StatusTooManyRequests, postGrade(t, app, "/api/v1/enrollments/1/grade").StatusCode)
	require.Equal(t, 1, svc.calls)
}

func TestGradeHandlerGet(t *testing.T) {
	svc := &mockGradeService{result: sampleGrade("complete", ""), owner: 3}

	resp, err := gradeApp(svc, nil, 9, "student", 3).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = gradeApp(svc, nil, 9, "student", 4).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, 1, svc.loads, "a foreign grade must not be loaded")

	missing := &mockGradeService{getErr: service.ErrGradeNotCalculated}
	resp, err = gradeApp(missing, nil, 1, "teacher", 0).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGradeHandlerGetHidesUnknownEnrollmentFromStudents(t *testing.T) {
	unknown := &mockGradeService{ownerErr: service.ErrEnrollmentNotFound, getErr: service.ErrEnrollmentNotFound}
	ungraded := &mockGradeService{owner: 4, getErr: service.ErrGradeNotCalculated}

	for _, svc := range []*mockGradeService{unknown, ungraded} {
		resp, err := gradeApp(svc, nil, 9, "student", 3).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		require.Zero(t, svc.loads)
	}

	resp, err := gradeApp(unknown, nil, 1, "teacher", 0).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	failing := &mockGradeService{ownerErr: errors.New("db down")}
	resp, err = gradeApp(failing, nil, 9, "student", 3).Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGradeHandlerHistory(t *testing.T) {
	svc := &mockGradeService{history: []dto.GradeCalculationResponse{{ID: 2, LetterGrade: "B"}, {ID: 1, LetterGrade: "C"}}}
	app := gradeApp(svc, nil, 1, "teacher", 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade/history?limit=500", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 100, svc.lastLimit)

	var body envelope
	decodeResponse(t, resp, &body)
	var items []dto.GradeCalculationResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(body.Data)).Decode(&items))
	require.Len(t, items, 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/enrollments/1/grade/history?limit=-1", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
