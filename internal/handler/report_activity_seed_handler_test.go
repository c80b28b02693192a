package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labgrade-api/internal/config"
	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/handler"
	"github.com/noah-isme/labgrade-api/internal/service"
)

type mockReportService struct {
	err    error
	report dto.CourseReportResponse
}

func (m *mockReportService) Report(_ context.Context, courseID uint) (dto.CourseReportResponse, error) {
	if m.err != nil {
		return dto.CourseReportResponse{}, m.err
	}
	report := m.report
	report.CourseID = courseID
	return report, nil
}

type mockActivityService struct {
	lastRequest dto.ActivityListRequest
}

func (m *mockActivityService) Record(_ context.Context, entry service.ActivityEntry) (dto.ActivityResponse, error) {
	return dto.ActivityResponse{Action: entry.Action}, nil
}

func (m *mockActivityService) List(_ context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	m.lastRequest = req
	return dto.ActivityListResponse{
		Items:      []dto.ActivityResponse{{ID: 1, Action: "grade.calculated"}},
		Pagination: dto.PaginationMeta{Page: req.Page, PageSize: req.PageSize, TotalItems: 1, TotalPages: 1},
	}, nil
}

type mockSeedService struct {
	err       error
	lastToken string
	lastBody  string
}

func (m *mockSeedService) SeedRoster(_ context.Context, token string, raw []byte) (dto.SeedRosterResponse, error) {
	m.lastToken = token
	m.lastBody = string(raw)
	if m.err != nil {
		return dto.SeedRosterResponse{}, m.err
	}
	return dto.SeedRosterResponse{CourseID: 1, Students: 2}, nil
}

func TestReportHandler(t *testing.T) {
	svc := &mockReportService{report: dto.CourseReportResponse{Graded: 2, Distribution: map[string]int{"A": 1, "B": 1}}}
	app := fiber.New()
	handler.NewReportHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/courses"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/courses/7/report", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.CourseReportResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, uint(7), body.Data.CourseID)
	require.Equal(t, 1, body.Data.Distribution["A"])

	svc.err = service.ErrCourseNotFound
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/courses/8/report", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/courses/0/report", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestActivityHandlerListsWithFilters(t *testing.T) {
	svc := &mockActivityService{}
	app := fiber.New()
	handler.NewActivityHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/activity"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activity?page_size=500&entity_type=enrollment&entity_id=4&action=grade.calculated", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.lastRequest.Page)
	require.Equal(t, 200, svc.lastRequest.PageSize)
	require.Equal(t, uint(4), svc.lastRequest.EntityID)
	require.Equal(t, "enrollment", svc.lastRequest.EntityType)

	var body envelope
	decodeResponse(t, resp, &body)
	require.Equal(t, float64(1), body.Meta["total_items"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activity?actor_id=x", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func seedRequest(body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/seed/roster", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Seed-Token", token)
	}
	return req
}

func TestSeedHandlerRoster(t *testing.T) {
	svc := &mockSeedService{}
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/seed"))

	resp, err := app.Test(seedRequest(`{"course":{}}`, "secret"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "secret", svc.lastToken)
	require.Equal(t, `{"course":{}}`, svc.lastBody)
}

func TestSeedHandlerErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"disabled", service.ErrSeedDisabled, fiber.StatusForbidden},
		{"token", service.ErrSeedUnauthorized, fiber.StatusForbidden},
		{"payload", service.ErrSeedInvalidPayload, fiber.StatusBadRequest},
		{"unexpected", context.DeadlineExceeded, fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			handler.NewSeedHandler(&mockSeedService{err: tc.err}, zerolog.Nop()).Register(app.Group("/api/v1/seed"))
			resp, err := app.Test(seedRequest(`{}`, "x"), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/health", handler.HealthCheck(config.Config{AppName: "LabGrade API", AppEnv: "test", AIProvider: "heuristic"}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "ok", body.Data.Status)
	require.Equal(t, "heuristic", body.Data.Predictor)
	require.WithinDuration(t, time.Now(), body.Data.Timestamp, time.Minute)
}

func TestHealthCheckReportsDependencies(t *testing.T) {
	cfg := config.Config{AppName: "LabGrade API", AppEnv: "test", AIProvider: "heuristic"}
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	cases := []struct {
		name   string
		checks []handler.DependencyCheck
		status int
		state  string
	}{
		{"all up", []handler.DependencyCheck{{Name: "postgres", Required: true, Ping: up}, {Name: "redis", Ping: up}}, fiber.StatusOK, "ok"},
		{"optional down", []handler.DependencyCheck{{Name: "postgres", Required: true, Ping: up}, {Name: "redis", Ping: down}}, fiber.StatusOK, "degraded"},
		{"required down", []handler.DependencyCheck{{Name: "postgres", Required: true, Ping: down}, {Name: "redis", Ping: down}}, fiber.StatusServiceUnavailable, "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", handler.HealthCheck(cfg, tc.checks...))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var body struct {
				Data handler.HealthResponse `json:"data"`
			}
			decodeResponse(t, resp, &body)
			require.Equal(t, tc.state, body.Data.Status)
			require.Len(t, body.Data.Dependencies, len(tc.checks))
		})
	}
}
