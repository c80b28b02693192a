package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrSeedInvalidPayload indicates the roster does not match the roster schema.
	ErrSeedInvalidPayload = errors.New("invalid roster payload")
)

//go:embed schema/roster.schema.json
var rosterSchemaSource string

var rosterSchema = jsonschema.MustCompileString("roster.schema.json", rosterSchemaSource)

// SeedService creates courses, students and enrollments from a roster document.
type SeedService interface {
	SeedRoster(ctx context.Context, token string, raw []byte) (dto.SeedRosterResponse, error)
}

type seedService struct {
	courses     repository.CourseRepository
	students    repository.StudentRepository
	enrollments repository.EnrollmentRepository
	activity    ActivityRecorder
	cache       *redis.Client
	enabled     bool
	token       string
	logger      zerolog.Logger
}

// NewSeedService constructs a seeding service. A reseed drops the cached report and
// progress views of the course when cache is set.
func NewSeedService(courses repository.CourseRepository, students repository.StudentRepository, enrollments repository.EnrollmentRepository, activity ActivityRecorder, cache *redis.Client, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		courses:     courses,
		students:    students,
		enrollments: enrollments,
		activity:    activity,
		cache:       cache,
		enabled:     enabled,
		token:       token,
		logger:      logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedRoster(ctx context.Context, token string, raw []byte) (dto.SeedRosterResponse, error) {
	if !s.enabled {
		return dto.SeedRosterResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedRosterResponse{}, ErrSeedUnauthorized
	}

	payload, err := decodeRoster(raw)
	if err != nil {
		return dto.SeedRosterResponse{}, err
	}

	course := models.Course{
		Code:      strings.ToUpper(strings.TrimSpace(payload.Course.Code)),
		Title:     strings.TrimSpace(payload.Course.Title),
		Credit:    payload.Course.Credit,
		Weeks:     payload.Course.Weeks,
		FinalWeek: payload.Course.FinalWeek,
		TeacherID: payload.Course.TeacherID,
	}
	rubric := course.Rubric()
	course.Credit, course.Weeks, course.FinalWeek = rubric.Credit, rubric.Weeks, rubric.FinalWeek

	if err := s.courses.UpsertByCode(ctx, &course); err != nil {
		return dto.SeedRosterResponse{}, fmt.Errorf("seed course: %w", err)
	}

	response := dto.SeedRosterResponse{
		CourseID:      course.ID,
		EnrollmentIDs: make(map[string]uint, len(payload.Students)),
	}

	for _, item := range payload.Students {
		student := models.Student{
			Name:          strings.TrimSpace(item.Name),
			Email:         strings.ToLower(strings.TrimSpace(item.Email)),
			StudentNumber: strings.TrimSpace(item.StudentNumber),
		}
		if err := s.students.UpsertByEmail(ctx, &student); err != nil {
			return dto.SeedRosterResponse{}, fmt.Errorf("seed student %s: %w", student.Email, err)
		}

		enrollment := models.Enrollment{CourseID: course.ID, StudentID: student.ID}
		if err := s.enrollments.Ensure(ctx, &enrollment); err != nil {
			return dto.SeedRosterResponse{}, fmt.Errorf("seed enrollment %s: %w", student.Email, err)
		}

		response.Students++
		response.EnrollmentIDs[student.Email] = enrollment.ID
	}

	s.invalidateCourse(ctx, course.ID, response.EnrollmentIDs)

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		Action:     models.ActivityRosterSeeded,
		EntityType: "course",
		EntityID:   &course.ID,
		Metadata: map[string]interface{}{
			"code":     course.Code,
			"students": response.Students,
		},
	})

	s.logger.Info().
		Uint("course_id", course.ID).
		Int("students", response.Students).
		Msg("roster seeded")

	return response, nil
}

// invalidateCourse drops the course report and the progress view of every
// enrollment in the course, since the rubric may have changed.
func (s *seedService) invalidateCourse(ctx context.Context, courseID uint, seeded map[string]uint) {
	if s.cache == nil {
		return
	}

	enrollmentIDs := make(map[uint]struct{}, len(seeded))
	for _, id := range seeded {
		enrollmentIDs[id] = struct{}{}
	}
	existing, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("course_id", courseID).Msg("failed to list enrollments for cache invalidation")
	}
	for _, enrollment := range existing {
		enrollmentIDs[enrollment.ID] = struct{}{}
	}

	keys := make([]string, 0, len(enrollmentIDs)+1)
	keys = append(keys, courseReportCacheKey(courseID))
	for id := range enrollmentIDs {
		keys = append(keys, progressCacheKey(id))
	}
	invalidateKeys(ctx, s.cache, s.logger, keys...)
}

func decodeRoster(raw []byte) (dto.SeedRosterRequest, error) {
	var document interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&document); err != nil {
		return dto.SeedRosterRequest{}, fmt.Errorf("%w: %v", ErrSeedInvalidPayload, err)
	}
	if err := rosterSchema.Validate(document); err != nil {
		return dto.SeedRosterRequest{}, fmt.Errorf("%w: %v", ErrSeedInvalidPayload, err)
	}

	var payload dto.SeedRosterRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return dto.SeedRosterRequest{}, fmt.Errorf("%w: %v", ErrSeedInvalidPayload, err)
	}
	return payload, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
