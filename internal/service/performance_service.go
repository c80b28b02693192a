package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/observability"
	"github.com/noah-isme/labgrade-api/internal/repository"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// PerformanceService records weekly performance and serves the progress view.
// Record writes never touch the stored grade.
type PerformanceService interface {
	RecordWeek(ctx context.Context, actor ActivityActor, enrollmentID uint, week int, payload dto.WeeklyRecordRequest) (dto.WeeklyRecordResponse, error)
	ListWeeks(ctx context.Context, enrollmentID uint) ([]dto.WeeklyRecordResponse, error)
	Progress(ctx context.Context, enrollmentID uint) (dto.ProgressResponse, error)
	StudentOf(ctx context.Context, enrollmentID uint) (uint, error)
}

type performanceService struct {
	enrollments repository.EnrollmentRepository
	records     repository.WeeklyRecordRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	aggregator  *grading.Aggregator
	activity    ActivityRecorder
	events      EventPublisher
	redis       *redis.Client
	cache       jsonCache
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// PerformanceServiceConfig groups the optional collaborators of the performance service.
type PerformanceServiceConfig struct {
	Activity ActivityRecorder
	Events   EventPublisher
	Cache    *redis.Client
	CacheTTL time.Duration
}

// NewPerformanceService constructs the weekly record service.
func NewPerformanceService(enrollments repository.EnrollmentRepository, records repository.WeeklyRecordRepository, aggregator *grading.Aggregator, validate *validator.Validate, cfg PerformanceServiceConfig, logger zerolog.Logger) PerformanceService {
	if aggregator == nil {
		aggregator = grading.DefaultAggregator()
	}
	logger = logger.With().Str("component", "performance_service").Logger()

	return &performanceService{
		enrollments: enrollments,
		records:     records,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		aggregator:  aggregator,
		activity:    cfg.Activity,
		events:      cfg.Events,
		redis:       cfg.Cache,
		cache:       newJSONCache(cfg.Cache, "progress", cfg.CacheTTL, logger),
		tracer:      otel.Tracer("github.com/noah-isme/labgrade-api/internal/service/performance"),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *performanceService) RecordWeek(ctx context.Context, actor ActivityActor, enrollmentID uint, week int, payload dto.WeeklyRecordRequest) (dto.WeeklyRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "records.upsert", trace.WithAttributes(
		attribute.Int64("grading.enrollment_id", int64(enrollmentID)),
		attribute.Int("grading.week", week),
	))
	defer span.End()

	payload.Attendance = strings.ToLower(strings.TrimSpace(payload.Attendance))
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.WeeklyRecordResponse{}, err
	}

	attendance, ok := grading.ParseAttendanceStatus(payload.Attendance)
	if !ok {
		return dto.WeeklyRecordResponse{}, ErrInvalidAttendance
	}

	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrollment_lookup_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.WeeklyRecordResponse{}, ErrEnrollmentNotFound
		}
		return dto.WeeklyRecordResponse{}, err
	}

	rubric := enrollment.Course.Rubric()
	if week < 1 || week > rubric.Weeks {
		span.SetStatus(codes.Error, "week_out_of_range")
		return dto.WeeklyRecordResponse{}, ErrWeekOutOfRange
	}

	record := models.WeeklyRecord{
		EnrollmentID: enrollmentID,
		Week:         week,
		LabMarks:     payload.LabMarks,
		QuizScore:    payload.QuizScore,
		VivaScore:    payload.VivaScore,
		Attendance:   string(attendance),
		Remarks:      strings.TrimSpace(s.sanitizer.Sanitize(payload.Remarks)),
		RecordedBy:   actor.ID,
	}

	if err := s.records.Upsert(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record_upsert_failed")
		return dto.WeeklyRecordResponse{}, err
	}

	observability.WeeklyRecordsSaved().WithLabelValues(record.Attendance).Inc()
	invalidateKeys(ctx, s.redis, s.logger, progressCacheKey(enrollmentID))

	if week != rubric.FinalWeek && (record.QuizScore > 0 || record.VivaScore > 0) {
		s.logger.Warn().
			Uint("enrollment_id", enrollmentID).
			Int("week", week).
			Int("final_week", rubric.FinalWeek).
			Msg("quiz and viva scores outside the final week are stored but not graded")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     models.ActivityRecordSaved,
		EntityType: "enrollment",
		EntityID:   &enrollmentID,
		Metadata: map[string]interface{}{
			"week":       week,
			"lab_marks":  record.LabMarks,
			"attendance": record.Attendance,
		},
	})

	if s.events != nil {
		if err := s.events.Publish(ctx, GradeEvent{
			Type:          EventRecordSaved,
			EnrollmentID:  enrollmentID,
			CourseID:      enrollment.CourseID,
			Week:          week,
			ActorID:       actor.ID,
			CorrelationID: observability.CorrelationID(ctx),
		}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish record event")
		}
	}

	s.logger.Info().
		Uint("enrollment_id", enrollmentID).
		Int("week", week).
		Str("attendance", record.Attendance).
		Msg("weekly record saved")

	return dto.NewWeeklyRecordResponse(record), nil
}

func (s *performanceService) ListWeeks(ctx context.Context, enrollmentID uint) ([]dto.WeeklyRecordResponse, error) {
	if _, err := s.enrollments.GetByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}

	records, err := s.records.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return dto.NewWeeklyRecordResponses(records), nil
}

func (s *performanceService) Progress(ctx context.Context, enrollmentID uint) (dto.ProgressResponse, error) {
	ctx, span := s.tracer.Start(ctx, "records.progress", trace.WithAttributes(
		attribute.Int64("grading.enrollment_id", int64(enrollmentID)),
	))
	defer span.End()

	cacheKey := progressCacheKey(enrollmentID)
	var cached dto.ProgressResponse
	if s.cache.get(ctx, cacheKey, &cached) {
		cached.CacheHit = true
		span.SetAttributes(attribute.Bool("grading.cache_hit", true))
		return cached, nil
	}

	enrollment, records, err := loadEnrollmentRecords(ctx, s.enrollments, s.records, enrollmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "progress_lookup_failed")
		return dto.ProgressResponse{}, err
	}

	response := s.buildProgress(enrollment, records)
	s.cache.set(ctx, cacheKey, response)

	return response, nil
}

func (s *performanceService) buildProgress(enrollment models.Enrollment, records []models.WeeklyRecord) dto.ProgressResponse {
	rubric := enrollment.Course.Rubric()
	gradingRecords := models.GradingRecords(records)

	summary := dto.AttendanceSummary{}
	trend := make([]dto.TrendPoint, 0, len(records))
	for _, snapshot := range grading.Trend(gradingRecords) {
		switch snapshot.Attendance {
		case grading.AttendancePresent:
			summary.Present++
		case grading.AttendanceAbsent:
			summary.Absent++
		default:
			summary.Unmarked++
		}
		trend = append(trend, dto.TrendPoint{
			Week:       snapshot.Week,
			LabMarks:   snapshot.LabMarks,
			Attendance: string(snapshot.Attendance),
		})
	}

	response := dto.ProgressResponse{
		EnrollmentID:  enrollment.ID,
		CourseID:      enrollment.CourseID,
		CourseCode:    enrollment.Course.Code,
		CourseTitle:   enrollment.Course.Title,
		StudentID:     enrollment.StudentID,
		StudentName:   enrollment.Student.Name,
		ExpectedWeeks: rubric.Weeks,
		RecordedWeeks: len(trend),
		MissingWeeks:  grading.MissingWeeks(gradingRecords, rubric.Weeks),
		Complete:      grading.IsComplete(gradingRecords, rubric.Weeks),
		Records:       dto.NewWeeklyRecordResponses(records),
		Trend:         trend,
		Grade:         dto.NewStoredGradeResponse(enrollment),
		GeneratedAt:   s.now().UTC(),
	}

	if breakdown, err := s.aggregator.Aggregate(gradingRecords, rubric); err == nil {
		converted := dto.NewBreakdownResponse(breakdown)
		response.Breakdown = &converted
		summary.Percentage = breakdown.AttendancePct
	}
	response.Attendance = summary

	return response
}

func (s *performanceService) StudentOf(ctx context.Context, enrollmentID uint) (uint, error) {
	return enrollmentStudentID(ctx, s.enrollments, enrollmentID)
}

// enrollmentStudentID resolves the owning student without loading records.
func enrollmentStudentID(ctx context.Context, enrollments repository.EnrollmentRepository, enrollmentID uint) (uint, error) {
	enrollment, err := enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrEnrollmentNotFound
		}
		return 0, err
	}
	return enrollment.StudentID, nil
}

// loadEnrollmentRecords fetches the enrollment and its records concurrently.
func loadEnrollmentRecords(ctx context.Context, enrollments repository.EnrollmentRepository, records repository.WeeklyRecordRepository, enrollmentID uint) (models.Enrollment, []models.WeeklyRecord, error) {
	var (
		enrollment models.Enrollment
		rows       []models.WeeklyRecord
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := enrollments.GetByID(groupCtx, enrollmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEnrollmentNotFound
			}
			return err
		}
		enrollment = loaded
		return nil
	})
	group.Go(func() error {
		loaded, err := records.ListByEnrollment(groupCtx, enrollmentID)
		if err != nil {
			return err
		}
		rows = loaded
		return nil
	})

	if err := group.Wait(); err != nil {
		return models.Enrollment{}, nil, err
	}
	return enrollment, rows, nil
}
