package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/repository"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// CourseReportService aggregates stored grades across a course.
type CourseReportService interface {
	Report(ctx context.Context, courseID uint) (dto.CourseReportResponse, error)
}

type courseReportService struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	cache       jsonCache
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCourseReportService constructs the course report service.
func NewCourseReportService(courses repository.CourseRepository, enrollments repository.EnrollmentRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) CourseReportService {
	logger = logger.With().Str("component", "course_report_service").Logger()
	return &courseReportService{
		courses:     courses,
		enrollments: enrollments,
		cache:       newJSONCache(cache, "course_report", ttl, logger),
		logger:      logger,
		now:         time.Now,
	}
}

func (s *courseReportService) Report(ctx context.Context, courseID uint) (dto.CourseReportResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/labgrade-api/internal/service/course_report")
	ctx, span := tracer.Start(ctx, "reports.course")
	span.SetAttributes(attribute.Int64("grading.course_id", int64(courseID)))
	defer span.End()

	cacheKey := courseReportCacheKey(courseID)
	var cached dto.CourseReportResponse
	if s.cache.get(ctx, cacheKey, &cached) {
		cached.CacheHit = true
		span.SetAttributes(attribute.Bool("grading.cache_hit", true))
		return cached, nil
	}

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "course_lookup_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseReportResponse{}, ErrCourseNotFound
		}
		return dto.CourseReportResponse{}, err
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_enrollments_failed")
		return dto.CourseReportResponse{}, err
	}

	report := s.buildReport(course, enrollments)
	span.SetAttributes(attribute.Int("grading.enrollments", report.Enrollments), attribute.Int("grading.graded", report.Graded))
	s.cache.set(ctx, cacheKey, report)

	return report, nil
}

func (s *courseReportService) buildReport(course models.Course, enrollments []models.Enrollment) dto.CourseReportResponse {
	distribution := make(map[string]int, len(grading.Bands))
	for _, band := range grading.Bands {
		distribution[string(band.Letter)] = 0
	}

	report := dto.CourseReportResponse{
		CourseID:     course.ID,
		CourseCode:   course.Code,
		CourseTitle:  course.Title,
		Enrollments:  len(enrollments),
		Distribution: distribution,
		Modes:        map[string]int{},
		Tags:         map[string]int{},
		Students:     make([]dto.CourseReportEntry, 0, len(enrollments)),
		GeneratedAt:  s.now().UTC(),
	}

	var total float64
	for _, enrollment := range enrollments {
		report.Students = append(report.Students, dto.CourseReportEntry{
			EnrollmentID:    enrollment.ID,
			StudentID:       enrollment.StudentID,
			StudentName:     enrollment.Student.Name,
			LetterGrade:     enrollment.LetterGrade,
			TotalPercentage: enrollment.TotalPercentage,
			Mode:            enrollment.GradeMode,
			BehaviorTag:     enrollment.BehaviorTag,
		})

		if !enrollment.HasGrade() {
			report.Ungraded++
			continue
		}

		report.Graded++
		total += *enrollment.TotalPercentage
		distribution[*enrollment.LetterGrade]++
		if enrollment.GradeMode != "" {
			report.Modes[enrollment.GradeMode]++
		}
		if enrollment.BehaviorTag != "" {
			report.Tags[enrollment.BehaviorTag]++
		}
	}

	if report.Graded > 0 {
		report.AveragePercentage = math.Round(total/float64(report.Graded)*100) / 100
	}

	return report
}
