package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/observability"
	"github.com/noah-isme/labgrade-api/internal/repository"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

const defaultPredictionTimeout = 20 * time.Second

// GradeService runs the explicit "calculate grade" action and serves stored grades.
type GradeService interface {
	Calculate(ctx context.Context, actor ActivityActor, enrollmentID uint) (dto.GradeResponse, error)
	Get(ctx context.Context, enrollmentID uint) (dto.GradeResponse, error)
	History(ctx context.Context, enrollmentID uint, limit int) ([]dto.GradeCalculationResponse, error)
	StudentOf(ctx context.Context, enrollmentID uint) (uint, error)
}

// GradeServiceConfig groups the optional collaborators of the grade service.
type GradeServiceConfig struct {
	Locker            EnrollmentLocker
	Activity          ActivityRecorder
	Events            EventPublisher
	Cache             *redis.Client
	PredictionTimeout time.Duration
	PolicyName        string
}

type gradeService struct {
	enrollments       repository.EnrollmentRepository
	records           repository.WeeklyRecordRepository
	aggregator        *grading.Aggregator
	classifier        *grading.Classifier
	locker            EnrollmentLocker
	activity          ActivityRecorder
	events            EventPublisher
	cache             *redis.Client
	predictionTimeout time.Duration
	policyName        string
	tracer            trace.Tracer
	logger            zerolog.Logger
	now               func() time.Time
}

// NewGradeService constructs the grade calculation service.
func NewGradeService(enrollments repository.EnrollmentRepository, records repository.WeeklyRecordRepository, aggregator *grading.Aggregator, classifier *grading.Classifier, cfg GradeServiceConfig, logger zerolog.Logger) GradeService {
	if aggregator == nil {
		aggregator = grading.DefaultAggregator()
	}
	if classifier == nil {
		classifier = grading.NewClassifier(nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.PredictionTimeout <= 0 {
		cfg.PredictionTimeout = defaultPredictionTimeout
	}

	return &gradeService{
		enrollments:       enrollments,
		records:           records,
		aggregator:        aggregator,
		classifier:        classifier,
		locker:            cfg.Locker,
		activity:          cfg.Activity,
		events:            cfg.Events,
		cache:             cfg.Cache,
		predictionTimeout: cfg.PredictionTimeout,
		policyName:        cfg.PolicyName,
		tracer:            otel.Tracer("github.com/noah-isme/labgrade-api/internal/service/grade"),
		logger:            logger.With().Str("component", "grade_service").Logger(),
		now:               time.Now,
	}
}

func (s *gradeService) Calculate(ctx context.Context, actor ActivityActor, enrollmentID uint) (dto.GradeResponse, error) {
	started := s.now()
	correlationID := observability.CorrelationID(ctx)
	ctx, span := s.tracer.Start(ctx, "grading.calculate", trace.WithAttributes(
		attribute.Int64("grading.enrollment_id", int64(enrollmentID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
		attribute.String("correlation_id", correlationID),
	))
	defer span.End()

	logger := s.logger.With().Uint("enrollment_id", enrollmentID).Str("correlation_id", correlationID).Logger()

	unlock, err := s.locker.Lock(ctx, enrollmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock_failed")
		return dto.GradeResponse{}, err
	}
	defer unlock()

	enrollment, rows, err := loadEnrollmentRecords(ctx, s.enrollments, s.records, enrollmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrollment_lookup_failed")
		return dto.GradeResponse{}, err
	}

	rubric := enrollment.Course.Rubric()
	records := models.GradingRecords(rows)
	mode := grading.ModePartial
	if grading.IsComplete(records, rubric.Weeks) {
		mode = grading.ModeComplete
	}
	span.SetAttributes(attribute.String("grading.mode", string(mode)), attribute.Int("grading.records", len(records)))

	breakdown, err := s.aggregator.Aggregate(records, rubric)
	if err != nil {
		s.observe(mode, "no_data", started)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no_data")
		logger.Info().Msg("grade calculation skipped: no weekly records")
		return dto.GradeResponse{}, err
	}

	classifyCtx, cancel := context.WithTimeout(ctx, s.predictionTimeout)
	result, err := s.classifier.Classify(classifyCtx, breakdown, records, rubric)
	cancel()
	if err != nil {
		span.RecordError(err)
		switch {
		case grading.IsRubricBounds(err):
			s.observe(mode, "rubric_bounds", started)
			span.SetStatus(codes.Error, "rubric_bounds")
			logger.Error().Err(err).Float64("total_percentage", breakdown.TotalPercentage).Msg("aggregated percentage outside rubric")
		case grading.IsPredictionUnavailable(err):
			s.observe(mode, "prediction_unavailable", started)
			span.SetStatus(codes.Error, "prediction_unavailable")
			logger.Warn().Err(err).Str("policy", s.policyName).Msg("grade prediction unavailable")
		default:
			s.observe(mode, "error", started)
			span.SetStatus(codes.Error, "classification_failed")
			logger.Error().Err(err).Msg("grade classification failed")
		}
		return dto.GradeResponse{}, err
	}

	gradedAt := s.now().UTC()
	breakdownResponse := dto.NewBreakdownResponse(breakdown)
	policy := ""
	if result.Mode == grading.ModePartial {
		policy = s.policyName
	}

	update := repository.GradeResultUpdate{
		Letter:          string(result.Letter),
		TotalPercentage: result.TotalPercentage,
		Mode:            string(result.Mode),
		BehaviorTag:     string(result.Tag),
		GradedAt:        gradedAt,
	}
	history := &models.GradeCalculation{
		Letter:          update.Letter,
		TotalPercentage: update.TotalPercentage,
		Mode:            update.Mode,
		BehaviorTag:     update.BehaviorTag,
		Policy:          policy,
		Breakdown:       datatypes.JSONMap(breakdownResponse.Map()),
		CalculatedBy:    actor.ID,
	}

	version, err := s.enrollments.SaveGradeResult(ctx, enrollment.ID, enrollment.GradeVersion, update, history)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrGradeConflict):
			s.observe(mode, "conflict", started)
			span.SetStatus(codes.Error, "grade_conflict")
			logger.Warn().Uint("expected_version", enrollment.GradeVersion).Msg("grade result changed concurrently")
			return dto.GradeResponse{}, ErrGradeConflict
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.observe(mode, "error", started)
			span.SetStatus(codes.Error, "enrollment_missing")
			return dto.GradeResponse{}, ErrEnrollmentNotFound
		default:
			s.observe(mode, "error", started)
			span.SetStatus(codes.Error, "grade_store_failed")
			return dto.GradeResponse{}, err
		}
	}

	s.observe(result.Mode, "stored", started)
	invalidateKeys(ctx, s.cache, s.logger, progressCacheKey(enrollment.ID), courseReportCacheKey(enrollment.CourseID))

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     models.ActivityGradeCalculated,
		EntityType: "enrollment",
		EntityID:   &enrollment.ID,
		Metadata: map[string]interface{}{
			"letter_grade":     update.Letter,
			"total_percentage": update.TotalPercentage,
			"mode":             update.Mode,
			"behavior_tag":     update.BehaviorTag,
			"version":          version,
		},
	})

	if s.events != nil {
		if err := s.events.Publish(ctx, GradeEvent{
			Type:            EventGradeCalculated,
			EnrollmentID:    enrollment.ID,
			CourseID:        enrollment.CourseID,
			LetterGrade:     update.Letter,
			TotalPercentage: update.TotalPercentage,
			Mode:            update.Mode,
			BehaviorTag:     update.BehaviorTag,
			ActorID:         actor.ID,
			CorrelationID:   correlationID,
			OccurredAt:      gradedAt,
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to publish grade event")
		}
	}

	span.SetAttributes(attribute.String("grading.letter", update.Letter))
	logger.Info().
		Str("mode", update.Mode).
		Str("letter", update.Letter).
		Float64("total_percentage", update.TotalPercentage).
		Str("behavior_tag", update.BehaviorTag).
		Msg("grade calculated")

	return dto.GradeResponse{
		EnrollmentID:    enrollment.ID,
		CourseID:        enrollment.CourseID,
		StudentID:       enrollment.StudentID,
		LetterGrade:     update.Letter,
		TotalPercentage: update.TotalPercentage,
		Mode:            update.Mode,
		BehaviorTag:     update.BehaviorTag,
		Version:         version,
		GradedAt:        &gradedAt,
		Breakdown:       &breakdownResponse,
	}, nil
}

func (s *gradeService) Get(ctx context.Context, enrollmentID uint) (dto.GradeResponse, error) {
	enrollment, err := s.enrollments.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeResponse{}, ErrEnrollmentNotFound
		}
		return dto.GradeResponse{}, err
	}

	stored := dto.NewStoredGradeResponse(enrollment)
	if stored == nil {
		return dto.GradeResponse{}, ErrGradeNotCalculated
	}
	return *stored, nil
}

func (s *gradeService) History(ctx context.Context, enrollmentID uint, limit int) ([]dto.GradeCalculationResponse, error) {
	if _, err := s.enrollments.GetByID(ctx, enrollmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}

	calculations, err := s.enrollments.ListCalculations(ctx, enrollmentID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.GradeCalculationResponse, 0, len(calculations))
	for _, calc := range calculations {
		responses = append(responses, dto.NewGradeCalculationResponse(calc))
	}
	return responses, nil
}

func (s *gradeService) StudentOf(ctx context.Context, enrollmentID uint) (uint, error) {
	return enrollmentStudentID(ctx, s.enrollments, enrollmentID)
}

func (s *gradeService) observe(mode grading.Mode, outcome string, started time.Time) {
	observability.GradeCalculations().WithLabelValues(string(mode), outcome).Inc()
	observability.GradeCalculationDuration().WithLabelValues(string(mode)).Observe(s.now().Sub(started).Seconds())
}
