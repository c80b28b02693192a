package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/observability"
	"github.com/noah-isme/labgrade-api/internal/repository"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

type gradeFixture struct {
	db          *gorm.DB
	enrollment  models.Enrollment
	enrollments repository.EnrollmentRepository
	records     repository.WeeklyRecordRepository
	activity    *memoryActivityRepo
	events      *recordingPublisher
}

func newGradeFixture(t *testing.T) gradeFixture {
	t.Helper()
	db := setupServiceDB(t)
	return gradeFixture{
		db:          db,
		enrollment:  seedServiceEnrollment(t, db, 1.5),
		enrollments: repository.NewEnrollmentRepository(db),
		records:     repository.NewWeeklyRecordRepository(db),
		activity:    &memoryActivityRepo{},
		events:      &recordingPublisher{},
	}
}

func (f gradeFixture) service(policy grading.PredictivePolicy, cfg GradeServiceConfig) GradeService {
	cfg.Activity = NewActivityService(f.activity, testLogger())
	cfg.Events = f.events
	if cfg.PolicyName == "" {
		cfg.PolicyName = "test"
	}
	return NewGradeService(f.enrollments, f.records, grading.DefaultAggregator(), grading.NewClassifier(policy), cfg, testLogger())
}

// writeBoundaryTerm stores a full term that aggregates to exactly 69.00.
func (f gradeFixture) writeBoundaryTerm(t *testing.T) {
	t.Helper()
	for week := 1; week <= 12; week++ {
		record := models.WeeklyRecord{EnrollmentID: f.enrollment.ID, Week: week, LabMarks: 7.5, Attendance: "unmarked"}
		switch {
		case week <= 8:
			record.Attendance = "present"
		case week <= 10:
			record.Attendance = "absent"
		}
		if week == 12 {
			record.QuizScore = 15
			record.VivaScore = 10
		}
		require.NoError(t, f.records.Upsert(context.Background(), &record))
	}
}

func (f gradeFixture) writeWeeks(t *testing.T, marks ...float64) {
	t.Helper()
	for idx, mark := range marks {
		record := models.WeeklyRecord{EnrollmentID: f.enrollment.ID, Week: idx + 1, LabMarks: mark, Attendance: "present"}
		require.NoError(t, f.records.Upsert(context.Background(), &record))
	}
}

func failingPolicy(t *testing.T) grading.PredictivePolicy {
	return grading.PolicyFunc(func(ctx context.Context, request grading.PredictionRequest) (grading.PredictionResponse, error) {
		t.Fatal("policy must not be consulted for a complete term")
		return grading.PredictionResponse{}, nil
	})
}

func TestGradeServiceCalculatesCompleteTerm(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)
	mini, client := newTestRedis(t)
	require.NoError(t, mini.Set(progressCacheKey(f.enrollment.ID), "{}"))
	require.NoError(t, mini.Set(courseReportCacheKey(f.enrollment.CourseID), "{}"))

	svc := f.service(failingPolicy(t), GradeServiceConfig{Cache: client})
	actor := ActivityActor{ID: 9, Role: "teacher"}

	result, err := svc.Calculate(context.Background(), actor, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "B", result.LetterGrade)
	require.Equal(t, 69.0, result.TotalPercentage)
	require.Equal(t, "complete", result.Mode)
	require.Empty(t, result.BehaviorTag)
	require.Equal(t, uint(1), result.Version)
	require.NotNil(t, result.Breakdown)
	require.Equal(t, 36.0, result.Breakdown.WeightedLab)
	require.Equal(t, 8.0, result.Breakdown.WeightedAttendance)

	require.False(t, mini.Exists(progressCacheKey(f.enrollment.ID)))
	require.False(t, mini.Exists(courseReportCacheKey(f.enrollment.CourseID)))
	require.Equal(t, []string{models.ActivityGradeCalculated}, f.activity.actions())
	require.Equal(t, []string{EventGradeCalculated}, f.events.types())

	stored, err := svc.Get(context.Background(), f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "B", stored.LetterGrade)
	require.Equal(t, 69.0, stored.TotalPercentage)

	again, err := svc.Calculate(context.Background(), actor, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, result.LetterGrade, again.LetterGrade)
	require.Equal(t, result.TotalPercentage, again.TotalPercentage)
	require.Equal(t, uint(2), again.Version)

	history, err := svc.History(context.Background(), f.enrollment.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "B", history[0].LetterGrade)
	require.Empty(t, history[0].Policy)
	require.Equal(t, 69.0, history[0].Breakdown["total_percentage"])
}

func TestGradeServiceCarriesCorrelationID(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)
	svc := f.service(failingPolicy(t), GradeServiceConfig{})

	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	_, err := svc.Calculate(ctx, ActivityActor{ID: 9, Role: "teacher"}, f.enrollment.ID)
	require.NoError(t, err)

	require.Len(t, f.events.events, 1)
	require.Equal(t, "corr-42", f.events.events[0].CorrelationID)

	require.Len(t, f.activity.entries, 1)
	require.Equal(t, "corr-42", f.activity.entries[0].Metadata["correlation_id"])
	require.Equal(t, "B", f.activity.entries[0].Metadata["letter_grade"])
}

func TestGradeServiceNoDataStoresNothing(t *testing.T) {
	f := newGradeFixture(t)
	svc := f.service(nil, GradeServiceConfig{})

	_, err := svc.Calculate(context.Background(), ActivityActor{ID: 1, Role: "teacher"}, f.enrollment.ID)
	require.True(t, grading.IsNoData(err))

	_, err = svc.Get(context.Background(), f.enrollment.ID)
	require.ErrorIs(t, err, ErrGradeNotCalculated)
	require.Empty(t, f.activity.actions())
	require.Empty(t, f.events.types())
}

func TestGradeServiceDelegatesPartialTerm(t *testing.T) {
	f := newGradeFixture(t)
	f.writeWeeks(t, 12.5, 12.5, 12.5)

	var seen grading.PredictionRequest
	policy := grading.PolicyFunc(func(ctx context.Context, request grading.PredictionRequest) (grading.PredictionResponse, error) {
		seen = request
		return grading.PredictionResponse{FinalGrade: "A:High Achiever"}, nil
	})

	svc := f.service(policy, GradeServiceConfig{PolicyName: "heuristic"})
	result, err := svc.Calculate(context.Background(), ActivityActor{ID: 3, Role: "admin"}, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "A", result.LetterGrade)
	require.Equal(t, "partial", result.Mode)
	require.Equal(t, "High Achiever", result.BehaviorTag)
	require.Equal(t, 12, seen.ExpectedWeeks)
	require.Len(t, seen.WeeklyTrend, 3)

	history, err := svc.History(context.Background(), f.enrollment.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "heuristic", history[0].Policy)
}

func TestGradeServicePredictionFailureKeepsStoredGrade(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)

	complete := f.service(nil, GradeServiceConfig{})
	_, err := complete.Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
	require.NoError(t, err)

	// Drop the final week so the next calculation needs a prediction.
	require.NoError(t, f.db.Where("enrollment_id = ? AND week = ?", f.enrollment.ID, 12).Delete(&models.WeeklyRecord{}).Error)

	broken := grading.PolicyFunc(func(ctx context.Context, request grading.PredictionRequest) (grading.PredictionResponse, error) {
		return grading.PredictionResponse{}, errors.New("upstream unavailable")
	})
	_, err = f.service(broken, GradeServiceConfig{}).Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
	require.True(t, grading.IsPredictionUnavailable(err))

	stored, err := complete.Get(context.Background(), f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "B", stored.LetterGrade)
	require.Equal(t, uint(1), stored.Version)
}

func TestGradeServicePredictionTimeout(t *testing.T) {
	f := newGradeFixture(t)
	f.writeWeeks(t, 10)

	slow := grading.PolicyFunc(func(ctx context.Context, request grading.PredictionRequest) (grading.PredictionResponse, error) {
		<-ctx.Done()
		return grading.PredictionResponse{}, ctx.Err()
	})

	svc := f.service(slow, GradeServiceConfig{PredictionTimeout: 20 * time.Millisecond})
	_, err := svc.Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
	require.True(t, grading.IsPredictionUnavailable(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type staleEnrollmentRepo struct {
	repository.EnrollmentRepository
	db *gorm.DB
}

// GetByID simulates another writer storing a grade right after the read.
func (r staleEnrollmentRepo) GetByID(ctx context.Context, id uint) (models.Enrollment, error) {
	enrollment, err := r.EnrollmentRepository.GetByID(ctx, id)
	if err != nil {
		return enrollment, err
	}
	err = r.db.Model(&models.Enrollment{}).Where("id = ?", id).Update("grade_version", enrollment.GradeVersion+1).Error
	return enrollment, err
}

func TestGradeServiceReportsConcurrentWrite(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)

	stale := staleEnrollmentRepo{EnrollmentRepository: f.enrollments, db: f.db}
	svc := NewGradeService(stale, f.records, nil, nil, GradeServiceConfig{}, testLogger())

	_, err := svc.Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
	require.ErrorIs(t, err, ErrGradeConflict)

	calculations, err := f.enrollments.ListCalculations(context.Background(), f.enrollment.ID, 0)
	require.NoError(t, err)
	require.Empty(t, calculations)
}

func TestGradeServiceSerialisesConcurrentCalculations(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)
	svc := f.service(nil, GradeServiceConfig{Locker: NewLocalLocker()})

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := svc.Get(context.Background(), f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, uint(workers), stored.Version)
}

func TestGradeServiceUnknownEnrollment(t *testing.T) {
	f := newGradeFixture(t)
	svc := f.service(nil, GradeServiceConfig{})

	_, err := svc.Calculate(context.Background(), ActivityActor{ID: 1}, 404)
	require.ErrorIs(t, err, ErrEnrollmentNotFound)

	_, err = svc.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrEnrollmentNotFound)

	_, err = svc.History(context.Background(), 404, 5)
	require.ErrorIs(t, err, ErrEnrollmentNotFound)
}
