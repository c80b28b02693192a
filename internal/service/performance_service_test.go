package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labgrade-api/internal/dto"
	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/internal/repository"
)

func newPerformanceFixture(t *testing.T) (PerformanceService, models.Enrollment, *memoryActivityRepo, *recordingPublisher) {
	t.Helper()
	db := setupServiceDB(t)
	enrollment := seedServiceEnrollment(t, db, 1.5)
	activity := &memoryActivityRepo{}
	events := &recordingPublisher{}

	svc := NewPerformanceService(
		repository.NewEnrollmentRepository(db),
		repository.NewWeeklyRecordRepository(db),
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
		PerformanceServiceConfig{Activity: NewActivityService(activity, testLogger()), Events: events},
		testLogger(),
	)
	return svc, enrollment, activity, events
}

func TestPerformanceServiceRecordWeek(t *testing.T) {
	svc, enrollment, activity, events := newPerformanceFixture(t)
	actor := ActivityActor{ID: 7, Role: "teacher"}

	record, err := svc.RecordWeek(context.Background(), actor, enrollment.ID, 3, dto.WeeklyRecordRequest{
		LabMarks:   9.5,
		Attendance: " Present ",
		Remarks:    "<b>great</b> work<script>alert(1)</script>",
	})
	require.NoError(t, err)
	require.Equal(t, 3, record.Week)
	require.Equal(t, 9.5, record.LabMarks)
	require.Equal(t, "present", record.Attendance)
	require.Equal(t, "great work", record.Remarks)
	require.Equal(t, uint(7), record.RecordedBy)

	require.Equal(t, []string{models.ActivityRecordSaved}, activity.actions())
	require.Equal(t, []string{EventRecordSaved}, events.types())

	updated, err := svc.RecordWeek(context.Background(), actor, enrollment.ID, 3, dto.WeeklyRecordRequest{LabMarks: 4})
	require.NoError(t, err)
	require.Equal(t, "unmarked", updated.Attendance)

	weeks, err := svc.ListWeeks(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	require.Equal(t, 4.0, weeks[0].LabMarks)
}

func TestPerformanceServiceRejectsInvalidInput(t *testing.T) {
	svc, enrollment, activity, _ := newPerformanceFixture(t)
	actor := ActivityActor{ID: 7, Role: "teacher"}

	_, err := svc.RecordWeek(context.Background(), actor, enrollment.ID, 0, dto.WeeklyRecordRequest{LabMarks: 5})
	require.ErrorIs(t, err, ErrWeekOutOfRange)

	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 13, dto.WeeklyRecordRequest{LabMarks: 5})
	require.ErrorIs(t, err, ErrWeekOutOfRange)

	var validationErrs validator.ValidationErrors
	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 12, dto.WeeklyRecordRequest{QuizScore: 16})
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 2, dto.WeeklyRecordRequest{Attendance: "late"})
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 2, dto.WeeklyRecordRequest{LabMarks: -1})
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.RecordWeek(context.Background(), actor, 999, 2, dto.WeeklyRecordRequest{LabMarks: 5})
	require.ErrorIs(t, err, ErrEnrollmentNotFound)

	require.Empty(t, activity.actions())
}

func TestPerformanceServiceProgress(t *testing.T) {
	svc, enrollment, _, _ := newPerformanceFixture(t)
	actor := ActivityActor{ID: 7, Role: "teacher"}

	empty, err := svc.Progress(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 12, empty.ExpectedWeeks)
	require.Len(t, empty.MissingWeeks, 12)
	require.Nil(t, empty.Breakdown)
	require.Nil(t, empty.Grade)
	require.False(t, empty.Complete)

	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 1, dto.WeeklyRecordRequest{LabMarks: 10, Attendance: "present"})
	require.NoError(t, err)
	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 2, dto.WeeklyRecordRequest{LabMarks: 6, Attendance: "absent"})
	require.NoError(t, err)
	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 3, dto.WeeklyRecordRequest{LabMarks: 8})
	require.NoError(t, err)

	progress, err := svc.Progress(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 3, progress.RecordedWeeks)
	require.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11, 12}, progress.MissingWeeks)
	require.Equal(t, dto.AttendanceSummary{Present: 1, Absent: 1, Unmarked: 1, Percentage: 50}, progress.Attendance)
	require.Len(t, progress.Trend, 3)
	require.NotNil(t, progress.Breakdown)
	require.Equal(t, 24.0, progress.Breakdown.RawLabTotal)
	require.Nil(t, progress.Grade)
	require.False(t, progress.CacheHit)

	_, err = svc.Progress(context.Background(), 999)
	require.ErrorIs(t, err, ErrEnrollmentNotFound)
}

func TestPerformanceServiceProgressCache(t *testing.T) {
	db := setupServiceDB(t)
	enrollment := seedServiceEnrollment(t, db, 1.5)
	mini, client := newTestRedis(t)

	svc := NewPerformanceService(
		repository.NewEnrollmentRepository(db),
		repository.NewWeeklyRecordRepository(db),
		nil,
		validator.New(validator.WithRequiredStructEnabled()),
		PerformanceServiceConfig{Cache: client},
		testLogger(),
	)
	actor := ActivityActor{ID: 7, Role: "teacher"}

	_, err := svc.RecordWeek(context.Background(), actor, enrollment.ID, 1, dto.WeeklyRecordRequest{LabMarks: 10, Attendance: "present"})
	require.NoError(t, err)

	first, err := svc.Progress(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.True(t, mini.Exists(progressCacheKey(enrollment.ID)))

	second, err := svc.Progress(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.RecordedWeeks, second.RecordedWeeks)

	_, err = svc.RecordWeek(context.Background(), actor, enrollment.ID, 2, dto.WeeklyRecordRequest{LabMarks: 10, Attendance: "present"})
	require.NoError(t, err)
	require.False(t, mini.Exists(progressCacheKey(enrollment.ID)))

	third, err := svc.Progress(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.False(t, third.CacheHit)
	require.Equal(t, 2, third.RecordedWeeks)
}

func TestPerformanceServiceWritesLeaveStoredGrade(t *testing.T) {
	f := newGradeFixture(t)
	f.writeBoundaryTerm(t)

	grades := f.service(nil, GradeServiceConfig{})
	_, err := grades.Calculate(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID)
	require.NoError(t, err)

	svc := NewPerformanceService(f.enrollments, f.records, nil, validator.New(), PerformanceServiceConfig{}, testLogger())
	_, err = svc.RecordWeek(context.Background(), ActivityActor{ID: 1}, f.enrollment.ID, 1, dto.WeeklyRecordRequest{LabMarks: 0, Attendance: "absent"})
	require.NoError(t, err)

	stored, err := grades.Get(context.Background(), f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, "B", stored.LetterGrade)
	require.Equal(t, 69.0, stored.TotalPercentage)

	progress, err := svc.Progress(context.Background(), f.enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, progress.Grade)
	require.Equal(t, "B", progress.Grade.LetterGrade)
	require.Less(t, progress.Breakdown.TotalPercentage, 69.0)
}

func TestPerformanceServiceStudentOf(t *testing.T) {
	svc, enrollment, _, _ := newPerformanceFixture(t)

	studentID, err := svc.StudentOf(context.Background(), enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, enrollment.StudentID, studentID)

	_, err = svc.StudentOf(context.Background(), 999)
	require.ErrorIs(t, err, ErrEnrollmentNotFound)
}
