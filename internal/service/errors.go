package service

import (
	"errors"

	"github.com/noah-isme/labgrade-api/internal/repository"
)

var (
	// ErrEnrollmentNotFound indicates the enrollment does not exist.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrCourseNotFound indicates the course does not exist.
	ErrCourseNotFound = errors.New("course not found")
	// ErrWeekOutOfRange indicates a week outside 1..N for the course.
	ErrWeekOutOfRange = errors.New("week is outside the course schedule")
	// ErrInvalidAttendance indicates an unsupported attendance status.
	ErrInvalidAttendance = errors.New("attendance must be present, absent or unmarked")
	// ErrGradeNotCalculated indicates no grade has been stored for the enrollment yet.
	ErrGradeNotCalculated = errors.New("grade has not been calculated")
	// ErrGradeConflict indicates a concurrent calculation stored a grade first.
	ErrGradeConflict = repository.ErrGradeConflict
	// ErrGradeLocked indicates another calculation holds the enrollment lock.
	ErrGradeLocked = errors.New("grade calculation already in progress")
)
