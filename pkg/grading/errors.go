package grading

import (
	"errors"
	"fmt"
)

// ErrInvalidWeights indicates the component weights do not sum to one.
var ErrInvalidWeights = errors.New("grading: component weights must sum to 1")

// NoDataError is returned when there are no weekly records to aggregate.
type NoDataError struct{}

func (NoDataError) Error() string {
	return "grading: no weekly records to aggregate"
}

// RubricBoundsError reports a percentage outside [0,100]. It means an upstream
// capping bug and must not be swallowed.
type RubricBoundsError struct {
	Percentage float64
}

func (e RubricBoundsError) Error() string {
	return fmt.Sprintf("grading: percentage %.4f outside rubric bounds [0,100]", e.Percentage)
}

// PredictionUnavailableError wraps a failed, timed out or malformed policy call.
type PredictionUnavailableError struct {
	Err error
}

func (e *PredictionUnavailableError) Error() string {
	if e.Err == nil {
		return "grading: prediction unavailable"
	}
	return fmt.Sprintf("grading: prediction unavailable: %v", e.Err)
}

func (e *PredictionUnavailableError) Unwrap() error {
	return e.Err
}

// IsNoData reports whether err is a NoDataError.
func IsNoData(err error) bool {
	var target NoDataError
	return errors.As(err, &target)
}

// IsRubricBounds reports whether err is a RubricBoundsError.
func IsRubricBounds(err error) bool {
	var target RubricBoundsError
	return errors.As(err, &target)
}

// IsPredictionUnavailable reports whether err is a PredictionUnavailableError.
func IsPredictionUnavailable(err error) bool {
	var target *PredictionUnavailableError
	return errors.As(err, &target)
}
