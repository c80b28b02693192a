package grading

import (
	"context"
	"errors"
	"fmt"
)

// Classifier maps an aggregated breakdown to a letter grade. With a record for
// every expected week it applies the rubric; otherwise it asks the policy.
type Classifier struct {
	policy PredictivePolicy
}

// NewClassifier returns a classifier delegating partial data to policy. A nil
// policy makes every partial classification fail as unavailable.
func NewClassifier(policy PredictivePolicy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify picks complete or partial mode from the record set.
func (c *Classifier) Classify(ctx context.Context, breakdown Breakdown, records []WeeklyRecord, rubric CourseRubric) (Result, error) {
	total := breakdown.TotalPercentage
	letter, err := LetterFor(total)
	if err != nil {
		return Result{}, err
	}

	rubric = rubric.WithDefaults()
	if IsComplete(records, rubric.Weeks) {
		return Result{Letter: letter, TotalPercentage: total, Mode: ModeComplete}, nil
	}

	prediction, err := c.predict(ctx, breakdown, records, rubric)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Letter:          prediction.Letter,
		TotalPercentage: total,
		Mode:            ModePartial,
		Tag:             prediction.Tag,
	}, nil
}

func (c *Classifier) predict(ctx context.Context, breakdown Breakdown, records []WeeklyRecord, rubric CourseRubric) (Prediction, error) {
	if c.policy == nil {
		return Prediction{}, &PredictionUnavailableError{Err: errors.New("no predictive policy configured")}
	}

	request := NewPredictionRequest(breakdown, records, rubric)
	response, err := c.policy.Predict(ctx, request)
	if err != nil {
		return Prediction{}, &PredictionUnavailableError{Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Prediction{}, &PredictionUnavailableError{Err: ctxErr}
	}

	prediction, err := ParsePrediction(response.FinalGrade)
	if err != nil {
		return Prediction{}, &PredictionUnavailableError{Err: err}
	}

	if prediction.Letter == LetterF && StrongStart(request.WeeklyTrend, breakdown.LabMax, rubric.Weeks) {
		return Prediction{}, &PredictionUnavailableError{
			Err: fmt.Errorf("policy returned %s despite a strong first week", prediction),
		}
	}

	return prediction, nil
}

// IsComplete reports whether every week 1..weeks has a record.
func IsComplete(records []WeeklyRecord, weeks int) bool {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}
	seen := make(map[int]struct{}, len(records))
	for _, record := range records {
		if record.Week >= 1 && record.Week <= weeks {
			seen[record.Week] = struct{}{}
		}
	}
	return len(seen) == weeks
}

// MissingWeeks lists expected weeks without a record.
func MissingWeeks(records []WeeklyRecord, weeks int) []int {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}
	seen := make(map[int]struct{}, len(records))
	for _, record := range records {
		seen[record.Week] = struct{}{}
	}
	missing := make([]int, 0)
	for week := 1; week <= weeks; week++ {
		if _, ok := seen[week]; !ok {
			missing = append(missing, week)
		}
	}
	return missing
}
