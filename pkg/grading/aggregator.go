package grading

import "math"

const weightTolerance = 1e-9

// Aggregator turns weekly records into capped, weighted component scores.
type Aggregator struct {
	weights Weights
}

// NewAggregator validates the weights and returns an aggregator.
func NewAggregator(weights Weights) (*Aggregator, error) {
	if weights.Lab < 0 || weights.Quiz < 0 || weights.Viva < 0 || weights.Attendance < 0 {
		return nil, ErrInvalidWeights
	}
	if math.Abs(weights.sum()-1) > weightTolerance {
		return nil, ErrInvalidWeights
	}
	return &Aggregator{weights: weights}, nil
}

// DefaultAggregator uses DefaultWeights.
func DefaultAggregator() *Aggregator {
	return &Aggregator{weights: DefaultWeights()}
}

// Weights returns the configured component split.
func (a *Aggregator) Weights() Weights {
	return a.weights
}

// Aggregate computes the breakdown for one enrollment. Lab marks are summed over
// every week while quiz and viva come only from the final week record.
func (a *Aggregator) Aggregate(records []WeeklyRecord, rubric CourseRubric) (Breakdown, error) {
	if len(records) == 0 {
		return Breakdown{}, NoDataError{}
	}

	rubric = rubric.WithDefaults()
	byWeek := latestByWeek(records)

	var breakdown Breakdown
	breakdown.LabMax = rubric.LabMax()
	breakdown.QuizMax = QuizMax
	breakdown.VivaMax = VivaMax

	for _, record := range byWeek {
		breakdown.RawLabTotal += nonNegative(record.LabMarks)
		switch record.Attendance {
		case AttendancePresent:
			breakdown.PresentCount++
		case AttendanceAbsent:
			breakdown.AbsentCount++
		}
	}

	if final, ok := byWeek[rubric.FinalWeek]; ok {
		breakdown.QuizScore = nonNegative(final.QuizScore)
		breakdown.VivaScore = nonNegative(final.VivaScore)
	}

	if marked := breakdown.PresentCount + breakdown.AbsentCount; marked > 0 {
		breakdown.AttendancePct = float64(breakdown.PresentCount) / float64(marked) * 100
	}

	breakdown.CappedLab = math.Min(breakdown.RawLabTotal, breakdown.LabMax)
	breakdown.CappedQuiz = math.Min(breakdown.QuizScore, breakdown.QuizMax)
	breakdown.CappedViva = math.Min(breakdown.VivaScore, breakdown.VivaMax)
	attendance := math.Min(breakdown.AttendancePct, 100)

	breakdown.WeightedLab = breakdown.CappedLab / breakdown.LabMax * 100 * a.weights.Lab
	breakdown.WeightedQuiz = breakdown.CappedQuiz / breakdown.QuizMax * 100 * a.weights.Quiz
	breakdown.WeightedViva = breakdown.CappedViva / breakdown.VivaMax * 100 * a.weights.Viva
	breakdown.WeightedAttendance = attendance / 100 * 100 * a.weights.Attendance

	total := breakdown.WeightedLab + breakdown.WeightedQuiz + breakdown.WeightedViva + breakdown.WeightedAttendance
	breakdown.TotalPercentage = round2(total)

	return breakdown, nil
}

// latestByWeek keeps the last record seen per week, mirroring upsert semantics.
func latestByWeek(records []WeeklyRecord) map[int]WeeklyRecord {
	byWeek := make(map[int]WeeklyRecord, len(records))
	for _, record := range records {
		byWeek[record.Week] = record
	}
	return byWeek
}

func nonNegative(value float64) float64 {
	if value < 0 || math.IsNaN(value) {
		return 0
	}
	return value
}
