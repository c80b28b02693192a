package grading

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PredictivePolicy predicts a final grade from partial data. Implementations
// must return exactly one letter and one tag, and must never return F when the
// first recorded week was strong.
type PredictivePolicy interface {
	Predict(ctx context.Context, request PredictionRequest) (PredictionResponse, error)
}

// PolicyFunc adapts a function to PredictivePolicy.
type PolicyFunc func(ctx context.Context, request PredictionRequest) (PredictionResponse, error)

// Predict calls f.
func (f PolicyFunc) Predict(ctx context.Context, request PredictionRequest) (PredictionResponse, error) {
	return f(ctx, request)
}

// WeightedScores holds the weighted components as 2-decimal strings.
type WeightedScores struct {
	Lab        string `json:"lab"`
	Quiz       string `json:"quiz"`
	Viva       string `json:"viva"`
	Attendance string `json:"attendance"`
}

// ActualScores holds raw component values.
type ActualScores struct {
	TotalLabMarks        float64 `json:"totalLabMarks"`
	QuizScore            float64 `json:"quizScore"`
	VivaScore            float64 `json:"vivaScore"`
	AttendancePercentage string  `json:"attendancePercentage"`
}

// MaxScores holds raw component maxima.
type MaxScores struct {
	Lab  float64 `json:"lab"`
	Quiz float64 `json:"quiz"`
	Viva float64 `json:"viva"`
}

// WeekSnapshot is one week of the trend handed to a policy.
type WeekSnapshot struct {
	Week       int              `json:"week"`
	LabMarks   float64          `json:"labMarks"`
	Attendance AttendanceStatus `json:"attendance"`
}

// PredictionRequest is the payload sent to a predictive policy.
type PredictionRequest struct {
	TotalPercentage float64        `json:"totalPercentage"`
	WeightedScores  WeightedScores `json:"weightedScores"`
	ActualScores    ActualScores   `json:"actualScores"`
	MaxScores       MaxScores      `json:"maxScores"`
	ExpectedWeeks   int            `json:"expectedWeeks"`
	FinalWeek       int            `json:"finalWeek"`
	WeeklyTrend     []WeekSnapshot `json:"weeklyTrend"`
}

// PredictionResponse is the raw policy answer, "<LETTER>:<TAG>".
type PredictionResponse struct {
	FinalGrade string `json:"finalGrade"`
}

// Prediction is a parsed PredictionResponse.
type Prediction struct {
	Letter Letter
	Tag    BehaviorTag
}

// String formats the prediction in wire form.
func (p Prediction) String() string {
	return fmt.Sprintf("%s:%s", p.Letter, p.Tag)
}

var predictionPattern = regexp.MustCompile(`^([A-Fa-f])\s*:\s*(.+)$`)

// ParsePrediction validates a policy answer. A leading "Predicted Grade:" label
// is tolerated; anything else outside the pattern is rejected.
func ParsePrediction(raw string) (Prediction, error) {
	const label = "predicted grade:"
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(value), label) {
		value = strings.TrimSpace(value[len(label):])
	}

	matches := predictionPattern.FindStringSubmatch(value)
	if matches == nil {
		return Prediction{}, fmt.Errorf("malformed prediction %q", raw)
	}

	letter := Letter(strings.ToUpper(matches[1]))
	if !letter.Valid() {
		return Prediction{}, fmt.Errorf("unknown letter grade %q", matches[1])
	}

	tag, ok := ParseBehaviorTag(matches[2])
	if !ok {
		return Prediction{}, fmt.Errorf("unknown behavior tag %q", matches[2])
	}

	return Prediction{Letter: letter, Tag: tag}, nil
}

// NewPredictionRequest builds the policy payload from a breakdown and the
// records it was computed from.
func NewPredictionRequest(breakdown Breakdown, records []WeeklyRecord, rubric CourseRubric) PredictionRequest {
	rubric = rubric.WithDefaults()

	return PredictionRequest{
		TotalPercentage: breakdown.TotalPercentage,
		WeightedScores: WeightedScores{
			Lab:        format2(breakdown.WeightedLab),
			Quiz:       format2(breakdown.WeightedQuiz),
			Viva:       format2(breakdown.WeightedViva),
			Attendance: format2(breakdown.WeightedAttendance),
		},
		ActualScores: ActualScores{
			TotalLabMarks:        breakdown.RawLabTotal,
			QuizScore:            breakdown.QuizScore,
			VivaScore:            breakdown.VivaScore,
			AttendancePercentage: format2(breakdown.AttendancePct),
		},
		MaxScores: MaxScores{
			Lab:  breakdown.LabMax,
			Quiz: breakdown.QuizMax,
			Viva: breakdown.VivaMax,
		},
		ExpectedWeeks: rubric.Weeks,
		FinalWeek:     rubric.FinalWeek,
		WeeklyTrend:   Trend(records),
	}
}

// Trend returns one snapshot per week in ascending order.
func Trend(records []WeeklyRecord) []WeekSnapshot {
	byWeek := latestByWeek(records)
	trend := make([]WeekSnapshot, 0, len(byWeek))
	for week, record := range byWeek {
		attendance := record.Attendance
		if attendance == "" {
			attendance = AttendanceUnmarked
		}
		trend = append(trend, WeekSnapshot{
			Week:       week,
			LabMarks:   nonNegative(record.LabMarks),
			Attendance: attendance,
		})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Week < trend[j].Week })
	return trend
}

// StrongStart reports whether the first recorded week reached the A band
// threshold of that week's share of the lab maximum.
func StrongStart(trend []WeekSnapshot, labMax float64, weeks int) bool {
	if len(trend) == 0 || labMax <= 0 || weeks <= 0 {
		return false
	}
	perWeek := labMax / float64(weeks)
	return trend[0].LabMarks/perWeek*100 >= Bands[0].Min
}

func format2(value float64) string {
	return strconv.FormatFloat(round2(value), 'f', 2, 64)
}
