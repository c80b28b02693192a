package grading

import (
	"context"
	"math"
	"strconv"
)

const (
	trendShift           = 0.15
	consistentSpread     = 0.20
	consistentAttendance = 0.90
)

// TrendPolicy is a rule-based PredictivePolicy. It projects the recorded
// weekly ratios over the whole course instead of treating missing weeks as
// zero, then adjusts for the direction of the trend.
type TrendPolicy struct {
	weights Weights
}

// NewTrendPolicy builds a heuristic policy using the given component split.
func NewTrendPolicy(weights Weights) *TrendPolicy {
	return &TrendPolicy{weights: weights}
}

// Predict implements PredictivePolicy.
func (p *TrendPolicy) Predict(ctx context.Context, request PredictionRequest) (PredictionResponse, error) {
	if err := ctx.Err(); err != nil {
		return PredictionResponse{}, err
	}

	weeks := request.ExpectedWeeks
	if weeks <= 0 {
		weeks = DefaultWeeks
	}

	ratios := weeklyRatios(request.WeeklyTrend, request.MaxScores.Lab, weeks)
	labRatio := mean(ratios)
	if len(ratios) == 0 && request.MaxScores.Lab > 0 {
		labRatio = clamp01(request.ActualScores.TotalLabMarks / request.MaxScores.Lab)
	}

	finalWeek := request.FinalWeek
	if finalWeek <= 0 || finalWeek > weeks {
		finalWeek = weeks
	}

	// Quiz and viva are only known once the final week is recorded.
	quizRatio, vivaRatio := labRatio, labRatio
	if hasWeek(request.WeeklyTrend, finalWeek) {
		quizRatio = safeRatio(request.ActualScores.QuizScore, request.MaxScores.Quiz)
		vivaRatio = safeRatio(request.ActualScores.VivaScore, request.MaxScores.Viva)
	}

	attendanceRatio := labRatio
	marked := markedWeeks(request.WeeklyTrend)
	if marked > 0 {
		if pct, err := strconv.ParseFloat(request.ActualScores.AttendancePercentage, 64); err == nil {
			attendanceRatio = clamp01(pct / 100)
		}
	}

	projected := 100 * (p.weights.Lab*labRatio +
		p.weights.Quiz*quizRatio +
		p.weights.Viva*vivaRatio +
		p.weights.Attendance*attendanceRatio)
	letter, err := LetterFor(math.Max(0, math.Min(100, projected)))
	if err != nil {
		return PredictionResponse{}, err
	}

	delta := trendDelta(ratios)
	declining := delta <= -trendShift
	improving := delta >= trendShift

	if declining {
		letter = lowerLetter(letter)
	}
	if letter == LetterF && StrongStart(request.WeeklyTrend, request.MaxScores.Lab, weeks) {
		letter = LetterD
	}

	tag := TagAverageStable
	switch {
	case letter == LetterD || letter == LetterF || (declining && letter != LetterA):
		tag = TagAtRisk
	case improving:
		tag = TagImproving
	case letter == LetterA:
		tag = TagHighAchiever
	case marked > 0 && attendanceRatio >= consistentAttendance && spread(ratios) <= consistentSpread:
		tag = TagConsistentPerformer
	}

	return PredictionResponse{FinalGrade: Prediction{Letter: letter, Tag: tag}.String()}, nil
}

func weeklyRatios(trend []WeekSnapshot, labMax float64, weeks int) []float64 {
	if labMax <= 0 {
		return nil
	}
	perWeek := labMax / float64(weeks)
	ratios := make([]float64, 0, len(trend))
	for _, snapshot := range trend {
		ratios = append(ratios, clamp01(snapshot.LabMarks/perWeek))
	}
	return ratios
}

// trendDelta compares the mean of the later half with the earlier half.
func trendDelta(ratios []float64) float64 {
	if len(ratios) < 2 {
		return 0
	}
	half := len(ratios) / 2
	return mean(ratios[len(ratios)-half:]) - mean(ratios[:half])
}

func lowerLetter(letter Letter) Letter {
	for idx, band := range Bands {
		if band.Letter == letter && idx+1 < len(Bands) {
			return Bands[idx+1].Letter
		}
	}
	return letter
}

func hasWeek(trend []WeekSnapshot, week int) bool {
	for _, snapshot := range trend {
		if snapshot.Week == week {
			return true
		}
	}
	return false
}

func markedWeeks(trend []WeekSnapshot) int {
	count := 0
	for _, snapshot := range trend {
		if snapshot.Attendance == AttendancePresent || snapshot.Attendance == AttendanceAbsent {
			count++
		}
	}
	return count
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}

func spread(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	lo, hi := values[0], values[0]
	for _, value := range values[1:] {
		lo = math.Min(lo, value)
		hi = math.Max(hi, value)
	}
	return hi - lo
}

func safeRatio(value, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return clamp01(value / max)
}

func clamp01(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
