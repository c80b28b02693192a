package grading

import (
	"math"
	"strings"
)

const (
	// DefaultWeeks is the observed course length.
	DefaultWeeks = 12
	// DefaultCredit applies when a course has no credit configured.
	DefaultCredit = 1.5
	// LabMarksPerCredit scales the lab raw maximum.
	LabMarksPerCredit = 100.0
	// QuizMax is the fixed raw quiz maximum.
	QuizMax = 15.0
	// VivaMax is the fixed raw viva maximum.
	VivaMax = 15.0
)

// AttendanceStatus is the attendance mark stored with a weekly record.
type AttendanceStatus string

const (
	AttendancePresent  AttendanceStatus = "present"
	AttendanceAbsent   AttendanceStatus = "absent"
	AttendanceUnmarked AttendanceStatus = "unmarked"
)

// ParseAttendanceStatus normalises raw input; empty means unmarked.
func ParseAttendanceStatus(value string) (AttendanceStatus, bool) {
	status := AttendanceStatus(strings.ToLower(strings.TrimSpace(value)))
	if status == "" {
		return AttendanceUnmarked, true
	}
	return status, status.Valid()
}

// Valid reports whether the status is supported.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceUnmarked:
		return true
	default:
		return false
	}
}

// WeeklyRecord is one week of performance data for an enrollment.
type WeeklyRecord struct {
	Week       int
	LabMarks   float64
	QuizScore  float64
	VivaScore  float64
	Attendance AttendanceStatus
}

// CourseRubric carries the per-course scaling inputs.
type CourseRubric struct {
	Credit float64
	// Weeks is the expected course length. Zero means DefaultWeeks.
	Weeks int
	// FinalWeek holds quiz and viva scores. Zero means the last week.
	FinalWeek int
}

// WithDefaults fills unset fields.
func (r CourseRubric) WithDefaults() CourseRubric {
	if r.Credit <= 0 || math.IsNaN(r.Credit) {
		r.Credit = DefaultCredit
	}
	if r.Weeks <= 0 {
		r.Weeks = DefaultWeeks
	}
	if r.FinalWeek <= 0 || r.FinalWeek > r.Weeks {
		r.FinalWeek = r.Weeks
	}
	return r
}

// LabMax returns the attainable raw lab total.
func (r CourseRubric) LabMax() float64 {
	return r.WithDefaults().Credit * LabMarksPerCredit
}

// Weights is the component split applied to capped scores.
type Weights struct {
	Lab        float64
	Quiz       float64
	Viva       float64
	Attendance float64
}

// DefaultWeights returns the 60/15/15/10 split.
func DefaultWeights() Weights {
	return Weights{Lab: 0.60, Quiz: 0.15, Viva: 0.15, Attendance: 0.10}
}

func (w Weights) sum() float64 {
	return w.Lab + w.Quiz + w.Viva + w.Attendance
}

// Breakdown is the aggregator output. Weighted values keep full precision;
// only TotalPercentage is rounded.
type Breakdown struct {
	RawLabTotal float64
	QuizScore   float64
	VivaScore   float64

	LabMax  float64
	QuizMax float64
	VivaMax float64

	CappedLab  float64
	CappedQuiz float64
	CappedViva float64

	PresentCount  int
	AbsentCount   int
	AttendancePct float64

	WeightedLab        float64
	WeightedQuiz       float64
	WeightedViva       float64
	WeightedAttendance float64

	TotalPercentage float64
}

// Letter is a final course grade.
type Letter string

const (
	LetterA Letter = "A"
	LetterB Letter = "B"
	LetterC Letter = "C"
	LetterD Letter = "D"
	LetterF Letter = "F"
)

// Valid reports whether the letter is part of the scale.
func (l Letter) Valid() bool {
	switch l {
	case LetterA, LetterB, LetterC, LetterD, LetterF:
		return true
	default:
		return false
	}
}

// BehaviorTag labels the performance pattern judged by a predictive policy.
type BehaviorTag string

const (
	TagHighAchiever        BehaviorTag = "High Achiever"
	TagConsistentPerformer BehaviorTag = "Consistent Performer"
	TagImproving           BehaviorTag = "Improving"
	TagAverageStable       BehaviorTag = "Average/Stable"
	TagAtRisk              BehaviorTag = "At Risk"
)

var behaviorTags = []BehaviorTag{
	TagHighAchiever,
	TagConsistentPerformer,
	TagImproving,
	TagAverageStable,
	TagAtRisk,
}

// ParseBehaviorTag matches a tag ignoring case and the spacing around "/".
func ParseBehaviorTag(value string) (BehaviorTag, bool) {
	normalized := normalizeTag(value)
	for _, tag := range behaviorTags {
		if normalizeTag(string(tag)) == normalized {
			return tag, true
		}
	}
	return "", false
}

func normalizeTag(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " / ", "/")
	return strings.Join(strings.Fields(value), " ")
}

// Mode records which classification path produced a result.
type Mode string

const (
	ModeComplete Mode = "complete"
	ModePartial  Mode = "partial"
)

// Result is the classifier output.
type Result struct {
	Letter          Letter
	TotalPercentage float64
	Mode            Mode
	// Tag is only set in partial mode.
	Tag BehaviorTag
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
