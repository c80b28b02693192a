package dto

import (
	"time"

	"github.com/noah-isme/labgrade-api/internal/models"
	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// WeeklyRecordRequest is the payload an instructor submits for one week.
type WeeklyRecordRequest struct {
	LabMarks   float64 `json:"lab_marks" validate:"gte=0"`
	QuizScore  float64 `json:"quiz_score" validate:"gte=0,lte=15"`
	VivaScore  float64 `json:"viva_score" validate:"gte=0,lte=15"`
	Attendance string  `json:"attendance" validate:"omitempty,oneof=present absent unmarked"`
	Remarks    string  `json:"remarks" validate:"max=1000"`
}

// WeeklyRecordResponse serializes a stored weekly record.
type WeeklyRecordResponse struct {
	ID           uint      `json:"id"`
	EnrollmentID uint      `json:"enrollment_id"`
	Week         int       `json:"week"`
	LabMarks     float64   `json:"lab_marks"`
	QuizScore    float64   `json:"quiz_score"`
	VivaScore    float64   `json:"viva_score"`
	Attendance   string    `json:"attendance"`
	Remarks      string    `json:"remarks"`
	RecordedBy   uint      `json:"recorded_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewWeeklyRecordResponse converts a model into its DTO.
func NewWeeklyRecordResponse(record models.WeeklyRecord) WeeklyRecordResponse {
	return WeeklyRecordResponse{
		ID:           record.ID,
		EnrollmentID: record.EnrollmentID,
		Week:         record.Week,
		LabMarks:     record.LabMarks,
		QuizScore:    record.QuizScore,
		VivaScore:    record.VivaScore,
		Attendance:   record.Attendance,
		Remarks:      record.Remarks,
		RecordedBy:   record.RecordedBy,
		UpdatedAt:    record.UpdatedAt,
	}
}

// NewWeeklyRecordResponses converts a slice of models.
func NewWeeklyRecordResponses(records []models.WeeklyRecord) []WeeklyRecordResponse {
	responses := make([]WeeklyRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewWeeklyRecordResponse(record))
	}
	return responses
}

// BreakdownResponse exposes the aggregator's sub-scores.
type BreakdownResponse struct {
	RawLabTotal        float64 `json:"raw_lab_total"`
	QuizScore          float64 `json:"quiz_score"`
	VivaScore          float64 `json:"viva_score"`
	LabMax             float64 `json:"lab_max"`
	QuizMax            float64 `json:"quiz_max"`
	VivaMax            float64 `json:"viva_max"`
	PresentCount       int     `json:"present_count"`
	AbsentCount        int     `json:"absent_count"`
	AttendancePct      float64 `json:"attendance_percentage"`
	WeightedLab        float64 `json:"weighted_lab"`
	WeightedQuiz       float64 `json:"weighted_quiz"`
	WeightedViva       float64 `json:"weighted_viva"`
	WeightedAttendance float64 `json:"weighted_attendance"`
	TotalPercentage    float64 `json:"total_percentage"`
}

// NewBreakdownResponse converts an aggregation result.
func NewBreakdownResponse(b grading.Breakdown) BreakdownResponse {
	return BreakdownResponse{
		RawLabTotal:        b.RawLabTotal,
		QuizScore:          b.QuizScore,
		VivaScore:          b.VivaScore,
		LabMax:             b.LabMax,
		QuizMax:            b.QuizMax,
		VivaMax:            b.VivaMax,
		PresentCount:       b.PresentCount,
		AbsentCount:        b.AbsentCount,
		AttendancePct:      b.AttendancePct,
		WeightedLab:        b.WeightedLab,
		WeightedQuiz:       b.WeightedQuiz,
		WeightedViva:       b.WeightedViva,
		WeightedAttendance: b.WeightedAttendance,
		TotalPercentage:    b.TotalPercentage,
	}
}

// Map flattens the breakdown for JSON columns.
func (b BreakdownResponse) Map() map[string]interface{} {
	return map[string]interface{}{
		"raw_lab_total":         b.RawLabTotal,
		"quiz_score":            b.QuizScore,
		"viva_score":            b.VivaScore,
		"lab_max":               b.LabMax,
		"quiz_max":              b.QuizMax,
		"viva_max":              b.VivaMax,
		"present_count":         b.PresentCount,
		"absent_count":          b.AbsentCount,
		"attendance_percentage": b.AttendancePct,
		"weighted_lab":          b.WeightedLab,
		"weighted_quiz":         b.WeightedQuiz,
		"weighted_viva":         b.WeightedViva,
		"weighted_attendance":   b.WeightedAttendance,
		"total_percentage":      b.TotalPercentage,
	}
}

// GradeResponse serializes the stored grade of an enrollment.
type GradeResponse struct {
	EnrollmentID    uint               `json:"enrollment_id"`
	CourseID        uint               `json:"course_id"`
	StudentID       uint               `json:"student_id"`
	LetterGrade     string             `json:"letter_grade"`
	TotalPercentage float64            `json:"total_percentage"`
	Mode            string             `json:"mode"`
	BehaviorTag     string             `json:"behavior_tag,omitempty"`
	Version         uint               `json:"version"`
	GradedAt        *time.Time         `json:"graded_at"`
	Breakdown       *BreakdownResponse `json:"breakdown,omitempty"`
}

// NewStoredGradeResponse converts the grade stored on an enrollment. It returns
// nil when no grade has been calculated yet.
func NewStoredGradeResponse(enrollment models.Enrollment) *GradeResponse {
	if !enrollment.HasGrade() {
		return nil
	}

	return &GradeResponse{
		EnrollmentID:    enrollment.ID,
		CourseID:        enrollment.CourseID,
		StudentID:       enrollment.StudentID,
		LetterGrade:     *enrollment.LetterGrade,
		TotalPercentage: *enrollment.TotalPercentage,
		Mode:            enrollment.GradeMode,
		BehaviorTag:     enrollment.BehaviorTag,
		Version:         enrollment.GradeVersion,
		GradedAt:        enrollment.GradedAt,
	}
}

// GradeCalculationResponse serializes one entry of the calculation history.
type GradeCalculationResponse struct {
	ID              uint                   `json:"id"`
	LetterGrade     string                 `json:"letter_grade"`
	TotalPercentage float64                `json:"total_percentage"`
	Mode            string                 `json:"mode"`
	BehaviorTag     string                 `json:"behavior_tag,omitempty"`
	Policy          string                 `json:"policy,omitempty"`
	Breakdown       map[string]interface{} `json:"breakdown"`
	CalculatedBy    uint                   `json:"calculated_by"`
	CreatedAt       time.Time              `json:"created_at"`
}

// NewGradeCalculationResponse converts a history row.
func NewGradeCalculationResponse(calc models.GradeCalculation) GradeCalculationResponse {
	return GradeCalculationResponse{
		ID:              calc.ID,
		LetterGrade:     calc.Letter,
		TotalPercentage: calc.TotalPercentage,
		Mode:            calc.Mode,
		BehaviorTag:     calc.BehaviorTag,
		Policy:          calc.Policy,
		Breakdown:       metadataFromJSON(calc.Breakdown),
		CalculatedBy:    calc.CalculatedBy,
		CreatedAt:       calc.CreatedAt,
	}
}

// AttendanceSummary counts marked weeks.
type AttendanceSummary struct {
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Unmarked   int     `json:"unmarked"`
	Percentage float64 `json:"percentage"`
}

// TrendPoint is one week of the lab-marks trend.
type TrendPoint struct {
	Week       int     `json:"week"`
	LabMarks   float64 `json:"lab_marks"`
	Attendance string  `json:"attendance"`
}

// ProgressResponse is the student-facing progress view of one enrollment.
type ProgressResponse struct {
	EnrollmentID  uint                   `json:"enrollment_id"`
	CourseID      uint                   `json:"course_id"`
	CourseCode    string                 `json:"course_code"`
	CourseTitle   string                 `json:"course_title"`
	StudentID     uint                   `json:"student_id"`
	StudentName   string                 `json:"student_name"`
	ExpectedWeeks int                    `json:"expected_weeks"`
	RecordedWeeks int                    `json:"recorded_weeks"`
	MissingWeeks  []int                  `json:"missing_weeks"`
	Complete      bool                   `json:"complete"`
	Records       []WeeklyRecordResponse `json:"records"`
	Attendance    AttendanceSummary      `json:"attendance"`
	Trend         []TrendPoint           `json:"trend"`
	Breakdown     *BreakdownResponse     `json:"breakdown,omitempty"`
	Grade         *GradeResponse         `json:"grade,omitempty"`
	GeneratedAt   time.Time              `json:"generated_at"`
	CacheHit      bool                   `json:"cache_hit"`
}

// CourseReportEntry is one enrollment row of a course report.
type CourseReportEntry struct {
	EnrollmentID    uint     `json:"enrollment_id"`
	StudentID       uint     `json:"student_id"`
	StudentName     string   `json:"student_name"`
	LetterGrade     *string  `json:"letter_grade"`
	TotalPercentage *float64 `json:"total_percentage"`
	Mode            string   `json:"mode,omitempty"`
	BehaviorTag     string   `json:"behavior_tag,omitempty"`
}

// CourseReportResponse summarises the stored grades of a course.
type CourseReportResponse struct {
	CourseID          uint                `json:"course_id"`
	CourseCode        string              `json:"course_code"`
	CourseTitle       string              `json:"course_title"`
	Enrollments       int                 `json:"enrollments"`
	Graded            int                 `json:"graded"`
	Ungraded          int                 `json:"ungraded"`
	AveragePercentage float64             `json:"average_percentage"`
	Distribution      map[string]int      `json:"distribution"`
	Modes             map[string]int      `json:"modes"`
	Tags              map[string]int      `json:"tags"`
	Students          []CourseReportEntry `json:"students"`
	GeneratedAt       time.Time           `json:"generated_at"`
	CacheHit          bool                `json:"cache_hit"`
}
