package models

import (
	"time"

	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// WeeklyRecord stores one week of performance and attendance for an enrollment.
type WeeklyRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EnrollmentID uint      `gorm:"not null;uniqueIndex:idx_record_enrollment_week" json:"enrollment_id"`
	Week         int       `gorm:"not null;uniqueIndex:idx_record_enrollment_week" json:"week"`
	LabMarks     float64   `gorm:"not null;default:0" json:"lab_marks"`
	QuizScore    float64   `gorm:"not null;default:0" json:"quiz_score"`
	VivaScore    float64   `gorm:"not null;default:0" json:"viva_score"`
	Attendance   string    `gorm:"size:16;not null;default:'unmarked'" json:"attendance"`
	Remarks      string    `gorm:"type:text" json:"remarks"`
	RecordedBy   uint      `json:"recorded_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToGrading converts the stored row into the aggregator's record shape.
func (r WeeklyRecord) ToGrading() grading.WeeklyRecord {
	status, ok := grading.ParseAttendanceStatus(r.Attendance)
	if !ok {
		status = grading.AttendanceUnmarked
	}

	return grading.WeeklyRecord{
		Week:       r.Week,
		LabMarks:   r.LabMarks,
		QuizScore:  r.QuizScore,
		VivaScore:  r.VivaScore,
		Attendance: status,
	}
}

// GradingRecords converts a slice of stored rows.
func GradingRecords(records []WeeklyRecord) []grading.WeeklyRecord {
	result := make([]grading.WeeklyRecord, 0, len(records))
	for _, record := range records {
		result = append(result, record.ToGrading())
	}
	return result
}
