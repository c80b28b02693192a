package models

import "time"

// Enrollment binds a student to a course and carries the stored grade result.
// GradeVersion increments on every stored calculation and guards concurrent writers.
type Enrollment struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CourseID        uint       `gorm:"not null;uniqueIndex:idx_enrollment_course_student" json:"course_id"`
	StudentID       uint       `gorm:"not null;uniqueIndex:idx_enrollment_course_student" json:"student_id"`
	Course          Course     `gorm:"constraint:OnDelete:CASCADE" json:"course"`
	Student         Student    `gorm:"constraint:OnDelete:CASCADE" json:"student"`
	LetterGrade     *string    `gorm:"size:1" json:"letter_grade"`
	TotalPercentage *float64   `json:"total_percentage"`
	GradeMode       string     `gorm:"size:16" json:"grade_mode"`
	BehaviorTag     string     `gorm:"size:64" json:"behavior_tag"`
	GradeVersion    uint       `gorm:"not null;default:0" json:"grade_version"`
	GradedAt        *time.Time `json:"graded_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasGrade reports whether a grade result has been stored.
func (e Enrollment) HasGrade() bool {
	return e.LetterGrade != nil && e.TotalPercentage != nil
}
