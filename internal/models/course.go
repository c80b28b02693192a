package models

import (
	"time"

	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// Course is a lab course whose enrollments are graded against one rubric.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Credit    float64   `gorm:"not null;default:1.5" json:"credit"`
	Weeks     int       `gorm:"not null;default:12" json:"weeks"`
	FinalWeek int       `gorm:"not null;default:0" json:"final_week"`
	TeacherID uint      `gorm:"index" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rubric returns the grading rubric with defaults applied.
func (c Course) Rubric() grading.CourseRubric {
	return grading.CourseRubric{
		Credit:    c.Credit,
		Weeks:     c.Weeks,
		FinalWeek: c.FinalWeek,
	}.WithDefaults()
}
