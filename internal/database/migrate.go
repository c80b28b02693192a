package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/models"
)

// Migrate creates or updates the grading schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Course{},
		&models.Student{},
		&models.Enrollment{},
		&models.WeeklyRecord{},
		&models.GradeCalculation{},
		&models.ActivityLog{},
	)
}
