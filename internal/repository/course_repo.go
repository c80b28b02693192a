package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/labgrade-api/internal/models"
)

// CourseRepository provides access to lab courses.
type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (models.Course, error)
	UpsertByCode(ctx context.Context, course *models.Course) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs a course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

// UpsertByCode inserts the course or refreshes the rubric of an existing course with the same code.
func (r *courseRepository) UpsertByCode(ctx context.Context, course *models.Course) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "credit", "weeks", "final_week", "teacher_id", "updated_at"}),
	}).Create(course).Error
	if err != nil {
		return err
	}

	var stored models.Course
	if err := r.db.WithContext(ctx).Where("code = ?", course.Code).First(&stored).Error; err != nil {
		return err
	}
	*course = stored
	return nil
}
