package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/labgrade-api/internal/models"
)

// ErrGradeConflict indicates the enrollment's grade changed since it was read.
var ErrGradeConflict = errors.New("grade result was modified concurrently")

// GradeResultUpdate is the stored grade written by a calculation.
type GradeResultUpdate struct {
	Letter          string
	TotalPercentage float64
	Mode            string
	BehaviorTag     string
	GradedAt        time.Time
}

// EnrollmentRepository provides access to enrollments and their grade results.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID uint) ([]models.Enrollment, error)
	Ensure(ctx context.Context, enrollment *models.Enrollment) error
	SaveGradeResult(ctx context.Context, enrollmentID uint, expectedVersion uint, update GradeResultUpdate, history *models.GradeCalculation) (uint, error)
	ListCalculations(ctx context.Context, enrollmentID uint, limit int) ([]models.GradeCalculation, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository constructs the enrollment repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id uint) (models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Course").
		Preload("Student").
		First(&enrollment, id).Error
	if err != nil {
		return models.Enrollment{}, err
	}
	return enrollment, nil
}

func (r *enrollmentRepository) ListByCourse(ctx context.Context, courseID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Preload("Student").
		Order("id ASC").
		Find(&enrollments).Error
	return enrollments, err
}

// Ensure creates the (course, student) enrollment unless it already exists.
func (r *enrollmentRepository) Ensure(ctx context.Context, enrollment *models.Enrollment) error {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(enrollment).Error
	if err != nil {
		return err
	}

	var stored models.Enrollment
	err = r.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ?", enrollment.CourseID, enrollment.StudentID).
		First(&stored).Error
	if err != nil {
		return err
	}
	*enrollment = stored
	return nil
}

// SaveGradeResult overwrites the stored grade only while grade_version still equals
// expectedVersion, then appends the history row in the same transaction. It returns
// the new version.
func (r *enrollmentRepository) SaveGradeResult(ctx context.Context, enrollmentID uint, expectedVersion uint, update GradeResultUpdate, history *models.GradeCalculation) (uint, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Enrollment{}).
			Where("id = ? AND grade_version = ?", enrollmentID, expectedVersion).
			Updates(map[string]interface{}{
				"letter_grade":     update.Letter,
				"total_percentage": update.TotalPercentage,
				"grade_mode":       update.Mode,
				"behavior_tag":     update.BehaviorTag,
				"graded_at":        update.GradedAt,
				"grade_version":    gorm.Expr("grade_version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollmentID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrGradeConflict
		}

		if history != nil {
			history.EnrollmentID = enrollmentID
			if err := tx.Create(history).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return expectedVersion + 1, nil
}

func (r *enrollmentRepository) ListCalculations(ctx context.Context, enrollmentID uint, limit int) ([]models.GradeCalculation, error) {
	query := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var calculations []models.GradeCalculation
	err := query.Find(&calculations).Error
	return calculations, err
}
