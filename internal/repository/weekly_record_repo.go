package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/labgrade-api/internal/models"
)

// WeeklyRecordRepository persists per-week performance entries.
type WeeklyRecordRepository interface {
	ListByEnrollment(ctx context.Context, enrollmentID uint) ([]models.WeeklyRecord, error)
	Upsert(ctx context.Context, record *models.WeeklyRecord) error
}

type weeklyRecordRepository struct {
	db *gorm.DB
}

// NewWeeklyRecordRepository constructs the weekly record repository.
func NewWeeklyRecordRepository(db *gorm.DB) WeeklyRecordRepository {
	return &weeklyRecordRepository{db: db}
}

func (r *weeklyRecordRepository) ListByEnrollment(ctx context.Context, enrollmentID uint) ([]models.WeeklyRecord, error) {
	var records []models.WeeklyRecord
	err := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("week ASC").
		Find(&records).Error
	return records, err
}

// Upsert writes the record for its (enrollment, week) pair; a second write for the same week replaces the first.
func (r *weeklyRecordRepository) Upsert(ctx context.Context, record *models.WeeklyRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "enrollment_id"}, {Name: "week"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lab_marks", "quiz_score", "viva_score", "attendance", "remarks", "recorded_by", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return err
	}

	var stored models.WeeklyRecord
	err = r.db.WithContext(ctx).
		Where("enrollment_id = ? AND week = ?", record.EnrollmentID, record.Week).
		First(&stored).Error
	if err != nil {
		return err
	}
	*record = stored
	return nil
}
