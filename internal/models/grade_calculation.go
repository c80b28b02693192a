package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradeCalculation is the history row written for every stored grade result.
type GradeCalculation struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	EnrollmentID    uint              `gorm:"not null;index" json:"enrollment_id"`
	Letter          string            `gorm:"size:1;not null" json:"letter"`
	TotalPercentage float64           `gorm:"not null" json:"total_percentage"`
	Mode            string            `gorm:"size:16;not null" json:"mode"`
	BehaviorTag     string            `gorm:"size:64" json:"behavior_tag"`
	Policy          string            `gorm:"size:32" json:"policy"`
	Breakdown       datatypes.JSONMap `gorm:"type:json" json:"breakdown"`
	CalculatedBy    uint              `json:"calculated_by"`
	CreatedAt       time.Time         `json:"created_at"`
}
