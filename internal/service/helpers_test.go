package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/labgrade-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptrUint(v uint) *uint {
	return &v
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.Student{},
		&models.Enrollment{},
		&models.WeeklyRecord{},
		&models.GradeCalculation{},
		&models.ActivityLog{},
	))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GradeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event GradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mini.Close()
	})
	return mini, client
}

func seedServiceEnrollment(t *testing.T, db *gorm.DB, credit float64) models.Enrollment {
	t.Helper()
	course := models.Course{Code: "LAB-" + strings.ReplaceAll(t.Name(), "/", "_"), Title: "Electronics Lab", Credit: credit, Weeks: 12}
	require.NoError(t, db.Create(&course).Error)
	student := models.Student{Name: "Alan Turing", Email: strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_")) + "@example.com"}
	require.NoError(t, db.Create(&student).Error)
	enrollment := models.Enrollment{CourseID: course.ID, StudentID: student.ID}
	require.NoError(t, db.Omit("Course", "Student").Create(&enrollment).Error)
	return enrollment
}
