package scylla

import (
	"context"
	"errors"
	"time"

	"stream-service/internal/models"
)

var (
	ErrLicenseNotFound    = errors.New("license key not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrProgressNotFound   = errors.New("video progress not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrLessonNotFound     = errors.New("lesson not found")
)

// LicenseRepository persists license keys and their activation state.
type LicenseRepository interface {
	GetByKey(ctx context.Context, key string) (*models.LicenseKey, error)
	ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*models.LicenseKey, error)
	UpdateStatus(ctx context.Context, key, status string, revokedAt *time.Time, revokedBy string) error
	// IncrementActivations bumps activations_count from expectedCount to
	// expectedCount+1 only if no concurrent activation got there first.
	// Returns false when the guard condition failed.
	IncrementActivations(ctx context.Context, key string, expectedCount int) (bool, error)
	Create(ctx context.Context, license *models.LicenseKey) error
}

// EnrollmentRepository persists course enrollments.
type EnrollmentRepository interface {
	Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment) error
}

// ProgressRepository persists per-lesson viewing progress.
type ProgressRepository interface {
	Get(ctx context.Context, userID, lessonID string) (*models.VideoProgress, error)
	Upsert(ctx context.Context, progress *models.VideoProgress) error
}

// CatalogRepository reads course and lesson metadata.
type CatalogRepository interface {
	GetCourse(ctx context.Context, courseID string) (*models.Course, error)
	GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error)
	GetLessonByVideoID(ctx context.Context, videoID string) (*models.Lesson, error)
}
