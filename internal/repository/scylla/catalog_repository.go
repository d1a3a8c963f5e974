package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"stream-service/internal/models"
)

type CatalogRepositoryImpl struct {
	client *ScyllaClient
}

func NewCatalogRepository(client *ScyllaClient) CatalogRepository {
	return &CatalogRepositoryImpl{client: client}
}

func (r *CatalogRepositoryImpl) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	query := r.client.Prepared.GetCourse.Bind(courseID).WithContext(ctx)

	var course models.Course
	err := r.client.ScanWithRetry(query,
		&course.CourseID, &course.Title, &course.InstructorID,
		&course.PriceCents, &course.IsPublished, &course.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

func (r *CatalogRepositoryImpl) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	query := r.client.Prepared.GetLesson.Bind(lessonID).WithContext(ctx)
	return r.scanLesson(query)
}

func (r *CatalogRepositoryImpl) GetLessonByVideoID(ctx context.Context, videoID string) (*models.Lesson, error) {
	query := r.client.Prepared.GetLessonByVideo.Bind(videoID).WithContext(ctx)
	return r.scanLesson(query)
}

func (r *CatalogRepositoryImpl) scanLesson(query *gocql.Query) (*models.Lesson, error) {
	var lesson models.Lesson
	err := r.client.ScanWithRetry(query,
		&lesson.LessonID, &lesson.CourseID, &lesson.Title, &lesson.VideoID,
		&lesson.DurationSeconds, &lesson.Position, &lesson.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return &lesson, nil
}
