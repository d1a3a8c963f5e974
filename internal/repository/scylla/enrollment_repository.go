package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"stream-service/internal/models"
	"stream-service/internal/util"
)

type EnrollmentRepositoryImpl struct {
	client *ScyllaClient
}

func NewEnrollmentRepository(client *ScyllaClient) EnrollmentRepository {
	return &EnrollmentRepositoryImpl{client: client}
}

func (r *EnrollmentRepositoryImpl) Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := r.client.Prepared.GetEnrollment.Bind(userID, courseID).WithContext(ctx)

	var enrollment models.Enrollment
	err := r.client.ScanWithRetry(query,
		&enrollment.UserID, &enrollment.CourseID, &enrollment.Status,
		&enrollment.EnrolledAt, &enrollment.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &enrollment, nil
}

func (r *EnrollmentRepositoryImpl) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	query := r.client.Prepared.UpsertEnrollment.Bind(
		enrollment.UserID, enrollment.CourseID, enrollment.Status,
		enrollment.EnrolledAt, enrollment.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}

	util.Debug("Enrollment upserted",
		zap.String("user_id", enrollment.UserID),
		zap.String("course_id", enrollment.CourseID),
		zap.String("status", enrollment.Status))
	return nil
}
