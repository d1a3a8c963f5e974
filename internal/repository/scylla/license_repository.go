package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"stream-service/internal/models"
	"stream-service/internal/util"
)

type LicenseRepositoryImpl struct {
	client *ScyllaClient
}

func NewLicenseRepository(client *ScyllaClient) LicenseRepository {
	return &LicenseRepositoryImpl{client: client}
}

func (r *LicenseRepositoryImpl) GetByKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	query := r.client.Prepared.GetLicenseByKey.Bind(key).WithContext(ctx)

	var license models.LicenseKey
	var expiresAt, createdAt, revokedAt time.Time

	err := r.client.ScanWithRetry(query,
		&license.Key, &license.UserID, &license.CourseID, &license.Status,
		&license.ActivationsCount, &license.ActivationsLimit,
		&expiresAt, &createdAt, &revokedAt, &license.RevokedBy)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license key: %w", err)
	}

	license.CreatedAt = createdAt
	if !expiresAt.IsZero() {
		license.ExpiresAt = &expiresAt
	}
	if !revokedAt.IsZero() {
		license.RevokedAt = &revokedAt
	}
	return &license, nil
}

func (r *LicenseRepositoryImpl) ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*models.LicenseKey, error) {
	query := r.client.Prepared.ListLicensesByUser.Bind(userID, courseID).WithContext(ctx)

	iter := query.Iter()
	var keys []string
	var key string
	for iter.Scan(&key) {
		keys = append(keys, key)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list licenses for user: %w", err)
	}

	licenses := make([]*models.LicenseKey, 0, len(keys))
	for _, k := range keys {
		license, err := r.GetByKey(ctx, k)
		if err != nil {
			if err == ErrLicenseNotFound {
				continue
			}
			return nil, err
		}
		licenses = append(licenses, license)
	}
	return licenses, nil
}

func (r *LicenseRepositoryImpl) UpdateStatus(ctx context.Context, key, status string, revokedAt *time.Time, revokedBy string) error {
	var revokedAtValue time.Time
	if revokedAt != nil {
		revokedAtValue = *revokedAt
	}

	query := r.client.Prepared.UpdateLicenseStatus.Bind(status, revokedAtValue, revokedBy, key).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}

	util.Debug("License status updated",
		zap.String("license_key", key),
		zap.String("status", status))
	return nil
}

func (r *LicenseRepositoryImpl) IncrementActivations(ctx context.Context, key string, expectedCount int) (bool, error) {
	query := r.client.Query(`
        UPDATE license_keys SET activations_count = ?
        WHERE license_key = ? IF activations_count = ?`,
		expectedCount+1, key, expectedCount).WithContext(ctx)

	var currentCount int
	applied, err := query.ScanCAS(&currentCount)
	if err != nil {
		return false, fmt.Errorf("failed to increment activations: %w", err)
	}
	if !applied {
		util.Warn("License activation increment lost a race",
			zap.String("license_key", key),
			zap.Int("expected_count", expectedCount),
			zap.Int("current_count", currentCount))
	}
	return applied, nil
}

func (r *LicenseRepositoryImpl) Create(ctx context.Context, license *models.LicenseKey) error {
	var expiresAt time.Time
	if license.ExpiresAt != nil {
		expiresAt = *license.ExpiresAt
	}

	insertKey := r.client.Query(`
        INSERT INTO license_keys (
            license_key, user_id, course_id, status, activations_count,
            activations_limit, expires_at, created_at, revoked_at, revoked_by
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		license.Key, license.UserID, license.CourseID, license.Status,
		license.ActivationsCount, license.ActivationsLimit,
		expiresAt, license.CreatedAt, time.Time{}, "").WithContext(ctx)
	if err := r.client.ExecuteWithRetry(insertKey, 3); err != nil {
		return fmt.Errorf("failed to create license key: %w", err)
	}

	insertLookup := r.client.Query(`
        INSERT INTO license_keys_by_user (user_id, course_id, license_key)
        VALUES (?, ?, ?)`,
		license.UserID, license.CourseID, license.Key).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(insertLookup, 3); err != nil {
		return fmt.Errorf("failed to create license lookup row: %w", err)
	}

	return nil
}
