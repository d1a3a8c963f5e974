package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/util"
)

var (
	ErrLicenseNotFound      = errors.New("license key not found")
	ErrLicenseForbidden     = errors.New("license key belongs to another user")
	ErrLicenseNotActive     = errors.New("license key is not active")
	ErrActivationsExhausted = errors.New("license activation limit reached")
	ErrActivationConflict   = errors.New("license activation lost too many races, retry")
)

const maxActivationAttempts = 3

// LicenseValidator owns the license state machine. ACTIVE licenses expire
// lazily at validation time and the transition is persisted immediately;
// nothing ever leaves EXPIRED or REVOKED.
type LicenseValidator struct {
	licenses    scylla.LicenseRepository
	enrollments scylla.EnrollmentRepository
	now         func() time.Time
}

func NewLicenseValidator(licenses scylla.LicenseRepository, enrollments scylla.EnrollmentRepository) *LicenseValidator {
	return &LicenseValidator{
		licenses:    licenses,
		enrollments: enrollments,
		now:         time.Now,
	}
}

// Validate loads the license and applies the lazy expiry transition. The
// returned license carries the effective status; the only mutation Validate
// ever performs is persisting ACTIVE to EXPIRED.
func (v *LicenseValidator) Validate(ctx context.Context, key string) (*models.LicenseKey, error) {
	license, err := v.licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, scylla.ErrLicenseNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return v.applyLazyExpiry(ctx, license)
}

func (v *LicenseValidator) applyLazyExpiry(ctx context.Context, license *models.LicenseKey) (*models.LicenseKey, error) {
	if license.Status != models.LicenseStatusActive {
		return license, nil
	}
	if license.ExpiresAt == nil || license.ExpiresAt.After(v.now()) {
		return license, nil
	}

	license.Status = models.LicenseStatusExpired
	if err := v.licenses.UpdateStatus(ctx, license.Key, models.LicenseStatusExpired, nil, ""); err != nil {
		return nil, fmt.Errorf("failed to persist license expiry: %w", err)
	}

	util.Info("License expired lazily at validation",
		zap.String("license_key", license.Key),
		zap.Time("expires_at", *license.ExpiresAt))
	return license, nil
}

// Activate increments the activation count and ensures an ACTIVE enrollment
// for the license's course. The increment is guarded by a conditional write
// against the count observed at validation, so a retried or concurrent
// activation never double-counts: a lost race re-reads and re-checks the
// limit before trying again.
func (v *LicenseValidator) Activate(ctx context.Context, key, userID string) (*models.LicenseKey, error) {
	for attempt := 0; attempt < maxActivationAttempts; attempt++ {
		license, err := v.Validate(ctx, key)
		if err != nil {
			return nil, err
		}
		if license.UserID != userID {
			return nil, ErrLicenseForbidden
		}
		if license.Status != models.LicenseStatusActive {
			return nil, fmt.Errorf("%w: status is %s", ErrLicenseNotActive, license.Status)
		}
		if license.HasActivationLimit() && license.ActivationsCount >= license.ActivationsLimit {
			return nil, ErrActivationsExhausted
		}

		applied, err := v.licenses.IncrementActivations(ctx, key, license.ActivationsCount)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}
		license.ActivationsCount++

		if err := v.ensureActiveEnrollment(ctx, license); err != nil {
			return nil, err
		}

		util.Info("License activated",
			zap.String("license_key", key),
			zap.String("user_id", userID),
			zap.Int("activations_count", license.ActivationsCount))
		return license, nil
	}
	return nil, ErrActivationConflict
}

func (v *LicenseValidator) ensureActiveEnrollment(ctx context.Context, license *models.LicenseKey) error {
	now := v.now()
	existing, err := v.enrollments.Get(ctx, license.UserID, license.CourseID)
	if err != nil && !errors.Is(err, scylla.ErrEnrollmentNotFound) {
		return err
	}

	enrollment := &models.Enrollment{
		UserID:     license.UserID,
		CourseID:   license.CourseID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
	if existing != nil {
		if existing.Status == models.EnrollmentStatusActive {
			return nil
		}
		enrollment.EnrolledAt = existing.EnrolledAt
	}
	return v.enrollments.Upsert(ctx, enrollment)
}
