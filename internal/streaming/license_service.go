package streaming

import (
	"context"
	"errors"
	"fmt"

	"stream-service/internal/entitlement"
	"stream-service/internal/models"
	"stream-service/internal/security"
)

// LicenseService exposes license validation and activation, auditing foreign
// activation attempts as security events.
type LicenseService struct {
	validator *entitlement.LicenseValidator
	security  security.Recorder
}

func NewLicenseService(validator *entitlement.LicenseValidator, securityRecorder security.Recorder) *LicenseService {
	return &LicenseService{validator: validator, security: securityRecorder}
}

func (s *LicenseService) Validate(ctx context.Context, key string) (*models.LicenseKey, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: license key is required", ErrValidation)
	}
	return s.validator.Validate(ctx, key)
}

func (s *LicenseService) Activate(ctx context.Context, userID, key string) (*models.LicenseKey, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: license_key is required", ErrValidation)
	}

	license, err := s.validator.Activate(ctx, key, userID)
	if err != nil {
		if errors.Is(err, entitlement.ErrLicenseForbidden) {
			s.security.Record(ctx, &models.SecurityEvent{
				EventType: models.SecurityEventLicenseForbidden,
				UserID:    userID,
				Details:   "activation attempted with another user's license key",
			})
		}
		return nil, err
	}
	return license, nil
}
