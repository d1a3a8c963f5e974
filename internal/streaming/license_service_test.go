package streaming

import (
	"context"
	"errors"
	"testing"

	"stream-service/internal/entitlement"
	"stream-service/internal/models"
)

func newLicenseFixture() (*LicenseService, *fakeLicenseRepo, *captureSecurity) {
	licenses := newFakeLicenseRepo()
	enrollments := newFakeEnrollmentRepo()
	securityRecorder := &captureSecurity{}
	validator := entitlement.NewLicenseValidator(licenses, enrollments)
	return NewLicenseService(validator, securityRecorder), licenses, securityRecorder
}

func TestLicenseService_ActivateExhaustedLimit(t *testing.T) {
	svc, licenses, _ := newLicenseFixture()
	licenses.Create(context.Background(), &models.LicenseKey{
		Key: "LIC-1", UserID: "user-a", CourseID: "course-1",
		Status:           models.LicenseStatusActive,
		ActivationsCount: 1, ActivationsLimit: 1,
	})

	_, err := svc.Activate(context.Background(), "user-a", "LIC-1")
	if !errors.Is(err, entitlement.ErrActivationsExhausted) {
		t.Fatalf("Activate() error = %v, want ErrActivationsExhausted", err)
	}

	stored, _ := licenses.GetByKey(context.Background(), "LIC-1")
	if stored.ActivationsCount != 1 {
		t.Errorf("ActivationsCount = %d, want unchanged 1", stored.ActivationsCount)
	}
}

func TestLicenseService_ForeignActivationIsAudited(t *testing.T) {
	svc, licenses, securityRecorder := newLicenseFixture()
	licenses.Create(context.Background(), &models.LicenseKey{
		Key: "LIC-1", UserID: "user-a", CourseID: "course-1",
		Status: models.LicenseStatusActive,
	})

	_, err := svc.Activate(context.Background(), "user-b", "LIC-1")
	if !errors.Is(err, entitlement.ErrLicenseForbidden) {
		t.Fatalf("Activate() error = %v, want ErrLicenseForbidden", err)
	}
	if securityRecorder.count(models.SecurityEventLicenseForbidden) != 1 {
		t.Error("foreign activation was not recorded as a security event")
	}
}

func TestLicenseService_ValidateRequiresKey(t *testing.T) {
	svc, _, _ := newLicenseFixture()
	if _, err := svc.Validate(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() error = %v, want ErrValidation", err)
	}
}
