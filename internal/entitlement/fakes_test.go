package entitlement

import (
	"context"
	"sync"
	"time"

	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
)

type fakeLicenseRepo struct {
	mu       sync.Mutex
	licenses map[string]*models.LicenseKey
	// lostRaces simulates another activation winning the conditional
	// write this many times before letting one through.
	lostRaces int
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{licenses: make(map[string]*models.LicenseKey)}
}

func (f *fakeLicenseRepo) add(license *models.LicenseKey) {
	copied := *license
	f.licenses[license.Key] = &copied
}

func (f *fakeLicenseRepo) GetByKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	license, ok := f.licenses[key]
	if !ok {
		return nil, scylla.ErrLicenseNotFound
	}
	copied := *license
	return &copied, nil
}

func (f *fakeLicenseRepo) ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*models.LicenseKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LicenseKey
	for _, license := range f.licenses {
		if license.UserID == userID && license.CourseID == courseID {
			copied := *license
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLicenseRepo) UpdateStatus(ctx context.Context, key, status string, revokedAt *time.Time, revokedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if license, ok := f.licenses[key]; ok {
		license.Status = status
		license.RevokedAt = revokedAt
		license.RevokedBy = revokedBy
	}
	return nil
}

func (f *fakeLicenseRepo) IncrementActivations(ctx context.Context, key string, expectedCount int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	license, ok := f.licenses[key]
	if !ok {
		return false, scylla.ErrLicenseNotFound
	}
	if f.lostRaces > 0 {
		f.lostRaces--
		license.ActivationsCount++
		return false, nil
	}
	if license.ActivationsCount != expectedCount {
		return false, nil
	}
	license.ActivationsCount++
	return true, nil
}

func (f *fakeLicenseRepo) Create(ctx context.Context, license *models.LicenseKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(license)
	return nil
}

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: make(map[string]*models.Enrollment)}
}

func enrollmentKey(userID, courseID string) string {
	return userID + "/" + courseID
}

func (f *fakeEnrollmentRepo) Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enrollment, ok := f.enrollments[enrollmentKey(userID, courseID)]
	if !ok {
		return nil, scylla.ErrEnrollmentNotFound
	}
	copied := *enrollment
	return &copied, nil
}

func (f *fakeEnrollmentRepo) Upsert(ctx context.Context, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *enrollment
	f.enrollments[enrollmentKey(enrollment.UserID, enrollment.CourseID)] = &copied
	return nil
}
