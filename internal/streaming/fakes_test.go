package streaming

import (
	"context"
	"sync"
	"time"

	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
)

type fakeCatalogRepo struct {
	courses map[string]*models.Course
	lessons map[string]*models.Lesson
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		courses: make(map[string]*models.Course),
		lessons: make(map[string]*models.Lesson),
	}
}

func (f *fakeCatalogRepo) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, ok := f.courses[courseID]
	if !ok {
		return nil, scylla.ErrCourseNotFound
	}
	copied := *course
	return &copied, nil
}

func (f *fakeCatalogRepo) GetLesson(ctx context.Context, lessonID string) (*models.Lesson, error) {
	lesson, ok := f.lessons[lessonID]
	if !ok {
		return nil, scylla.ErrLessonNotFound
	}
	copied := *lesson
	return &copied, nil
}

func (f *fakeCatalogRepo) GetLessonByVideoID(ctx context.Context, videoID string) (*models.Lesson, error) {
	for _, lesson := range f.lessons {
		if lesson.VideoID == videoID {
			copied := *lesson
			return &copied, nil
		}
	}
	return nil, scylla.ErrLessonNotFound
}

type fakeProgressRepo struct {
	mu      sync.Mutex
	records map[string]*models.VideoProgress
	upserts int

	// onUpsert, when set, runs before the write takes effect. Tests use it
	// to park one writer and line up interleavings.
	onUpsert func(progress *models.VideoProgress)
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{records: make(map[string]*models.VideoProgress)}
}

func progressKey(userID, lessonID string) string { return userID + "/" + lessonID }

func (f *fakeProgressRepo) Get(ctx context.Context, userID, lessonID string) (*models.VideoProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[progressKey(userID, lessonID)]
	if !ok {
		return nil, scylla.ErrProgressNotFound
	}
	copied := *record
	return &copied, nil
}

func (f *fakeProgressRepo) Upsert(ctx context.Context, progress *models.VideoProgress) error {
	if f.onUpsert != nil {
		f.onUpsert(progress)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	copied := *progress
	f.records[progressKey(progress.UserID, progress.LessonID)] = &copied
	return nil
}

func (f *fakeProgressRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: make(map[string]*models.Enrollment)}
}

func (f *fakeEnrollmentRepo) Get(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enrollment, ok := f.enrollments[userID+"/"+courseID]
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
	f.enrollments[enrollment.UserID+"/"+enrollment.CourseID] = &copied
	return nil
}

type fakeLicenseRepo struct {
	mu       sync.Mutex
	licenses map[string]*models.LicenseKey
}

func newFakeLicenseRepo() *fakeLicenseRepo {
	return &fakeLicenseRepo{licenses: make(map[string]*models.LicenseKey)}
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
	if license.ActivationsCount != expectedCount {
		return false, nil
	}
	license.ActivationsCount++
	return true, nil
}

func (f *fakeLicenseRepo) Create(ctx context.Context, license *models.LicenseKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *license
	f.licenses[license.Key] = &copied
	return nil
}

type fakeOrigin struct {
	manifestErr error
}

func (f fakeOrigin) ManifestURL(ctx context.Context, videoID string) (string, error) {
	if f.manifestErr != nil {
		return "", f.manifestErr
	}
	return "https://cdn.test/videos/" + videoID + "/master.m3u8", nil
}

// Variants are returned out of order on purpose; the assembler must sort.
func (fakeOrigin) QualityVariants(ctx context.Context, videoID string) ([]models.QualityVariant, error) {
	return []models.QualityVariant{
		{Quality: "480p", Bandwidth: 1500000},
		{Quality: "1080p", Bandwidth: 5800000},
		{Quality: "360p", Bandwidth: 800000},
		{Quality: "720p", Bandwidth: 3000000},
	}, nil
}

func (fakeOrigin) Thumbnails(ctx context.Context, videoID string) (*models.ThumbnailSet, error) {
	return &models.ThumbnailSet{URL: "https://cdn.test/videos/" + videoID + "/thumbnails/sprite.jpg", Interval: 10, Columns: 10}, nil
}

type captureSecurity struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (c *captureSecurity) Record(ctx context.Context, event *models.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSecurity) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, event := range c.events {
		if event.EventType == eventType {
			n++
		}
	}
	return n
}

type captureLifecycle struct {
	mu     sync.Mutex
	events []*models.PlaybackEvent
}

func (c *captureLifecycle) PublishLifecycle(ctx context.Context, event *models.PlaybackEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureLifecycle) byType(eventType string) []*models.PlaybackEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.PlaybackEvent
	for _, event := range c.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}
