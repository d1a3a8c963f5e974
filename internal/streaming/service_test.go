package streaming

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"stream-service/internal/analytics"
	"stream-service/internal/bucketing"
	"stream-service/internal/config"
	"stream-service/internal/entitlement"
	"stream-service/internal/media"
	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/session"
	"stream-service/internal/token"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Bucketing.UserBuckets = 16
	cfg.Bucketing.EventBuckets = 8
	cfg.Streaming.SessionIdleTimeout = 5 * time.Minute
	cfg.Streaming.ReapInterval = time.Minute
	cfg.Streaming.HeartbeatInterval = 15 * time.Second
	cfg.Streaming.TokenTTL = 2 * time.Hour
	cfg.Streaming.TokenSecret = "unit-test-secret"
	cfg.Streaming.ResumeMinDelta = 5
	cfg.Streaming.CompletionThreshold = 90
	cfg.Streaming.MaxPlaybackSpeed = 3.0
	cfg.Streaming.MinPlaybackSpeed = 0.25
	cfg.Streaming.DefaultQuality = "720p"
	cfg.Streaming.CDNBaseURL = "https://cdn.test"
	cfg.Streaming.WatermarkOpacity = 0.15
	return cfg
}

type serviceFixture struct {
	service     *Service
	catalog     *fakeCatalogRepo
	progress    *fakeProgressRepo
	enrollments *fakeEnrollmentRepo
	licenses    *fakeLicenseRepo
	security    *captureSecurity
	lifecycle   *captureLifecycle
	clock       time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newServiceFixtureWithOrigin(t, fakeOrigin{})
}

func newServiceFixtureWithOrigin(t *testing.T, origin media.Origin) *serviceFixture {
	t.Helper()
	cfg := testConfig()

	signer, err := token.NewSigner(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	buckets := bucketing.NewManager(cfg)
	registry := session.NewRegistry(session.NewMemoryStore(), buckets,
		cfg.Streaming.SessionIdleTimeout, cfg.Streaming.HeartbeatInterval)

	f := &serviceFixture{
		catalog:     newFakeCatalogRepo(),
		progress:    newFakeProgressRepo(),
		enrollments: newFakeEnrollmentRepo(),
		licenses:    newFakeLicenseRepo(),
		security:    &captureSecurity{},
		lifecycle:   &captureLifecycle{},
		clock:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	validator := entitlement.NewLicenseValidator(f.licenses, f.enrollments)
	evaluator := entitlement.NewEvaluator(f.enrollments, f.licenses, validator)
	assembler := NewAssembler(origin, signer, cfg)

	f.service = NewService(registry, f.catalog, f.progress, evaluator, assembler,
		f.lifecycle, analytics.NoopCheckpointSink{}, f.security, cfg)
	f.service.now = func() time.Time { return f.clock }

	f.catalog.courses["course-1"] = &models.Course{
		CourseID: "course-1", Title: "Go Concurrency", InstructorID: "instructor-1",
		PriceCents: 0, IsPublished: true,
	}
	f.catalog.lessons["lesson-1"] = &models.Lesson{
		LessonID: "lesson-1", CourseID: "course-1", Title: "Channels",
		VideoID: "video-1", DurationSeconds: 1800, Position: 1,
	}
	return f
}

func (f *serviceFixture) enroll(userID string) {
	f.enrollments.Upsert(context.Background(), &models.Enrollment{
		UserID: userID, CourseID: "course-1",
		Status: models.EnrollmentStatusActive, EnrolledAt: f.clock,
	})
}

func (f *serviceFixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func createRequest() *CreateSessionRequest {
	return &CreateSessionRequest{
		VideoID: "video-1",
		Device:  models.DeviceInfo{DeviceID: "dev-1", Platform: "web", IPAddress: "203.0.113.9"},
	}
}

func TestService_CreateSessionDeniedWithoutEnrollment(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("CreateSession() error = %v, want ErrAccessDenied", err)
	}
	if !strings.Contains(err.Error(), string(entitlement.DenialNotEnrolled)) {
		t.Errorf("error %q does not carry the NOT_ENROLLED reason", err)
	}
}

func TestService_CreateSessionUnknownVideo(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")

	req := createRequest()
	req.VideoID = "no-such-video"
	if _, err := f.service.CreateSession(context.Background(), "user-a", req); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("CreateSession() error = %v, want ErrVideoNotFound", err)
	}
}

func TestService_CreateSessionBuildsManifest(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")

	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if manifest.SessionID == "" || manifest.AccessToken == "" {
		t.Error("manifest is missing session id or access token")
	}
	if manifest.Duration != 1800 {
		t.Errorf("Duration = %v, want 1800", manifest.Duration)
	}
	for i := 1; i < len(manifest.Qualities); i++ {
		if manifest.Qualities[i].Bandwidth > manifest.Qualities[i-1].Bandwidth {
			t.Errorf("qualities not in descending bandwidth order: %v", manifest.Qualities)
		}
	}
	if manifest.PlayerConfig.CurrentQuality != "720p" {
		t.Errorf("CurrentQuality = %q, want auto resolved to 720p", manifest.PlayerConfig.CurrentQuality)
	}
	if !manifest.Restrictions.DownloadDisabled {
		t.Error("DownloadDisabled = false, want true")
	}
	if manifest.Watermark.Text == "" {
		t.Error("watermark text is empty")
	}

	// Session count goes up once per creation.
	progress, err := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if err != nil {
		t.Fatalf("progress not created: %v", err)
	}
	if progress.SessionsCount != 1 {
		t.Errorf("SessionsCount = %d, want 1", progress.SessionsCount)
	}

	if started := f.lifecycle.byType(models.EventSessionStarted); len(started) != 1 {
		t.Errorf("started lifecycle events = %d, want 1", len(started))
	}
}

func TestService_CreateSessionStartsAtResumePosition(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	f.progress.Upsert(context.Background(), &models.VideoProgress{
		UserID: "user-a", LessonID: "lesson-1",
		ResumePosition: 420, PlaybackSpeed: 1.5, QualityPreference: "1080p",
	})

	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if manifest.PlayerConfig.StartPosition != 420 {
		t.Errorf("StartPosition = %v, want 420", manifest.PlayerConfig.StartPosition)
	}
	if manifest.PlayerConfig.CurrentQuality != "1080p" {
		t.Errorf("CurrentQuality = %q, want stored preference 1080p", manifest.PlayerConfig.CurrentQuality)
	}
	if manifest.PlayerConfig.PlaybackSpeed != 1.5 {
		t.Errorf("PlaybackSpeed = %v, want stored preference 1.5", manifest.PlayerConfig.PlaybackSpeed)
	}
}

func TestService_HeartbeatValidation(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	tests := []struct {
		name string
		req  *HeartbeatRequest
	}{
		{"missing session id", &HeartbeatRequest{}},
		{"negative position", &HeartbeatRequest{SessionID: manifest.SessionID, CurrentPosition: float64Ptr(-1)}},
		{"speed above ceiling", &HeartbeatRequest{SessionID: manifest.SessionID, PlaybackSpeed: float64Ptr(5.0)}},
		{"speed below floor", &HeartbeatRequest{SessionID: manifest.SessionID, PlaybackSpeed: float64Ptr(0.1)}},
		{"volume out of range", &HeartbeatRequest{SessionID: manifest.SessionID, Volume: float64Ptr(1.5)}},
		{"unknown quality", &HeartbeatRequest{SessionID: manifest.SessionID, Quality: stringPtr("4k")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.service.Heartbeat(context.Background(), "user-a", tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("Heartbeat() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestService_HeartbeatResumeNeverMovesBackward(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(100),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(50),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	progress, err := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if progress.LastPosition != 50 {
		t.Errorf("LastPosition = %v, want 50", progress.LastPosition)
	}
	if progress.ResumePosition != 100 {
		t.Errorf("ResumePosition = %v, want 100 (no backward regression)", progress.ResumePosition)
	}
}

func TestService_HeartbeatResumeRequiresMinimumDelta(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(100),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	// 3 seconds of forward progress is under the 5 second delta.
	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(103),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	progress, _ := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if progress.ResumePosition != 100 {
		t.Errorf("ResumePosition = %v, want 100 (delta below threshold)", progress.ResumePosition)
	}
	if progress.LastPosition != 103 {
		t.Errorf("LastPosition = %v, want 103", progress.LastPosition)
	}
}

func TestService_ConcurrentSeekBackCannotRegressResume(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	f.advance(15 * time.Second)

	// Park the forward heartbeat inside its durable write, then race a
	// seek-back heartbeat against it. The seek-back must wait for the
	// forward write to land, so its stale read can never win.
	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.progress.onUpsert = func(*models.VideoProgress) {
		once.Do(func() {
			close(blocked)
			<-release
		})
	}

	forwardDone := make(chan error, 1)
	go func() {
		_, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
			SessionID: manifest.SessionID, CurrentPosition: float64Ptr(100),
		})
		forwardDone <- err
	}()
	<-blocked

	seekBackDone := make(chan error, 1)
	go func() {
		_, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
			SessionID: manifest.SessionID, CurrentPosition: float64Ptr(50),
		})
		seekBackDone <- err
	}()

	select {
	case <-seekBackDone:
		t.Fatal("seek-back heartbeat completed while the forward write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-forwardDone; err != nil {
		t.Fatalf("forward Heartbeat() error = %v", err)
	}
	if err := <-seekBackDone; err != nil {
		t.Fatalf("seek-back Heartbeat() error = %v", err)
	}

	progress, err := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if progress.ResumePosition != 100 {
		t.Errorf("ResumePosition = %v, want 100 (seek-back must not regress it)", progress.ResumePosition)
	}
	if progress.LastPosition != 50 {
		t.Errorf("LastPosition = %v, want 50", progress.LastPosition)
	}
}

func TestService_KeepaliveHeartbeatSkipsDurableWrite(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	writes := f.progress.upsertCount()

	f.advance(15 * time.Second)
	record, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID,
	})
	if err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	// The idle deadline and watch time still move.
	if record.WatchTimeAccum != 15 {
		t.Errorf("WatchTimeAccum = %v, want 15", record.WatchTimeAccum)
	}
	if got := f.progress.upsertCount(); got != writes {
		t.Errorf("progress writes = %d, want %d (keepalive persists nothing)", got, writes)
	}
}

func TestService_FailedManifestDoesNotCountSession(t *testing.T) {
	f := newServiceFixtureWithOrigin(t, fakeOrigin{manifestErr: errors.New("origin unavailable")})
	f.enroll("user-a")

	if _, err := f.service.CreateSession(context.Background(), "user-a", createRequest()); err == nil {
		t.Fatal("CreateSession() succeeded despite the origin failing")
	}

	if _, err := f.progress.Get(context.Background(), "user-a", "lesson-1"); !errors.Is(err, scylla.ErrProgressNotFound) {
		t.Errorf("progress Get() error = %v, want ErrProgressNotFound (failed creation must not count)", err)
	}
	if count, err := f.service.registry.CountByUser(context.Background(), "user-a"); err != nil || count != 0 {
		t.Errorf("CountByUser() = %d, %v, want 0 live sessions", count, err)
	}
}

func TestService_HeartbeatByNonOwnerIsForbiddenAndAudited(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	_, err = f.service.Heartbeat(context.Background(), "user-b", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(500),
	})
	if !errors.Is(err, session.ErrNotSessionOwner) {
		t.Fatalf("Heartbeat() error = %v, want ErrNotSessionOwner", err)
	}
	if f.security.count(models.SecurityEventOwnershipViolation) != 1 {
		t.Error("ownership violation was not recorded as a security event")
	}

	// The session itself is untouched.
	record, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{SessionID: manifest.SessionID})
	if err != nil {
		t.Fatalf("owner Heartbeat() error = %v", err)
	}
	if record.CurrentPosition == 500 {
		t.Error("non-owner heartbeat mutated the session")
	}
}

func TestService_EndNearCompletionResetsResume(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(1795),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	f.advance(5 * time.Second)
	final, err := f.service.EndSession(context.Background(), "user-a", manifest.SessionID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if final.CompletionPercentage < 99 {
		t.Errorf("CompletionPercentage = %v, want at or near 100", final.CompletionPercentage)
	}
	progress, _ := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if progress.ResumePosition != 0 {
		t.Errorf("ResumePosition = %v, want 0 after completion", progress.ResumePosition)
	}
	if ended := f.lifecycle.byType(models.EventSessionEnded); len(ended) != 1 {
		t.Errorf("ended lifecycle events = %d, want 1", len(ended))
	}
}

func TestService_EndMidwayKeepsResumeAtFinalPosition(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	f.advance(15 * time.Second)
	if _, err := f.service.Heartbeat(context.Background(), "user-a", &HeartbeatRequest{
		SessionID: manifest.SessionID, CurrentPosition: float64Ptr(600),
	}); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}

	f.advance(10 * time.Second)
	final, err := f.service.EndSession(context.Background(), "user-a", manifest.SessionID)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if final.WatchTime != 25 {
		t.Errorf("WatchTime = %v, want 25 (15s heartbeat + 10s tail)", final.WatchTime)
	}

	progress, _ := f.progress.Get(context.Background(), "user-a", "lesson-1")
	if progress.ResumePosition != 600 {
		t.Errorf("ResumePosition = %v, want 600", progress.ResumePosition)
	}
	if progress.WatchTime != 25 {
		t.Errorf("progress WatchTime = %v, want 25", progress.WatchTime)
	}
}

func TestService_EndTwiceYieldsNotFound(t *testing.T) {
	f := newServiceFixture(t)
	f.enroll("user-a")
	manifest, err := f.service.CreateSession(context.Background(), "user-a", createRequest())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, err := f.service.EndSession(context.Background(), "user-a", manifest.SessionID); err != nil {
		t.Fatalf("first EndSession() error = %v", err)
	}
	if _, err := f.service.EndSession(context.Background(), "user-a", manifest.SessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("second EndSession() error = %v, want ErrSessionNotFound", err)
	}
}

func float64Ptr(v float64) *float64 { return &v }
func stringPtr(v string) *string    { return &v }
