package streaming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stream-service/internal/analytics"
	"stream-service/internal/config"
	"stream-service/internal/entitlement"
	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/security"
	"stream-service/internal/session"
	"stream-service/internal/util"
)

var allowedQualities = map[string]bool{
	"auto": true, "1080p": true, "720p": true, "480p": true, "360p": true,
}

type CreateSessionRequest struct {
	VideoID  string            `json:"video_id"`
	CourseID string            `json:"course_id,omitempty"`
	Device   models.DeviceInfo `json:"device_info"`
}

type HeartbeatRequest struct {
	SessionID       string   `json:"session_id"`
	CurrentPosition *float64 `json:"current_position,omitempty"`
	Quality         *string  `json:"quality,omitempty"`
	PlaybackSpeed   *float64 `json:"playback_speed,omitempty"`
	Volume          *float64 `json:"volume,omitempty"`
	IsFullscreen    *bool    `json:"is_fullscreen,omitempty"`
}

// Service ties entitlement, the session registry, the manifest assembler and
// progress persistence together behind the three lifecycle operations.
type Service struct {
	registry    *session.Registry
	catalog     scylla.CatalogRepository
	progress    scylla.ProgressRepository
	evaluator   *entitlement.Evaluator
	assembler   *Assembler
	lifecycle   analytics.LifecycleSink
	checkpoints analytics.CheckpointSink
	security    security.Recorder
	cfg         *config.StreamingConfig
	now         func() time.Time
}

func NewService(
	registry *session.Registry,
	catalog scylla.CatalogRepository,
	progress scylla.ProgressRepository,
	evaluator *entitlement.Evaluator,
	assembler *Assembler,
	lifecycle analytics.LifecycleSink,
	checkpoints analytics.CheckpointSink,
	securityRecorder security.Recorder,
	cfg *config.Config,
) *Service {
	return &Service{
		registry:    registry,
		catalog:     catalog,
		progress:    progress,
		evaluator:   evaluator,
		assembler:   assembler,
		lifecycle:   lifecycle,
		checkpoints: checkpoints,
		security:    securityRecorder,
		cfg:         &cfg.Streaming,
		now:         time.Now,
	}
}

// CreateSession evaluates entitlement, registers a session and assembles the
// manifest. Playback starts at the durable resume position.
func (s *Service) CreateSession(ctx context.Context, userID string, req *CreateSessionRequest) (*models.StreamManifest, error) {
	if req.VideoID == "" {
		return nil, fmt.Errorf("%w: video_id is required", ErrValidation)
	}

	lesson, err := s.catalog.GetLessonByVideoID(ctx, req.VideoID)
	if err != nil {
		if errors.Is(err, scylla.ErrLessonNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	course, err := s.catalog.GetCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, err
	}

	decision, err := s.evaluator.Evaluate(ctx, userID, course)
	if err != nil {
		return nil, err
	}
	if !decision.Granted {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, decision.Reason)
	}

	now := s.now()
	progress, err := s.getOrCreateProgress(ctx, userID, lesson.LessonID)
	if err != nil {
		return nil, err
	}

	record := &models.StreamingSession{
		SessionID:       uuid.New().String(),
		UserID:          userID,
		VideoID:         lesson.VideoID,
		CourseID:        course.CourseID,
		LessonID:        lesson.LessonID,
		VideoDuration:   lesson.DurationSeconds,
		StartTime:       now,
		LastUpdateAt:    now,
		CurrentPosition: progress.ResumePosition,
		Quality:         progress.QualityPreference,
		PlaybackSpeed:   progress.PlaybackSpeed,
		Volume:          1.0,
		Device:          req.Device,
	}
	if record.Quality == "" {
		record.Quality = "auto"
	}
	if record.PlaybackSpeed == 0 {
		record.PlaybackSpeed = 1.0
	}

	if err := s.registry.Create(ctx, record); err != nil {
		return nil, err
	}

	if count, err := s.registry.CountByUser(ctx, userID); err == nil && count > 5 {
		s.security.Record(ctx, &models.SecurityEvent{
			EventType: models.SecurityEventSessionFlood,
			UserID:    userID,
			SessionID: record.SessionID,
			DeviceID:  req.Device.DeviceID,
			IPAddress: req.Device.IPAddress,
			Details:   fmt.Sprintf("user holds %d concurrent streaming sessions", count),
		})
	}

	manifest, err := s.assembler.Assemble(ctx, record)
	if err != nil {
		// Do not leave a session the client never learned about.
		_, _ = s.registry.End(ctx, record.SessionID, userID, now, nil)
		return nil, err
	}

	// Counted only once the client can actually receive the session, so a
	// failed creation never inflates the count. Re-read first: another
	// session may have advanced the record since the resume lookup.
	if counted, err := s.getOrCreateProgress(ctx, userID, lesson.LessonID); err == nil {
		counted.SessionsCount++
		counted.UpdatedAt = now
		if err := s.progress.Upsert(ctx, counted); err != nil {
			util.Warn("Failed to record session count",
				zap.String("session_id", record.SessionID), zap.Error(err))
		}
	} else {
		util.Warn("Failed to record session count",
			zap.String("session_id", record.SessionID), zap.Error(err))
	}

	s.publishLifecycle(ctx, record, models.EventSessionStarted, 0)
	return manifest, nil
}

// Heartbeat applies a partial update to the session and writes interim
// progress through to the durable store.
func (s *Service) Heartbeat(ctx context.Context, userID string, req *HeartbeatRequest) (*models.StreamingSession, error) {
	if err := s.validateHeartbeat(req); err != nil {
		return nil, err
	}

	update := &models.SessionUpdate{
		CurrentPosition: req.CurrentPosition,
		Quality:         req.Quality,
		PlaybackSpeed:   req.PlaybackSpeed,
		Volume:          req.Volume,
		IsFullscreen:    req.IsFullscreen,
	}

	// The write-through runs inside the session's critical section: a
	// concurrent heartbeat cannot read progress until this one's write
	// lands, so the resume position moves strictly forward. A bare
	// keepalive only refreshes the idle deadline; nothing to persist.
	var commit session.CommitFunc
	if !update.IsEmpty() {
		commit = func(ctx context.Context, record *models.StreamingSession) error {
			return s.writeThroughProgress(ctx, record, req)
		}
	}
	record, err := s.registry.Update(ctx, req.SessionID, userID, update, s.now(), commit)
	if err != nil {
		if errors.Is(err, session.ErrNotSessionOwner) {
			s.recordOwnershipViolation(ctx, userID, req.SessionID, "heartbeat")
		}
		return nil, err
	}

	if update.IsEmpty() {
		return record, nil
	}
	if err := s.checkpoints.RecordCheckpoint(ctx, &models.PlaybackCheckpoint{
		SessionID:     record.SessionID,
		UserID:        record.UserID,
		LessonID:      record.LessonID,
		Position:      record.CurrentPosition,
		Quality:       record.Quality,
		PlaybackSpeed: record.PlaybackSpeed,
		RecordedAt:    record.LastUpdateAt,
	}); err != nil {
		util.Warn("Failed to record playback checkpoint",
			zap.String("session_id", record.SessionID), zap.Error(err))
	}

	return record, nil
}

// EndSession removes the session and reconciles final metrics into the
// progress store. A second end for the same session is a NotFound.
func (s *Service) EndSession(ctx context.Context, userID, sessionID string) (*models.FinalMetrics, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrValidation)
	}

	// Reconciliation runs inside the critical section, after the delete: a
	// straggler heartbeat either lands fully before the end or observes the
	// session as gone; it can never overwrite the final metrics.
	var metrics *models.FinalMetrics
	_, err := s.registry.End(ctx, sessionID, userID, s.now(),
		func(ctx context.Context, record *models.StreamingSession) error {
			final, err := s.finalize(ctx, record, models.EventSessionEnded)
			if err != nil {
				return err
			}
			metrics = final
			return nil
		})
	if err != nil {
		if errors.Is(err, session.ErrNotSessionOwner) {
			s.recordOwnershipViolation(ctx, userID, sessionID, "end")
		}
		return nil, err
	}
	return metrics, nil
}

// GetProgress returns the durable progress record for the caller's lesson.
func (s *Service) GetProgress(ctx context.Context, userID, lessonID string) (*models.VideoProgress, error) {
	if lessonID == "" {
		return nil, fmt.Errorf("%w: lesson_id is required", ErrValidation)
	}
	return s.progress.Get(ctx, userID, lessonID)
}

// RunReaper sweeps idle sessions until the context is cancelled. Reaped
// sessions are finalized with best-effort metrics from last known state.
func (s *Service) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	util.Info("Session reaper started",
		zap.Duration("interval", s.cfg.ReapInterval),
		zap.Duration("idle_timeout", s.cfg.SessionIdleTimeout))

	for {
		select {
		case <-ctx.Done():
			util.Info("Session reaper stopped")
			return
		case <-ticker.C:
			_, err := s.registry.ReapIdle(ctx, s.now(),
				func(ctx context.Context, record *models.StreamingSession) error {
					_, err := s.finalize(ctx, record, models.EventSessionReaped)
					return err
				})
			if err != nil {
				util.Error("Reap sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) validateHeartbeat(req *HeartbeatRequest) error {
	if req.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if req.CurrentPosition != nil && *req.CurrentPosition < 0 {
		return fmt.Errorf("%w: current_position must be >= 0", ErrValidation)
	}
	if req.PlaybackSpeed != nil {
		if *req.PlaybackSpeed < s.cfg.MinPlaybackSpeed || *req.PlaybackSpeed > s.cfg.MaxPlaybackSpeed {
			return fmt.Errorf("%w: playback_speed must be between %.2f and %.2f",
				ErrValidation, s.cfg.MinPlaybackSpeed, s.cfg.MaxPlaybackSpeed)
		}
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		return fmt.Errorf("%w: volume must be between 0 and 1", ErrValidation)
	}
	if req.Quality != nil && !allowedQualities[*req.Quality] {
		return fmt.Errorf("%w: quality %q is not in the encoding ladder", ErrValidation, *req.Quality)
	}
	return nil
}

// writeThroughProgress persists interim progress on every accepted
// heartbeat: last position always, resume position only on forward progress
// past the minimum delta, preferences when present.
func (s *Service) writeThroughProgress(ctx context.Context, record *models.StreamingSession, req *HeartbeatRequest) error {
	progress, err := s.getOrCreateProgress(ctx, record.UserID, record.LessonID)
	if err != nil {
		return err
	}

	if req.CurrentPosition != nil {
		progress.LastPosition = *req.CurrentPosition
		if *req.CurrentPosition >= progress.ResumePosition+s.cfg.ResumeMinDelta {
			progress.ResumePosition = *req.CurrentPosition
		}
	}
	if req.Quality != nil {
		progress.QualityPreference = *req.Quality
	}
	if req.PlaybackSpeed != nil {
		progress.PlaybackSpeed = *req.PlaybackSpeed
	}
	progress.UpdatedAt = record.LastUpdateAt

	return s.progress.Upsert(ctx, progress)
}

// finalize reconciles a finished session into the progress store and emits
// one lifecycle event. This is the only place completion percentage is
// authoritative.
func (s *Service) finalize(ctx context.Context, record *models.StreamingSession, eventType string) (*models.FinalMetrics, error) {
	completion := 0.0
	if record.VideoDuration > 0 {
		completion = record.CurrentPosition / record.VideoDuration * 100
		if completion > 100 {
			completion = 100
		}
		if completion < 0 {
			completion = 0
		}
	}

	progress, err := s.getOrCreateProgress(ctx, record.UserID, record.LessonID)
	if err != nil {
		return nil, err
	}
	progress.WatchTime += record.WatchTimeAccum
	progress.CompletionPercentage = completion
	progress.LastPosition = record.CurrentPosition
	if completion >= s.cfg.CompletionThreshold {
		// A completed lesson replays from the start next time.
		progress.ResumePosition = 0
	} else {
		progress.ResumePosition = record.CurrentPosition
	}
	progress.UpdatedAt = record.LastUpdateAt
	if err := s.progress.Upsert(ctx, progress); err != nil {
		return nil, err
	}

	s.publishLifecycle(ctx, record, eventType, completion)

	return &models.FinalMetrics{
		SessionID:            record.SessionID,
		WatchTime:            record.WatchTimeAccum,
		CompletionPercentage: completion,
		FinalPosition:        record.CurrentPosition,
	}, nil
}

func (s *Service) getOrCreateProgress(ctx context.Context, userID, lessonID string) (*models.VideoProgress, error) {
	progress, err := s.progress.Get(ctx, userID, lessonID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, scylla.ErrProgressNotFound) {
		return nil, err
	}
	return &models.VideoProgress{
		UserID:            userID,
		LessonID:          lessonID,
		PlaybackSpeed:     1.0,
		QualityPreference: "auto",
		UpdatedAt:         s.now(),
	}, nil
}

func (s *Service) publishLifecycle(ctx context.Context, record *models.StreamingSession, eventType string, completion float64) {
	event := &models.PlaybackEvent{
		EventType:            eventType,
		SessionID:            record.SessionID,
		UserID:               record.UserID,
		CourseID:             record.CourseID,
		LessonID:             record.LessonID,
		VideoID:              record.VideoID,
		WatchTime:            record.WatchTimeAccum,
		CompletionPercentage: completion,
		Position:             record.CurrentPosition,
		Quality:              record.Quality,
		OccurredAt:           s.now().UTC(),
	}
	if err := s.lifecycle.PublishLifecycle(ctx, event); err != nil {
		util.Warn("Failed to publish lifecycle event",
			zap.String("event_type", eventType),
			zap.String("session_id", record.SessionID), zap.Error(err))
	}
}

func (s *Service) recordOwnershipViolation(ctx context.Context, userID, sessionID, operation string) {
	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.SecurityEventOwnershipViolation,
		UserID:    userID,
		SessionID: sessionID,
		Details:   fmt.Sprintf("%s attempted on a session owned by another user", operation),
	})
}
