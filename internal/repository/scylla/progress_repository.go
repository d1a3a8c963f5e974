package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"stream-service/internal/bucketing"
	"stream-service/internal/models"
	"stream-service/internal/util"
)

type ProgressRepositoryImpl struct {
	client       *ScyllaClient
	bucketingMgr *bucketing.Manager
}

func NewProgressRepository(client *ScyllaClient, bucketingMgr *bucketing.Manager) ProgressRepository {
	return &ProgressRepositoryImpl{client: client, bucketingMgr: bucketingMgr}
}

func (r *ProgressRepositoryImpl) Get(ctx context.Context, userID, lessonID string) (*models.VideoProgress, error) {
	userBucket := r.bucketingMgr.UserBucket(userID)
	query := r.client.Prepared.GetProgress.Bind(userBucket, userID, lessonID).WithContext(ctx)

	var progress models.VideoProgress
	err := r.client.ScanWithRetry(query,
		&progress.UserBucket, &progress.UserID, &progress.LessonID,
		&progress.WatchTime, &progress.CompletionPercentage,
		&progress.LastPosition, &progress.ResumePosition,
		&progress.SessionsCount, &progress.PlaybackSpeed,
		&progress.QualityPreference, &progress.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get video progress: %w", err)
	}
	return &progress, nil
}

func (r *ProgressRepositoryImpl) Upsert(ctx context.Context, progress *models.VideoProgress) error {
	progress.UserBucket = r.bucketingMgr.UserBucket(progress.UserID)

	query := r.client.Prepared.UpsertProgress.Bind(
		progress.UserBucket, progress.UserID, progress.LessonID,
		progress.WatchTime, progress.CompletionPercentage,
		progress.LastPosition, progress.ResumePosition,
		progress.SessionsCount, progress.PlaybackSpeed,
		progress.QualityPreference, progress.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 3); err != nil {
		return fmt.Errorf("failed to upsert video progress: %w", err)
	}

	util.Debug("Video progress upserted",
		zap.String("user_id", progress.UserID),
		zap.String("lesson_id", progress.LessonID),
		zap.Float64("completion", progress.CompletionPercentage))
	return nil
}
