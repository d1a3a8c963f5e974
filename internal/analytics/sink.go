package analytics

import (
	"context"

	"stream-service/internal/models"
)

// LifecycleSink receives one event per session lifecycle edge (started,
// ended, reaped). Delivery is best effort; playback never blocks on it.
type LifecycleSink interface {
	PublishLifecycle(ctx context.Context, event *models.PlaybackEvent) error
}

// CheckpointSink receives per-heartbeat playback checkpoints for the
// analytics warehouse.
type CheckpointSink interface {
	RecordCheckpoint(ctx context.Context, checkpoint *models.PlaybackCheckpoint) error
}

// NoopLifecycleSink drops events. Wired when Kafka is disabled.
type NoopLifecycleSink struct{}

func (NoopLifecycleSink) PublishLifecycle(ctx context.Context, event *models.PlaybackEvent) error {
	return nil
}

// NoopCheckpointSink drops checkpoints. Wired when ClickHouse is disabled.
type NoopCheckpointSink struct{}

func (NoopCheckpointSink) RecordCheckpoint(ctx context.Context, checkpoint *models.PlaybackCheckpoint) error {
	return nil
}
