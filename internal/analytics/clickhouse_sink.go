package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stream-service/internal/client"
	"stream-service/internal/models"
	"stream-service/internal/util"
)

const (
	checkpointFlushSize     = 200
	checkpointFlushInterval = 5 * time.Second

	insertCheckpointsQuery = `
        INSERT INTO playback_checkpoints
            (session_id, user_id, lesson_id, position, quality, playback_speed, recorded_at)`
)

// ClickHouseCheckpointSink buffers heartbeat checkpoints and flushes them in
// batches, either when the buffer fills or on a timer. A dropped batch loses
// analytics rows only, never playback state.
type ClickHouseCheckpointSink struct {
	clickhouse *client.ClickHouseClient

	mu     sync.Mutex
	buffer []*models.PlaybackCheckpoint

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewClickHouseCheckpointSink(clickhouseClient *client.ClickHouseClient) *ClickHouseCheckpointSink {
	sink := &ClickHouseCheckpointSink{
		clickhouse: clickhouseClient,
		buffer:     make([]*models.PlaybackCheckpoint, 0, checkpointFlushSize),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go sink.run()
	return sink
}

func (s *ClickHouseCheckpointSink) RecordCheckpoint(ctx context.Context, checkpoint *models.PlaybackCheckpoint) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, checkpoint)
	shouldFlush := len(s.buffer) >= checkpointFlushSize
	s.mu.Unlock()

	if shouldFlush {
		s.flush()
	}
	return nil
}

func (s *ClickHouseCheckpointSink) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(checkpointFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stopCh:
			s.flush()
			return
		}
	}
}

func (s *ClickHouseCheckpointSink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]*models.PlaybackCheckpoint, 0, checkpointFlushSize)
	s.mu.Unlock()

	rows := make([][]interface{}, 0, len(batch))
	for _, checkpoint := range batch {
		rows = append(rows, []interface{}{
			checkpoint.SessionID,
			checkpoint.UserID,
			checkpoint.LessonID,
			checkpoint.Position,
			checkpoint.Quality,
			checkpoint.PlaybackSpeed,
			checkpoint.RecordedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.clickhouse.BatchInsert(ctx, insertCheckpointsQuery, rows); err != nil {
		util.Error("Failed to flush playback checkpoints",
			zap.Int("count", len(rows)), zap.Error(err))
		return
	}
	util.Debug("Flushed playback checkpoints", zap.Int("count", len(rows)))
}

// Close flushes the remaining buffer and stops the background flusher.
func (s *ClickHouseCheckpointSink) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
