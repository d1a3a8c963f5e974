package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"stream-service/internal/client"
	"stream-service/internal/config"
	"stream-service/internal/models"
	"stream-service/internal/util"
)

// KafkaLifecycleSink publishes lifecycle events to the playback lifecycle
// topic, keyed by session id so one session's events stay ordered within a
// partition.
type KafkaLifecycleSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaLifecycleSink(producer *client.KafkaProducer, cfg *config.Config) *KafkaLifecycleSink {
	return &KafkaLifecycleSink{
		producer: producer,
		topic:    cfg.Kafka.LifecycleTopic,
	}
}

func (s *KafkaLifecycleSink) PublishLifecycle(ctx context.Context, event *models.PlaybackEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	headers := map[string]string{
		"event_type": event.EventType,
		"user_id":    event.UserID,
	}
	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(event.SessionID), payload, headers); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}

	util.Debug("Lifecycle event published",
		zap.String("event_type", event.EventType),
		zap.String("session_id", event.SessionID))
	return nil
}
