package security

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stream-service/internal/bucketing"
	"stream-service/internal/client"
	"stream-service/internal/config"
	"stream-service/internal/models"
	"stream-service/internal/util"
)

// Recorder captures security violations: session touches by a non-owner,
// foreign license activations. These are distinct from business denials and
// always audited.
type Recorder interface {
	Record(ctx context.Context, event *models.SecurityEvent)
}

// ESRecorder indexes events into Elasticsearch for the abuse dashboard,
// after logging them. Indexing failures are logged and swallowed; an audit
// write never fails the request that triggered it.
type ESRecorder struct {
	es           *client.ESClient
	bucketingMgr *bucketing.Manager
	index        string
}

func NewESRecorder(esClient *client.ESClient, bucketingMgr *bucketing.Manager, cfg *config.Config) *ESRecorder {
	return &ESRecorder{
		es:           esClient,
		bucketingMgr: bucketingMgr,
		index:        cfg.Elasticsearch.SecurityIndex,
	}
}

func (r *ESRecorder) Record(ctx context.Context, event *models.SecurityEvent) {
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	event.EventBucket = r.bucketingMgr.EventBucket(event.UserID)

	// Daily indices keep retention a matter of dropping whole indices.
	index := r.index + "-" + r.bucketingMgr.DateBucket(event.EventTime)

	util.Warn("Security event",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.String("details", event.Details))

	docID := uuid.New().String()
	res, err := r.es.IndexDocument(ctx, index, docID, event)
	if err != nil {
		util.Error("Failed to index security event",
			zap.String("event_type", event.EventType), zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		util.Error("Security event indexing rejected",
			zap.String("event_type", event.EventType),
			zap.String("response", res.String()))
	}
}

// LogRecorder only logs, for deployments without Elasticsearch.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, event *models.SecurityEvent) {
	util.Warn("Security event",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("session_id", event.SessionID),
		zap.String("details", event.Details))
}
