package models

import "time"

// Lifecycle event types emitted to the analytics pipeline.
const (
	EventSessionStarted = "session_started"
	EventSessionEnded   = "session_ended"
	EventSessionReaped  = "session_reaped"
)

// PlaybackEvent is the lifecycle record for a streaming session. One is
// emitted at creation and exactly one at termination (explicit or reaped).
type PlaybackEvent struct {
	EventType            string    `json:"event_type"`
	SessionID            string    `json:"session_id"`
	UserID               string    `json:"user_id"`
	CourseID             string    `json:"course_id"`
	LessonID             string    `json:"lesson_id"`
	VideoID              string    `json:"video_id"`
	WatchTime            float64   `json:"watch_time"`
	CompletionPercentage float64   `json:"completion_percentage"`
	Position             float64   `json:"position"`
	Quality              string    `json:"quality"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// PlaybackCheckpoint is the interim progress row written per accepted
// heartbeat. Termination reconciles; checkpoints are best-effort.
type PlaybackCheckpoint struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	LessonID      string    `json:"lesson_id"`
	Position      float64   `json:"position"`
	Quality       string    `json:"quality"`
	PlaybackSpeed float64   `json:"playback_speed"`
	RecordedAt    time.Time `json:"recorded_at"`
}
