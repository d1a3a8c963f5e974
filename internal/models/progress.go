package models

import "time"

// VideoProgress is the durable per-(user, lesson) viewing record.
// ResumePosition is the conservative "continue watching" marker and only
// moves forward (or resets to 0 on near-complete viewing); LastPosition
// mirrors whatever the client last reported, including seek-backs.
// SessionsCount increments once per session creation, never per heartbeat.
type VideoProgress struct {
	UserBucket           int       `db:"user_bucket" json:"-"`
	UserID               string    `db:"user_id" json:"user_id"`
	LessonID             string    `db:"lesson_id" json:"lesson_id"`
	WatchTime            float64   `db:"watch_time" json:"watch_time"`
	CompletionPercentage float64   `db:"completion_percentage" json:"completion_percentage"`
	LastPosition         float64   `db:"last_position" json:"last_position"`
	ResumePosition       float64   `db:"resume_position" json:"resume_position"`
	SessionsCount        int       `db:"sessions_count" json:"sessions_count"`
	PlaybackSpeed        float64   `db:"playback_speed" json:"playback_speed"`
	QualityPreference    string    `db:"quality_preference" json:"quality_preference"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
