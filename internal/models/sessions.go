package models

import "time"

// DeviceInfo is client-supplied context captured at session creation.
type DeviceInfo struct {
	DeviceID  string `json:"device_id"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address,omitempty"`
}

// StreamingSession is the ephemeral in-flight viewing record. It lives
// only in the session registry, never in the relational store. Every
// mutation after creation must come from the owning user.
type StreamingSession struct {
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	VideoID         string     `json:"video_id"`
	CourseID        string     `json:"course_id"`
	LessonID        string     `json:"lesson_id"`
	VideoDuration   float64    `json:"video_duration"`
	StartTime       time.Time  `json:"start_time"`
	LastUpdateAt    time.Time  `json:"last_update_at"`
	CurrentPosition float64    `json:"current_position"`
	WatchTimeAccum  float64    `json:"watch_time_accum"`
	Quality         string     `json:"quality"`
	PlaybackSpeed   float64    `json:"playback_speed"`
	Volume          float64    `json:"volume"`
	IsFullscreen    bool       `json:"is_fullscreen"`
	Device          DeviceInfo `json:"device"`
}

// SessionUpdate is a typed partial update: only non-nil fields are
// applied, so an omitted field never resets the session value.
type SessionUpdate struct {
	CurrentPosition *float64
	Quality         *string
	PlaybackSpeed   *float64
	Volume          *float64
	IsFullscreen    *bool
}

// IsEmpty reports whether the update carries no fields at all.
func (u *SessionUpdate) IsEmpty() bool {
	return u.CurrentPosition == nil && u.Quality == nil &&
		u.PlaybackSpeed == nil && u.Volume == nil && u.IsFullscreen == nil
}

// FinalMetrics is what session termination reports back to the caller.
type FinalMetrics struct {
	SessionID            string  `json:"session_id"`
	WatchTime            float64 `json:"watch_time"`
	CompletionPercentage float64 `json:"completion_percentage"`
	FinalPosition        float64 `json:"final_position"`
}
