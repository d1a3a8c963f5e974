package models

// QualityVariant is one rung of the adaptive-bitrate ladder.
type QualityVariant struct {
	Quality   string `json:"quality"`
	Bandwidth int    `json:"bandwidth"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	URL       string `json:"url"`
}

// ThumbnailSet describes the preview sprite track for seek previews.
type ThumbnailSet struct {
	URL      string `json:"url"`
	Interval int    `json:"interval"`
	Columns  int    `json:"columns"`
}

// Restrictions are the anti-piracy flags the player must enforce.
type Restrictions struct {
	DownloadDisabled    bool `json:"download_disabled"`
	SeekingDisabled     bool `json:"seeking_disabled"`
	SpeedChangeDisabled bool `json:"speed_change_disabled"`
}

// Watermark is the viewer-identifying overlay baked into the player.
type Watermark struct {
	Text     string  `json:"text"`
	Position string  `json:"position"`
	Opacity  float64 `json:"opacity"`
}

// AnalyticsEndpoints tells the player where to report.
type AnalyticsEndpoints struct {
	TrackingURL  string `json:"tracking_url"`
	HeartbeatURL string `json:"heartbeat_url"`
}

// PlayerConfig is the initial player state derived from progress and
// restrictions. EnableFullscreen is computed explicitly, never defaulted.
type PlayerConfig struct {
	AutoPlay         bool      `json:"auto_play"`
	StartPosition    float64   `json:"start_position"`
	CurrentQuality   string    `json:"current_quality"`
	PlaybackSpeed    float64   `json:"playback_speed"`
	AvailableSpeeds  []float64 `json:"available_speeds"`
	EnableFullscreen bool      `json:"enable_fullscreen"`
	Volume           float64   `json:"volume"`
}

// StreamManifest is the full session-creation response handed to the
// player. The access token is opaque to this service; the media origin
// validates it, this service only chooses its expiry window.
type StreamManifest struct {
	SessionID    string             `json:"session_id"`
	ManifestURL  string             `json:"manifest_url"`
	Format       string             `json:"format"`
	Qualities    []QualityVariant   `json:"qualities"`
	Thumbnails   ThumbnailSet       `json:"thumbnails"`
	Duration     float64            `json:"duration"`
	AccessToken  string             `json:"access_token"`
	Restrictions Restrictions       `json:"restrictions"`
	Watermark    Watermark          `json:"watermark"`
	Analytics    AnalyticsEndpoints `json:"analytics"`
	PlayerConfig PlayerConfig       `json:"player_config"`
}
