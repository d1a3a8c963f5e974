package models

import "time"

// Security event types recorded by the streaming core.
const (
	SecurityEventOwnershipViolation = "session_ownership_violation"
	SecurityEventLicenseForbidden   = "license_activation_forbidden"
	SecurityEventSessionFlood       = "concurrent_session_flood"
)

// SecurityEvent records an access attempt that crossed a trust boundary,
// kept apart from ordinary error logs so probing shows up in one place.
type SecurityEvent struct {
	EventBucket int       `db:"event_bucket" json:"event_bucket"`
	EventType   string    `db:"event_type" json:"event_type"`
	EventTime   time.Time `db:"event_time" json:"event_time"`
	UserID      string    `db:"user_id" json:"user_id"`
	OwnerID     string    `db:"owner_id" json:"owner_id,omitempty"`
	SessionID   string    `db:"session_id" json:"session_id,omitempty"`
	DeviceID    string    `db:"device_id" json:"device_id,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	Details     string    `db:"details" json:"details"`
}
