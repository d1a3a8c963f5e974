package models

import "time"

// License key lifecycle states. ACTIVE is the initial state on purchase;
// EXPIRED and REVOKED are terminal.
const (
	LicenseStatusActive  = "ACTIVE"
	LicenseStatusExpired = "EXPIRED"
	LicenseStatusRevoked = "REVOKED"
)

// LicenseKey is the durable record of a purchased course license.
// ActivationsLimit <= 0 means unlimited activations. Keys are never
// deleted; revocation flips Status and stamps RevokedAt.
type LicenseKey struct {
	Key              string     `db:"license_key" json:"key"`
	UserID           string     `db:"user_id" json:"user_id"`
	CourseID         string     `db:"course_id" json:"course_id"`
	Status           string     `db:"status" json:"status"`
	ActivationsCount int        `db:"activations_count" json:"activations_count"`
	ActivationsLimit int        `db:"activations_limit" json:"activations_limit"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        string     `db:"revoked_by" json:"revoked_by,omitempty"`
}

// HasActivationLimit reports whether the key caps its activations.
func (k *LicenseKey) HasActivationLimit() bool {
	return k.ActivationsLimit > 0
}
