package streaming

import "errors"

var (
	// ErrAccessDenied wraps an entitlement denial; the denial reason is part
	// of the error text.
	ErrAccessDenied = errors.New("access denied")
	// ErrValidation marks malformed or out-of-range request fields. Field
	// detail is part of the error text; out-of-range values are rejected,
	// never clamped.
	ErrValidation = errors.New("validation failed")
	// ErrVideoNotFound means no lesson is published for the video id.
	ErrVideoNotFound = errors.New("video not found")
)
