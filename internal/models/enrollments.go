package models

import "time"

const (
	EnrollmentStatusActive    = "ACTIVE"
	EnrollmentStatusCompleted = "COMPLETED"
)

// Enrollment ties a user to a course. One row per (user, course) pair;
// writes are upserts, never duplicates.
type Enrollment struct {
	UserID     string    `db:"user_id" json:"user_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Status     string    `db:"status" json:"status"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
