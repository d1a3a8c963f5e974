package models

import "time"

// Course is the read-side view the streaming core needs for entitlement:
// price, published flag and instructor. Course CRUD lives elsewhere.
type Course struct {
	CourseID     string    `db:"course_id" json:"course_id"`
	Title        string    `db:"title" json:"title"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	PriceCents   int64     `db:"price_cents" json:"price_cents"`
	IsPublished  bool      `db:"is_published" json:"is_published"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsFree reports whether enrollment alone grants streaming access.
func (c *Course) IsFree() bool {
	return c.PriceCents == 0
}

// Lesson is the read-side view of a course lesson and its video asset.
// DurationSeconds comes from the packaging pipeline and is the
// authoritative duration for completion math.
type Lesson struct {
	LessonID        string    `db:"lesson_id" json:"lesson_id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Title           string    `db:"title" json:"title"`
	VideoID         string    `db:"video_id" json:"video_id"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration_seconds"`
	Position        int       `db:"position" json:"position"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
