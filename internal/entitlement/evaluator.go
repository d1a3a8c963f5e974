package entitlement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"stream-service/internal/models"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/util"
)

// DenialReason is the machine-readable reason attached to every denial, so
// callers can message the user precisely (enroll vs. purchase).
type DenialReason string

const (
	DenialNotEnrolled       DenialReason = "NOT_ENROLLED"
	DenialNoValidLicense    DenialReason = "NO_VALID_LICENSE"
	DenialCourseUnpublished DenialReason = "COURSE_UNPUBLISHED"
)

type Decision struct {
	Granted bool
	Reason  DenialReason
}

func granted() Decision              { return Decision{Granted: true} }
func denied(r DenialReason) Decision { return Decision{Reason: r} }

// Evaluator decides whether a user may watch a course's videos. Free courses
// require an enrollment, paid courses an ACTIVE non-expired license, and
// unpublished courses admit only their instructor. Evaluation has no side
// effects of its own; license expiry encountered along the way is persisted
// by the validator.
type Evaluator struct {
	enrollments scylla.EnrollmentRepository
	licenses    scylla.LicenseRepository
	validator   *LicenseValidator
}

func NewEvaluator(enrollments scylla.EnrollmentRepository, licenses scylla.LicenseRepository, validator *LicenseValidator) *Evaluator {
	return &Evaluator{
		enrollments: enrollments,
		licenses:    licenses,
		validator:   validator,
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, userID string, course *models.Course) (Decision, error) {
	if !course.IsPublished {
		if userID == course.InstructorID {
			return granted(), nil
		}
		util.Debug("Access denied for unpublished course",
			zap.String("user_id", userID),
			zap.String("course_id", course.CourseID))
		return denied(DenialCourseUnpublished), nil
	}

	if course.IsFree() {
		_, err := e.enrollments.Get(ctx, userID, course.CourseID)
		if err != nil {
			if errors.Is(err, scylla.ErrEnrollmentNotFound) {
				return denied(DenialNotEnrolled), nil
			}
			return Decision{}, err
		}
		return granted(), nil
	}

	licenses, err := e.licenses.ListByUserAndCourse(ctx, userID, course.CourseID)
	if err != nil {
		return Decision{}, err
	}
	for _, license := range licenses {
		// Expiry is checked against evaluation time, never a cached status.
		current, err := e.validator.applyLazyExpiry(ctx, license)
		if err != nil {
			return Decision{}, err
		}
		if current.Status == models.LicenseStatusActive {
			return granted(), nil
		}
	}
	return denied(DenialNoValidLicense), nil
}
