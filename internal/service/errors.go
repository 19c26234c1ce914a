package service

import "errors"

// SecurityError marks a request whose claims crossed a trust boundary:
// an unregistered repository, a tampered workflow definition, or feedback for
// a submission that was never recorded. Callers receive a generic rejection;
// the detail stays in the audit log.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	return "security violation: " + e.Reason
}

// UserVisibleError carries a message the student or instructor can act on,
// such as a missing workflow file or a wrong submission file set.
type UserVisibleError struct {
	Message string
}

func (e *UserVisibleError) Error() string {
	return e.Message
}

// ErrDuplicateFeedback indicates a second report arrived for a submission
// that already has one. Grading data is write-once.
var ErrDuplicateFeedback = errors.New("feedback already recorded for this submission")
