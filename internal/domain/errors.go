package domain

import "errors"

var (
	// ErrMalformedInput is returned when an identifier has an invalid shape.
	ErrMalformedInput = errors.New("malformed input")
	// ErrQuestionNotFound is returned when a well-formed question id does not
	// match any question permitted for the draft.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound is returned when a well-formed choice id does not
	// belong to the targeted question.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrDraftNotFound is returned when a student has no live draft.
	ErrDraftNotFound = errors.New("no active draft")
	// ErrDraftExpired is returned when a draft is mutated past its deadline.
	ErrDraftExpired = errors.New("draft deadline passed")
	// ErrTryLimitExceeded is returned when a student has no attempts left.
	ErrTryLimitExceeded = errors.New("try limit exceeded")
	// ErrContestClosed is returned outside the configured opening window.
	ErrContestClosed = errors.New("contest not open")
	// ErrNotStudent is returned when the actor is not a resolved student.
	ErrNotStudent = errors.New("not a student")
	// ErrInsufficientPopulation indicates the question bank cannot satisfy
	// the configured quotas. It is a content defect, not a per-request error.
	ErrInsufficientPopulation = errors.New("question bank cannot satisfy quotas")
	// ErrResponseNotFound is returned when a review index is out of range.
	ErrResponseNotFound = errors.New("response not found")
	// ErrConflict indicates the serialization guard lost a race over a
	// student's draft. Benign contention; the service retries it once.
	ErrConflict = errors.New("concurrent draft modification")
)
