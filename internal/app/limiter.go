package app

import "context"

// ResponseCounter reports how many finalized responses a student owns.
type ResponseCounter interface {
	CountResponses(ctx context.Context, studentID string) (int, error)
}

// TryLimiter gates new attempts by counting finalized responses.
// Drafts never count towards the limit.
type TryLimiter struct {
	counter  ResponseCounter
	maxTries int
}

func NewTryLimiter(counter ResponseCounter, maxTries int) *TryLimiter {
	return &TryLimiter{counter: counter, maxTries: maxTries}
}

// AttemptsUsed returns the number of finalized responses for the student.
func (l *TryLimiter) AttemptsUsed(ctx context.Context, studentID string) (int, error) {
	return l.counter.CountResponses(ctx, studentID)
}

// CanStart reports whether the student may start another attempt.
func (l *TryLimiter) CanStart(ctx context.Context, studentID string) (bool, error) {
	used, err := l.counter.CountResponses(ctx, studentID)
	if err != nil {
		return false, err
	}
	return used < l.maxTries, nil
}
