package app

import (
	"context"
	"time"

	"contest-service/internal/domain"
)

// ResponseCommitter persists a finalized response and deletes its source
// draft as one atomic unit. ErrDraftNotFound means the draft was already
// consumed, ErrConflict means the serialization guard lost a race.
type ResponseCommitter interface {
	CommitResponse(ctx context.Context, studentID string, resp domain.Response) error
}

// FinalizationService converts a draft into an immutable, persisted response.
type FinalizationService struct {
	committer ResponseCommitter
}

func NewFinalizationService(committer ResponseCommitter) *FinalizationService {
	return &FinalizationService{committer: committer}
}

// Finalize freezes the draft into a response stamped with submitAt and
// commits it. Explicit submission passes the current instant; expiry-driven
// finalization passes the draft's deadline so the recorded timestamp stays
// independent of when the expiry was detected.
func (s *FinalizationService) Finalize(ctx context.Context, draft domain.DraftSession, submitAt time.Time) (domain.Response, error) {
	resp := BuildResponse(draft, submitAt)
	if err := s.committer.CommitResponse(ctx, draft.StudentID, resp); err != nil {
		return domain.Response{}, err
	}
	return resp, nil
}

// BuildResponse assembles the immutable response value from a draft without
// touching storage. One answer is emitted per draft answer, chosen or not.
func BuildResponse(draft domain.DraftSession, submitAt time.Time) domain.Response {
	answers := make([]domain.Answer, 0, len(draft.Answers))
	for _, a := range draft.Answers {
		answers = append(answers, domain.Answer{
			QuestionID: a.QuestionID,
			ChoiceID:   a.ChoiceID,
		})
	}
	return domain.Response{
		StudentID:   draft.StudentID,
		SubmittedAt: submitAt,
		Answers:     answers,
	}
}
