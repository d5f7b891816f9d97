package memory

import (
	"context"
	"sort"
	"sync"

	"contest-service/internal/domain"
)

// ContestRepository is an in-memory implementation of app.ContestRepository.
// A single mutex serializes all draft mutations, which satisfies the
// per-student serialization guard trivially: conflicts cannot occur.
type ContestRepository struct {
	mu        sync.Mutex
	drafts    map[string]domain.DraftSession
	responses map[string][]domain.Response
	nextID    int64
}

func NewContestRepository() *ContestRepository {
	return &ContestRepository{
		drafts:    make(map[string]domain.DraftSession),
		responses: make(map[string][]domain.Response),
	}
}

func (r *ContestRepository) CountResponses(_ context.Context, studentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses[studentID]), nil
}

func (r *ContestRepository) GetDraft(_ context.Context, studentID string) (domain.DraftSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[studentID]
	if !ok {
		return domain.DraftSession{}, domain.ErrDraftNotFound
	}
	return copyDraft(draft), nil
}

func (r *ContestRepository) CreateDraft(_ context.Context, draft domain.DraftSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[draft.StudentID]; ok {
		return domain.ErrConflict
	}
	r.drafts[draft.StudentID] = copyDraft(draft)
	return nil
}

func (r *ContestRepository) UpdateDraftAnswer(_ context.Context, studentID string, questionID int64, choiceID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[studentID]
	if !ok {
		return domain.ErrDraftNotFound
	}
	for i := range draft.Answers {
		if draft.Answers[i].QuestionID == questionID {
			draft.Answers[i].ChoiceID = copyChoiceID(choiceID)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (r *ContestRepository) DeleteDraft(_ context.Context, studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, studentID)
	return nil
}

// CommitResponse stores the response and deletes the draft under one lock,
// so both happen or neither does.
func (r *ContestRepository) CommitResponse(_ context.Context, studentID string, resp domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[studentID]; !ok {
		return domain.ErrDraftNotFound
	}
	r.nextID++
	stored := copyResponse(resp)
	stored.ID = r.nextID
	r.responses[studentID] = append(r.responses[studentID], stored)
	delete(r.drafts, studentID)
	return nil
}

func (r *ContestRepository) ListResponses(_ context.Context, studentID string) ([]domain.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.responses[studentID]
	out := make([]domain.Response, 0, len(stored))
	for _, resp := range stored {
		out = append(out, copyResponse(resp))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func copyDraft(d domain.DraftSession) domain.DraftSession {
	answers := make([]domain.DraftAnswer, len(d.Answers))
	for i, a := range d.Answers {
		answers[i] = domain.DraftAnswer{QuestionID: a.QuestionID, ChoiceID: copyChoiceID(a.ChoiceID)}
	}
	d.Answers = answers
	return d
}

func copyResponse(r domain.Response) domain.Response {
	answers := make([]domain.Answer, len(r.Answers))
	for i, a := range r.Answers {
		answers[i] = domain.Answer{QuestionID: a.QuestionID, ChoiceID: copyChoiceID(a.ChoiceID)}
	}
	r.Answers = answers
	return r
}

func copyChoiceID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
