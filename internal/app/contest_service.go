package app

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"contest-service/internal/domain"
)

// ContestRepository abstracts draft and response storage. Implementations
// must serialize mutations per student: at most one finalize can succeed per
// draft, and no update may apply to a draft a concurrent finalize consumed.
type ContestRepository interface {
	ResponseCounter
	ResponseCommitter

	// GetDraft returns the student's live draft, or ErrDraftNotFound.
	GetDraft(ctx context.Context, studentID string) (domain.DraftSession, error)
	// CreateDraft persists a new draft with its answer set as one unit.
	// Returns ErrConflict when the student already has a draft.
	CreateDraft(ctx context.Context, draft domain.DraftSession) error
	// UpdateDraftAnswer overwrites one draft answer's choice atomically.
	UpdateDraftAnswer(ctx context.Context, studentID string, questionID int64, choiceID *int64) error
	// DeleteDraft discards the student's draft. Absent draft is not an error.
	DeleteDraft(ctx context.Context, studentID string) error
	// ListResponses returns the student's finalized responses ordered by
	// submission time ascending.
	ListResponses(ctx context.Context, studentID string) ([]domain.Response, error)
}

// QuestionBank provides the read-only question pool.
type QuestionBank interface {
	Load(ctx context.Context) (domain.Bank, error)
}

// Settings carries the deployment configuration of one contest.
type Settings struct {
	MaxTries         int
	DeadlineDuration time.Duration
	Quotas           map[domain.Category]int
	Weights          map[domain.Category]float64
	// OpeningStart/OpeningEnd bound when new attempts may begin.
	// A nil bound is unbounded on that side.
	OpeningStart *time.Time
	OpeningEnd   *time.Time
}

// Status summarizes a student's standing for the home view.
type Status string

const (
	StatusAnonymous      Status = ""
	StatusNotTaking      Status = "not taking"
	StatusTaking         Status = "taking contest"
	StatusDeadlinePassed Status = "deadline passed"
)

// InfoSummary is the personal summary shown on the info view.
type InfoSummary struct {
	BestScore    float64
	MaxScore     float64
	AttemptsUsed int
	AttemptsLeft int
}

// DraftQuestion pairs a drawn question with the currently chosen choice.
type DraftQuestion struct {
	Question domain.Question
	ChoiceID *int64
}

// DraftDetail is the active draft as presented to the student.
type DraftDetail struct {
	Deadline  time.Time
	Questions []DraftQuestion
}

// ReviewAnswer is one answer of a past response, resolved against the bank.
type ReviewAnswer struct {
	Question domain.Question
	ChoiceID *int64
	Correct  bool
}

// ReviewDetail is the full answer review of one finalized response.
type ReviewDetail struct {
	SubmittedAt time.Time
	Score       float64
	Answers     []ReviewAnswer
}

// ContestService orchestrates selection, the draft state machine,
// finalization and scoring into the externally visible operations.
type ContestService struct {
	repo      ContestRepository
	bank      QuestionBank
	settings  Settings
	selector  *QuestionSelector
	limiter   *TryLimiter
	finalizer *FinalizationService
	scoring   *ScoringEngine
	now       func() time.Time
}

func NewContestService(repo ContestRepository, bank QuestionBank, settings Settings) *ContestService {
	return NewContestServiceWithClock(repo, bank, settings, time.Now, nil)
}

// NewContestServiceWithClock allows deterministic time and draws in tests.
func NewContestServiceWithClock(repo ContestRepository, bank QuestionBank, settings Settings, now func() time.Time, rnd *rand.Rand) *ContestService {
	selector := NewQuestionSelector(settings.Quotas)
	if rnd != nil {
		selector = NewQuestionSelectorWithRand(settings.Quotas, rnd)
	}
	return &ContestService{
		repo:      repo,
		bank:      bank,
		settings:  settings,
		selector:  selector,
		limiter:   NewTryLimiter(repo, settings.MaxTries),
		finalizer: NewFinalizationService(repo),
		scoring:   NewScoringEngine(settings.Weights),
		now:       now,
	}
}

// Home reports the student's contest status. Anonymous callers get an empty
// status. An expired draft is finalized by this call and reported as
// "deadline passed" exactly once; subsequent calls report "not taking".
func (s *ContestService) Home(ctx context.Context, studentID string) (Status, error) {
	status, _, err := s.Status(ctx, studentID)
	return status, err
}

// Status is Home plus the live draft's deadline when one exists.
func (s *ContestService) Status(ctx context.Context, studentID string) (Status, time.Time, error) {
	if studentID == "" {
		return StatusAnonymous, time.Time{}, nil
	}
	draft, state, err := s.ensureCurrent(ctx, studentID)
	if err != nil {
		return StatusNotTaking, time.Time{}, err
	}
	switch state {
	case draftLive:
		return StatusTaking, draft.Deadline, nil
	case draftJustFinalized:
		return StatusDeadlinePassed, time.Time{}, nil
	default:
		return StatusNotTaking, time.Time{}, nil
	}
}

// Info returns the student's best score and remaining attempts.
func (s *ContestService) Info(ctx context.Context, studentID string) (InfoSummary, error) {
	if studentID == "" {
		return InfoSummary{}, domain.ErrNotStudent
	}
	responses, err := s.repo.ListResponses(ctx, studentID)
	if err != nil {
		return InfoSummary{}, err
	}
	bank, err := s.bank.Load(ctx)
	if err != nil {
		return InfoSummary{}, err
	}
	used := len(responses)
	left := s.settings.MaxTries - used
	if left < 0 {
		left = 0
	}
	return InfoSummary{
		BestScore:    s.scoring.BestScore(bank, responses),
		MaxScore:     s.scoring.MaxScore(s.settings.Quotas),
		AttemptsUsed: used,
		AttemptsLeft: left,
	}, nil
}

// StartOrGet returns the student's live draft, creating one when none
// exists. Start is idempotent: a live draft is returned as-is. Outside the
// opening window the operation is refused regardless of draft state.
func (s *ContestService) StartOrGet(ctx context.Context, studentID string) (DraftDetail, error) {
	if studentID == "" {
		return DraftDetail{}, domain.ErrNotStudent
	}
	if !s.openNow() {
		return DraftDetail{}, domain.ErrContestClosed
	}

	draft, state, err := s.ensureCurrent(ctx, studentID)
	if err != nil {
		return DraftDetail{}, err
	}
	switch state {
	case draftLive:
		return s.draftDetail(ctx, draft)
	case draftDiscarded:
		return DraftDetail{}, domain.ErrTryLimitExceeded
	}

	ok, err := s.limiter.CanStart(ctx, studentID)
	if err != nil {
		return DraftDetail{}, err
	}
	if !ok {
		return DraftDetail{}, domain.ErrTryLimitExceeded
	}

	bank, err := s.bank.Load(ctx)
	if err != nil {
		return DraftDetail{}, err
	}
	questions, err := s.selector.Draw(bank)
	if err != nil {
		return DraftDetail{}, err
	}
	answers := make([]domain.DraftAnswer, 0, len(questions))
	for _, q := range questions {
		answers = append(answers, domain.DraftAnswer{QuestionID: q.ID})
	}
	draft = domain.DraftSession{
		StudentID: studentID,
		Deadline:  s.now().Add(s.settings.DeadlineDuration),
		Answers:   answers,
	}
	if err := s.repo.CreateDraft(ctx, draft); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent start won the race; serve its draft instead.
			existing, getErr := s.repo.GetDraft(ctx, studentID)
			if getErr != nil {
				return DraftDetail{}, getErr
			}
			return s.draftDetail(ctx, existing)
		}
		return DraftDetail{}, err
	}
	return s.draftDetail(ctx, draft)
}

// UpdateAnswer overwrites one draft answer's choice. A nil choiceID clears
// the selection. No other draft answer is touched.
func (s *ContestService) UpdateAnswer(ctx context.Context, studentID string, questionID int64, choiceID *int64) error {
	if studentID == "" {
		return domain.ErrNotStudent
	}
	draft, state, err := s.ensureCurrent(ctx, studentID)
	if err != nil {
		return err
	}
	switch state {
	case draftAbsent:
		return domain.ErrDraftNotFound
	case draftJustFinalized:
		return domain.ErrDraftExpired
	case draftDiscarded:
		return domain.ErrTryLimitExceeded
	}
	if !draft.HasQuestion(questionID) {
		return domain.ErrQuestionNotFound
	}
	if choiceID != nil {
		bank, err := s.bank.Load(ctx)
		if err != nil {
			return err
		}
		question, ok := bank.Question(questionID)
		if !ok {
			return domain.ErrQuestionNotFound
		}
		if _, ok := question.Choice(*choiceID); !ok {
			return domain.ErrChoiceNotFound
		}
	}
	return s.retryConflict(func() error {
		return s.repo.UpdateDraftAnswer(ctx, studentID, questionID, choiceID)
	})
}

// Submit explicitly finalizes the student's live draft, stamped "now".
func (s *ContestService) Submit(ctx context.Context, studentID string) (domain.Response, error) {
	if studentID == "" {
		return domain.Response{}, domain.ErrNotStudent
	}
	draft, state, err := s.ensureCurrent(ctx, studentID)
	if err != nil {
		return domain.Response{}, err
	}
	switch state {
	case draftLive:
		var resp domain.Response
		err := s.retryConflict(func() error {
			var ferr error
			resp, ferr = s.finalizer.Finalize(ctx, draft, s.now())
			return ferr
		})
		return resp, err
	case draftDiscarded:
		return domain.Response{}, domain.ErrTryLimitExceeded
	default:
		return domain.Response{}, domain.ErrDraftNotFound
	}
}

// Review returns the full answer review of the student's index-th response,
// 0-based and ordered by submission time ascending.
func (s *ContestService) Review(ctx context.Context, studentID string, index int) (ReviewDetail, error) {
	if studentID == "" {
		return ReviewDetail{}, domain.ErrNotStudent
	}
	responses, err := s.repo.ListResponses(ctx, studentID)
	if err != nil {
		return ReviewDetail{}, err
	}
	if index < 0 || index >= len(responses) {
		return ReviewDetail{}, domain.ErrResponseNotFound
	}
	resp := responses[index]

	bank, err := s.bank.Load(ctx)
	if err != nil {
		return ReviewDetail{}, err
	}
	answers := make([]ReviewAnswer, 0, len(resp.Answers))
	for _, a := range resp.Answers {
		question, _ := bank.Question(a.QuestionID)
		correct := false
		if a.ChoiceID != nil {
			if choice, ok := question.Choice(*a.ChoiceID); ok {
				correct = choice.Correct
			}
		}
		answers = append(answers, ReviewAnswer{
			Question: question,
			ChoiceID: a.ChoiceID,
			Correct:  correct,
		})
	}
	return ReviewDetail{
		SubmittedAt: resp.SubmittedAt,
		Score:       s.scoring.Score(bank, resp),
		Answers:     answers,
	}, nil
}

type draftState int

const (
	draftAbsent draftState = iota
	draftLive
	draftJustFinalized
	draftDiscarded
)

// ensureCurrent is the pull-model expiry step run at the top of every
// draft-touching operation. It discards a draft that survived past the try
// limit, finalizes an expired draft at its deadline instant, and reports
// what it found. No scheduler or background sweep exists anywhere else.
func (s *ContestService) ensureCurrent(ctx context.Context, studentID string) (domain.DraftSession, draftState, error) {
	draft, err := s.repo.GetDraft(ctx, studentID)
	if errors.Is(err, domain.ErrDraftNotFound) {
		return domain.DraftSession{}, draftAbsent, nil
	}
	if err != nil {
		return domain.DraftSession{}, draftAbsent, err
	}

	ok, err := s.limiter.CanStart(ctx, studentID)
	if err != nil {
		return domain.DraftSession{}, draftAbsent, err
	}
	if !ok {
		// The limit was reached through a side channel while this draft
		// existed. The draft is void: discard it without finalizing.
		if err := s.retryConflict(func() error {
			return s.repo.DeleteDraft(ctx, studentID)
		}); err != nil {
			return domain.DraftSession{}, draftAbsent, err
		}
		return domain.DraftSession{}, draftDiscarded, nil
	}

	if draft.Expired(s.now()) {
		err := s.retryConflict(func() error {
			_, ferr := s.finalizer.Finalize(ctx, draft, draft.Deadline)
			return ferr
		})
		if errors.Is(err, domain.ErrDraftNotFound) {
			// A concurrent access finalized it first; the draft is gone
			// either way.
			return domain.DraftSession{}, draftAbsent, nil
		}
		if err != nil {
			return domain.DraftSession{}, draftAbsent, err
		}
		return draft, draftJustFinalized, nil
	}
	return draft, draftLive, nil
}

func (s *ContestService) draftDetail(ctx context.Context, draft domain.DraftSession) (DraftDetail, error) {
	bank, err := s.bank.Load(ctx)
	if err != nil {
		return DraftDetail{}, err
	}
	questions := make([]DraftQuestion, 0, len(draft.Answers))
	for _, a := range draft.Answers {
		question, _ := bank.Question(a.QuestionID)
		questions = append(questions, DraftQuestion{
			Question: question,
			ChoiceID: a.ChoiceID,
		})
	}
	return DraftDetail{Deadline: draft.Deadline, Questions: questions}, nil
}

func (s *ContestService) openNow() bool {
	now := s.now()
	if start := s.settings.OpeningStart; start != nil && now.Before(*start) {
		return false
	}
	if end := s.settings.OpeningEnd; end != nil && now.After(*end) {
		return false
	}
	return true
}

// retryConflict retries fn once when the serialization guard loses a race.
func (s *ContestService) retryConflict(fn func() error) error {
	err := fn()
	if errors.Is(err, domain.ErrConflict) {
		err = fn()
	}
	return err
}
