package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contest-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

type draftSessionRow struct {
	bun.BaseModel `bun:"table:draft_sessions"`

	StudentID string    `bun:"student_id,pk"`
	Deadline  time.Time `bun:"deadline"`
}

type draftAnswerRow struct {
	bun.BaseModel `bun:"table:draft_answers"`

	StudentID  string `bun:"student_id,pk"`
	QuestionID int64  `bun:"question_id,pk"`
	ChoiceID   *int64 `bun:"choice_id"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses"`

	ID          int64     `bun:"id,pk,autoincrement"`
	StudentID   string    `bun:"student_id"`
	SubmittedAt time.Time `bun:"submitted_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers"`

	ResponseID int64  `bun:"response_id,pk"`
	QuestionID int64  `bun:"question_id,pk"`
	ChoiceID   *int64 `bun:"choice_id"`
}

// ContestRepository is the Postgres implementation of app.ContestRepository.
// Every mutation runs in a transaction that locks the student's draft row
// FOR UPDATE, so at most one finalize can consume a draft and no update can
// land on a consumed draft.
type ContestRepository struct {
	db *bun.DB
}

func NewContestRepository(db *bun.DB) *ContestRepository {
	return &ContestRepository{db: db}
}

func (r *ContestRepository) CountResponses(ctx context.Context, studentID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*responseRow)(nil)).
		Where("student_id = ?", studentID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

func (r *ContestRepository) GetDraft(ctx context.Context, studentID string) (domain.DraftSession, error) {
	var session draftSessionRow
	err := r.db.NewSelect().
		Model(&session).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DraftSession{}, domain.ErrDraftNotFound
	}
	if err != nil {
		return domain.DraftSession{}, fmt.Errorf("get draft: %w", err)
	}

	var answerRows []draftAnswerRow
	if err := r.db.NewSelect().
		Model(&answerRows).
		Where("student_id = ?", studentID).
		Order("question_id ASC").
		Scan(ctx); err != nil {
		return domain.DraftSession{}, fmt.Errorf("get draft answers: %w", err)
	}

	draft := domain.DraftSession{StudentID: session.StudentID, Deadline: session.Deadline}
	for _, row := range answerRows {
		draft.Answers = append(draft.Answers, domain.DraftAnswer{
			QuestionID: row.QuestionID,
			ChoiceID:   row.ChoiceID,
		})
	}
	return draft, nil
}

func (r *ContestRepository) CreateDraft(ctx context.Context, draft domain.DraftSession) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		session := draftSessionRow{StudentID: draft.StudentID, Deadline: draft.Deadline}
		res, err := tx.NewInsert().
			Model(&session).
			On("CONFLICT (student_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}
		if affected == 0 {
			return domain.ErrConflict
		}

		answerRows := make([]draftAnswerRow, 0, len(draft.Answers))
		for _, a := range draft.Answers {
			answerRows = append(answerRows, draftAnswerRow{
				StudentID:  draft.StudentID,
				QuestionID: a.QuestionID,
				ChoiceID:   a.ChoiceID,
			})
		}
		if len(answerRows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&answerRows).Exec(ctx); err != nil {
			return fmt.Errorf("insert draft answers: %w", err)
		}
		return nil
	})
	return mapConflict(err)
}

func (r *ContestRepository) UpdateDraftAnswer(ctx context.Context, studentID string, questionID int64, choiceID *int64) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDraft(ctx, tx, studentID); err != nil {
			return err
		}
		res, err := tx.NewUpdate().
			Model((*draftAnswerRow)(nil)).
			Set("choice_id = ?", choiceID).
			Where("student_id = ?", studentID).
			Where("question_id = ?", questionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update draft answer: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update draft answer: %w", err)
		}
		if affected == 0 {
			return domain.ErrQuestionNotFound
		}
		return nil
	})
	return mapConflict(err)
}

func (r *ContestRepository) DeleteDraft(ctx context.Context, studentID string) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*draftAnswerRow)(nil)).
			Where("student_id = ?", studentID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete draft answers: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*draftSessionRow)(nil)).
			Where("student_id = ?", studentID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete draft: %w", err)
		}
		return nil
	})
	return mapConflict(err)
}

// CommitResponse inserts the response with its answers and deletes the draft
// in one transaction; a crash leaves either both or neither.
func (r *ContestRepository) CommitResponse(ctx context.Context, studentID string, resp domain.Response) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDraft(ctx, tx, studentID); err != nil {
			return err
		}

		row := responseRow{StudentID: resp.StudentID, SubmittedAt: resp.SubmittedAt}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert response: %w", err)
		}

		answerRows := make([]answerRow, 0, len(resp.Answers))
		for _, a := range resp.Answers {
			answerRows = append(answerRows, answerRow{
				ResponseID: row.ID,
				QuestionID: a.QuestionID,
				ChoiceID:   a.ChoiceID,
			})
		}
		if len(answerRows) > 0 {
			if _, err := tx.NewInsert().Model(&answerRows).Exec(ctx); err != nil {
				return fmt.Errorf("insert answers: %w", err)
			}
		}

		if _, err := tx.NewDelete().
			Model((*draftAnswerRow)(nil)).
			Where("student_id = ?", studentID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete draft answers: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*draftSessionRow)(nil)).
			Where("student_id = ?", studentID).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete draft: %w", err)
		}
		return nil
	})
	return mapConflict(err)
}

func (r *ContestRepository) ListResponses(ctx context.Context, studentID string) ([]domain.Response, error) {
	var respRows []responseRow
	if err := r.db.NewSelect().
		Model(&respRows).
		Where("student_id = ?", studentID).
		Order("submitted_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	if len(respRows) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(respRows))
	for _, row := range respRows {
		ids = append(ids, row.ID)
	}
	var answerRows []answerRow
	if err := r.db.NewSelect().
		Model(&answerRows).
		Where("response_id IN (?)", bun.In(ids)).
		Order("response_id ASC", "question_id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	byResponse := make(map[int64][]domain.Answer, len(respRows))
	for _, row := range answerRows {
		byResponse[row.ResponseID] = append(byResponse[row.ResponseID], domain.Answer{
			QuestionID: row.QuestionID,
			ChoiceID:   row.ChoiceID,
		})
	}

	responses := make([]domain.Response, 0, len(respRows))
	for _, row := range respRows {
		responses = append(responses, domain.Response{
			ID:          row.ID,
			StudentID:   row.StudentID,
			SubmittedAt: row.SubmittedAt,
			Answers:     byResponse[row.ID],
		})
	}
	return responses, nil
}

// lockDraft takes the row-level exclusive lock that serializes all mutations
// of one student's draft. Missing row means the draft was already consumed.
func lockDraft(ctx context.Context, tx bun.Tx, studentID string) error {
	var session draftSessionRow
	err := tx.NewSelect().
		Model(&session).
		Where("student_id = ?", studentID).
		For("UPDATE").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDraftNotFound
	}
	if err != nil {
		return fmt.Errorf("lock draft: %w", err)
	}
	return nil
}

// mapConflict converts Postgres contention errors into the domain conflict
// sentinel so the service can retry them once.
func mapConflict(err error) error {
	if err == nil {
		return err
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock not available
			return domain.ErrConflict
		}
	}
	return err
}
