package postgres

import (
	"context"
	"fmt"

	"contest-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// BankLoader loads the question pool from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT q.id, q.content, q.category, c.id, c.content, c.correct
		 FROM questions q
		 JOIN choices c ON c.question_id = q.id
		 ORDER BY q.id, c.id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var (
		questions []domain.Question
		current   *domain.Question
	)
	for rows.Next() {
		var (
			questionID int64
			content    string
			category   string
			choice     domain.Choice
		)
		if err := rows.Scan(&questionID, &content, &category, &choice.ID, &choice.Content, &choice.Correct); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if current == nil || current.ID != questionID {
			questions = append(questions, domain.Question{
				ID:       questionID,
				Content:  content,
				Category: domain.Category(category),
			})
			current = &questions[len(questions)-1]
		}
		current.Choices = append(current.Choices, choice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}
