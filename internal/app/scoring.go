package app

import "contest-service/internal/domain"

// ScoringEngine computes response scores from per-category weights.
type ScoringEngine struct {
	weights map[domain.Category]float64
}

func NewScoringEngine(weights map[domain.Category]float64) *ScoringEngine {
	return &ScoringEngine{weights: weights}
}

// Score sums weight[category] for every answer whose chosen choice is marked
// correct. Unanswered and incorrect answers contribute zero; there is no
// negative marking.
func (e *ScoringEngine) Score(bank domain.Bank, resp domain.Response) float64 {
	var total float64
	for _, a := range resp.Answers {
		if a.ChoiceID == nil {
			continue
		}
		question, ok := bank.Question(a.QuestionID)
		if !ok {
			continue
		}
		choice, ok := question.Choice(*a.ChoiceID)
		if !ok || !choice.Correct {
			continue
		}
		total += e.weights[question.Category]
	}
	return total
}

// BestScore returns the maximum score over the given responses, or 0 when
// there are none.
func (e *ScoringEngine) BestScore(bank domain.Bank, responses []domain.Response) float64 {
	best := 0.0
	for _, r := range responses {
		if s := e.Score(bank, r); s > best {
			best = s
		}
	}
	return best
}

// MaxScore is the score of an all-correct attempt under the given quotas.
func (e *ScoringEngine) MaxScore(quotas map[domain.Category]int) float64 {
	var total float64
	for category, quota := range quotas {
		total += e.weights[category] * float64(quota)
	}
	return total
}
