package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"contest-service/internal/domain"
)

// QuestionSelector draws quota-satisfying random question sets from a bank.
type QuestionSelector struct {
	quotas map[domain.Category]int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewQuestionSelector builds a selector with its own seeded random source.
func NewQuestionSelector(quotas map[domain.Category]int) *QuestionSelector {
	return NewQuestionSelectorWithRand(quotas, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewQuestionSelectorWithRand allows deterministic draws in tests.
func NewQuestionSelectorWithRand(quotas map[domain.Category]int, rnd *rand.Rand) *QuestionSelector {
	return &QuestionSelector{quotas: quotas, rnd: rnd}
}

// Draw samples, for each category independently, quota distinct questions
// uniformly at random without replacement. A category with fewer questions
// than its quota fails the whole draw with ErrInsufficientPopulation.
func (s *QuestionSelector) Draw(bank domain.Bank) ([]domain.Question, error) {
	var drawn []domain.Question
	for _, category := range domain.Categories {
		quota := s.quotas[category]
		if quota == 0 {
			continue
		}
		pool := bank.Category(category)
		if len(pool) < quota {
			return nil, fmt.Errorf("%w: category %q has %d questions, quota is %d",
				domain.ErrInsufficientPopulation, category, len(pool), quota)
		}
		for _, i := range s.perm(len(pool))[:quota] {
			drawn = append(drawn, pool[i])
		}
	}
	return drawn, nil
}

func (s *QuestionSelector) perm(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Perm(n)
}
