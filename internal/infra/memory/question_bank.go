package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"contest-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// BankLoader fetches the question pool from a backing store (e.g. Postgres).
type BankLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionBank caches the indexed bank with TTL to avoid repeated DB hits.
type QuestionBank struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    domain.Bank
	hasCache  bool
	expiresAt time.Time
}

func NewQuestionBank(loader BankLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Load(ctx context.Context) (domain.Bank, error) {
	now := b.clock()

	b.mu.RLock()
	if b.hasCache && b.expiresAt.After(now) {
		bank := b.cached
		b.mu.RUnlock()
		return bank, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do("bank", func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if b.hasCache && b.expiresAt.After(now) {
			bank := b.cached
			b.mu.RUnlock()
			return bank, nil
		}
		b.mu.RUnlock()

		questions, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return domain.Bank{}, err
		}
		bank := domain.NewBank(questions)

		b.mu.Lock()
		b.cached = bank
		b.hasCache = true
		b.expiresAt = now.Add(b.ttlWithJitter())
		b.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

// StaticBankLoader serves a fixed question list (useful for tests/demos).
type StaticBankLoader struct {
	questions []domain.Question
}

func NewStaticBankLoader(questions []domain.Question) *StaticBankLoader {
	return &StaticBankLoader{questions: questions}
}

func (l *StaticBankLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return l.questions, nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
