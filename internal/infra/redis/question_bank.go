package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"contest-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const bankKey = "contest:bank"

// BankLoader fetches the question pool from a backing store (e.g. Postgres).
type BankLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionBank caches the question pool in Redis as one JSON value with TTL
// and falls back to a loader on cache miss.
type QuestionBank struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader BankLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Load(ctx context.Context) (domain.Bank, error) {
	if bank, ok := b.fromCache(ctx); ok {
		return bank, nil
	}

	result, err, _ := b.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := b.fromCache(ctx); ok {
			return bank, nil
		}

		questions, err := b.loader.LoadQuestions(ctx)
		if err != nil {
			return domain.Bank{}, err
		}

		if data, err := json.Marshal(questions); err == nil {
			// best-effort cache fill
			_ = b.client.Set(ctx, bankKey, data, b.ttlWithJitter()).Err()
		}
		return domain.NewBank(questions), nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

func (b *QuestionBank) fromCache(ctx context.Context) (domain.Bank, bool) {
	raw, err := b.client.Get(ctx, bankKey).Bytes()
	if err != nil {
		return domain.Bank{}, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return domain.Bank{}, false
	}
	return domain.NewBank(questions), true
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
