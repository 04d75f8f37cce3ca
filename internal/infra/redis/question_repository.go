package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-battle-service/internal/domain"
)

// QuestionLoader fetches a floor's pooled quiz items from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, floor int) ([]domain.Question, error)
}

// QuestionRepository caches each floor's question pool in Redis as a JSON
// blob (key battle:floor:{n}:questions) and falls back to the loader on a
// cache miss. The full item is cached, correct index included, because
// the engine scores server-side and never ships the index to clients.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionsForFloor(ctx context.Context, floor int) ([]domain.Question, error) {
	key := r.poolKey(floor)

	if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(cached, &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}

	result, err, _ := r.sf.Do(strconv.Itoa(floor), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(cached, &questions); err == nil && len(questions) > 0 {
				return questions, nil
			}
		}

		questions, err := r.loader.LoadQuestions(ctx, floor)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			// best-effort: a write failure only costs the next caller a reload
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) poolKey(floor int) string {
	return "battle:floor:" + strconv.Itoa(floor) + ":questions"
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
