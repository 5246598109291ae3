package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
)

const (
	strategyKeyPrefix = "finrank:strategy:"
	scoreKeyPrefix    = "finrank:score:"
	strategySetKey    = "finrank:strategies"
	ranksKey          = "finrank:ranks"
)

// RedisStrategyStore keeps strategy books, scores and rank assignments
// in Redis as whole-record JSON values. A record write is a single SET,
// so readers always see a complete record.
type RedisStrategyStore struct {
	client *redis.Client
}

func NewRedisStrategyStore(client *redis.Client) *RedisStrategyStore {
	return &RedisStrategyStore{client: client}
}

var _ domrepo.StrategyStore = (*RedisStrategyStore)(nil)

func (s *RedisStrategyStore) GetStrategyRecord(ctx context.Context, name string) (*models.StrategyRecord, error) {
	data, err := s.client.Get(ctx, strategyKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy %s: %w", name, err)
	}
	var rec models.StrategyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode strategy %s: %w", name, err)
	}
	return &rec, nil
}

func (s *RedisStrategyStore) UpsertStrategyRecord(ctx context.Context, rec *models.StrategyRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("strategy record missing name")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode strategy %s: %w", rec.Name, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, strategyKeyPrefix+rec.Name, data, 0)
	pipe.SAdd(ctx, strategySetKey, rec.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert strategy %s: %w", rec.Name, err)
	}
	return nil
}

func (s *RedisStrategyStore) ListStrategyRecords(ctx context.Context) ([]*models.StrategyRecord, error) {
	names, err := s.client.SMembers(ctx, strategySetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = strategyKeyPrefix + name
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget strategies: %w", err)
	}
	out := make([]*models.StrategyRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // evicted between SMEMBERS and MGET
		}
		var rec models.StrategyRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("decode strategy %s: %w", names[i], err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisStrategyStore) GetScore(ctx context.Context, strategy string) (*models.PerformanceScore, error) {
	data, err := s.client.Get(ctx, scoreKeyPrefix+strategy).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get score %s: %w", strategy, err)
	}
	var score models.PerformanceScore
	if err := json.Unmarshal(data, &score); err != nil {
		return nil, fmt.Errorf("decode score %s: %w", strategy, err)
	}
	return &score, nil
}

func (s *RedisStrategyStore) UpsertScore(ctx context.Context, score *models.PerformanceScore) error {
	if score == nil || score.Strategy == "" {
		return fmt.Errorf("score missing strategy name")
	}
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score %s: %w", score.Strategy, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, scoreKeyPrefix+score.Strategy, data, 0)
	pipe.SAdd(ctx, strategySetKey, score.Strategy)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert score %s: %w", score.Strategy, err)
	}
	return nil
}

func (s *RedisStrategyStore) ListScores(ctx context.Context) ([]*models.PerformanceScore, error) {
	names, err := s.client.SMembers(ctx, strategySetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = scoreKeyPrefix + name
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget scores: %w", err)
	}
	out := make([]*models.PerformanceScore, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // record exists but score not written yet
		}
		var score models.PerformanceScore
		if err := json.Unmarshal([]byte(str), &score); err != nil {
			return nil, fmt.Errorf("decode score %s: %w", names[i], err)
		}
		out = append(out, &score)
	}
	return out, nil
}

func (s *RedisStrategyStore) GetRankCoefficients(ctx context.Context) ([]models.RankAssignment, error) {
	data, err := s.client.Get(ctx, ranksKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get ranks: %w", err)
	}
	var ranks []models.RankAssignment
	if err := json.Unmarshal(data, &ranks); err != nil {
		return nil, fmt.Errorf("decode ranks: %w", err)
	}
	return ranks, nil
}

func (s *RedisStrategyStore) UpsertRankCoefficients(ctx context.Context, ranks []models.RankAssignment) error {
	data, err := json.Marshal(ranks)
	if err != nil {
		return fmt.Errorf("encode ranks: %w", err)
	}
	if err := s.client.Set(ctx, ranksKey, data, 0).Err(); err != nil {
		return fmt.Errorf("upsert ranks: %w", err)
	}
	return nil
}

func (s *RedisStrategyStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStrategyStore) Close() error {
	return s.client.Close()
}
