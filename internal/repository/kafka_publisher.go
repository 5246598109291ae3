package repository

import (
	"context"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	pkgkafka "FinRank/pkg/kafka"
)

// KafkaIntentPublisher emits trade intents to the execution topic,
// keyed by instrument so one instrument's intents stay ordered.
type KafkaIntentPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaIntentPublisher(producer *pkgkafka.Producer, topic string) *KafkaIntentPublisher {
	return &KafkaIntentPublisher{producer: producer, topic: topic}
}

var _ domrepo.IntentPublisher = (*KafkaIntentPublisher)(nil)

func (p *KafkaIntentPublisher) Publish(ctx context.Context, intent *models.TradeIntent) error {
	return p.producer.Publish(ctx, p.topic, []byte(intent.Instrument), intentPayload(intent))
}

func (p *KafkaIntentPublisher) PublishBatch(ctx context.Context, intents []*models.TradeIntent) error {
	if len(intents) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(intents))
	for i, intent := range intents {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(intent.Instrument),
			Value: intentPayload(intent),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaIntentPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func intentPayload(intent *models.TradeIntent) map[string]interface{} {
	return map[string]interface{}{
		"id":         intent.ID,
		"instrument": intent.Instrument,
		"side":       string(intent.Side),
		"quantity":   intent.Quantity,
		"score":      intent.Score,
		"reason":     string(intent.Reason),
		"created_at": intent.CreatedAt.Unix(),
	}
}

// KafkaRankingPublisher emits one ranking snapshot per cycle for
// downstream dashboards.
type KafkaRankingPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaRankingPublisher(producer *pkgkafka.Producer, topic string) *KafkaRankingPublisher {
	return &KafkaRankingPublisher{producer: producer, topic: topic}
}

var _ domrepo.RankingPublisher = (*KafkaRankingPublisher)(nil)

func (p *KafkaRankingPublisher) PublishRanking(ctx context.Context, cycleID string, at time.Time, ranks []models.RankAssignment) error {
	rows := make([]map[string]interface{}, len(ranks))
	for i, ra := range ranks {
		rows[i] = map[string]interface{}{
			"strategy":    ra.Strategy,
			"rank":        ra.Rank,
			"points":      ra.Points,
			"coefficient": ra.Coefficient,
		}
	}
	return p.producer.Publish(ctx, p.topic, []byte(cycleID), map[string]interface{}{
		"cycle_id": cycleID,
		"at":       at.Unix(),
		"rankings": rows,
	})
}
