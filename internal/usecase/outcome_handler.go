package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	pkgkafka "FinRank/pkg/kafka"
	applogger "FinRank/pkg/logger"
	"FinRank/pkg/queue"
)

// OutcomeMessage is the wire schema of an externally reported trade
// resolution. ClosedAt is unix seconds; zero means "now".
type OutcomeMessage struct {
	Strategy   string  `json:"strategy"`
	Instrument string  `json:"instrument"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Quantity   float64 `json:"quantity"`
	Side       string  `json:"side"`
	ClosedAt   int64   `json:"closed_at,omitempty"`
}

// OutcomeHandler feeds external trade outcomes into the performance
// tracker and mirrors each resolution into analytic history. The same
// core serves both intake backends through thin adapters below.
type OutcomeHandler struct {
	tracker *PerformanceTracker
	history domrepo.HistoryStore // optional
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewOutcomeHandler(tracker *PerformanceTracker, history domrepo.HistoryStore, metrics domrepo.Metrics, l *applogger.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		tracker: tracker,
		history: history,
		metrics: metrics,
		l:       l,
	}
}

// Apply validates and resolves one outcome event.
func (h *OutcomeHandler) Apply(ctx context.Context, m *OutcomeMessage) error {
	if m.Strategy == "" || m.Instrument == "" {
		return fmt.Errorf("outcome event missing strategy or instrument")
	}
	side := models.SideBuy
	if m.Side == string(models.SideSell) {
		side = models.SideSell
	}
	closedAt := time.Now().UTC()
	if m.ClosedAt > 0 {
		closedAt = time.Unix(m.ClosedAt, 0).UTC()
	}
	o := models.TradeOutcome{
		Strategy:   m.Strategy,
		Instrument: m.Instrument,
		EntryPrice: m.EntryPrice,
		ExitPrice:  m.ExitPrice,
		Quantity:   m.Quantity,
		Side:       side,
		ClosedAt:   closedAt,
	}

	outcome, points, err := h.tracker.Resolve(ctx, o)
	if err != nil {
		return fmt.Errorf("resolve outcome for %s: %w", m.Strategy, err)
	}
	if h.l != nil {
		h.l.Info("external outcome resolved",
			applogger.String("strategy", m.Strategy),
			applogger.String("instrument", m.Instrument),
			applogger.String("outcome", outcome),
			applogger.Float64("points", points))
	}

	if h.history != nil {
		if err := h.history.StoreOutcome(ctx, &o, outcome, points); err != nil && h.l != nil {
			h.l.Error("outcome history write failed",
				applogger.String("strategy", m.Strategy),
				applogger.Error(err))
		}
	}
	return nil
}

// KafkaOutcomeHandler adapts the core to the Kafka consumer contract.
type KafkaOutcomeHandler struct {
	topic string
	core  *OutcomeHandler
}

func NewKafkaOutcomeHandler(topic string, core *OutcomeHandler) *KafkaOutcomeHandler {
	return &KafkaOutcomeHandler{topic: topic, core: core}
}

func (h *KafkaOutcomeHandler) Topic() string { return h.topic }

func (h *KafkaOutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var m OutcomeMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode outcome event: %w", err)
	}
	return h.core.Apply(ctx, &m)
}

var _ pkgkafka.MessageHandler = (*KafkaOutcomeHandler)(nil)

// OutcomeJob adapts the core to the Redis queue contract.
type OutcomeJob struct {
	core *OutcomeHandler
}

func NewOutcomeJob(core *OutcomeHandler) *OutcomeJob {
	return &OutcomeJob{core: core}
}

// Name returns the unique identifier of the job.
func (j *OutcomeJob) Name() string { return "trade_outcome_job" }

// Type returns the type of message that the job handles.
func (j *OutcomeJob) Type() string { return "trade_outcome" }

// Handle processes the job with the given payload.
func (j *OutcomeJob) Handle(ctx context.Context, payload interface{}) error {
	m, err := queue.ParsePayload[OutcomeMessage](payload)
	if err != nil {
		return fmt.Errorf("parse outcome payload: %w", err)
	}
	return j.core.Apply(ctx, m)
}

var _ queue.Job = (*OutcomeJob)(nil)
