package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	pkgch "FinRank/pkg/clickhouse"
	applogger "FinRank/pkg/logger"
)

var historySchema = []string{
	`CREATE TABLE IF NOT EXISTS intents (
		cycle_id   String,
		intent_id  String,
		created_at DateTime,
		instrument String,
		side       String,
		quantity   Float64,
		score      Float64,
		reason     String
	) ENGINE = MergeTree() ORDER BY (created_at, instrument)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		strategy    String,
		instrument  String,
		entry_price Float64,
		exit_price  Float64,
		quantity    Float64,
		side        String,
		outcome     String,
		points      Float64,
		closed_at   DateTime
	) ENGINE = MergeTree() ORDER BY (closed_at, strategy)`,
	`CREATE TABLE IF NOT EXISTS rankings (
		cycle_id    String,
		at          DateTime,
		strategy    String,
		rank        UInt32,
		points      Float64,
		coefficient Float64
	) ENGINE = MergeTree() ORDER BY (at, rank)`,
}

// CHHistoryStore is the append-only analytic history in ClickHouse:
// every intent, resolution and ranking snapshot the engine produces.
type CHHistoryStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHHistoryStore(client *pkgch.Client) *CHHistoryStore {
	return &CHHistoryStore{client: client, db: client.DB()}
}

// SetLogger injects a structured logger.
func (s *CHHistoryStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

func (s *CHHistoryStore) Init(ctx context.Context) error {
	if err := s.client.Health(ctx); err != nil {
		return fmt.Errorf("clickhouse health: %w", err)
	}
	return s.client.InitSchema(ctx, historySchema)
}

func (s *CHHistoryStore) StoreIntents(ctx context.Context, cycleID string, intents []*models.TradeIntent) error {
	if len(intents) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(intents); start += chunkSize {
		end := start + chunkSize
		if end > len(intents) {
			end = len(intents)
		}
		chunk := intents[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*8)
		for _, intent := range chunk {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				cycleID,
				intent.ID,
				intent.CreatedAt,
				intent.Instrument,
				string(intent.Side),
				intent.Quantity,
				intent.Score,
				string(intent.Reason),
			)
		}
		q := fmt.Sprintf("INSERT INTO intents (cycle_id, intent_id, created_at, instrument, side, quantity, score, reason) VALUES %s",
			strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert intents: %w", err)
		}
	}
	if s.l != nil {
		s.l.Debug("intent history stored",
			applogger.String("cycle_id", cycleID),
			applogger.Int("rows", len(intents)))
	}
	return nil
}

func (s *CHHistoryStore) StoreOutcome(ctx context.Context, o *models.TradeOutcome, outcome string, points float64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO outcomes (strategy, instrument, entry_price, exit_price, quantity, side, outcome, points, closed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.Strategy,
		o.Instrument,
		o.EntryPrice,
		o.ExitPrice,
		o.Quantity,
		string(o.Side),
		outcome,
		points,
		o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

func (s *CHHistoryStore) StoreRankings(ctx context.Context, cycleID string, at time.Time, ranks []models.RankAssignment) error {
	if len(ranks) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(ranks); start += chunkSize {
		end := start + chunkSize
		if end > len(ranks) {
			end = len(ranks)
		}
		chunk := ranks[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*6)
		for _, ra := range chunk {
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, cycleID, at, ra.Strategy, uint32(ra.Rank), ra.Points, ra.Coefficient)
		}
		q := fmt.Sprintf("INSERT INTO rankings (cycle_id, at, strategy, rank, points, coefficient) VALUES %s",
			strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert rankings: %w", err)
		}
	}
	return nil
}

func (s *CHHistoryStore) RecentIntents(ctx context.Context, limit int) ([]*models.TradeIntent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT intent_id, created_at, instrument, side, quantity, score, reason
		FROM intents
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent intents: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TradeIntent, 0, limit)
	for rows.Next() {
		var (
			intent       models.TradeIntent
			side, reason string
		)
		if err := rows.Scan(&intent.ID, &intent.CreatedAt, &intent.Instrument, &side, &intent.Quantity, &intent.Score, &reason); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intent.Side = models.Side(side)
		intent.Reason = models.IntentReason(reason)
		out = append(out, &intent)
	}
	return out, rows.Err()
}

func (s *CHHistoryStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHHistoryStore) Close() error {
	return nil // client lifecycle owned by DI
}
