package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS strategy_records (
	name            TEXT PRIMARY KEY,
	holdings        TEXT NOT NULL DEFAULT '{}',
	entries         TEXT NOT NULL DEFAULT '{}',
	cash            REAL NOT NULL DEFAULT 0,
	total           INTEGER NOT NULL DEFAULT 0,
	successful      INTEGER NOT NULL DEFAULT 0,
	neutral         INTEGER NOT NULL DEFAULT 0,
	failed          INTEGER NOT NULL DEFAULT 0,
	portfolio_value REAL NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS performance_scores (
	strategy   TEXT PRIMARY KEY,
	points     REAL NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS rank_coefficients (
	strategy    TEXT PRIMARY KEY,
	"rank"      INTEGER NOT NULL,
	points      REAL NOT NULL,
	coefficient REAL NOT NULL
);`

// SQLiteStrategyStore is the embedded store driver: one file, no
// server, suitable for single-node runs and tests. Writes are
// serialized through a single connection to keep the driver free of
// busy errors under the tracker's fan-out.
type SQLiteStrategyStore struct {
	db *sql.DB
}

func NewSQLiteStrategyStore(path string) (*SQLiteStrategyStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStrategyStore{db: db}, nil
}

var _ domrepo.StrategyStore = (*SQLiteStrategyStore)(nil)

func (s *SQLiteStrategyStore) GetStrategyRecord(ctx context.Context, name string) (*models.StrategyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, holdings, entries, cash, total, successful, neutral, failed, portfolio_value, updated_at
		FROM strategy_records WHERE name = ?`, name)
	return scanStrategyRecord(row)
}

func (s *SQLiteStrategyStore) UpsertStrategyRecord(ctx context.Context, rec *models.StrategyRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("strategy record missing name")
	}
	holdings, err := json.Marshal(rec.Holdings)
	if err != nil {
		return fmt.Errorf("encode holdings %s: %w", rec.Name, err)
	}
	entries, err := json.Marshal(rec.Entries)
	if err != nil {
		return fmt.Errorf("encode entries %s: %w", rec.Name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategy_records (name, holdings, entries, cash, total, successful, neutral, failed, portfolio_value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holdings = excluded.holdings,
			entries = excluded.entries,
			cash = excluded.cash,
			total = excluded.total,
			successful = excluded.successful,
			neutral = excluded.neutral,
			failed = excluded.failed,
			portfolio_value = excluded.portfolio_value,
			updated_at = excluded.updated_at`,
		rec.Name, string(holdings), string(entries), rec.Cash,
		rec.Counters.Total, rec.Counters.Successful, rec.Counters.Neutral, rec.Counters.Failed,
		rec.PortfolioValue, rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert strategy %s: %w", rec.Name, err)
	}
	return nil
}

func (s *SQLiteStrategyStore) ListStrategyRecords(ctx context.Context) ([]*models.StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, holdings, entries, cash, total, successful, neutral, failed, portfolio_value, updated_at
		FROM strategy_records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var out []*models.StrategyRecord
	for rows.Next() {
		rec, err := scanStrategyRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStrategyStore) GetScore(ctx context.Context, strategy string) (*models.PerformanceScore, error) {
	var (
		score models.PerformanceScore
		ts    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT strategy, points, updated_at FROM performance_scores WHERE strategy = ?`, strategy).
		Scan(&score.Strategy, &score.Points, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get score %s: %w", strategy, err)
	}
	score.UpdatedAt = time.Unix(ts, 0).UTC()
	return &score, nil
}

func (s *SQLiteStrategyStore) UpsertScore(ctx context.Context, score *models.PerformanceScore) error {
	if score == nil || score.Strategy == "" {
		return fmt.Errorf("score missing strategy name")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_scores (strategy, points, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(strategy) DO UPDATE SET
			points = excluded.points,
			updated_at = excluded.updated_at`,
		score.Strategy, score.Points, score.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", score.Strategy, err)
	}
	return nil
}

func (s *SQLiteStrategyStore) ListScores(ctx context.Context) ([]*models.PerformanceScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, points, updated_at FROM performance_scores ORDER BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []*models.PerformanceScore
	for rows.Next() {
		var (
			score models.PerformanceScore
			ts    int64
		)
		if err := rows.Scan(&score.Strategy, &score.Points, &ts); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		score.UpdatedAt = time.Unix(ts, 0).UTC()
		out = append(out, &score)
	}
	return out, rows.Err()
}

func (s *SQLiteStrategyStore) GetRankCoefficients(ctx context.Context) ([]models.RankAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, "rank", points, coefficient FROM rank_coefficients ORDER BY "rank"`)
	if err != nil {
		return nil, fmt.Errorf("get ranks: %w", err)
	}
	defer rows.Close()

	var out []models.RankAssignment
	for rows.Next() {
		var ra models.RankAssignment
		if err := rows.Scan(&ra.Strategy, &ra.Rank, &ra.Points, &ra.Coefficient); err != nil {
			return nil, fmt.Errorf("scan rank: %w", err)
		}
		out = append(out, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.ErrNotFound
	}
	return out, nil
}

func (s *SQLiteStrategyStore) UpsertRankCoefficients(ctx context.Context, ranks []models.RankAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ranks tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rank_coefficients`); err != nil {
		return fmt.Errorf("clear ranks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rank_coefficients (strategy, "rank", points, coefficient) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ranks insert: %w", err)
	}
	defer stmt.Close()

	for _, ra := range ranks {
		if _, err := stmt.ExecContext(ctx, ra.Strategy, ra.Rank, ra.Points, ra.Coefficient); err != nil {
			return fmt.Errorf("insert rank %s: %w", ra.Strategy, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStrategyStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStrategyStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategyRecord(row scanner) (*models.StrategyRecord, error) {
	var (
		rec               models.StrategyRecord
		holdings, entries string
		ts                int64
	)
	err := row.Scan(&rec.Name, &holdings, &entries, &rec.Cash,
		&rec.Counters.Total, &rec.Counters.Successful, &rec.Counters.Neutral, &rec.Counters.Failed,
		&rec.PortfolioValue, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan strategy record: %w", err)
	}
	if err := json.Unmarshal([]byte(holdings), &rec.Holdings); err != nil {
		return nil, fmt.Errorf("decode holdings %s: %w", rec.Name, err)
	}
	if err := json.Unmarshal([]byte(entries), &rec.Entries); err != nil {
		return nil, fmt.Errorf("decode entries %s: %w", rec.Name, err)
	}
	rec.UpdatedAt = time.Unix(ts, 0).UTC()
	return &rec, nil
}
