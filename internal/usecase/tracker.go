package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	applogger "FinRank/pkg/logger"
)

// Resolution outcomes. Exactly one is counted per resolved position.
const (
	outcomeSuccessful = "successful"
	outcomeNeutral    = "neutral"
	outcomeFailed     = "failed"
)

// Score update modes.
const (
	ModeAdditive       = "additive"
	ModeMultiplicative = "multiplicative"
	ModeBalanced       = "balanced"
)

// TrackerConfig carries the score rule and the two-tier outcome
// thresholds. Thresholds are fractions of entry price, all positive;
// the loss side is applied with negated sign.
type TrackerConfig struct {
	Mode              string
	Increment         float64
	Multiplier        float64
	Balance           float64
	InitialScore      float64
	ProfitThreshold1  float64
	ProfitThreshold2  float64
	ProfitMultiplier1 float64
	ProfitMultiplier2 float64
	LossThreshold1    float64
	LossThreshold2    float64
	LossMultiplier1   float64
	LossMultiplier2   float64
	SimInitialCash    float64
	SimTradeFraction  float64
	Retry             RetryPolicy
}

// PerformanceTracker maintains one simulated book per strategy and the
// strategy's performance points. Each strategy trades its own votes
// against a fraction of its own cash; resolved positions move points
// through the configured time-delta rule and bump exactly one outcome
// counter plus the total.
//
// All updates to one strategy are serialized behind a per-strategy
// mutex held across the whole read-modify-write. Different strategies
// proceed in parallel.
type PerformanceTracker struct {
	store   domrepo.StrategyStore
	metrics domrepo.Metrics
	l       *applogger.Logger
	cfg     TrackerConfig

	locks sync.Map // strategy name -> *sync.Mutex
}

func NewPerformanceTracker(store domrepo.StrategyStore, metrics domrepo.Metrics, l *applogger.Logger, cfg TrackerConfig) *PerformanceTracker {
	if cfg.Mode == "" {
		cfg.Mode = ModeAdditive
	}
	if cfg.Increment <= 0 {
		cfg.Increment = 1
	}
	if cfg.SimInitialCash <= 0 {
		cfg.SimInitialCash = 100_000
	}
	if cfg.SimTradeFraction <= 0 || cfg.SimTradeFraction > 1 {
		cfg.SimTradeFraction = 0.1
	}
	return &PerformanceTracker{
		store:   store,
		metrics: metrics,
		l:       l,
		cfg:     cfg,
	}
}

func (t *PerformanceTracker) lock(strategy string) *sync.Mutex {
	mu, _ := t.locks.LoadOrStore(strategy, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Seed ensures every ensemble member has a record and a score before
// the first cycle. Existing records are left untouched.
func (t *PerformanceTracker) Seed(ctx context.Context, names []string) error {
	for _, name := range names {
		mu := t.lock(name)
		mu.Lock()
		err := t.seedOne(ctx, name)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

func (t *PerformanceTracker) seedOne(ctx context.Context, name string) error {
	_, err := t.store.GetStrategyRecord(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	now := time.Now().UTC()
	rec := t.freshRecord(name, now)
	if err := t.upsertRecord(ctx, rec); err != nil {
		return err
	}
	return t.upsertScore(ctx, &models.PerformanceScore{
		Strategy:  name,
		Points:    t.cfg.InitialScore,
		UpdatedAt: now,
	})
}

func (t *PerformanceTracker) freshRecord(name string, now time.Time) *models.StrategyRecord {
	return &models.StrategyRecord{
		Name:           name,
		Holdings:       map[string]float64{},
		Entries:        map[string]float64{},
		Cash:           t.cfg.SimInitialCash,
		PortfolioValue: t.cfg.SimInitialCash,
		UpdatedAt:      now,
	}
}

// Track applies one cycle's votes and prices to the simulated books.
// Per strategy, under its lock: open positions whose price crossed a
// profit or loss tier resolve first, then the strategy's votes are
// applied (an opposing vote closes and resolves, a vote with no open
// position opens one, Hold never trades). Strategies without votes are
// still swept so a tier crossing resolves even in a silent cycle.
func (t *PerformanceTracker) Track(ctx context.Context, votes []models.Vote, prices map[string]float64) error {
	byStrategy := make(map[string][]models.Vote)
	for _, v := range votes {
		byStrategy[v.Strategy] = append(byStrategy[v.Strategy], v)
	}

	names := t.strategiesToVisit(ctx, byStrategy)
	if len(names) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		resolved int64
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			n, err := t.trackStrategy(ctx, name, byStrategy[name], prices)
			atomic.AddInt64(&resolved, int64(n))
			if err != nil {
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				if t.l != nil {
					t.l.Error("strategy book update failed",
						applogger.String("strategy", name),
						applogger.Error(err))
				}
			}
		}(name)
	}
	wg.Wait()

	if t.l != nil {
		t.l.Debug("tracker pass done",
			applogger.Int("strategies", len(names)),
			applogger.Int("resolved", int(atomic.LoadInt64(&resolved))))
	}
	if firstErr != nil {
		return fmt.Errorf("tracker: %d of %d strategy updates failed: %w", failed, len(names), firstErr)
	}
	return nil
}

// strategiesToVisit unions voting strategies with stored ones that hold
// open positions. The store listing is advisory; each visit re-reads
// under the strategy lock.
func (t *PerformanceTracker) strategiesToVisit(ctx context.Context, byStrategy map[string][]models.Vote) []string {
	seen := make(map[string]struct{}, len(byStrategy))
	for name := range byStrategy {
		seen[name] = struct{}{}
	}
	recs, err := t.store.ListStrategyRecords(ctx)
	if err != nil {
		if t.l != nil {
			t.l.Warn("listing strategy records failed, sweeping voters only", applogger.Error(err))
		}
	} else {
		for _, rec := range recs {
			if len(rec.Holdings) > 0 {
				seen[rec.Name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *PerformanceTracker) trackStrategy(ctx context.Context, name string, votes []models.Vote, prices map[string]float64) (int, error) {
	mu := t.lock(name)
	mu.Lock()
	defer mu.Unlock()

	rec, score, err := t.loadOrCreate(ctx, name)
	if err != nil {
		return 0, err
	}

	resolved := t.sweep(rec, score, prices)

	sort.Slice(votes, func(i, j int) bool { return votes[i].Instrument < votes[j].Instrument })
	for _, v := range votes {
		price, ok := prices[v.Instrument]
		if !ok || price <= 0 {
			continue
		}
		if t.applyVote(rec, score, v, price) {
			resolved++
		}
	}

	t.markToMarket(rec, prices)
	now := time.Now().UTC()
	rec.UpdatedAt = now

	if err := t.upsertRecord(ctx, rec); err != nil {
		return resolved, err
	}
	if resolved > 0 {
		score.UpdatedAt = now
		if err := t.upsertScore(ctx, score); err != nil {
			return resolved, err
		}
		t.metrics.RecordScore(name, score.Points)
	}
	return resolved, nil
}

// Resolve applies an externally reported trade outcome to the named
// strategy: classify, move points, count. A matching open simulated
// position is closed at the reported exit so the sweep cannot resolve
// it again. Returns the outcome label and the strategy's new points.
func (t *PerformanceTracker) Resolve(ctx context.Context, o models.TradeOutcome) (string, float64, error) {
	if o.Strategy == "" {
		return "", 0, fmt.Errorf("trade outcome missing strategy")
	}
	if o.EntryPrice <= 0 || o.ExitPrice <= 0 {
		return "", 0, fmt.Errorf("trade outcome for %s has non-positive prices", o.Strategy)
	}

	mu := t.lock(o.Strategy)
	mu.Lock()
	defer mu.Unlock()

	rec, score, err := t.loadOrCreate(ctx, o.Strategy)
	if err != nil {
		return "", 0, err
	}

	r := (o.ExitPrice - o.EntryPrice) / o.EntryPrice
	if o.Side == models.SideSell {
		r = -r
	}
	outcome := t.applyResolution(rec, score, o.Instrument, r)

	if qty := rec.Holdings[o.Instrument]; qty != 0 {
		t.closePosition(rec, o.Instrument, qty, o.ExitPrice)
	}

	now := time.Now().UTC()
	rec.UpdatedAt = now
	score.UpdatedAt = now
	if err := t.upsertRecord(ctx, rec); err != nil {
		return outcome, score.Points, err
	}
	if err := t.upsertScore(ctx, score); err != nil {
		return outcome, score.Points, err
	}
	t.metrics.RecordScore(o.Strategy, score.Points)
	return outcome, score.Points, nil
}

// sweep resolves every open position whose current price has crossed a
// profit or loss tier. Positions inside the neutral band stay open.
func (t *PerformanceTracker) sweep(rec *models.StrategyRecord, score *models.PerformanceScore, prices map[string]float64) int {
	if len(rec.Holdings) == 0 {
		return 0
	}
	insts := make([]string, 0, len(rec.Holdings))
	for inst := range rec.Holdings {
		insts = append(insts, inst)
	}
	sort.Strings(insts)

	resolved := 0
	for _, inst := range insts {
		qty := rec.Holdings[inst]
		price, ok := prices[inst]
		if qty == 0 || !ok || price <= 0 {
			continue
		}
		r := signedReturn(rec.Entries[inst], price, qty)
		if r < t.cfg.ProfitThreshold1 && r > -t.cfg.LossThreshold1 {
			continue // still inside the neutral band
		}
		t.applyResolution(rec, score, inst, r)
		t.closePosition(rec, inst, qty, price)
		resolved++
	}
	return resolved
}

// applyVote mutates the book for one vote. Returns true when the vote
// resolved an open position.
func (t *PerformanceTracker) applyVote(rec *models.StrategyRecord, score *models.PerformanceScore, v models.Vote, price float64) bool {
	if v.Signal == models.Hold {
		return false
	}
	qty := rec.Holdings[v.Instrument]

	switch {
	case qty > 0 && v.Signal == models.Sell, qty < 0 && v.Signal == models.Buy:
		// Opposing vote closes and resolves. Re-entry, if the signal
		// persists, happens on a later cycle.
		r := signedReturn(rec.Entries[v.Instrument], price, qty)
		t.applyResolution(rec, score, v.Instrument, r)
		t.closePosition(rec, v.Instrument, qty, price)
		return true

	case qty == 0:
		t.openPosition(rec, v, price)
	}
	// Same-direction vote on an open position: no pyramiding.
	return false
}

func (t *PerformanceTracker) openPosition(rec *models.StrategyRecord, v models.Vote, price float64) {
	value := rec.Cash * t.cfg.SimTradeFraction
	if value <= 0 || price <= 0 {
		return
	}
	qty := value / price
	if rec.Holdings == nil {
		rec.Holdings = map[string]float64{}
	}
	if rec.Entries == nil {
		rec.Entries = map[string]float64{}
	}
	if v.Signal == models.Buy {
		rec.Cash -= value
		rec.Holdings[v.Instrument] = qty
	} else {
		rec.Cash += value
		rec.Holdings[v.Instrument] = -qty
	}
	rec.Entries[v.Instrument] = price
	if t.l != nil {
		t.l.Debug("simulated position opened",
			applogger.String("strategy", rec.Name),
			applogger.String("instrument", v.Instrument),
			applogger.String("signal", v.Signal.String()),
			applogger.Float64("price", price))
	}
}

func (t *PerformanceTracker) closePosition(rec *models.StrategyRecord, inst string, qty, price float64) {
	if qty > 0 {
		rec.Cash += qty * price
	} else {
		rec.Cash -= -qty * price
	}
	delete(rec.Holdings, inst)
	delete(rec.Entries, inst)
}

// applyResolution classifies the realized return, moves the strategy's
// points and bumps exactly one outcome counter plus the total.
func (t *PerformanceTracker) applyResolution(rec *models.StrategyRecord, score *models.PerformanceScore, inst string, r float64) string {
	outcome, tier := t.classify(r)
	prev := score.Points
	score.Points = t.nextPoints(prev, outcome, tier)

	rec.Counters.Total++
	switch outcome {
	case outcomeSuccessful:
		rec.Counters.Successful++
	case outcomeFailed:
		rec.Counters.Failed++
	default:
		rec.Counters.Neutral++
	}
	t.metrics.RecordResolution(outcome)

	if t.l != nil {
		t.l.Debug("position resolved",
			applogger.String("strategy", rec.Name),
			applogger.String("instrument", inst),
			applogger.String("outcome", outcome),
			applogger.Float64("return", r),
			applogger.Float64("points", score.Points))
	}
	return outcome
}

// classify maps a signed realized return onto the two-tier outcome
// bands. Boundary equality is inclusive at each tier's far edge.
func (t *PerformanceTracker) classify(r float64) (string, float64) {
	switch {
	case r >= t.cfg.ProfitThreshold2:
		return outcomeSuccessful, t.cfg.ProfitMultiplier2
	case r >= t.cfg.ProfitThreshold1:
		return outcomeSuccessful, t.cfg.ProfitMultiplier1
	case r <= -t.cfg.LossThreshold2:
		return outcomeFailed, t.cfg.LossMultiplier2
	case r <= -t.cfg.LossThreshold1:
		return outcomeFailed, t.cfg.LossMultiplier1
	default:
		return outcomeNeutral, 0
	}
}

// nextPoints applies the configured time-delta rule. Neutral outcomes
// leave points untouched in every mode.
func (t *PerformanceTracker) nextPoints(prev float64, outcome string, tier float64) float64 {
	if outcome == outcomeNeutral {
		return prev
	}
	sign := 1.0
	if outcome == outcomeFailed {
		sign = -1.0
	}
	switch t.cfg.Mode {
	case ModeMultiplicative:
		factor := t.cfg.Multiplier * tier
		if factor <= 0 {
			return prev
		}
		if sign > 0 {
			return prev * factor
		}
		return prev / factor
	case ModeBalanced:
		return (1-t.cfg.Balance)*prev + t.cfg.Balance*sign*t.cfg.Increment*tier
	default:
		return prev + sign*t.cfg.Increment*tier
	}
}

func (t *PerformanceTracker) markToMarket(rec *models.StrategyRecord, prices map[string]float64) {
	value := rec.Cash
	for inst, qty := range rec.Holdings {
		if price, ok := prices[inst]; ok && price > 0 {
			value += qty * price
		} else if entry := rec.Entries[inst]; entry > 0 {
			value += qty * entry
		}
	}
	rec.PortfolioValue = value
}

func (t *PerformanceTracker) loadOrCreate(ctx context.Context, name string) (*models.StrategyRecord, *models.PerformanceScore, error) {
	now := time.Now().UTC()

	rec, err := t.store.GetStrategyRecord(ctx, name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		rec = t.freshRecord(name, now)
	case err != nil:
		return nil, nil, fmt.Errorf("load record %s: %w", name, err)
	default:
		if rec.Holdings == nil {
			rec.Holdings = map[string]float64{}
		}
		if rec.Entries == nil {
			rec.Entries = map[string]float64{}
		}
	}

	score, err := t.store.GetScore(ctx, name)
	switch {
	case errors.Is(err, models.ErrNotFound):
		score = &models.PerformanceScore{Strategy: name, Points: t.cfg.InitialScore, UpdatedAt: now}
	case err != nil:
		return nil, nil, fmt.Errorf("load score %s: %w", name, err)
	}
	return rec, score, nil
}

// signedReturn is the realized price-change ratio with favorable moves
// positive for the held side. Unknown entries resolve neutral.
func signedReturn(entry, exit, qty float64) float64 {
	if entry <= 0 {
		return 0
	}
	r := (exit - entry) / entry
	if qty < 0 {
		return -r
	}
	return r
}

func (t *PerformanceTracker) upsertRecord(ctx context.Context, rec *models.StrategyRecord) error {
	err := withRetry(ctx, t.cfg.Retry, t.metrics, "upsert_record", func(ctx context.Context) error {
		return t.store.UpsertStrategyRecord(ctx, rec)
	})
	if err != nil {
		return &models.PersistenceError{Op: "upsert_record", Err: err}
	}
	return nil
}

func (t *PerformanceTracker) upsertScore(ctx context.Context, score *models.PerformanceScore) error {
	err := withRetry(ctx, t.cfg.Retry, t.metrics, "upsert_score", func(ctx context.Context) error {
		return t.store.UpsertScore(ctx, score)
	})
	if err != nil {
		return &models.PersistenceError{Op: "upsert_score", Err: err}
	}
	return nil
}
