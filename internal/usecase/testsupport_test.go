package usecase

import (
	"context"
	"sync"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/strategy"
)

// memStore is an in-memory StrategyStore for tests. Optional fail
// hooks let persistence-failure paths be driven deterministically.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.StrategyRecord
	scores  map[string]*models.PerformanceScore
	ranks   []models.RankAssignment

	failUpsertRecord error
	failUpsertScore  error
	failUpsertRanks  error
	failList         error

	upsertRankCalls int
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*models.StrategyRecord{},
		scores:  map[string]*models.PerformanceScore{},
	}
}

func (s *memStore) GetStrategyRecord(_ context.Context, name string) (*models.StrategyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memStore) UpsertStrategyRecord(_ context.Context, rec *models.StrategyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsertRecord != nil {
		return s.failUpsertRecord
	}
	s.records[rec.Name] = cloneRecord(rec)
	return nil
}

func (s *memStore) ListStrategyRecords(_ context.Context) ([]*models.StrategyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	out := make([]*models.StrategyRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (s *memStore) GetScore(_ context.Context, name string) (*models.PerformanceScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scores[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (s *memStore) UpsertScore(_ context.Context, score *models.PerformanceScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsertScore != nil {
		return s.failUpsertScore
	}
	cp := *score
	s.scores[score.Strategy] = &cp
	return nil
}

func (s *memStore) ListScores(_ context.Context) ([]*models.PerformanceScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PerformanceScore, 0, len(s.scores))
	for _, sc := range s.scores {
		cp := *sc
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) GetRankCoefficients(_ context.Context) ([]models.RankAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ranks == nil {
		return nil, models.ErrNotFound
	}
	out := make([]models.RankAssignment, len(s.ranks))
	copy(out, s.ranks)
	return out, nil
}

func (s *memStore) UpsertRankCoefficients(_ context.Context, ranks []models.RankAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertRankCalls++
	if s.failUpsertRanks != nil {
		return s.failUpsertRanks
	}
	s.ranks = make([]models.RankAssignment, len(ranks))
	copy(s.ranks, ranks)
	return nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func cloneRecord(rec *models.StrategyRecord) *models.StrategyRecord {
	cp := *rec
	cp.Holdings = make(map[string]float64, len(rec.Holdings))
	for k, v := range rec.Holdings {
		cp.Holdings[k] = v
	}
	cp.Entries = make(map[string]float64, len(rec.Entries))
	for k, v := range rec.Entries {
		cp.Entries[k] = v
	}
	return &cp
}

// nopMetrics counts calls so tests can assert on instrumentation
// without a registry.
type nopMetrics struct {
	mu          sync.Mutex
	votes       int
	abstentions int
	failures    int
	retries     map[string]int
	resolutions map[string]int
}

func newNopMetrics() *nopMetrics {
	return &nopMetrics{retries: map[string]int{}, resolutions: map[string]int{}}
}

func (m *nopMetrics) RecordVote(string) {
	m.mu.Lock()
	m.votes++
	m.mu.Unlock()
}

func (m *nopMetrics) RecordAbstention() {
	m.mu.Lock()
	m.abstentions++
	m.mu.Unlock()
}

func (m *nopMetrics) RecordEvaluationFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *nopMetrics) RecordCycle(string, float64) {}
func (m *nopMetrics) RecordCandidates(int)        {}
func (m *nopMetrics) RecordIntent(string)         {}
func (m *nopMetrics) RecordRejection(string)      {}

func (m *nopMetrics) RecordStoreRetry(op string) {
	m.mu.Lock()
	m.retries[op]++
	m.mu.Unlock()
}

func (m *nopMetrics) RecordScore(string, float64) {}

func (m *nopMetrics) RecordResolution(outcome string) {
	m.mu.Lock()
	m.resolutions[outcome]++
	m.mu.Unlock()
}

func (m *nopMetrics) RecordError(string)              {}
func (m *nopMetrics) RecordLatency(string, float64)   {}
func (m *nopMetrics) RecordLastPrice(string, float64) {}

func (m *nopMetrics) retryCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[op]
}

// stubMarket serves canned history and quotes. Closing unblock (when
// set) releases History calls.
type stubMarket struct {
	mu      sync.Mutex
	history map[string]models.Series
	quotes  map[string]float64
	errs    map[string]error
	block   chan struct{}
}

func newStubMarket() *stubMarket {
	return &stubMarket{
		history: map[string]models.Series{},
		quotes:  map[string]float64{},
		errs:    map[string]error{},
	}
}

var _ domrepo.MarketData = (*stubMarket)(nil)

func (m *stubMarket) History(ctx context.Context, inst string, _ int, _ domrepo.Timeframe) (models.Series, error) {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[inst]; ok {
		return nil, err
	}
	series, ok := m.history[inst]
	if !ok {
		return nil, models.ErrDataUnavailable
	}
	return series, nil
}

func (m *stubMarket) Quote(_ context.Context, inst string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[inst]; ok {
		return 0, err
	}
	p, ok := m.quotes[inst]
	if !ok {
		return 0, models.ErrDataUnavailable
	}
	return p, nil
}

// stubBroker is a scripted BrokerExecutor.
type stubBroker struct {
	mu        sync.Mutex
	cash      float64
	positions []models.Position
	submitted []*models.TradeIntent
	submitErr error
}

func (b *stubBroker) SubmitOrder(_ context.Context, intent *models.TradeIntent) (*models.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	b.submitted = append(b.submitted, intent)
	return &models.Fill{IntentID: intent.ID, Instrument: intent.Instrument, Side: intent.Side, Quantity: intent.Quantity}, nil
}

func (b *stubBroker) GetAccount(context.Context) (*models.AccountState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &models.AccountState{Cash: b.cash, BuyingPower: b.cash}, nil
}

func (b *stubBroker) GetPositions(context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Position, len(b.positions))
	copy(out, b.positions)
	return out, nil
}

// stubStrategy is a scripted ensemble member.
type stubStrategy struct {
	name     string
	lookback int
	eval     func(models.Series) (models.Signal, bool)
}

func (s stubStrategy) Name() string  { return s.name }
func (s stubStrategy) Lookback() int { return s.lookback }
func (s stubStrategy) Evaluate(series models.Series) (models.Signal, bool) {
	return s.eval(series)
}

var _ strategy.Strategy = stubStrategy{}

// flatSeries builds n bars at a constant price.
func flatSeries(n int, price float64) models.Series {
	out := make(models.Series, n)
	for i := range out {
		out[i] = models.Candle{Open: price, High: price, Low: price, Close: price, Volume: 1}
	}
	return out
}

func votesFor(name string, sig models.Signal, insts ...string) []models.Vote {
	out := make([]models.Vote, 0, len(insts))
	for _, inst := range insts {
		out = append(out, models.Vote{Strategy: name, Instrument: inst, Signal: sig})
	}
	return out
}
