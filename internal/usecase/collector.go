package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/strategy"
	applogger "FinRank/pkg/logger"
)

// CollectorConfig bounds the ensemble fan-out.
type CollectorConfig struct {
	Workers     int
	EvalTimeout time.Duration
	HistoryBars int
	Timeframe   domrepo.Timeframe
}

// SignalCollector fans the strategy ensemble out over the cycle's
// market snapshots, one vote per (strategy, instrument) pair.
type SignalCollector struct {
	strategies []strategy.Strategy
	market     domrepo.MarketData
	metrics    domrepo.Metrics
	l          *applogger.Logger
	cfg        CollectorConfig
}

func NewSignalCollector(
	strategies []strategy.Strategy,
	market domrepo.MarketData,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg CollectorConfig,
) *SignalCollector {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = 2 * time.Second
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = strategy.MaxLookback(strategies)
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	return &SignalCollector{
		strategies: strategies,
		market:     market,
		metrics:    metrics,
		l:          l,
		cfg:        cfg,
	}
}

// CollectOutcome carries one cycle's votes plus the snapshot they were
// derived from. Errors is keyed by instrument for data misses.
type CollectOutcome struct {
	Votes     []models.Vote
	Abstained int
	Failures  int
	Snapshot  map[string]models.Series
	Errors    map[string]string
}

// Prices returns the last close per snapshotted instrument.
func (o *CollectOutcome) Prices() map[string]float64 {
	out := make(map[string]float64, len(o.Snapshot))
	for inst, series := range o.Snapshot {
		if p := series.Last(); p > 0 {
			out[inst] = p
		}
	}
	return out
}

// Collect evaluates every ensemble member against every instrument with
// a usable snapshot. Strategy failures and timeouts become abstentions,
// never a cycle abort.
func (c *SignalCollector) Collect(ctx context.Context, instruments []string) *CollectOutcome {
	out := &CollectOutcome{
		Snapshot: make(map[string]models.Series, len(instruments)),
		Errors:   map[string]string{},
	}

	c.fetchSnapshots(ctx, instruments, out)
	if len(out.Snapshot) == 0 {
		return out
	}

	// Deterministic job order; the snapshot itself is immutable from here.
	insts := make([]string, 0, len(out.Snapshot))
	for inst := range out.Snapshot {
		insts = append(insts, inst)
	}
	sort.Strings(insts)

	type job struct {
		st   strategy.Strategy
		inst string
	}
	jobs := make(chan job)
	votes := make(chan models.Vote, 256)

	var abstained, failures int64
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				sig, voted, err := c.evaluate(ctx, j.st, j.inst, out.Snapshot[j.inst])
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
					c.metrics.RecordEvaluationFailure()
					if c.l != nil {
						c.l.Warn("strategy evaluation failed",
							applogger.String("strategy", j.st.Name()),
							applogger.String("instrument", j.inst),
							applogger.Error(err))
					}
				case !voted:
					atomic.AddInt64(&abstained, 1)
					c.metrics.RecordAbstention()
				default:
					c.metrics.RecordVote(sig.String())
					votes <- models.Vote{Strategy: j.st.Name(), Instrument: j.inst, Signal: sig}
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range votes {
			out.Votes = append(out.Votes, v)
		}
	}()

feed:
	for _, inst := range insts {
		for _, st := range c.strategies {
			select {
			case <-ctx.Done():
				break feed
			case jobs <- job{st: st, inst: inst}:
			}
		}
	}
	close(jobs)
	wg.Wait()
	close(votes)
	<-done

	out.Abstained = int(abstained)
	out.Failures = int(failures)
	return out
}

func (c *SignalCollector) fetchSnapshots(ctx context.Context, instruments []string, out *CollectOutcome) {
	type fetched struct {
		inst   string
		series models.Series
		err    error
	}
	ch := make(chan fetched, len(instruments))
	var wg sync.WaitGroup
	for _, inst := range instruments {
		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			series, err := c.market.History(ctx, inst, c.cfg.HistoryBars, c.cfg.Timeframe)
			ch <- fetched{inst: inst, series: series, err: err}
		}(inst)
	}
	go func() { wg.Wait(); close(ch) }()

	for f := range ch {
		if f.err != nil {
			out.Errors[f.inst] = f.err.Error()
			if c.l != nil {
				c.l.Warn("instrument skipped for cycle",
					applogger.String("instrument", f.inst),
					applogger.Error(f.err))
			}
			continue
		}
		out.Snapshot[f.inst] = f.series
	}
}

// evaluate runs one ensemble member with panic isolation and a
// per-evaluation deadline. A timed-out evaluation is an abstention.
func (c *SignalCollector) evaluate(ctx context.Context, st strategy.Strategy, inst string, series models.Series) (models.Signal, bool, error) {
	type result struct {
		sig   models.Signal
		voted bool
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &models.EvaluationError{
					Strategy:   st.Name(),
					Instrument: inst,
					Err:        fmt.Errorf("panic: %v", r),
				}}
			}
		}()
		sig, voted := st.Evaluate(series)
		ch <- result{sig: sig, voted: voted}
	}()

	timer := time.NewTimer(c.cfg.EvalTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return models.Hold, false, nil
	case <-timer.C:
		return models.Hold, false, nil
	case r := <-ch:
		return r.sig, r.voted, r.err
	}
}
