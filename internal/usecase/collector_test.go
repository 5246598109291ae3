package usecase

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
	"FinRank/internal/strategy"
)

func alwaysVote(sig models.Signal) func(models.Series) (models.Signal, bool) {
	return func(models.Series) (models.Signal, bool) { return sig, true }
}

func newTestCollector(strategies []strategy.Strategy, market *stubMarket) (*SignalCollector, *nopMetrics) {
	m := newNopMetrics()
	c := NewSignalCollector(strategies, market, m, nil, CollectorConfig{
		Workers:     4,
		EvalTimeout: time.Second,
		HistoryBars: 10,
	})
	return c, m
}

func TestCollect_OneVotePerStrategyInstrumentPair(t *testing.T) {
	market := newStubMarket()
	market.history["AMZN"] = flatSeries(10, 100)
	market.history["META"] = flatSeries(10, 50)

	strategies := []strategy.Strategy{
		stubStrategy{name: "alpha", eval: alwaysVote(models.Buy)},
		stubStrategy{name: "beta", eval: alwaysVote(models.Sell)},
	}
	c, m := newTestCollector(strategies, market)

	out := c.Collect(context.Background(), []string{"AMZN", "META"})
	require.Len(t, out.Votes, 4)
	assert.Zero(t, out.Abstained)
	assert.Zero(t, out.Failures)
	assert.Equal(t, 4, m.votes)

	keys := make([]string, 0, len(out.Votes))
	for _, v := range out.Votes {
		keys = append(keys, v.Strategy+"/"+v.Instrument)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		"alpha/AMZN", "alpha/META",
		"beta/AMZN", "beta/META",
	}, keys)

	prices := out.Prices()
	assert.Equal(t, 100.0, prices["AMZN"])
	assert.Equal(t, 50.0, prices["META"])
}

func TestCollect_PanicDoesNotAbortEnsemble(t *testing.T) {
	market := newStubMarket()
	market.history["AMZN"] = flatSeries(10, 100)

	strategies := []strategy.Strategy{
		stubStrategy{name: "boom", eval: func(models.Series) (models.Signal, bool) { panic("indicator blew up") }},
		stubStrategy{name: "calm", eval: alwaysVote(models.Buy)},
	}
	c, m := newTestCollector(strategies, market)

	out := c.Collect(context.Background(), []string{"AMZN"})
	require.Len(t, out.Votes, 1)
	assert.Equal(t, "calm", out.Votes[0].Strategy)
	assert.Equal(t, 1, out.Failures)
	assert.Equal(t, 1, m.failures)
}

func TestCollect_AbstentionIsNotAVote(t *testing.T) {
	market := newStubMarket()
	market.history["AMZN"] = flatSeries(3, 100)

	strategies := []strategy.Strategy{
		stubStrategy{name: "shy", eval: func(s models.Series) (models.Signal, bool) { return models.Hold, false }},
	}
	c, m := newTestCollector(strategies, market)

	out := c.Collect(context.Background(), []string{"AMZN"})
	assert.Empty(t, out.Votes)
	assert.Equal(t, 1, out.Abstained)
	assert.Equal(t, 1, m.abstentions)
}

func TestCollect_DataMissSkipsInstrumentOnly(t *testing.T) {
	market := newStubMarket()
	market.history["AMZN"] = flatSeries(10, 100)
	market.errs["META"] = models.ErrDataUnavailable

	strategies := []strategy.Strategy{
		stubStrategy{name: "alpha", eval: alwaysVote(models.Buy)},
	}
	c, _ := newTestCollector(strategies, market)

	out := c.Collect(context.Background(), []string{"AMZN", "META"})
	require.Len(t, out.Votes, 1)
	assert.Equal(t, "AMZN", out.Votes[0].Instrument)
	assert.Contains(t, out.Errors, "META")
	assert.NotContains(t, out.Snapshot, "META")
}

func TestCollect_SlowStrategyTimesOutAsAbstention(t *testing.T) {
	market := newStubMarket()
	market.history["AMZN"] = flatSeries(10, 100)

	strategies := []strategy.Strategy{
		stubStrategy{name: "slow", eval: func(models.Series) (models.Signal, bool) {
			time.Sleep(500 * time.Millisecond)
			return models.Buy, true
		}},
	}
	m := newNopMetrics()
	c := NewSignalCollector(strategies, market, m, nil, CollectorConfig{
		Workers:     1,
		EvalTimeout: 20 * time.Millisecond,
		HistoryBars: 10,
	})

	out := c.Collect(context.Background(), []string{"AMZN"})
	assert.Empty(t, out.Votes)
	assert.Equal(t, 1, out.Abstained)
}

func TestCollect_NoUsableSnapshots(t *testing.T) {
	market := newStubMarket() // every instrument misses
	strategies := []strategy.Strategy{
		stubStrategy{name: "alpha", eval: alwaysVote(models.Buy)},
	}
	c, _ := newTestCollector(strategies, market)

	out := c.Collect(context.Background(), []string{"AMZN"})
	assert.Empty(t, out.Votes)
	assert.Len(t, out.Errors, 1)
}
