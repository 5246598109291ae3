package api

import (
	"time"

	"FinRank/internal/domain/models"
)

// Response shapes for the engine API. Domain models stay free of
// transport tags, so each endpoint maps to a view here.

type rankView struct {
	Strategy    string  `json:"strategy"`
	Rank        int     `json:"rank"`
	Points      float64 `json:"points"`
	Coefficient float64 `json:"coefficient"`
}

type strategyView struct {
	Name           string             `json:"name"`
	Points         float64            `json:"points"`
	Cash           float64            `json:"cash"`
	Holdings       map[string]float64 `json:"holdings,omitempty"`
	Positions      []positionView     `json:"positions,omitempty"`
	PortfolioValue float64            `json:"portfolio_value"`
	Total          int64              `json:"total"`
	Successful     int64              `json:"successful"`
	Neutral        int64              `json:"neutral"`
	Failed         int64              `json:"failed"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type positionView struct {
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

type candidateView struct {
	Instrument string  `json:"instrument"`
	Score      float64 `json:"score"`
}

type candidatesView struct {
	CycleID    string          `json:"cycle_id,omitempty"`
	At         time.Time       `json:"at,omitempty"`
	Candidates []candidateView `json:"candidates"`
}

type intentView struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Score      float64   `json:"score"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

type rejectionView struct {
	Instrument string `json:"instrument"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

type cycleView struct {
	CycleID    string            `json:"cycle_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Votes      int               `json:"votes"`
	Abstained  int               `json:"abstained"`
	Failures   int               `json:"failures"`
	Candidates []candidateView   `json:"candidates"`
	Intents    []intentView      `json:"intents"`
	Rejections []rejectionView   `json:"rejections"`
	Errors     map[string]string `json:"errors,omitempty"`
}

type newsView struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Headlines int       `json:"headlines"`
	Timestamp time.Time `json:"timestamp"`
}

type candleView struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type candlesView struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Count     int          `json:"count"`
	Candles   []candleView `json:"candles"`
}

type healthView struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func toRankViews(ranks []models.RankAssignment) []rankView {
	out := make([]rankView, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, rankView{
			Strategy:    r.Strategy,
			Rank:        r.Rank,
			Points:      r.Points,
			Coefficient: r.Coefficient,
		})
	}
	return out
}

func toCandidateViews(cands []models.Candidate) []candidateView {
	out := make([]candidateView, 0, len(cands))
	for _, c := range cands {
		out = append(out, candidateView{Instrument: c.Instrument, Score: c.Score})
	}
	return out
}

func toPositionViews(positions []models.OpenPosition) []positionView {
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionView{
			Instrument: p.Instrument,
			Side:       string(p.Side),
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
		})
	}
	return out
}

func toCandleViews(series models.Series) []candleView {
	out := make([]candleView, 0, len(series))
	for _, c := range series {
		out = append(out, candleView{
			Time:   c.Time,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return out
}

func toIntentViews(intents []models.TradeIntent) []intentView {
	out := make([]intentView, 0, len(intents))
	for _, it := range intents {
		out = append(out, intentView{
			ID:         it.ID,
			Instrument: it.Instrument,
			Side:       string(it.Side),
			Quantity:   it.Quantity,
			Score:      it.Score,
			Reason:     string(it.Reason),
			CreatedAt:  it.CreatedAt,
		})
	}
	return out
}

func toCycleView(res *models.CycleResult) cycleView {
	rejections := make([]rejectionView, 0, len(res.Rejections))
	for _, r := range res.Rejections {
		rejections = append(rejections, rejectionView{
			Instrument: r.Instrument,
			Reason:     string(r.Reason),
			Detail:     r.Detail,
		})
	}
	return cycleView{
		CycleID:    res.CycleID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Votes:      res.Votes,
		Abstained:  res.Abstained,
		Failures:   res.Failures,
		Candidates: toCandidateViews(res.Candidates),
		Intents:    toIntentViews(res.Intents),
		Rejections: rejections,
		Errors:     res.Errors,
	}
}
