package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"FinRank/internal/domain/models"
	drepo "FinRank/internal/domain/repository"
	xhttp "FinRank/pkg/http"
	applogger "FinRank/pkg/logger"
	xutil "FinRank/pkg/util"
)

// CandleClient fetches historical bars and live quotes over the vendor
// REST API.
type CandleClient struct {
	apiKey  string
	baseURL string
	httpc   *xhttp.Client
	l       *applogger.Logger
}

func NewCandleClient(apiKey, baseURL string, timeout time.Duration, l *applogger.Logger) *CandleClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CandleClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpc:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		l:       l,
	}
}

var _ drepo.MarketData = (*CandleClient)(nil)

type candleResponse struct {
	Status  string    `json:"s"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
	Times   []int64   `json:"t"`
}

type quoteResponse struct {
	Current float64 `json:"c"`
}

// History returns up to bars most recent bars, oldest first. A vendor
// miss or empty window maps to ErrDataUnavailable.
func (c *CandleClient) History(ctx context.Context, instrument string, bars int, tf drepo.Timeframe) (models.Series, error) {
	if bars <= 0 {
		return nil, fmt.Errorf("%s: bars must be positive", instrument)
	}
	now := time.Now().UTC()
	// Twice the nominal window covers market closures and thin books.
	from := now.Add(-2 * time.Duration(bars) * drepo.TimeframeDuration(tf))
	from, to := xutil.AlignFromTo(from, now, string(tf))

	var resp candleResponse
	err := c.getJSON(ctx, "/stock/candle", map[string][]string{
		"symbol":     {instrument},
		"resolution": {resolutionFor(tf)},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
		"token":      {c.apiKey},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", instrument, err)
	}
	if resp.Status != "ok" || len(resp.Closes) == 0 {
		return nil, fmt.Errorf("candles %s: %w", instrument, models.ErrDataUnavailable)
	}

	n := len(resp.Closes)
	series := make(models.Series, 0, n)
	for i := 0; i < n; i++ {
		candle := models.Candle{Close: resp.Closes[i]}
		if i < len(resp.Times) {
			candle.Time = time.Unix(resp.Times[i], 0).UTC()
		}
		if i < len(resp.Opens) {
			candle.Open = resp.Opens[i]
		}
		if i < len(resp.Highs) {
			candle.High = resp.Highs[i]
		}
		if i < len(resp.Lows) {
			candle.Low = resp.Lows[i]
		}
		if i < len(resp.Volumes) {
			candle.Volume = resp.Volumes[i]
		}
		series = append(series, candle)
	}
	if len(series) > bars {
		series = series[len(series)-bars:]
	}
	return series, nil
}

// Quote returns the instrument's current price.
func (c *CandleClient) Quote(ctx context.Context, instrument string) (float64, error) {
	var resp quoteResponse
	err := c.getJSON(ctx, "/quote", map[string][]string{
		"symbol": {instrument},
		"token":  {c.apiKey},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", instrument, err)
	}
	if resp.Current <= 0 {
		return 0, fmt.Errorf("quote %s: %w", instrument, models.ErrDataUnavailable)
	}
	return resp.Current, nil
}

func (c *CandleClient) getJSON(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	start := time.Now()
	err := c.httpc.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
	}, dest)
	if err != nil {
		return err
	}
	if c.l != nil {
		c.l.Debug("market data fetched",
			applogger.String("path", path),
			applogger.Duration("took", time.Since(start)))
	}
	return nil
}

func resolutionFor(tf drepo.Timeframe) string {
	switch tf {
	case drepo.TF1m:
		return "1"
	case drepo.TF5m:
		return "5"
	case drepo.TF1h:
		return "60"
	default:
		return "D"
	}
}
