package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/domain/service"
	icache "FinRank/internal/service/cache"
	"FinRank/internal/service/metrics"
	"FinRank/internal/service/ratelimit"
	"FinRank/internal/usecase"
	xhttp "FinRank/pkg/http"
	applogger "FinRank/pkg/logger"
)

const rankingsCacheTTL = 15 * time.Second

// EngineHandler exposes the decision engine over HTTP: rankings,
// strategy books, the latest candidate set, recent intents, news
// sentiment and a manual cycle trigger.
type EngineHandler struct {
	cycle   *usecase.DecisionCycle
	store   domrepo.StrategyStore
	history domrepo.HistoryStore
	news    service.NewsAnalyst
	candles *usecase.MarketCandles
	cache   icache.BytesCache
	rl      *ratelimit.Limiter
	l       *applogger.Logger
}

func NewEngineHandler(cycle *usecase.DecisionCycle, store domrepo.StrategyStore) *EngineHandler {
	metrics.Register()
	return &EngineHandler{cycle: cycle, store: store, rl: ratelimit.New()}
}

func (h *EngineHandler) SetHistory(s domrepo.HistoryStore) { h.history = s }

func (h *EngineHandler) SetNews(n service.NewsAnalyst) { h.news = n }

func (h *EngineHandler) SetCandles(mc *usecase.MarketCandles) { h.candles = mc }

func (h *EngineHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetLogger injects a structured logger.
func (h *EngineHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/rankings", h.Rankings)
	g.GET("/strategies/:name", h.Strategy)
	g.GET("/candidates", h.Candidates)
	g.GET("/intents", h.Intents)
	g.POST("/cycles", h.RunCycle)
	g.GET("/news/:symbol", h.News)
	g.GET("/market/:symbol/candles", h.Candles)
	e.GET("/healthz", h.Healthz)
}

// Rankings returns the current rank table, best first. Responses are
// cached briefly; rankings only move once per cycle.
func (h *EngineHandler) Rankings(c echo.Context) error {
	start := time.Now()
	endpoint := "rankings"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RankingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := fmt.Sprintf("api:rankings:%d", req.Limit)
	if h.cache != nil {
		if b, ok, _ := h.cache.GetBytes(cacheKey); ok {
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	ranks, err := h.store.GetRankCoefficients(c.Request().Context())
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("rankings read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("rankings unavailable").WithError(err))
	}
	if len(ranks) > req.Limit {
		ranks = ranks[:req.Limit]
	}

	envelope := xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    toRankViews(ranks),
	}
	b, err := json.Marshal(envelope)
	if err != nil {
		return xhttp.SuccessResponse(c, toRankViews(ranks))
	}
	if h.cache != nil {
		_ = h.cache.SetBytes(cacheKey, b, rankingsCacheTTL)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return c.JSONBlob(http.StatusOK, b)
}

// Strategy returns one strategy's simulated book and current points.
func (h *EngineHandler) Strategy(c echo.Context) error {
	start := time.Now()
	endpoint := "strategy"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	rec, err := h.store.GetStrategyRecord(ctx, req.Name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("strategy %s not found", req.Name))
		}
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("strategy read failed",
			applogger.String("strategy", req.Name),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("strategy unavailable").WithError(err))
	}

	view := strategyView{
		Name:           rec.Name,
		Cash:           rec.Cash,
		Holdings:       rec.Holdings,
		Positions:      toPositionViews(rec.OpenPositions()),
		PortfolioValue: rec.PortfolioValue,
		Total:          rec.Counters.Total,
		Successful:     rec.Counters.Successful,
		Neutral:        rec.Counters.Neutral,
		Failed:         rec.Counters.Failed,
		UpdatedAt:      rec.UpdatedAt,
	}
	if score, err := h.store.GetScore(ctx, req.Name); err == nil {
		view.Points = score.Points
	}
	return xhttp.SuccessResponse(c, view)
}

// Candidates returns the candidate set of the most recent cycle.
func (h *EngineHandler) Candidates(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.APILatency.WithLabelValues("candidates").Observe(time.Since(start).Seconds()) }()

	req := &models.CandidatesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	view := candidatesView{Candidates: []candidateView{}}
	if last := h.cycle.Last(); last != nil {
		view.CycleID = last.CycleID
		view.At = last.StartedAt
		cands := last.Candidates
		if len(cands) > req.Limit {
			cands = cands[:req.Limit]
		}
		view.Candidates = toCandidateViews(cands)
	}
	return xhttp.SuccessResponse(c, view)
}

// Intents returns recent trade intents, newest first, optionally
// narrowed to a from/to window.
func (h *EngineHandler) Intents(c echo.Context) error {
	start := time.Now()
	endpoint := "intents"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.IntentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	window, verr := intentWindow(req)
	if verr != nil {
		return xhttp.BadRequestResponse(c, []*xhttp.ValidationError{verr})
	}
	if h.history == nil {
		return xhttp.ListResponse(c, []intentView{}, 0)
	}

	intents, err := h.history.RecentIntents(c.Request().Context(), req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("intent history read failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("intent history unavailable").WithError(err))
	}
	flat := make([]models.TradeIntent, 0, len(intents))
	for _, it := range intents {
		if !window.Contains(it.CreatedAt) {
			continue
		}
		flat = append(flat, *it)
	}
	views := toIntentViews(flat)
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// intentWindow builds the query time range. Timestamps accept RFC3339
// or unix seconds.
func intentWindow(req *models.IntentsRequest) (xhttp.TimeRange, *xhttp.ValidationError) {
	var window xhttp.TimeRange
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return window, &xhttp.ValidationError{Code: "ERR_TIME_FORMAT", Field: "from", Message: "unparseable timestamp"}
		}
		window.From = &t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return window, &xhttp.ValidationError{Code: "ERR_TIME_FORMAT", Field: "to", Message: "unparseable timestamp"}
		}
		window.To = &t
	}
	return window, nil
}

// RunCycle triggers one decision cycle synchronously and returns its
// summary. Requests overlapping a running cycle get 409.
func (h *EngineHandler) RunCycle(c echo.Context) error {
	start := time.Now()
	endpoint := "run_cycle"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":cycles", 2, 0.5) {
		if h.l != nil {
			h.l.Warn("cycle trigger rate limited", applogger.String("remote", c.RealIP()))
		}
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many cycle triggers", http.StatusTooManyRequests))
	}

	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.cycle.RunFor(c.Request().Context(), req.Instruments)
	if err != nil {
		if errors.Is(err, usecase.ErrCycleRunning) {
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError("ERR_CYCLE_RUNNING", "", "a decision cycle is already in flight", http.StatusConflict))
		}
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("manual cycle failed", applogger.Error(err))
		if res != nil {
			return xhttp.DataResponse(c, http.StatusInternalServerError, toCycleView(res))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("cycle failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, toCycleView(res))
}

// News returns the advisory sentiment read for one symbol.
func (h *EngineHandler) News(c echo.Context) error {
	start := time.Now()
	endpoint := "news"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.NewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.news == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_NEWS_DISABLED", "", "news analysis disabled", http.StatusServiceUnavailable))
	}

	sent, err := h.news.AggregatedSentiment(c.Request().Context(), req.Symbol)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("news sentiment failed",
			applogger.String("symbol", req.Symbol),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("news sentiment unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, newsView{
		Symbol:    sent.Symbol,
		Score:     sent.Score,
		Reason:    sent.Reason,
		Headlines: sent.Headlines,
		Timestamp: sent.Timestamp,
	})
}

// Candles returns the price history the engine evaluates for one
// symbol, the cache-backed snapshot the signal collector reads.
func (h *EngineHandler) Candles(c echo.Context) error {
	start := time.Now()
	endpoint := "candles"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.candles == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_MARKET_DISABLED", "", "market data unavailable", http.StatusServiceUnavailable))
	}

	res, err := h.candles.Get(c.Request().Context(), usecase.CandlesParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.Timeframe(req.Timeframe),
		Bars:      req.Bars,
	})
	if err != nil {
		if errors.Is(err, models.ErrDataUnavailable) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no data for %s", req.Symbol))
		}
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("candle read failed",
			applogger.String("symbol", req.Symbol),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("market data unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, candlesView{
		Symbol:    res.Symbol,
		Timeframe: res.Timeframe,
		Count:     res.Count,
		Candles:   toCandleViews(res.Candles),
	})
}

// Healthz checks the stores this instance depends on.
func (h *EngineHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	view := healthView{Status: "ok", Components: map[string]string{}}
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			view.Status = "degraded"
			view.Components[name] = err.Error()
			return
		}
		view.Components[name] = "ok"
	}

	check("store", h.store.Health)
	if h.history != nil {
		check("history", h.history.Health)
	}

	if view.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, view)
	}
	return xhttp.SuccessResponse(c, view)
}
