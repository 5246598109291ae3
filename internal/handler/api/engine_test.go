package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	applogger "FinRank/pkg/logger"
)

type fakeHistory struct {
	intents []*models.TradeIntent
	err     error
}

var _ domrepo.HistoryStore = (*fakeHistory)(nil)

func (f *fakeHistory) Init(context.Context) error { return nil }
func (f *fakeHistory) StoreIntents(context.Context, string, []*models.TradeIntent) error {
	return nil
}
func (f *fakeHistory) StoreOutcome(context.Context, *models.TradeOutcome, string, float64) error {
	return nil
}
func (f *fakeHistory) StoreRankings(context.Context, string, time.Time, []models.RankAssignment) error {
	return nil
}
func (f *fakeHistory) RecentIntents(context.Context, int) ([]*models.TradeIntent, error) {
	return f.intents, f.err
}
func (f *fakeHistory) Health(context.Context) error { return nil }
func (f *fakeHistory) Close() error                 { return nil }

type fakeStore struct {
	rec       *models.StrategyRecord
	recErr    error
	healthErr error
}

var _ domrepo.StrategyStore = (*fakeStore)(nil)

func (f *fakeStore) GetStrategyRecord(context.Context, string) (*models.StrategyRecord, error) {
	return f.rec, f.recErr
}
func (f *fakeStore) UpsertStrategyRecord(context.Context, *models.StrategyRecord) error { return nil }
func (f *fakeStore) ListStrategyRecords(context.Context) ([]*models.StrategyRecord, error) {
	return nil, nil
}
func (f *fakeStore) GetScore(context.Context, string) (*models.PerformanceScore, error) {
	return nil, models.ErrNotFound
}
func (f *fakeStore) UpsertScore(context.Context, *models.PerformanceScore) error { return nil }
func (f *fakeStore) ListScores(context.Context) ([]*models.PerformanceScore, error) {
	return nil, nil
}
func (f *fakeStore) GetRankCoefficients(context.Context) ([]models.RankAssignment, error) {
	return nil, nil
}
func (f *fakeStore) UpsertRankCoefficients(context.Context, []models.RankAssignment) error {
	return nil
}
func (f *fakeStore) Health(context.Context) error { return f.healthErr }
func (f *fakeStore) Close() error                 { return nil }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func handlerLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func doRequest(t *testing.T, h func(echo.Context) error, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func intentAt(id string, at time.Time) *models.TradeIntent {
	return &models.TradeIntent{
		ID:         id,
		Instrument: "AAPL",
		Side:       models.SideBuy,
		Quantity:   1,
		CreatedAt:  at,
	}
}

func TestIntents_FiltersByWindow(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	h := NewEngineHandler(nil, &fakeStore{})
	h.SetLogger(handlerLogger(t))
	h.SetHistory(&fakeHistory{intents: []*models.TradeIntent{
		intentAt("early", base),
		intentAt("inside", base.Add(time.Hour)),
		intentAt("late", base.Add(2*time.Hour)),
	}})

	_, env := doRequest(t, h.Intents,
		"/api/intents?from=2026-01-02T10:30:00Z&to=2026-01-02T11:30:00Z")

	require.Equal(t, http.StatusOK, env.Status)
	var list struct {
		Rows  []intentView `json:"rows"`
		Total int64        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "inside", list.Rows[0].ID)
	assert.Equal(t, int64(1), list.Total)
}

func TestIntents_OpenWindowReturnsAll(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	h := NewEngineHandler(nil, &fakeStore{})
	h.SetLogger(handlerLogger(t))
	h.SetHistory(&fakeHistory{intents: []*models.TradeIntent{
		intentAt("a", base),
		intentAt("b", base.Add(time.Hour)),
	}})

	_, env := doRequest(t, h.Intents, "/api/intents")

	require.Equal(t, http.StatusOK, env.Status)
	var list struct {
		Rows  []intentView `json:"rows"`
		Total int64        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Rows, 2)
}

func TestIntents_RejectsBadTimestamp(t *testing.T) {
	h := NewEngineHandler(nil, &fakeStore{})
	h.SetLogger(handlerLogger(t))
	h.SetHistory(&fakeHistory{})

	_, env := doRequest(t, h.Intents, "/api/intents?from=yesterday")

	require.Equal(t, http.StatusBadRequest, env.Status)
	var verrs []struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "ERR_TIME_FORMAT", verrs[0].Code)
	assert.Equal(t, "from", verrs[0].Field)
}

func TestIntents_NoHistoryYieldsEmptyList(t *testing.T) {
	h := NewEngineHandler(nil, &fakeStore{})
	h.SetLogger(handlerLogger(t))

	_, env := doRequest(t, h.Intents, "/api/intents")

	require.Equal(t, http.StatusOK, env.Status)
	var list struct {
		Rows  []intentView `json:"rows"`
		Total int64        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Rows)
	assert.Zero(t, list.Total)
}

func TestStrategy_NotFound(t *testing.T) {
	h := NewEngineHandler(nil, &fakeStore{recErr: models.ErrNotFound})
	h.SetLogger(handlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/strategies/ghost", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/strategies/:name")
	c.SetParamNames("name")
	c.SetParamValues("ghost")
	require.NoError(t, h.Strategy(c))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, http.StatusNotFound, env.Status)

	var appErrs []struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &appErrs))
	require.Len(t, appErrs, 1)
	assert.Equal(t, "ERR_NOT_FOUND", appErrs[0].Code)
}

func TestHealthz_ReportsDegradedStore(t *testing.T) {
	h := NewEngineHandler(nil, &fakeStore{healthErr: errors.New("connection refused")})
	h.SetLogger(handlerLogger(t))

	_, env := doRequest(t, h.Healthz, "/healthz")

	require.Equal(t, http.StatusServiceUnavailable, env.Status)
	var view healthView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "degraded", view.Status)
	assert.Contains(t, view.Components["store"], "connection refused")
}

func TestHealthz_OK(t *testing.T) {
	h := NewEngineHandler(nil, &fakeStore{})
	h.SetLogger(handlerLogger(t))
	h.SetHistory(&fakeHistory{})

	_, env := doRequest(t, h.Healthz, "/healthz")

	require.Equal(t, http.StatusOK, env.Status)
	var view healthView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "ok", view.Status)
	assert.Equal(t, "ok", view.Components["store"])
	assert.Equal(t, "ok", view.Components["history"])
}
