// Package news aggregates recent headlines for a symbol and scores
// them with an OpenAI-compatible chat model. The result is advisory
// only: it is attached to decision history and served over the API but
// never feeds vote aggregation or sizing.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinRank/internal/domain/models"
	"FinRank/internal/domain/service"
	"FinRank/pkg/cache"
	xhttp "FinRank/pkg/http"
	applogger "FinRank/pkg/logger"
)

const (
	sentimentKeyFmt = "finrank:news:%s"

	defaultFetchTimeout   = 15 * time.Second
	defaultLLMTimeout     = 30 * time.Second
	defaultHeadlinesLimit = 3

	systemPrompt = "You are a Hedge Fund Risk Manager. Analyze these headlines for a specific asset.\n" +
		`Output strictly valid JSON: {"sentiment_score": float (-1.0 to 1.0), "reason": "brief string"}`
)

// Config carries the provider keys and LLM endpoint for the analyst.
// Empty keys disable the matching provider rather than failing.
type Config struct {
	MarketAuxKey   string
	NewsDataKey    string
	FetchTimeout   time.Duration
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTimeout     time.Duration
	CacheTTL       time.Duration
	HeadlinesLimit int
}

// Analyst fetches headlines from MarketAux and NewsData, asks the
// configured chat model for a combined read, and caches the result per
// symbol. Every failure path degrades to a neutral score.
type Analyst struct {
	cfg       Config
	fetchHTTP *xhttp.Client
	llmHTTP   *xhttp.Client
	cache     cache.Service
	l         *applogger.Logger
}

func NewAnalyst(cfg Config, cacheSvc cache.Service, l *applogger.Logger) *Analyst {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = defaultLLMTimeout
	}
	if cfg.HeadlinesLimit <= 0 {
		cfg.HeadlinesLimit = defaultHeadlinesLimit
	}
	return &Analyst{
		cfg:       cfg,
		fetchHTTP: xhttp.NewClient(xhttp.WithTimeout(cfg.FetchTimeout)),
		llmHTTP:   xhttp.NewClient(xhttp.WithTimeout(cfg.LLMTimeout)),
		cache:     cacheSvc,
		l:         l,
	}
}

var _ service.NewsAnalyst = (*Analyst)(nil)

// AggregatedSentiment returns the cached read for the symbol when one
// is fresh, otherwise fetches headlines from both providers and scores
// them. A symbol with no recent headlines gets a neutral read; so does
// any LLM failure. The error return is reserved for context
// cancellation, everything else degrades in place.
func (a *Analyst) AggregatedSentiment(ctx context.Context, symbol string) (models.NewsSentiment, error) {
	key := fmt.Sprintf(sentimentKeyFmt, symbol)
	if a.cache != nil {
		var cached models.NewsSentiment
		if err := a.cache.Get(ctx, key, &cached); err == nil && cached.Symbol == symbol {
			return cached, nil
		}
	}

	headlines := append(a.fetchMarketAux(ctx, symbol), a.fetchNewsData(ctx, symbol)...)
	if ctx.Err() != nil {
		return models.NewsSentiment{}, ctx.Err()
	}

	out := models.NewsSentiment{
		Symbol:    symbol,
		Headlines: len(headlines),
		Timestamp: time.Now().UTC(),
	}
	if len(headlines) == 0 {
		out.Reason = "no recent headlines"
	} else {
		out.Score, out.Reason = a.scoreHeadlines(ctx, symbol, headlines)
	}

	if a.cache != nil && a.cfg.CacheTTL > 0 {
		if err := a.cache.Set(ctx, key, out, a.cfg.CacheTTL); err != nil {
			a.l.Warn("news: cache sentiment failed",
				applogger.String("symbol", symbol),
				applogger.Error(err))
		}
	}
	return out, nil
}

// scoreHeadlines asks the chat model for a score in [-1, 1]. Any
// failure, a missing key included, collapses to neutral with the
// failure named in the reason.
func (a *Analyst) scoreHeadlines(ctx context.Context, symbol string, headlines []string) (float64, string) {
	if a.cfg.LLMAPIKey == "" || a.cfg.LLMBaseURL == "" {
		return 0, "llm unavailable"
	}

	var sb strings.Builder
	for _, h := range headlines {
		sb.WriteString("- ")
		sb.WriteString(h)
		sb.WriteString("\n")
	}

	req := chatRequest{
		Model: a.cfg.LLMModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Asset: %s\nNews:\n%s", symbol, sb.String())},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0,
	}

	var resp chatResponse
	err := a.llmHTTP.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    strings.TrimRight(a.cfg.LLMBaseURL, "/") + "/chat/completions",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + a.cfg.LLMAPIKey,
		},
		Body: req,
	}, &resp)
	if err != nil {
		a.l.Warn("news: llm request failed",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return 0, "llm error"
	}
	if len(resp.Choices) == 0 {
		return 0, "llm returned no choices"
	}

	var verdict struct {
		SentimentScore float64 `json:"sentiment_score"`
		Reason         string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		a.l.Warn("news: llm verdict not parseable",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return 0, "llm verdict not parseable"
	}

	score := verdict.SentimentScore
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	reason := verdict.Reason
	if reason == "" {
		reason = "no reason provided"
	}
	return score, reason
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
