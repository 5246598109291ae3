package news

import (
	"context"
	"fmt"
	"strconv"

	xhttp "FinRank/pkg/http"
	applogger "FinRank/pkg/logger"
)

const (
	marketAuxURL = "https://api.marketaux.com/v1/news/all"
	newsDataURL  = "https://newsdata.io/api/1/news"
)

// fetchMarketAux pulls finance-tagged articles for the symbol. Each
// headline carries the provider's own entity sentiment when present so
// the model sees it alongside the title. Missing key or any provider
// error yields an empty list.
func (a *Analyst) fetchMarketAux(ctx context.Context, symbol string) []string {
	if a.cfg.MarketAuxKey == "" {
		return nil
	}

	var resp struct {
		Data []struct {
			Title    string `json:"title"`
			Entities []struct {
				SentimentScore *float64 `json:"sentiment_score"`
			} `json:"entities"`
		} `json:"data"`
	}
	err := a.fetchHTTP.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    marketAuxURL,
		QueryParams: map[string][]string{
			"api_token":       {a.cfg.MarketAuxKey},
			"symbols":         {symbol},
			"filter_entities": {"true"},
			"language":        {"en"},
			"limit":           {strconv.Itoa(a.cfg.HeadlinesLimit)},
		},
	}, &resp)
	if err != nil {
		a.l.Warn("news: marketaux fetch failed",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return nil
	}

	headlines := make([]string, 0, a.cfg.HeadlinesLimit)
	for _, art := range resp.Data {
		if len(headlines) == a.cfg.HeadlinesLimit {
			break
		}
		title := art.Title
		if title == "" {
			title = "Untitled"
		}
		sentiment := "N/A"
		if len(art.Entities) > 0 && art.Entities[0].SentimentScore != nil {
			sentiment = strconv.FormatFloat(*art.Entities[0].SentimentScore, 'f', 2, 64)
		}
		headlines = append(headlines, fmt.Sprintf("%s (Sentiment: %s)", title, sentiment))
	}
	return headlines
}

// fetchNewsData pulls broader business coverage mentioning the symbol.
func (a *Analyst) fetchNewsData(ctx context.Context, symbol string) []string {
	if a.cfg.NewsDataKey == "" {
		return nil
	}

	var resp struct {
		Results []struct {
			Title    string `json:"title"`
			SourceID string `json:"source_id"`
		} `json:"results"`
	}
	err := a.fetchHTTP.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    newsDataURL,
		QueryParams: map[string][]string{
			"apikey":   {a.cfg.NewsDataKey},
			"q":        {symbol},
			"language": {"en"},
			"category": {"business"},
		},
	}, &resp)
	if err != nil {
		a.l.Warn("news: newsdata fetch failed",
			applogger.String("symbol", symbol),
			applogger.Error(err))
		return nil
	}

	headlines := make([]string, 0, a.cfg.HeadlinesLimit)
	for _, art := range resp.Results {
		if len(headlines) == a.cfg.HeadlinesLimit {
			break
		}
		title := art.Title
		if title == "" {
			title = "Untitled"
		}
		source := art.SourceID
		if source == "" {
			source = "unknown source"
		}
		headlines = append(headlines, fmt.Sprintf("%s (Source: %s)", title, source))
	}
	return headlines
}
