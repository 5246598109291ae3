package models

// Requests for the engine HTTP endpoints. Defined in domain for consistency and reuse.

type RankingsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type StrategyRequest struct {
	Name string `param:"name" json:"name" validate:"required"`
}

type CandidatesRequest struct {
	Limit int `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
}

type IntentsRequest struct {
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
	From  string `query:"from" json:"from" validate:"omitempty"`
	To    string `query:"to" json:"to" validate:"omitempty"`
}

type RunCycleRequest struct {
	Instruments []string `json:"instruments" validate:"omitempty,dive,required"`
}

type NewsRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type CandlesRequest struct {
	Symbol    string `param:"symbol" json:"symbol" validate:"required"`
	Bars      int    `query:"bars" json:"bars" default:"100" validate:"gte=1,lte=1000"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"oneof=1m 5m 1h 1d"`
}
