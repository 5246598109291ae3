package models

import "time"

// CycleResult is a consolidated view of one decision cycle: what was
// voted, how strategies ranked, and what the allocator produced.
// Note: no transport (json/http) concerns here.
type CycleResult struct {
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Votes      int
	Abstained  int
	Failures   int
	Rankings   []RankAssignment
	Candidates []Candidate
	Intents    []TradeIntent
	Rejections []Rejection
	Sentiment  map[string]NewsSentiment // advisory, keyed by instrument
	Errors     map[string]string
}
