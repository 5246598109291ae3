package models

import "time"

// NewsSentiment is an advisory sentiment read for one symbol, produced
// by the news analyst. It is attached to decision history and exposed
// over the API but never enters vote aggregation.
type NewsSentiment struct {
	Symbol    string
	Score     float64 // [-1, 1]
	Reason    string
	Headlines int
	Timestamp time.Time
}
