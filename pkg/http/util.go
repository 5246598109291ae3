package http

import (
	"time"

	xutil "FinRank/pkg/util"
)

// ParseTime accepts RFC3339, RFC3339Nano or unix seconds, the formats
// query timestamps arrive in.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
