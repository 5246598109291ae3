package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseTime accepts RFC3339, RFC3339Nano or unix seconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses s, falling back to def when empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignFromTo truncates a query window to bar boundaries so a request
// never starts or ends mid-bar. Unknown timeframes align to the minute.
func AlignFromTo(from, to time.Time, tf string) (time.Time, time.Time) {
	step := time.Minute
	switch tf {
	case "5m":
		step = 5 * time.Minute
	case "1h":
		step = time.Hour
	case "1d":
		step = 24 * time.Hour
	}
	return from.Truncate(step), to.Truncate(step)
}
