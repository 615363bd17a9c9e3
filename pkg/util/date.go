package util

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, a bare date and unix seconds. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseAsOf returns nil for an empty string and an error for anything unparseable.
func ParseAsOf(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, ok := ParseTime(s)
	if !ok {
		return nil, fmt.Errorf("invalid as_of %q", s)
	}
	return &t, nil
}
