package feed

import (
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the date formats seen in RSS, Atom and hot-list payloads
func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseAnyTime handles JSON values that are either a date string or epoch milliseconds
func parseAnyTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		return parseTime(val)
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		if val < 1e11 {
			return time.Unix(int64(val), 0).UTC(), true
		}
		return time.UnixMilli(int64(val)).UTC(), true
	}
	return time.Time{}, false
}
