package server

import (
	"errors"
	"strings"
	"time"
)

var errUnparsableTimestamp = errors.New("server: unparsable timestamp")

// acceptedTimeLayouts lists the boundary formats, most specific first. Layouts
// without an offset are interpreted as UTC.
var acceptedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseUTCTimestamp normalizes an ISO-8601 boundary value to UTC.
func parseUTCTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errUnparsableTimestamp
	}
	for _, layout := range acceptedTimeLayouts {
		if layout == time.RFC3339 {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed.UTC(), nil
			}
			continue
		}
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errUnparsableTimestamp
}
