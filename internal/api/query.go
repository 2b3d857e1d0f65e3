package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"phobos.org.uk/ccbridge/internal/logging"
)

// ParseIntParam parses an integer query parameter within [min, max].
// Returns defaultVal if value is empty.
func ParseIntParam(value string, min, max, defaultVal int) (int, error) {
	if value == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("must be a valid integer")
	}
	if v < min || v > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return v, nil
}

// ParseLogQuery reads /logs filters: level, call_id, operation, since (RFC 3339), limit.
func ParseLogQuery(values url.Values) (logging.Query, error) {
	q := logging.Query{
		CallID:    values.Get("call_id"),
		Operation: values.Get("operation"),
	}

	if lvl := values.Get("level"); lvl != "" {
		level, ok := logging.ParseLevel(lvl)
		if !ok {
			return q, invalid("level", "must be debug, info, warn, or error")
		}
		q.Level = level
	}

	if since := values.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return q, invalid("since", "must be an RFC 3339 timestamp")
		}
		q.Since = ts
	}

	limit, err := ParseIntParam(values.Get("limit"), 1, 1000, 100)
	if err != nil {
		return q, invalid("limit", err.Error())
	}
	q.Limit = limit
	return q, nil
}
