package schema

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp is the raw timestamp of a payload: either an ISO-8601 string or
// non-negative unix seconds. It is only parsed when a message is dispatched.
type Timestamp struct {
	text    string
	seconds float64
	numeric bool
}

// TextTimestamp wraps an ISO-8601 timestamp string.
func TextTimestamp(s string) Timestamp { return Timestamp{text: s} }

// UnixTimestamp wraps unix seconds.
func UnixTimestamp(seconds float64) Timestamp { return Timestamp{seconds: seconds, numeric: true} }

func (t Timestamp) String() string {
	if t.numeric {
		return strconv.FormatFloat(t.seconds, 'f', -1, 64)
	}
	return t.text
}

// Time returns the timestamp as a UTC instant.
func (t Timestamp) Time() (time.Time, error) {
	if t.numeric {
		if t.seconds < 0 || math.IsNaN(t.seconds) || math.IsInf(t.seconds, 0) {
			return time.Time{}, fmt.Errorf("invalid unix timestamp %v", t.seconds)
		}
		sec, frac := math.Modf(t.seconds)
		return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
	}
	return ParseTimestamp(t.text)
}

// Layouts tried in order. Layouts without a zone are interpreted as UTC;
// fractional seconds are accepted after the seconds field.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp and normalises it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &time.ParseError{
		Layout:  time.RFC3339,
		Value:   s,
		Message: ": cannot parse as ISO-8601 timestamp",
	}
}
