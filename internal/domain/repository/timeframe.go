package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// IsValidTimeframe returns true if tf parses to a positive duration.
func IsValidTimeframe(tf Timeframe) bool {
	_, err := ParseTimeframe(string(tf))
	return err == nil
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe converts "30s", "5m", "1h" or "1d" to a duration.
func ParseTimeframe(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid timeframe unit in %q", s)
	}
	return time.Duration(n) * unit, nil
}

// Duration returns the bucket width, or one minute when tf is invalid.
func (tf Timeframe) Duration() time.Duration {
	d, err := ParseTimeframe(string(tf))
	if err != nil {
		return time.Minute
	}
	return d
}

// Align rounds a time range down to bar boundaries.
func (tf Timeframe) Align(from, to time.Time) (time.Time, time.Time) {
	d := tf.Duration()
	return from.Truncate(d), to.Truncate(d)
}
