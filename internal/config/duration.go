package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration from a config value.
// Empty means unset and yields zero. Negative values are rejected: a
// negative timeout would silently disable whatever it guards.
func ParseDurationField(field, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for unset
// values.
func ParseDurationOrDefault(field, raw string, fallback time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return fallback, nil
}
