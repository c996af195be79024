// Package durationx parses the compact duration strings accepted by retry
// and cache-ttl flags: a bare integer (milliseconds) or an integer suffixed
// with ms, s, or m.
package durationx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse converts a duration string such as "10", "10ms", "5s", or "2m" into
// a time.Duration. A bare integer is interpreted as milliseconds.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("durationx: empty duration string")
	}

	unit := time.Millisecond
	numeric := s

	switch {
	case strings.HasSuffix(s, "ms"):
		numeric = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		numeric = strings.TrimSuffix(s, "s")
		unit = time.Second
	case strings.HasSuffix(s, "m"):
		numeric = strings.TrimSuffix(s, "m")
		unit = time.Minute
	}

	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("durationx: invalid duration %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("durationx: negative duration %q", s)
	}

	return time.Duration(n) * unit, nil
}
