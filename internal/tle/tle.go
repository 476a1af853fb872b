// Package tle parses and validates two-line element sets, the input format
// for all downstream orbit propagation.
package tle

import (
	"fmt"
	"strings"
	"time"
)

// LineLength is the exact length of a TLE element line.
const LineLength = 69

// DefaultMaxAge is the freshness cutoff for element sets. Orbits decay and
// maneuver; predictions from older elements drift by minutes.
const DefaultMaxAge = 48 * time.Hour

// Entry is one satellite's parsed element set. Line1 and Line2 are kept
// verbatim because the propagator consumes the raw lines.
type Entry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// Validate performs the structural checks on an element line pair: both
// lines must be exactly 69 characters, line 1 must begin with "1 " and
// line 2 with "2 ". Checksum verification is left to the propagator.
func Validate(line1, line2 string) error {
	if len(line1) != LineLength {
		return fmt.Errorf("line 1 length %d, want %d", len(line1), LineLength)
	}
	if len(line2) != LineLength {
		return fmt.Errorf("line 2 length %d, want %d", len(line2), LineLength)
	}
	if !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("line 1 must begin with %q", "1 ")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("line 2 must begin with %q", "2 ")
	}
	return nil
}

// IsFresh reports whether an epoch is within maxAge of now. The boundary is
// inclusive: an element set exactly maxAge old is still fresh. A zero epoch
// is never fresh. Future epochs (recently uploaded elements) are fresh.
func IsFresh(epoch, now time.Time, maxAge time.Duration) bool {
	if epoch.IsZero() {
		return false
	}
	return now.Sub(epoch) <= maxAge
}
