package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Parse reads TLE text from r and returns parsed entries. Both the 3-line
// format (name line followed by the element lines) and the bare 2-line
// format are accepted. Entries failing structural validation are skipped
// with a warning log; a parse error is returned only for unreadable input.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i < len(lines); {
		name := ""
		if !strings.HasPrefix(lines[i], "1 ") {
			name = strings.TrimSpace(lines[i])
			i++
		}
		if i+1 >= len(lines) {
			break
		}
		line1, line2 := lines[i], lines[i+1]

		if err := Validate(line1, line2); err != nil {
			logger.Warn("skipping malformed TLE entry", "name", name, "error", err)
			i++
			continue
		}

		entry, err := newEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping unparseable TLE entry", "name", name, "error", err)
			i += 2
			continue
		}

		entries = append(entries, entry)
		i += 2
	}

	return entries, nil
}

// newEntry extracts the NORAD ID (line 1 cols 3-7) and epoch (cols 19-32)
// from a structurally valid line pair.
func newEntry(name, line1, line2 string) (Entry, error) {
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid NORAD ID %q: %w", noradStr, err)
	}

	epoch, err := ParseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid epoch: %w", err)
	}

	return Entry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// ParseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to a UTC
// time. Years 00-56 map to the 2000s, 57-99 to the 1900s.
func ParseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// Day of year is 1-based: day 1.0 is 00:00 UTC on Jan 1.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
