// Package info parses the store's INFO report and derives display metrics.
package info

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sections is a parsed INFO report: section name to field to value.
type Sections map[string]map[string]string

// ParseSections parses a raw INFO report. A line starting with '#' opens a
// section named by the rest of the line, lower-cased. "field:value" lines
// inside a section are split on the first colon. Anything else, including
// fields before the first section, is ignored.
func ParseSections(raw string) Sections {
	sections := Sections{}

	var current map[string]string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")

		if strings.HasPrefix(line, "#") {
			name := strings.ToLower(strings.TrimSpace(line[1:]))
			current = map[string]string{}
			sections[name] = current
			continue
		}

		if current == nil {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		current[field] = strings.TrimSpace(value)
	}

	return sections
}

// Get returns a field of a section, or "" when either is missing.
func (s Sections) Get(section, field string) string {
	return s[section][field]
}

// DeriveHitRate returns the keyspace hit rate as a whole percentage.
// It is 0 when there were no lookups.
func DeriveHitRate(hits, misses int64) int {
	total := hits + misses
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(hits) * 100 / float64(total)))
}

// ParseMemoryScalar converts a human memory value such as "1.05M" to
// megabytes. K, M and G suffixes are honored; anything else is read as a
// byte count. Empty or unparsable input yields 0.
func ParseMemoryScalar(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	unit := strings.ToUpper(s[len(s)-1:])
	number := s[:len(s)-1]

	switch unit {
	case "K":
		return parseFloat(number) / 1024
	case "M":
		return parseFloat(number)
	case "G":
		return parseFloat(number) * 1024
	case "B":
		return parseFloat(number) / (1024 * 1024)
	default:
		return parseFloat(s) / (1024 * 1024)
	}
}

// FormatUptime renders seconds as "{d}d {h}h {m}m {s}s".
func FormatUptime(seconds int64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, secs)
}

// KeyspaceDB summarizes one logical database.
type KeyspaceDB struct {
	DB      string `json:"db,omitempty"`
	Keys    int64  `json:"keys"`
	Expires int64  `json:"expires"`
	AvgTTL  int64  `json:"avgTtl"`
}

// ParseKeyspaceLine parses a keyspace value such as
// "keys=1,expires=0,avg_ttl=0". Missing or malformed counters are 0.
func ParseKeyspaceLine(db, line string) KeyspaceDB {
	fields := map[string]string{}
	for _, item := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(item, "=")
		if ok && k != "" && v != "" {
			fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	return KeyspaceDB{
		DB:      db,
		Keys:    parseInt(fields["keys"], 0),
		Expires: parseInt(fields["expires"], 0),
		AvgTTL:  parseInt(fields["avg_ttl"], 0),
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseInt reads the leading integer of s, returning def when there is none.
func parseInt(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return def
	}
	return n
}
