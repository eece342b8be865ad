package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	valueCleanRe = regexp.MustCompile(`[^0-9.KMBkmb]`)
	suffixRe     = regexp.MustCompile(`(?i)([0-9.]+)\s*([KMB])$`)
)

// ParseValue parses free-form monetary strings like "$1,234.50",
// "USD 500,000", "1.2M", "500K", "1B" into a decimal float64. It
// strips currency symbols and thousands separators and recognizes
// K/M/B magnitude suffixes. Unparseable input returns nil rather than
// a wrong number (spec.md section 4.7, testable property 6).
func ParseValue(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	// Drop thousands separators before suffix/digit cleanup so "1,234.50"
	// survives while "1.2M" keeps its decimal point.
	s = strings.ReplaceAll(s, ",", "")
	s = valueCleanRe.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}

	if m := suffixRe.FindStringSubmatch(s); m != nil {
		base, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		multiplier := 1.0
		switch strings.ToUpper(m[2]) {
		case "K":
			multiplier = 1_000
		case "M":
			multiplier = 1_000_000
		case "B":
			multiplier = 1_000_000_000
		}
		v := base * multiplier
		return &v
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
