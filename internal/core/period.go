package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is the calendar placement derived from a bill's free-text billing period.
type Period struct {
	Year  int
	Month int // 0 when no month could be extracted
}

// Patterns are tried in priority order; the first match wins. The slash form is
// read as month/day/year with no locale awareness and no check that month <= 12.
var (
	isoPeriod       = regexp.MustCompile(`(\d{4})-(\d{1,2})`)
	slashPeriod     = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	monthNamePeriod = regexp.MustCompile(`(?i)(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})`)
	bareYear        = regexp.MustCompile(`\d{4}`)
)

var monthNumbers = map[string]int{
	"january":   1,
	"february":  2,
	"march":     3,
	"april":     4,
	"may":       5,
	"june":      6,
	"july":      7,
	"august":    8,
	"september": 9,
	"october":   10,
	"november":  11,
	"december":  12,
}

// ExtractPeriod parses a free-text billing period ("2024-03", "03/15/2024",
// "January 2024", ...) into a year and optional month. It never fails: with no
// recognizable date it falls back to the first bare 4-digit number in the string
// (which may be an invoice number rather than the billing year), and with no
// digits at all it defaults to the current calendar year.
func ExtractPeriod(period string) Period {
	return extractPeriodAt(period, time.Now())
}

func extractPeriodAt(period string, now time.Time) Period {
	if m := isoPeriod.FindStringSubmatch(period); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return Period{Year: year, Month: month}
	}
	if m := slashPeriod.FindStringSubmatch(period); m != nil {
		year, _ := strconv.Atoi(m[3])
		month, _ := strconv.Atoi(m[1])
		return Period{Year: year, Month: month}
	}
	if m := monthNamePeriod.FindStringSubmatch(period); m != nil {
		year, _ := strconv.Atoi(m[2])
		return Period{Year: year, Month: monthNumbers[strings.ToLower(m[1])]}
	}
	if m := bareYear.FindString(period); m != "" {
		year, _ := strconv.Atoi(m)
		return Period{Year: year}
	}
	return Period{Year: now.Year()}
}
