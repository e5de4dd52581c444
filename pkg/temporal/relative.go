package temporal

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/text/width"
)

var relativeRe = regexp.MustCompile(`(\d+)\s*(分|時間|日)前`)

var relativeUnits = map[string]time.Duration{
	"分":  time.Minute,
	"時間": time.Hour,
	"日":  24 * time.Hour,
}

// ParseRelative decodes phrases like "5分前", "3時間前" or "2日前".
func ParseRelative(text string) (time.Duration, bool) {
	m := relativeRe.FindStringSubmatch(width.Fold.String(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit, ok := relativeUnits[m[2]]
	if !ok {
		return 0, false
	}
	// Larger counts would overflow time.Duration and land in the future.
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// PostedAt resolves the relative phrase in text against now. Text without
// one is treated as just posted.
func PostedAt(text string, now time.Time) time.Time {
	d, ok := ParseRelative(text)
	if !ok {
		return now
	}
	return now.Add(-d)
}
