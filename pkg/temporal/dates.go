package temporal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

const (
	// RaffleMarker must appear in a text before any date in it is considered.
	RaffleMarker = "抽選"

	DefaultWindowDays = 31

	rolloverWindow = 31 * 24 * time.Hour
)

var (
	dateWithYearRe = regexp.MustCompile(`(20\d{2})\s*[./\-年]\s*(\d{1,2})\s*[./\-月]\s*(\d{1,2})\s*(?:日)?`)
	dateNoYearRe   = regexp.MustCompile(`(\d{1,2})\s*[./\-月]\s*(\d{1,2})\s*(?:日)?`)
)

type span struct {
	start, end int
}

// HasRaffleMarker reports whether text talks about a raffle at all.
func HasRaffleMarker(text string) bool {
	return strings.Contains(text, RaffleMarker)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// calendarDate builds a date at midnight in loc, rejecting values that
// time.Date would otherwise normalize (month 13, February 30, ...).
func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// ExtractDateCandidates returns every date mentioned in text. Dates with an
// explicit year are taken literally. Month/day dates get the current year,
// or next year when that lands within 31 days of now; a past date whose
// next-year variant is further out is kept as is.
func ExtractDateCandidates(text string, now time.Time) []time.Time {
	text = width.Fold.String(text)
	loc := now.Location()

	var candidates []time.Time
	var yearSpans []span
	for _, m := range dateWithYearRe.FindAllStringSubmatchIndex(text, -1) {
		year := atoi(text[m[2]:m[3]])
		month := atoi(text[m[4]:m[5]])
		day := atoi(text[m[6]:m[7]])
		d, ok := calendarDate(year, month, day, loc)
		if !ok {
			continue
		}
		candidates = append(candidates, d)
		yearSpans = append(yearSpans, span{m[0], m[1]})
	}

	for _, m := range dateNoYearRe.FindAllStringSubmatchIndex(text, -1) {
		if insideAny(m[0], yearSpans) {
			continue
		}
		month := atoi(text[m[2]:m[3]])
		day := atoi(text[m[4]:m[5]])
		d, ok := calendarDate(now.Year(), month, day, loc)
		if !ok {
			continue
		}
		if d.Before(now) {
			next, ok := calendarDate(now.Year()+1, month, day, loc)
			if ok && !next.After(now.Add(rolloverWindow)) {
				d = next
			}
		}
		candidates = append(candidates, d)
	}
	return candidates
}

func insideAny(pos int, spans []span) bool {
	for _, s := range spans {
		if s.start <= pos && pos < s.end {
			return true
		}
	}
	return false
}

// SelectUpcomingDate returns the earliest candidate within
// [now, now+windowDays].
func SelectUpcomingDate(candidates []time.Time, now time.Time, windowDays int) (time.Time, bool) {
	latest := now.Add(time.Duration(windowDays) * 24 * time.Hour)
	var upcoming []time.Time
	for _, c := range candidates {
		if c.Before(now) || c.After(latest) {
			continue
		}
		upcoming = append(upcoming, c)
	}
	if len(upcoming) == 0 {
		return time.Time{}, false
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Before(upcoming[j]) })
	return upcoming[0], true
}

// RaffleDate runs marker check, extraction and selection over one text.
func RaffleDate(text string, now time.Time) (time.Time, bool) {
	if !HasRaffleMarker(text) {
		return time.Time{}, false
	}
	return SelectUpcomingDate(ExtractDateCandidates(text, now), now, DefaultWindowDays)
}
