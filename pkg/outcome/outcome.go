package outcome

import (
	"bonbon-radar/pkg/logger"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Skip reasons recorded in a run report.
const (
	ReasonFetch        = "fetch failed"
	ReasonNoName       = "no product name"
	ReasonFiltered     = "name filter"
	ReasonOutOfStock   = "out of stock"
	ReasonNoRaffleDate = "no raffle date"
)

// Skip describes a unit of work that produced nothing.
type Skip struct {
	Source string
	URL    string
	Reason string
	Err    error
}

func (s Skip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", s.Source, s.URL, s.Reason, s.Err)
	}
	return fmt.Sprintf("%s %s: %s", s.Source, s.URL, s.Reason)
}

// Outcome is the result of one page, detail link or keyword: either a value
// or the reason it was skipped.
type Outcome[T any] struct {
	Value T
	Skip  *Skip
}

func Of[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func Skipped[T any](s Skip) Outcome[T] {
	return Outcome[T]{Skip: &s}
}

func (o Outcome[T]) OK() bool {
	return o.Skip == nil
}

// Collect returns the values of successful outcomes in order and records
// every skip in r.
func Collect[T any](r *Report, outcomes []Outcome[T]) []T {
	out := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			r.Add(*o.Skip)
			continue
		}
		out = append(out, o.Value)
	}
	return out
}

// Report aggregates skips over a run. It is safe for concurrent use.
type Report struct {
	mu    sync.Mutex
	skips []Skip
}

func (r *Report) Add(s Skip) {
	r.mu.Lock()
	r.skips = append(r.skips, s)
	r.mu.Unlock()

	args := []any{"source", s.Source, "reason", s.Reason}
	if s.Err != nil {
		args = append(args, "err", s.Err)
	}
	logger.Dedup("skipped", args...)
}

func (r *Report) Skips() []Skip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Skip(nil), r.skips...)
}

// Counts groups skips by source and reason.
func (r *Report) Counts() map[string]map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]map[string]int{}
	for _, s := range r.skips {
		if counts[s.Source] == nil {
			counts[s.Source] = map[string]int{}
		}
		counts[s.Source][s.Reason]++
	}
	return counts
}

// Log writes one summary line per source and reason.
func (r *Report) Log() {
	logger.Flush()
	counts := r.Counts()
	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, source := range sources {
		reasons := make([]string, 0, len(counts[source]))
		for reason := range counts[source] {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			slog.Info("run report", "source", source, "reason", reason, "count", counts[source][reason])
		}
	}
}
