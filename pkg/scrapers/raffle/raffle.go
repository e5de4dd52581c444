package raffle

import (
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/extract"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/identity"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/outcome"
	"bonbon-radar/pkg/temporal"
	"bonbon-radar/pkg/textnorm"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	Source   = "raffle"
	Username = "抽選情報"
)

// JST is the zone raffle posts are stamped in.
var JST = time.FixedZone("JST", 9*60*60)

// Scraper searches the web for raffle announcements and keeps the ones
// that name an upcoming draw date.
type Scraper struct {
	Fetcher    fetch.Fetcher
	SearchURL  string
	Query      string
	MaxResults int
	WindowDays int
	Now        func() time.Time
}

func NewScraper(cfg config.Config, f fetch.Fetcher) *Scraper {
	return &Scraper{
		Fetcher:    f,
		SearchURL:  cfg.Raffle.SearchURL,
		Query:      cfg.Raffle.Query,
		MaxResults: cfg.Raffle.MaxResults,
		WindowDays: cfg.Raffle.WindowDays,
		Now:        time.Now,
	}
}

// Search runs the configured query and returns the parsed hits.
func (s *Scraper) Search(ctx context.Context) ([]models.SearchResult, error) {
	markup, err := s.Fetcher.Fetch(ctx, config.SearchURL(s.SearchURL, s.Query))
	if err != nil {
		return nil, err
	}
	return ParseResults(markup, s.MaxResults), nil
}

// ParseResults reads a search engine results page. Redirect links are
// unwrapped and non-http targets dropped.
func ParseResults(markup string, max int) []models.SearchResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	var results []models.SearchResult
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return true
		}
		target := UnwrapRedirect(href)
		if !strings.HasPrefix(target, "http") {
			return true
		}
		results = append(results, models.SearchResult{
			Title:   textnorm.CollapseWhitespace(link.Text()),
			URL:     target,
			Snippet: textnorm.CollapseWhitespace(sel.Find(".result__snippet").First().Text()),
		})
		return max <= 0 || len(results) < max
	})
	return results
}

// UnwrapRedirect returns the destination of a search engine redirect link
// (/l/?uddg=...), or raw unchanged.
func UnwrapRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasSuffix(u.Host, "duckduckgo.com") || u.Path != "/l/" {
		return raw
	}
	target := u.Query().Get("uddg")
	if target == "" {
		return raw
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		return unescaped
	}
	return target
}

// Date infers the draw date of a hit: first from its title and snippet, then
// from the linked page's visible text. Both must mention a raffle.
func (s *Scraper) Date(ctx context.Context, r models.SearchResult, now time.Time) (time.Time, bool, error) {
	combined := r.Title + " " + r.Snippet
	if !temporal.HasRaffleMarker(combined) {
		return time.Time{}, false, nil
	}
	if d, ok := s.upcoming(combined, now); ok {
		return d, true, nil
	}

	markup, err := s.Fetcher.Fetch(ctx, r.URL)
	if err != nil {
		return time.Time{}, false, err
	}
	text := extract.VisibleText(markup)
	if !temporal.HasRaffleMarker(text) {
		return time.Time{}, false, nil
	}
	d, ok := s.upcoming(text, now)
	return d, ok, nil
}

func (s *Scraper) upcoming(text string, now time.Time) (time.Time, bool) {
	return temporal.SelectUpcomingDate(temporal.ExtractDateCandidates(text, now), now, s.WindowDays)
}

// Posts turns search hits into raffle posts. A failed search is returned as
// an error; per-hit failures come back as skips.
func (s *Scraper) Posts(ctx context.Context) ([]outcome.Outcome[models.SocialPost], error) {
	results, err := s.Search(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Now().In(JST)
	seen := identity.NewSeen()
	var out []outcome.Outcome[models.SocialPost]
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !seen.Add(r.URL) {
			continue
		}

		date, ok, err := s.Date(ctx, r, now)
		if err != nil {
			out = append(out, outcome.Skipped[models.SocialPost](outcome.Skip{
				Source: Source, URL: r.URL, Reason: outcome.ReasonFetch, Err: err,
			}))
			continue
		}
		if !ok {
			out = append(out, outcome.Skipped[models.SocialPost](outcome.Skip{
				Source: Source, URL: r.URL, Reason: outcome.ReasonNoRaffleDate,
			}))
			continue
		}
		out = append(out, outcome.Of(Post(r, date, now)))
	}
	return out, nil
}

// Post builds the feed entry for a hit with a known draw date.
func Post(r models.SearchResult, date, now time.Time) models.SocialPost {
	id := identity.MakeID(Source, r.URL)
	return models.SocialPost{
		ID:        id,
		Type:      models.PostTypeOther,
		ProductID: id,
		Username:  Username,
		Content:   fmt.Sprintf("抽選情報: %s / 抽選日: %s", r.Title, date.Format(time.DateOnly)),
		PostURL:   r.URL,
		PostedAt:  now,
	}
}
