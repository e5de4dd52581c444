package pipeline

import (
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/identity"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/outcome"
	"bonbon-radar/pkg/scrapers/catalog"
	"bonbon-radar/pkg/scrapers/raffle"
	"bonbon-radar/pkg/scrapers/realtime"
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const RealtimeSource = "realtime"

// Result is everything one run produces.
type Result struct {
	Products []models.Product
	Posts    []models.SocialPost
	Report   *outcome.Report
}

// Pipeline drives one bounded pass over every configured source.
type Pipeline struct {
	Config  config.Config
	Fetcher fetch.Fetcher
	// Renderer serves sources with render set. Nil falls back to Fetcher.
	Renderer fetch.Fetcher
	Cache    catalog.PageCache
	Now      func() time.Time
}

func New(cfg config.Config, f fetch.Fetcher) *Pipeline {
	return &Pipeline{Config: cfg, Fetcher: f, Now: time.Now}
}

// Run collects products, then the social feed, then raffle posts. Failures
// of single pages or keywords end up in the report; only cancellation
// stops the run with an error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{Report: &outcome.Report{}}

	products, err := p.Products(ctx, res.Report)
	if err != nil {
		return res, err
	}
	res.Products = products

	feed, err := p.SocialPosts(ctx, res.Report)
	if err != nil {
		return res, err
	}

	raffles, err := p.RafflePosts(ctx, res.Report)
	if err != nil {
		return res, err
	}
	res.Posts = identity.MergePosts(feed, raffles)

	slog.Info("run finished", "products", len(res.Products), "posts", len(res.Posts), "skipped", len(res.Report.Skips()))
	return res, nil
}

func (p *Pipeline) fetcherFor(src config.Source) fetch.Fetcher {
	if src.Render && p.Renderer != nil {
		return p.Renderer
	}
	return p.Fetcher
}

// Products scrapes every source in configuration order, keeps the first
// product per url and sorts by name.
func (p *Pipeline) Products(ctx context.Context, report *outcome.Report) ([]models.Product, error) {
	var all []models.Product
	for _, src := range p.Config.Sources {
		s, err := catalog.NewScraper(src, p.fetcherFor(src))
		if err != nil {
			return nil, err
		}
		s.Cache = p.Cache
		s.Now = p.Now

		outcomes, err := s.Scrape(ctx)
		products := outcome.Collect(report, outcomes)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		slog.Info("source scraped", "source", src.ID, "products", len(products))
		all = append(all, products...)
	}

	all = identity.DedupProducts(all)
	identity.SortProducts(all)
	return all, nil
}

// SocialPosts runs one realtime search per keyword, pausing the configured
// interval after each one, and returns the deduplicated feed newest first.
func (p *Pipeline) SocialPosts(ctx context.Context, report *outcome.Report) ([]models.SocialPost, error) {
	s := realtime.NewScraper(p.Config, p.Fetcher)
	s.Now = p.Now
	pause := newPacer(p.Config.Realtime.Interval())

	var feed []models.SocialPost
	for _, keyword := range p.Config.SearchKeywords() {
		if err := pause.Wait(ctx); err != nil {
			return nil, err
		}
		posts, err := s.Search(ctx, keyword)
		pause.Done()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Add(outcome.Skip{Source: RealtimeSource, URL: keyword, Reason: outcome.ReasonFetch, Err: err})
			continue
		}
		feed = append(feed, posts...)
	}

	feed = identity.DedupPosts(feed)
	identity.SortPostsByRecency(feed)
	slog.Info("social feed collected", "posts", len(feed))
	return feed, nil
}

// RafflePosts runs the raffle search. A failed search contributes nothing.
func (p *Pipeline) RafflePosts(ctx context.Context, report *outcome.Report) ([]models.SocialPost, error) {
	s := raffle.NewScraper(p.Config, p.Fetcher)
	s.Now = p.Now

	outcomes, err := s.Posts(ctx)
	posts := outcome.Collect(report, outcomes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Add(outcome.Skip{Source: raffle.Source, URL: s.Query, Reason: outcome.ReasonFetch, Err: err})
		return nil, nil
	}
	slog.Info("raffle posts collected", "posts", len(posts))
	return posts, nil
}

// pacer keeps at least one interval between the end of a request and the
// start of the next.
type pacer struct {
	every   rate.Limit
	limiter *rate.Limiter
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{every: rate.Every(interval)}
}

// Done starts the pause. The bucket is refilled from empty so the wait is
// measured from now, however long the request took.
func (p *pacer) Done() {
	p.limiter = rate.NewLimiter(p.every, 1)
	p.limiter.Allow()
}

func (p *pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
