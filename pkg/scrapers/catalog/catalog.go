package catalog

import (
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/extract"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/identity"
	"bonbon-radar/pkg/links"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/outcome"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// PageCache memoizes parsed detail pages. A nil cache disables it.
type PageCache interface {
	Get(store, url string) (models.PageRecord, bool)
	Set(store string, rec models.PageRecord)
}

// Scraper turns one shop's listing into products: listing, pagination,
// detail discovery, extraction, acceptance.
type Scraper struct {
	Source  config.Source
	Fetcher fetch.Fetcher
	Cache   PageCache
	Now     func() time.Time

	detail *regexp.Regexp
}

func NewScraper(src config.Source, f fetch.Fetcher) (*Scraper, error) {
	s := &Scraper{Source: src, Fetcher: f, Now: time.Now}
	if src.DetailPattern != "" {
		re, err := regexp.Compile(src.DetailPattern)
		if err != nil {
			return nil, fmt.Errorf("source %s: detail pattern: %w", src.ID, err)
		}
		s.detail = re
	}
	return s, nil
}

func (s *Scraper) skip(url, reason string, err error) outcome.Outcome[models.Product] {
	return outcome.Skipped[models.Product](outcome.Skip{
		Source: s.Source.ID,
		URL:    url,
		Reason: reason,
		Err:    err,
	})
}

// Scrape walks the source once. Unit failures come back as skip outcomes;
// the returned error is only set when ctx is done.
func (s *Scraper) Scrape(ctx context.Context) ([]outcome.Outcome[models.Product], error) {
	listingURL := s.Source.ListingURL
	listing, err := s.Fetcher.Fetch(ctx, listingURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []outcome.Outcome[models.Product]{s.skip(listingURL, outcome.ReasonFetch, err)}, nil
	}

	var results []outcome.Outcome[models.Product]
	seen := identity.NewSeen()
	var details []string

	for _, pageURL := range s.pages(listing) {
		markup := listing
		if pageURL != listingURL {
			markup, err = s.Fetcher.Fetch(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				results = append(results, s.skip(pageURL, outcome.ReasonFetch, err))
				continue
			}
		}
		for _, link := range s.detailLinks(markup) {
			if seen.Add(link) {
				details = append(details, link)
			}
		}
	}

	if max := s.Source.MaxDetails; max > 0 && len(details) > max {
		details = details[:max]
	}
	slog.Debug("discovered detail pages", "source", s.Source.ID, "count", len(details))

	products, err := s.scrapeDetails(ctx, details)
	return append(results, products...), err
}

// pages returns the listing plus pagination links, sorted.
func (s *Scraper) pages(listing string) []string {
	pages := map[string]bool{s.Source.ListingURL: true}
	if len(s.Source.PageTokens) > 0 {
		for _, link := range links.Discover(listing, s.Source.ListingURL, s.Source.PageTokens) {
			if containsAll(link, s.Source.PageMustContain) {
				pages[link] = true
			}
			if s.Source.MaxPages > 0 && len(pages) >= s.Source.MaxPages {
				break
			}
		}
	}

	out := make([]string, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// detailLinks resolves against the listing url, not the page url.
func (s *Scraper) detailLinks(markup string) []string {
	found := links.Discover(markup, s.Source.ListingURL, s.Source.DetailTokens)
	if s.detail == nil {
		return found
	}
	out := found[:0]
	for _, link := range found {
		if s.detail.MatchString(link) {
			out = append(out, link)
		}
	}
	return out
}

func (s *Scraper) scrapeDetails(ctx context.Context, urls []string) ([]outcome.Outcome[models.Product], error) {
	slots := make([]outcome.Outcome[models.Product], len(urls))

	workers := s.Source.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, url := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.scrapeDetail(gctx, url)
			return gctx.Err()
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return compact(slots), err
	}
	return slots, nil
}

func (s *Scraper) scrapeDetail(ctx context.Context, url string) outcome.Outcome[models.Product] {
	rec, ok := s.cached(url)
	if !ok {
		markup, err := s.Fetcher.Fetch(ctx, url)
		if err != nil {
			return s.skip(url, outcome.ReasonFetch, err)
		}
		rec = extract.Parse(markup, url)
		if s.Cache != nil && rec.Name != "" {
			s.Cache.Set(s.Source.StoreID, rec)
		}
	}

	if rec.Name == "" {
		return s.skip(url, outcome.ReasonNoName, models.ErrProductNotFound)
	}
	if len(s.Source.NameContainsAny) > 0 && !containsAny(rec.Name, s.Source.NameContainsAny) {
		return s.skip(url, outcome.ReasonFiltered, nil)
	}
	if s.Source.InStockOnly && !rec.InStock {
		return s.skip(url, outcome.ReasonOutOfStock, nil)
	}
	return outcome.Of(s.product(rec))
}

func (s *Scraper) cached(url string) (models.PageRecord, bool) {
	if s.Cache == nil {
		return models.PageRecord{}, false
	}
	return s.Cache.Get(s.Source.StoreID, url)
}

func (s *Scraper) product(rec models.PageRecord) models.Product {
	description := rec.Description
	if description == "" {
		description = rec.Name
	}
	return models.Product{
		ID:          identity.MakeID(s.Source.ID, rec.URL),
		Name:        rec.Name,
		Category:    s.Source.Category,
		ImageURL:    rec.Image,
		Description: description,
		Prices: []models.PriceObservation{{
			StoreID:     s.Source.StoreID,
			StoreName:   s.Source.StoreName,
			Price:       rec.Price,
			InStock:     rec.InStock,
			Location:    models.OnlineLocation,
			URL:         rec.URL,
			LastUpdated: s.Now().UTC(),
		}},
	}
}

// compact drops slots never filled because the run was cancelled.
func compact(slots []outcome.Outcome[models.Product]) []outcome.Outcome[models.Product] {
	out := slots[:0]
	for _, o := range slots {
		if o.OK() && o.Value.ID == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

func containsAll(s string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
