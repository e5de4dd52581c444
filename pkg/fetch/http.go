package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPFetcher fetches static pages with a colly collector. Each call runs on
// a clone so concurrent fetches never share callbacks.
type HTTPFetcher struct {
	base *colly.Collector
}

type HTTPOption func(*colly.Collector)

func WithUserAgent(ua string) HTTPOption {
	return func(c *colly.Collector) {
		c.UserAgent = ua
	}
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(c *colly.Collector) {
		c.SetRequestTimeout(d)
	}
}

func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	c := colly.NewCollector(
		colly.UserAgent(DefaultUserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	c.SetRequestTimeout(DefaultTimeout)
	for _, opt := range opts {
		opt(c)
	}
	return &HTTPFetcher{base: c}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	c := f.base.Clone()
	c.Context = ctx

	var body string
	var status int
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	slog.Debug("fetching page", "url", url)
	if err := c.Visit(url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		return "", &Error{URL: url, Status: status, Err: err}
	}
	return body, nil
}
