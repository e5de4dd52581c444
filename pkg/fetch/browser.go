package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome before returning their
// markup. It is used for sources whose listings are built client side.
type BrowserFetcher struct {
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to wait after the body is ready for scripts to
	// finish rendering.
	Settle time.Duration
}

func NewBrowserFetcher() *BrowserFetcher {
	return &BrowserFetcher{
		UserAgent: DefaultUserAgent,
		Timeout:   45 * time.Second,
		Settle:    2 * time.Second,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	renderCtx, cancelRender := context.WithTimeout(browserCtx, f.Timeout)
	defer cancelRender()

	slog.Debug("rendering page", "url", url)

	var markup string
	err := chromedp.Run(renderCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.Sleep(f.Settle),
		chromedp.OuterHTML(`html`, &markup, chromedp.ByQuery),
	)
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("chromedp: %w", err)}
	}
	return markup, nil
}
