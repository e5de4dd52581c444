package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	DefaultTimeout   = 20 * time.Second
)

var ErrFetch = errors.New("fetch failed")

// Fetcher retrieves the decoded body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Error is returned for every failed fetch: transport errors, timeouts and
// non-2xx responses alike. Status is 0 when no response arrived.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrFetch
}
