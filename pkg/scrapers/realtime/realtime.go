package realtime

import (
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/identity"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/temporal"
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	statusLinkRe = regexp.MustCompile(`https://(?:twitter\.com|x\.com)/[^/]+/status/\d+`)
	handleRe     = regexp.MustCompile(`/(?:twitter\.com|x\.com)/([^/]+)/status/`)
	statusIDRe   = regexp.MustCompile(`/status/(\d+)`)
)

// Scraper reads a realtime search results page and turns every linked
// status into a post.
type Scraper struct {
	Fetcher       fetch.Fetcher
	SearchURL     string
	MaxPerKeyword int
	// Window is how many characters on each side of a status link are
	// searched for its relative time.
	Window        int
	Stores        []string
	Cities        []config.CityPrefecture
	Now           func() time.Time
}

func NewScraper(cfg config.Config, f fetch.Fetcher) *Scraper {
	return &Scraper{
		Fetcher:       f,
		SearchURL:     cfg.Realtime.SearchURL,
		MaxPerKeyword: cfg.Realtime.MaxPerKeyword,
		Window:        cfg.Realtime.WindowChars,
		Stores:        cfg.Keywords.Stores,
		Cities:        cfg.CityPrefectures,
		Now:           time.Now,
	}
}

// Search fetches the results page for keyword. The only error is a fetch
// failure.
func (s *Scraper) Search(ctx context.Context, keyword string) ([]models.SocialPost, error) {
	markup, err := s.Fetcher.Fetch(ctx, config.SearchURL(s.SearchURL, keyword))
	if err != nil {
		return nil, err
	}
	return s.Parse(markup, keyword, s.Now().UTC()), nil
}

// Parse extracts up to MaxPerKeyword posts in page order, one per distinct
// status link. The posted time is decoded from the text around each link.
func (s *Scraper) Parse(markup, keyword string, now time.Time) []models.SocialPost {
	store := s.InferStore(keyword)
	location := s.InferLocation(keyword)

	var posts []models.SocialPost
	seen := identity.NewSeen()
	for _, loc := range statusLinkRe.FindAllStringIndex(markup, -1) {
		link := markup[loc[0]:loc[1]]
		if !seen.Add(link) {
			continue
		}

		window := around(markup, loc[0], loc[1], s.Window)
		id := "x_" + statusID(link)
		posts = append(posts, models.SocialPost{
			ID:        id,
			Type:      models.PostTypeTwitter,
			ProductID: id,
			Username:  username(link),
			Content:   keyword + " に関する投稿",
			PostURL:   link,
			PostedAt:  temporal.PostedAt(window, now),
			StoreName: store,
			Location:  location,
		})

		if s.MaxPerKeyword > 0 && len(posts) >= s.MaxPerKeyword {
			break
		}
	}
	return posts
}

// InferStore returns the first configured store name found in keyword.
func (s *Scraper) InferStore(keyword string) *string {
	for _, store := range s.Stores {
		if strings.Contains(keyword, store) {
			return &store
		}
	}
	return nil
}

// InferLocation returns the prefecture of the first configured city found
// in keyword.
func (s *Scraper) InferLocation(keyword string) *string {
	for _, c := range s.Cities {
		if strings.Contains(keyword, c.City) {
			pref := c.Prefecture
			return &pref
		}
	}
	return nil
}

// around returns markup[start:end] widened by n runes on each side.
func around(markup string, start, end, n int) string {
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(markup[:start])
		start -= size
	}
	for i := 0; i < n && end < len(markup); i++ {
		_, size := utf8.DecodeRuneInString(markup[end:])
		end += size
	}
	return markup[start:end]
}

func username(link string) string {
	if m := handleRe.FindStringSubmatch(link); m != nil {
		return "@" + m[1]
	}
	return "@unknown"
}

func statusID(link string) string {
	if m := statusIDRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return identity.MakeID("x", link)
}
