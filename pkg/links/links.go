package links

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Discover collects absolute urls of anchors whose href contains any of the
// tokens. When the markup has no such anchors (links built by scripts, for
// example) the raw text is scanned for token-prefixed strings instead.
// The result is deduplicated and sorted.
func Discover(markup, baseURL string, tokens []string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	found := map[string]struct{}{}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if !containsAny(href, tokens) {
				return
			}
			if abs, ok := resolve(base, href); ok {
				found[abs] = struct{}{}
			}
		})
	}

	if len(found) == 0 {
		for _, token := range tokens {
			if token == "" {
				continue
			}
			re := regexp.MustCompile(regexp.QuoteMeta(token) + `[^"'\s>]*`)
			for _, match := range re.FindAllString(markup, -1) {
				if abs, ok := resolve(base, match); ok {
					found[abs] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(found))
	for link := range found {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) (string, bool) {
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	return u.String(), true
}
