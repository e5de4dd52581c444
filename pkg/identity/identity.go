package identity

import (
	"bonbon-radar/pkg/models"
	"crypto/md5"
	"encoding/hex"
	"sort"
)

// MakeID derives a stable id from a url: the source prefix joined with the
// first 10 hex characters of the url's md5.
func MakeID(prefix, url string) string {
	sum := md5.Sum([]byte(url))
	return prefix + "_" + hex.EncodeToString(sum[:])[:10]
}

// Seen is a set of urls already handled in the current run.
type Seen map[string]struct{}

func NewSeen() Seen {
	return Seen{}
}

// Add marks url as seen and reports whether it was new.
func (s Seen) Add(url string) bool {
	if _, ok := s[url]; ok {
		return false
	}
	s[url] = struct{}{}
	return true
}

// DedupProducts keeps the first product for every observation url.
func DedupProducts(products []models.Product) []models.Product {
	seen := NewSeen()
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if !seen.Add(p.URL()) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortProducts orders products by name, byte-wise.
func SortProducts(products []models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
}

// DedupPosts keeps the first post for every post url.
func DedupPosts(posts []models.SocialPost) []models.SocialPost {
	seen := NewSeen()
	out := make([]models.SocialPost, 0, len(posts))
	for _, p := range posts {
		if !seen.Add(p.PostURL) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortPostsByRecency orders posts newest first.
func SortPostsByRecency(posts []models.SocialPost) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PostedAt.After(posts[j].PostedAt)
	})
}

// MergePosts appends extra posts whose url is not already in feed.
func MergePosts(feed, extra []models.SocialPost) []models.SocialPost {
	seen := NewSeen()
	for _, p := range feed {
		seen.Add(p.PostURL)
	}
	for _, p := range extra {
		if !seen.Add(p.PostURL) {
			continue
		}
		feed = append(feed, p)
	}
	return feed
}
