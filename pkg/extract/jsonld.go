package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// productNode returns the first linked-data node typed as a Product, or nil.
func productNode(doc *goquery.Document) map[string]any {
	var found map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}
		for _, node := range flatten(data) {
			if isProduct(node) {
				found = node
				return false
			}
		}
		return true
	})
	return found
}

// flatten unwraps lists and @graph containers into plain nodes.
func flatten(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := t["@graph"].([]any); ok {
			return flatten(graph)
		}
		return []map[string]any{t}
	}
	return nil
}

func isProduct(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == "Product"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

// firstOffer returns the offers object, taking the first entry of a list.
func firstOffer(node map[string]any) map[string]any {
	switch t := node["offers"].(type) {
	case map[string]any:
		return t
	case []any:
		if len(t) == 0 {
			return nil
		}
		offer, _ := t[0].(map[string]any)
		return offer
	}
	return nil
}

func stringField(node map[string]any, key string) string {
	if node == nil {
		return ""
	}
	s, _ := node[key].(string)
	return s
}
