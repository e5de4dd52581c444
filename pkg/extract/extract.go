package extract

import (
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/textnorm"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var yenRe = regexp.MustCompile(`([0-9,]+)\s*円`)

// page is the parsed input every strategy reads from.
type page struct {
	url    string
	markup string
	doc    *goquery.Document
	node   map[string]any
	offer  map[string]any
}

// strategy yields a field value, or false when it has nothing to offer.
type strategy[T any] func(p *page) (T, bool)

func firstOf[T any](p *page, strategies []strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(p); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var (
	nameStrategies = []strategy[string]{
		nodeText("name"),
		titleText,
	}
	descriptionStrategies = []strategy[string]{
		nodeText("description"),
		metaText("description"),
	}
	imageStrategies = []strategy[string]{
		nodeImage,
		metaRaw("og:image"),
	}
	priceStrategies = []strategy[float64]{
		offerPrice,
		yenInMarkup,
	}
)

func nodeText(key string) strategy[string] {
	return func(p *page) (string, bool) {
		v := textnorm.CollapseWhitespace(stringField(p.node, key))
		return v, v != ""
	}
}

func titleText(p *page) (string, bool) {
	v := textnorm.CollapseWhitespace(p.doc.Find("title").First().Text())
	return v, v != ""
}

// meta looks the key up as a property first and as a name second.
func meta(p *page, key string) string {
	if s := p.doc.Find(`meta[property="` + key + `"]`).First(); s.Length() > 0 {
		return s.AttrOr("content", "")
	}
	return p.doc.Find(`meta[name="` + key + `"]`).First().AttrOr("content", "")
}

func metaText(key string) strategy[string] {
	return func(p *page) (string, bool) {
		v := textnorm.CollapseWhitespace(meta(p, key))
		return v, v != ""
	}
}

func metaRaw(key string) strategy[string] {
	return func(p *page) (string, bool) {
		v := meta(p, key)
		return v, v != ""
	}
}

func nodeImage(p *page) (string, bool) {
	if p.node == nil {
		return "", false
	}
	switch t := p.node["image"].(type) {
	case string:
		return t, t != ""
	case []any:
		if len(t) == 0 {
			return "", false
		}
		s, ok := t[0].(string)
		return s, ok && s != ""
	}
	return "", false
}

func offerPrice(p *page) (float64, bool) {
	if p.offer == nil {
		return 0, false
	}
	return textnorm.ParsePrice(p.offer["price"])
}

func yenInMarkup(p *page) (float64, bool) {
	m := yenRe.FindStringSubmatch(p.markup)
	if m == nil {
		return 0, false
	}
	return textnorm.ParsePrice(m[1])
}

func offerAvailability(p *page) bool {
	if p.offer == nil {
		return textnorm.ParseStockFlag(nil)
	}
	return textnorm.ParseStockFlag(p.offer["availability"])
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return r.String()
}

func newPage(markup, pageURL string) *page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	p := &page{url: pageURL, markup: markup, doc: doc}
	p.node = productNode(doc)
	if p.node != nil {
		p.offer = firstOffer(p.node)
	}
	return p
}

// Parse pulls a product record out of a detail page. It never fails: every
// field falls back to an empty or default value.
func Parse(markup, pageURL string) models.PageRecord {
	p := newPage(markup, pageURL)

	record := models.PageRecord{URL: pageURL}
	record.Name, _ = firstOf(p, nameStrategies)
	record.Description, _ = firstOf(p, descriptionStrategies)
	if image, ok := firstOf(p, imageStrategies); ok {
		record.Image = resolve(pageURL, image)
	}
	record.Price, _ = firstOf(p, priceStrategies)
	record.InStock = offerAvailability(p)
	if textnorm.IsSoldOut(markup) {
		record.InStock = false
	}
	return record
}
