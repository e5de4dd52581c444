package catalog

import (
	"bonbon-radar/pkg/config"
	"bonbon-radar/pkg/fetch"
	"bonbon-radar/pkg/models"
	"bonbon-radar/pkg/outcome"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const detailWithJSONLD = `<!DOCTYPE html>
<html>
<head>
    <title>ショップ</title>
    <script type="application/ld+json">
    {"@context":"https://schema.org","@graph":[{"@type":"BreadcrumbList"},{"@type":["Product"],"name":"ボンボンドロップシール ハローキティ","image":["/img/kitty.png"],"offers":{"@type":"Offer","price":"¥2,500","availability":"https://schema.org/InStock"}}]}
    </script>
</head>
<body></body>
</html>`

func TestScraper_Scrape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Logf("Received request for: %s", r.URL.RequestURI())

		switch r.URL.RequestURI() {
		case "/item?category_id=130":
			fmt.Fprint(w, `<a href="/item?category_id=130&page=2">2</a>
<a href="/news?page=9">news</a>
<a href="/item/detail/2">b</a>
<a href="/item/detail/1">a</a>`)
		case "/item?category_id=130&page=2":
			fmt.Fprint(w, `<a href="/item/detail/1">a</a><a href="/item/detail/3">c</a>`)
		case "/item/detail/1":
			fmt.Fprint(w, detailWithJSONLD)
		case "/item/detail/3":
			fmt.Fprint(w, `<html><head><title> シール  マイメロディ </title></head><body>1,320円 SOLD OUT</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	src := config.Source{
		ID:              "sanrio",
		Category:        "サンリオ",
		StoreID:         "sanrio_official",
		StoreName:       "サンリオ公式オンラインショップ",
		ListingURL:      ts.URL + "/item?category_id=130",
		PageTokens:      []string{"category_id=130", "page="},
		PageMustContain: []string{"category_id=130"},
		MaxPages:        5,
		DetailTokens:    []string{"/item/detail/"},
	}
	scraper, err := NewScraper(src, fetch.NewHTTPFetcher())
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("JST", 9*3600))
	scraper.Now = func() time.Time { return now }

	results, err := scraper.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 outcomes, got %d: %+v", len(results), results)
	}

	kitty := results[0]
	if !kitty.OK() {
		t.Fatalf("expected product, got skip %v", kitty.Skip)
	}
	if kitty.Value.Name != "ボンボンドロップシール ハローキティ" {
		t.Errorf("unexpected name %q", kitty.Value.Name)
	}
	if kitty.Value.Description != kitty.Value.Name {
		t.Errorf("description should fall back to name, got %q", kitty.Value.Description)
	}
	if kitty.Value.ImageURL != ts.URL+"/img/kitty.png" {
		t.Errorf("unexpected image %q", kitty.Value.ImageURL)
	}
	obs := kitty.Value.Prices[0]
	if obs.Price != 2500 || !obs.InStock {
		t.Errorf("expected 2500 in stock, got %v %v", obs.Price, obs.InStock)
	}
	if obs.Location != models.OnlineLocation || obs.StoreID != "sanrio_official" {
		t.Errorf("unexpected observation %+v", obs)
	}
	if !obs.LastUpdated.Equal(now) || obs.LastUpdated.Location() != time.UTC {
		t.Errorf("lastUpdated should be run time in UTC, got %v", obs.LastUpdated)
	}

	missing := results[1]
	if missing.OK() || missing.Skip.Reason != outcome.ReasonFetch {
		t.Fatalf("expected fetch skip for detail 2, got %+v", missing)
	}
	var fe *fetch.Error
	if !errors.As(missing.Skip.Err, &fe) || fe.Status != http.StatusNotFound {
		t.Errorf("expected 404 fetch error, got %v", missing.Skip.Err)
	}

	soldOut := results[2]
	if !soldOut.OK() {
		t.Fatalf("expected product, got skip %v", soldOut.Skip)
	}
	if soldOut.Value.Name != "シール マイメロディ" {
		t.Errorf("unexpected name %q", soldOut.Value.Name)
	}
	if soldOut.Value.Prices[0].Price != 1320 || soldOut.Value.Prices[0].InStock {
		t.Errorf("expected 1320 sold out, got %+v", soldOut.Value.Prices[0])
	}
}

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newMapFetcher(pages map[string]string) *mapFetcher {
	return &mapFetcher{pages: pages, calls: map[string]int{}}
}

func (f *mapFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.pages[url]
	if !ok {
		return "", &fetch.Error{URL: url, Status: http.StatusNotFound, Err: errors.New("Not Found")}
	}
	return body, nil
}

func titled(name string) string {
	return "<html><head><title>" + name + "</title></head><body>500円</body></html>"
}

func TestScraper_PatternCapAndFilter(t *testing.T) {
	base := "https://tamagotchi.example/jp/item/"
	f := newMapFetcher(map[string]string{
		base:           `<a href="/jp/item/24_3/">c</a><a href="/jp/item/24_1/">a</a><a href="/jp/item/24_2/">b</a><a href="/jp/item/category/">x</a>`,
		base + "24_1/": titled("たまごっち ダイカットステッカー"),
		base + "24_2/": titled("たまごっち Tシャツ"),
		base + "24_3/": titled("たまごっち シール"),
	})

	src := config.Source{
		ID:              "tamagotchi",
		StoreID:         "tamagotchi_official",
		ListingURL:      base,
		DetailTokens:    []string{"/jp/item/"},
		DetailPattern:   `/jp/item/\d{2}_\d+/?$`,
		MaxDetails:      2,
		NameContainsAny: []string{"シール", "ステッカー", "ダイカット"},
	}
	scraper, err := NewScraper(src, f)
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}

	results, err := scraper.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(results))
	}
	if !results[0].OK() || results[0].Value.Prices[0].URL != base+"24_1/" {
		t.Errorf("unexpected first outcome %+v", results[0])
	}
	if results[1].OK() || results[1].Skip.Reason != outcome.ReasonFiltered {
		t.Errorf("expected name filter skip, got %+v", results[1])
	}
	if f.calls[base+"24_3/"] != 0 {
		t.Error("detail beyond the cap should not be fetched")
	}
	if f.calls[base+"category/"] != 0 {
		t.Error("link not matching the detail pattern should not be fetched")
	}
}

func TestScraper_InStockOnly(t *testing.T) {
	listing := "https://qlia.example/?mode=cate&cbid=1&csid=16"
	f := newMapFetcher(map[string]string{
		listing:                       `<a href="?pid=1">a</a><a href="?pid=2">b</a><a href="?mode=cate&cbid=1&csid=16&page=2">2</a><a href="?mode=cate&cbid=9&page=2">other</a>`,
		listing + "&page=2":           `<a href="?pid=3">c</a>`,
		"https://qlia.example/?pid=1": titled("ボンボンドロップシール A"),
		"https://qlia.example/?pid=2": "<title>ボンボンドロップシール B</title><p>売り切れ</p>",
	})

	src := config.Source{
		ID:              "bonbondrop",
		StoreID:         "bonbondrop_official",
		ListingURL:      listing,
		PageTokens:      []string{"page=", "pno="},
		PageMustContain: []string{"cbid=1", "csid=16"},
		MaxPages:        5,
		DetailTokens:    []string{"?pid="},
		InStockOnly:     true,
	}
	scraper, err := NewScraper(src, f)
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}

	results, err := scraper.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	var r outcome.Report
	products := outcome.Collect(&r, results)
	if len(products) != 1 || products[0].Name != "ボンボンドロップシール A" {
		t.Fatalf("unexpected products %+v", products)
	}
	counts := r.Counts()["bonbondrop"]
	if counts[outcome.ReasonOutOfStock] != 1 || counts[outcome.ReasonFetch] != 1 {
		t.Errorf("unexpected skip counts %v", counts)
	}
	if f.calls["https://qlia.example/?mode=cate&cbid=9&page=2"] != 0 {
		t.Error("pagination outside the category should not be fetched")
	}
}

func TestScraper_ListingFailure(t *testing.T) {
	src := config.Source{ID: "sanrio", ListingURL: "https://down.example/", DetailTokens: []string{"/item/"}}
	scraper, err := NewScraper(src, newMapFetcher(nil))
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}

	results, err := scraper.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(results) != 1 || results[0].OK() || results[0].Skip.URL != "https://down.example/" {
		t.Fatalf("expected one listing skip, got %+v", results)
	}
}

type memCache struct {
	mu   sync.Mutex
	recs map[string]models.PageRecord
}

func (c *memCache) Get(store, url string) (models.PageRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.recs[store+" "+url]
	return rec, ok
}

func (c *memCache) Set(store string, rec models.PageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[store+" "+rec.URL] = rec
}

func TestScraper_CacheAndWorkers(t *testing.T) {
	base := "https://shop.example/"
	pages := map[string]string{base: ""}
	for i := 0; i < 20; i++ {
		url := fmt.Sprintf("%sitem/detail/%02d", base, i)
		pages[base] += fmt.Sprintf(`<a href="%s">%d</a>`, url, i)
		pages[url] = titled(fmt.Sprintf("シール %02d", i))
	}
	f := newMapFetcher(pages)

	cache := &memCache{recs: map[string]models.PageRecord{
		"shop " + base + "item/detail/00": {Name: "cached シール", URL: base + "item/detail/00", InStock: true},
	}}

	src := config.Source{ID: "shop", StoreID: "shop", ListingURL: base, DetailTokens: []string{"/item/detail/"}, Workers: 4}
	scraper, err := NewScraper(src, f)
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}
	scraper.Cache = cache

	results, err := scraper.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(results) != 20 {
		t.Fatalf("expected 20 outcomes, got %d", len(results))
	}
	if results[0].Value.Name != "cached シール" {
		t.Errorf("expected cached record first, got %q", results[0].Value.Name)
	}
	for i := 1; i < 20; i++ {
		if want := fmt.Sprintf("シール %02d", i); results[i].Value.Name != want {
			t.Errorf("slot %d: got %q, want %q", i, results[i].Value.Name, want)
		}
	}
	if f.calls[base+"item/detail/00"] != 0 {
		t.Error("cached detail page should not be fetched")
	}
	if _, ok := cache.Get("shop", base+"item/detail/07"); !ok {
		t.Error("fetched detail page should be cached")
	}
}

func TestScraper_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := config.Source{ID: "sanrio", ListingURL: "https://shop.example/", DetailTokens: []string{"/item/"}}
	scraper, err := NewScraper(src, fetch.NewHTTPFetcher())
	if err != nil {
		t.Fatalf("NewScraper failed: %v", err)
	}
	if _, err := scraper.Scrape(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
