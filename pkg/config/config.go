package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

//go:embed default_config.json5
var defaultConfig []byte

// QueryPlaceholder is replaced by the escaped search term in search urls.
const QueryPlaceholder = "{query}"

type Source struct {
	// ID prefixes every product id built from this source.
	ID        string `json:"id"`
	Category  string `json:"category"`
	StoreID   string `json:"storeId"`
	StoreName string `json:"storeName"`

	ListingURL      string   `json:"listingUrl"`
	PageTokens      []string `json:"pageTokens"`
	PageMustContain []string `json:"pageMustContain"`
	MaxPages        int      `json:"maxPages"`
	DetailTokens    []string `json:"detailTokens"`
	DetailPattern   string   `json:"detailPattern"`
	MaxDetails      int      `json:"maxDetails"`

	NameContainsAny []string `json:"nameContainsAny"`
	InStockOnly     bool     `json:"inStockOnly"`

	// Render fetches pages through a headless browser.
	Render  bool `json:"render"`
	Workers int  `json:"workers"`
}

type CacheConfig struct {
	DBPath     string `json:"dbPath"`
	TTLMinutes int    `json:"ttlMinutes"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type Keywords struct {
	Product string   `json:"product"`
	Topics  []string `json:"topics"`
	Stores  []string `json:"stores"`
	Cities  []string `json:"cities"`
}

type CityPrefecture struct {
	City       string `json:"city"`
	Prefecture string `json:"prefecture"`
}

type Realtime struct {
	SearchURL      string `json:"searchUrl"`
	MaxPerKeyword  int    `json:"maxPerKeyword"`
	WindowChars    int    `json:"windowChars"`
	IntervalMillis int    `json:"intervalMillis"`
}

func (r Realtime) Interval() time.Duration {
	return time.Duration(r.IntervalMillis) * time.Millisecond
}

type Raffle struct {
	SearchURL  string `json:"searchUrl"`
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
	WindowDays int    `json:"windowDays"`
}

type Config struct {
	OutputDir             string `json:"outputDir"`
	UserAgent             string `json:"userAgent"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`

	Cache           CacheConfig      `json:"cache"`
	Sources         []Source         `json:"sources"`
	Keywords        Keywords         `json:"keywords"`
	CityPrefectures []CityPrefecture `json:"cityPrefectures"`
	Realtime        Realtime         `json:"realtime"`
	Raffle          Raffle           `json:"raffle"`
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SearchKeywords lists every realtime search term: topic keywords first,
// then store keywords, then each topic keyword paired with every city.
func (c Config) SearchKeywords() []string {
	k := c.Keywords
	topics := make([]string, 0, len(k.Topics))
	for _, t := range k.Topics {
		topics = append(topics, k.Product+" "+t)
	}

	out := make([]string, 0, len(topics)*(1+len(k.Cities))+len(k.Stores))
	out = append(out, topics...)
	for _, s := range k.Stores {
		out = append(out, k.Product+" "+s)
	}
	for _, city := range k.Cities {
		for _, t := range topics {
			out = append(out, t+" "+city)
		}
	}
	return out
}

// SearchURL substitutes the escaped query into a search url template.
func SearchURL(template, query string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return strings.ReplaceAll(template, QueryPlaceholder, escaped)
}

func Default() (Config, error) {
	var cfg Config
	if err := json5.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse default config: %w", err)
	}
	return cfg, nil
}

// Load builds the run configuration from the embedded defaults, the optional
// file at path and its <name>.local.<ext> sibling, then the environment.
func Load(path string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}

	if path != "" {
		for _, name := range []string{path, localName(path)} {
			if err := mergeFile(&cfg, name, name == path); err != nil {
				return Config{}, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func localName(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+".local"+ext)
}

func mergeFile(cfg *Config, name string, required bool) error {
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", name, err)
	}

	var override Config
	if err := json5.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config %s: %w", name, err)
	}
	slog.Info("merged config overrides", "file", name)
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("RADAR_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("RADAR_CACHE_DB_PATH"); v != "" {
		cfg.Cache.DBPath = v
	}
	if v := os.Getenv("RADAR_CACHE_TTL_MINUTES"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RADAR_CACHE_TTL_MINUTES: %w", err)
		}
		cfg.Cache.TTLMinutes = m
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, s := range c.Sources {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: missing id", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true

		if err := checkURL(s.ListingURL); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d] %s: listingUrl: %w", i, s.ID, err))
		}
		if len(s.DetailTokens) == 0 {
			errs = append(errs, fmt.Errorf("sources[%d] %s: no detailTokens", i, s.ID))
		}
		if s.DetailPattern != "" {
			if _, err := regexp.Compile(s.DetailPattern); err != nil {
				errs = append(errs, fmt.Errorf("sources[%d] %s: detailPattern: %w", i, s.ID, err))
			}
		}
		if s.Workers < 0 {
			errs = append(errs, fmt.Errorf("sources[%d] %s: negative workers", i, s.ID))
		}
	}

	for _, tmpl := range []struct{ name, url string }{
		{"realtime.searchUrl", c.Realtime.SearchURL},
		{"raffle.searchUrl", c.Raffle.SearchURL},
	} {
		if !strings.Contains(tmpl.url, QueryPlaceholder) {
			errs = append(errs, fmt.Errorf("%s: missing %s placeholder", tmpl.name, QueryPlaceholder))
			continue
		}
		if err := checkURL(SearchURL(tmpl.url, "q")); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tmpl.name, err))
		}
	}

	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("requestTimeoutSeconds must be positive"))
	}
	if c.Cache.DBPath != "" && c.Cache.TTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttlMinutes must be positive"))
	}
	if c.Raffle.WindowDays < 0 {
		errs = append(errs, fmt.Errorf("raffle.windowDays must not be negative"))
	}
	return errors.Join(errs...)
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
