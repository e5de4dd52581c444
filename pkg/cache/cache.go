package cache

import (
	"bonbon-radar/pkg/models"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Cache memoizes parsed detail pages between runs, keyed by store and url.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open page cache: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY
	// from concurrent detail workers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pages (
			store TEXT NOT NULL,
			url TEXT NOT NULL,
			data TEXT NOT NULL,
			scraped_at DATETIME NOT NULL,
			PRIMARY KEY (store, url)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pages table: %w", err)
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *Cache) Get(store, url string) (models.PageRecord, bool) {
	var data string
	var scrapedAt time.Time

	err := c.db.QueryRow(
		`SELECT data, scraped_at FROM pages WHERE store = ? AND url = ?`,
		store, url,
	).Scan(&data, &scrapedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Warn("page cache lookup failed", "store", store, "url", url, "err", err)
		}
		return models.PageRecord{}, false
	}

	if c.now().Sub(scrapedAt) > c.ttl {
		return models.PageRecord{}, false
	}

	var rec models.PageRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		slog.Warn("page cache entry unreadable", "store", store, "url", url, "err", err)
		return models.PageRecord{}, false
	}

	return rec, true
}

func (c *Cache) Set(store string, rec models.PageRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("page cache marshal failed", "store", store, "url", rec.URL, "err", err)
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO pages (store, url, data, scraped_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(store, url)
		 DO UPDATE SET data = excluded.data, scraped_at = excluded.scraped_at`,
		store, rec.URL, string(data), c.now().UTC(),
	)
	if err != nil {
		slog.Warn("page cache write failed", "store", store, "url", rec.URL, "err", err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
