package models

import (
	"errors"
	"time"
)

var ErrProductNotFound = errors.New("product not found")

// OnlineLocation is the location label of every observation taken from a web shop.
const OnlineLocation = "オンライン"

type PriceObservation struct {
	StoreID     string    `json:"storeId"`
	StoreName   string    `json:"storeName"`
	Price       float64   `json:"price"`
	InStock     bool      `json:"inStock"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type Product struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	ImageURL    string             `json:"imageUrl"`
	Description string             `json:"description"`
	Prices      []PriceObservation `json:"prices"`
}

// URL returns the url of the first price observation, the key used for
// cross-source dedup.
func (p Product) URL() string {
	if len(p.Prices) == 0 {
		return ""
	}
	return p.Prices[0].URL
}

// PageRecord is what gets pulled out of a single product detail page
// before it is attached to a store.
type PageRecord struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price"`
	InStock     bool    `json:"in_stock"`
	URL         string  `json:"url"`
}
