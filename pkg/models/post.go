package models

import "time"

const (
	PostTypeTwitter = "twitter"
	PostTypeOther   = "other"
)

type SocialPost struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ProductID  string    `json:"productId"`
	Username   string    `json:"username"`
	Content    string    `json:"content"`
	ImageURL   *string   `json:"imageUrl"`
	PostURL    string    `json:"postUrl"`
	PostedAt   time.Time `json:"postedAt"`
	StoreName  *string   `json:"storeName"`
	Location   *string   `json:"location"`
	Price      *float64  `json:"price"`
	IsVerified bool      `json:"isVerified"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
