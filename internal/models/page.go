package models

// Page represents a single wiki page. Name is unique across all pages.
type Page struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}
