package domain

import (
	"fmt"
	"time"
)

// Listing is one parsed marketplace search result. Identity is (Region, ID).
type Listing struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	DetailURL            string     `json:"detailUrl"`
	DisplayPrice         string     `json:"displayPrice"`
	NumericPrice         *float64   `json:"numericPrice"`
	ImageURL             *string    `json:"imageUrl"`
	Rating               *float64   `json:"rating"`
	ReviewCount          *string    `json:"reviewCount"`
	HasExpeditedShipping bool       `json:"hasExpeditedShipping"`
	Region               RegionCode `json:"region"`
}

// Key returns the "{region}:{id}" identity used by the history store
func (l Listing) Key() string {
	return SeriesKey(l.Region, l.ID)
}

// SeriesKey builds the history key for a listing identifier in a region
func SeriesKey(region RegionCode, id string) string {
	return fmt.Sprintf("%s:%s", region, id)
}

// PricePoint is one observation in a price series
type PricePoint struct {
	DisplayPrice string    `json:"displayPrice"`
	NumericPrice *float64  `json:"numericPrice"`
	Timestamp    time.Time `json:"timestamp"`
}

// HistorySeries is the ordered price history of one listing in one region.
// Points are ascending by timestamp.
type HistorySeries struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Region RegionCode   `json:"region"`
	Points []PricePoint `json:"points"`
}

// SearchRequest is the searchMarketplace message
type SearchRequest struct {
	Query  string `json:"query" binding:"required"`
	Region string `json:"region,omitempty"`
}

// SearchResult wraps listings returned to the shell
type SearchResult struct {
	Query    string     `json:"query"`
	Region   RegionCode `json:"region"`
	Listings []Listing  `json:"listings"`
	Cached   bool       `json:"cached"`
}
