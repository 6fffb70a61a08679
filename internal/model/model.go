// Package model defines shared data structures.
package model

import "time"

// ReleaseSummary is the listing-level record for a tracked release.
type ReleaseSummary struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Price      string    `json:"price" db:"price"`
	ImageURL   string    `json:"imageUrl" db:"image_url"`
	ProductURL string    `json:"productUrl" db:"product_url"`
	Status     string    `json:"status" db:"status"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	BatchID    string    `json:"batchId,omitempty" db:"batch_id"`
	// Ordinal is the release's place in its scrape batch; it orders rows
	// written by the same scrape.
	Ordinal int `json:"-" db:"ordinal"`
}

// Size is a single entry of a release's size run.
type Size struct {
	Size       string `json:"size"`
	Available  bool   `json:"available"`
	OutOfStock bool   `json:"outOfStock"`
}

// Resale holds resale-market data attached to a detail record.
type Resale struct {
	StockXURL      string  `json:"stockxUrl,omitempty"`
	StockXPrice    float64 `json:"stockxPrice,omitempty"`
	StockXLastSale float64 `json:"stockxLastSale,omitempty"`
	StockXSales    int     `json:"stockxSales,omitempty"`
	StockXName     string  `json:"stockxName,omitempty"`
	StockXSKU      string  `json:"stockxSku,omitempty"`
}

// ShoeDetail is the full per-release record. It repeats the summary fields
// so a detail scrape can override them.
type ShoeDetail struct {
	ReleaseSummary
	Resale

	Description string     `json:"description,omitempty"`
	Colorway    string     `json:"colorway,omitempty"`
	Style       string     `json:"style,omitempty"`
	Sizes       []Size     `json:"sizes"`
	ImageURLs   []string   `json:"imageUrls"`
	IsLaunched  bool       `json:"isLaunched"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Item is what the API returns for a single release: the summary with its
// detail merged on top.
type Item = ShoeDetail

// StoredItem is a summary joined with its detail row, if one exists.
type StoredItem struct {
	Summary ReleaseSummary
	Detail  *ShoeDetail
}

// RawItem is one listing entry as produced by an extractor.
type RawItem struct {
	Name       string
	Price      string
	ImageURL   string
	ProductURL string
	Status     string
}

// RawDetail is a product page as produced by an extractor.
type RawDetail struct {
	Name        string
	Price       string
	ImageURL    string
	Status      string
	Description string
	Colorway    string
	Style       string
	Sizes       []Size
	ImageURLs   []string
	IsLaunched  bool
}

// RefreshCandidate identifies a release whose detail needs a re-scrape.
type RefreshCandidate struct {
	ID          string     `db:"id"`
	ProductURL  string     `db:"product_url"`
	LastUpdated *time.Time `db:"last_updated"`
}
