package models

import (
	"math/big"
	"time"
)

// ScrapeRequest describes one product scrape. It only lives for the duration
// of a single orchestrator run.
type ScrapeRequest struct {
	URL          string `json:"url"`
	AffiliateURL string `json:"affiliate_url"`
	StoreID      string `json:"store_id"`
	ProductID    string `json:"product_id"`
	PageID       string `json:"page_id"`
	Kind         Kind   `json:"kind"`
}

// Metrics are the cost counters of one scrape run. Times are in seconds.
type Metrics struct {
	NumOfHTTPRequests  int     `json:"num_of_http_requests"`
	OverallNetworkTime float64 `json:"overall_network_time"`
	NumberOfRetries    int     `json:"number_of_retries"`
	NumberOfTimeouts   int     `json:"number_of_timeouts"`
	CPUTime            float64 `json:"cpu_time"`
}

// ProductRecord is the result of a successful scrape run. Hash only depends on
// Product, so identical content scraped in different runs yields equal hashes.
type ProductRecord struct {
	Product        any      `json:"product"`
	ScrapingStatus int      `json:"scrapingStatus"`
	StoreID        string   `json:"store_id"`
	ProductID      string   `json:"product_id"`
	PageID         string   `json:"page_id"`
	Hash           *big.Int `json:"hash"`
	AffiliateURL   string   `json:"affiliateUrl"`
	ExtractedURL   string   `json:"extractedUrl"`
	Metrics        Metrics  `json:"metrics"`

	Kind      Kind      `json:"-"`
	ScrapedAt time.Time `json:"-"`
}

// StatusSuccess is the scrapingStatus of every returned record.
const StatusSuccess = 0
