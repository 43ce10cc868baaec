package models

import "time"

type CrawlStatus string

const (
	CrawlRunning   CrawlStatus = "running"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
)

// CrawlRun is one walk of a site's navigation tree.
type CrawlRun struct {
	ID         string      `json:"id"`
	Site       string      `json:"site"`
	BaseURL    string      `json:"base_url"`
	Status     CrawlStatus `json:"status"`
	Categories int         `json:"categories"`
	Products   int         `json:"products"`
	Failures   int         `json:"failures"`
	Requests   int         `json:"requests"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

func (r *CrawlRun) Done() bool {
	return r.Status != CrawlRunning
}
