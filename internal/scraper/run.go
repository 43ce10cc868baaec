package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/parser"
)

// Run is handed to site scrapers for the duration of one scrape. Every
// document it parses is owned by the run and released when the run ends.
type Run struct {
	session browser.Session
	tracker *parser.Tracker
	prices  PriceChecker
	baseURL string
	logger  *slog.Logger
}

// Document fetches url and parses the response.
func (r *Run) Document(ctx context.Context, url string, opts ...browser.RequestOption) (*parser.Document, *browser.Page, error) {
	page, err := r.session.Get(ctx, url, opts...)
	if err != nil {
		return nil, nil, err
	}

	doc, err := r.tracker.Parse(page.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrExtraction, url, err)
	}
	return doc, page, nil
}

// FetchPages fetches urls as one batch and returns the parsed documents in
// the same order.
func (r *Run) FetchPages(ctx context.Context, urls []string) ([]*parser.Document, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	pages, err := r.session.GetAll(ctx, urls)
	if err != nil {
		return nil, err
	}

	docs := make([]*parser.Document, 0, len(pages))
	for i, page := range pages {
		doc, err := r.tracker.Parse(page.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, urls[i], err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Parse parses markup that did not come from a fetch, e.g. an embedded
// template.
func (r *Run) Parse(raw []byte, scope ...string) (*parser.Document, error) {
	doc, err := r.tracker.Parse(raw, scope...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return doc, nil
}

// CheckURL resolves a link found on the site against its base URL.
func (r *Run) CheckURL(url string) string {
	return parser.NormalizeURL(url, r.baseURL)
}

func (r *Run) CheckPrice(raw, currency string, strictCurrency, allowExcessPrecision bool) (float64, error) {
	return r.prices.Check(raw, currency, strictCurrency, allowExcessPrecision)
}

func (r *Run) Logger() *slog.Logger {
	return r.logger
}
