// Package scraper runs single product scrapes: it dispatches on the scrape
// kind, normalizes and validates the result and assembles the final record.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var (
	ErrExtraction      = errors.New("extraction failed")
	ErrUnsupportedKind = errors.New("scrape kind not supported by site")
	ErrUnknownKind     = errors.New("unknown scrape kind")
)

// Site identifies a retailer. A site additionally implements one or more of
// AvailabilityScraper, FullScraper and MpiScraper.
type Site interface {
	Name() string
	BaseURL() string
}

type AvailabilityScraper interface {
	ScrapeAvailability(ctx context.Context, run *Run, url string) (*models.AvailabilityProduct, error)
}

type FullScraper interface {
	ScrapeFull(ctx context.Context, run *Run, url string) (*models.FullProduct, error)
}

type MpiScraper interface {
	ScrapeMpi(ctx context.Context, run *Run, url string) (*models.MpiProduct, error)
}

type PriceChecker interface {
	Check(raw, currency string, strictCurrency, allowExcessPrecision bool) (float64, error)
}

type ResultValidator interface {
	Validate(payload any, partial bool) error
}

type CodeNormalizer interface {
	Normalize(productID, storeKey string, variants []models.Variant, mutate bool) []models.Variant
}

// Missing reports a selector that matched nothing, which usually means the
// site changed its markup.
func Missing(what, url string) error {
	return fmt.Errorf("%w: %s not found on %s", ErrExtraction, what, url)
}
