package scraper

import (
	"context"
	"fmt"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// variant is one row of the dispatch table. normalize is nil for kinds that
// need no post-processing.
type variant struct {
	scrape    func(ctx context.Context, site Site, run *Run, url string) (models.Payload, error)
	normalize func(p *models.Payload) bool
	parse     func(o *Orchestrator, req models.ScrapeRequest, p models.Payload) (parsed, error)
}

// parsed is a product in canonical shape plus the URL the site reported for
// it, if any.
type parsed struct {
	product      any
	extractedURL string
}

var variants = map[models.Kind]variant{
	models.KindAvailability: {
		scrape: func(ctx context.Context, site Site, run *Run, url string) (models.Payload, error) {
			s, ok := site.(AvailabilityScraper)
			if !ok {
				return models.Payload{}, unsupported(site, models.KindAvailability)
			}
			p, err := s.ScrapeAvailability(ctx, run, url)
			return models.Payload{Kind: models.KindAvailability, Availability: p}, err
		},
		parse: func(o *Orchestrator, req models.ScrapeRequest, p models.Payload) (parsed, error) {
			raw := *p.Availability
			raw.Variants = o.codes.Normalize(req.ProductID, o.storeKey, raw.Variants, false)
			out := parseAvailability(&raw, req.URL)
			return parsed{product: out, extractedURL: out.ExtractedURL}, nil
		},
	},
	models.KindFull: {
		scrape: func(ctx context.Context, site Site, run *Run, url string) (models.Payload, error) {
			s, ok := site.(FullScraper)
			if !ok {
				return models.Payload{}, unsupported(site, models.KindFull)
			}
			p, err := s.ScrapeFull(ctx, run, url)
			return models.Payload{Kind: models.KindFull, Full: p}, err
		},
		normalize: func(p *models.Payload) bool {
			added := backfillAssets(p.Full)
			cleanLabels(p.Full)
			return added
		},
		parse: func(o *Orchestrator, req models.ScrapeRequest, p models.Payload) (parsed, error) {
			out := parseFull(p.Full, req.URL)
			return parsed{product: out, extractedURL: out.ExtractedURL}, nil
		},
	},
	models.KindMpi: {
		scrape: func(ctx context.Context, site Site, run *Run, url string) (models.Payload, error) {
			s, ok := site.(MpiScraper)
			if !ok {
				return models.Payload{}, unsupported(site, models.KindMpi)
			}
			p, err := s.ScrapeMpi(ctx, run, url)
			return models.Payload{Kind: models.KindMpi, Mpi: p}, err
		},
		parse: func(o *Orchestrator, req models.ScrapeRequest, p models.Payload) (parsed, error) {
			out := parseMpi(p.Mpi, req.URL)
			return parsed{product: out, extractedURL: out.ExtractedURL}, nil
		},
	},
}

// Supports reports whether site can run scrapes of kind.
func Supports(site Site, kind models.Kind) bool {
	switch kind {
	case models.KindAvailability:
		_, ok := site.(AvailabilityScraper)
		return ok
	case models.KindFull:
		_, ok := site.(FullScraper)
		return ok
	case models.KindMpi:
		_, ok := site.(MpiScraper)
		return ok
	}
	return false
}

func unsupported(site Site, kind models.Kind) error {
	return fmt.Errorf("%w: %s does not implement %s", ErrUnsupportedKind, site.Name(), kind)
}
