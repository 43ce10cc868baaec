package scraper

import (
	"math"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// The result parsers bring a raw scraped payload into its canonical shape:
// strings trimmed, currencies upper-cased and lists non-nil so equal content
// always serializes the same way. Entries are never dropped here; an empty
// id or url is left for validation to reject.

func parseFull(p *models.FullProduct, url string) *models.FullProduct {
	out := *p
	out.URL = url
	out.ExtractedURL = strings.TrimSpace(p.ExtractedURL)
	out.Title = strings.TrimSpace(p.Title)
	out.Brand = strings.TrimSpace(p.Brand)
	out.Description = strings.TrimSpace(p.Description)
	out.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	out.Price = roundPrice(p.Price)

	out.Attributes = make([]models.Attribute, 0, len(p.Attributes))
	for _, attr := range p.Attributes {
		values := make([]models.AttributeValue, 0, len(attr.Values))
		for _, v := range attr.Values {
			v.ID = strings.TrimSpace(v.ID)
			v.Label = strings.TrimSpace(v.Label)
			values = append(values, v)
		}
		attr.ID = strings.TrimSpace(attr.ID)
		attr.Values = values
		out.Attributes = append(out.Attributes, attr)
	}

	out.Assets = make([]models.Asset, 0, len(p.Assets))
	for _, asset := range p.Assets {
		asset.URL = strings.TrimSpace(asset.URL)
		if asset.Selector == nil {
			asset.Selector = map[string][]string{}
		}
		out.Assets = append(out.Assets, asset)
	}

	out.Variants = parseVariants(p.Variants)
	return &out
}

func parseAvailability(p *models.AvailabilityProduct, url string) *models.AvailabilityProduct {
	out := *p
	out.URL = url
	out.ExtractedURL = strings.TrimSpace(p.ExtractedURL)
	out.Variants = parseVariants(p.Variants)

	for _, v := range out.Variants {
		if v.Available {
			out.InStock = true
			break
		}
	}
	return &out
}

func parseMpi(p *models.MpiProduct, url string) *models.MpiProduct {
	out := *p
	out.URL = url
	out.ExtractedURL = strings.TrimSpace(p.ExtractedURL)
	out.Title = strings.TrimSpace(p.Title)
	out.SKU = strings.TrimSpace(p.SKU)
	out.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	out.Price = math.Round(p.Price*100) / 100
	out.OriginalPrice = roundPrice(p.OriginalPrice)

	// an original price equal to the current one is not a discount
	if out.OriginalPrice != nil && *out.OriginalPrice <= out.Price {
		out.OriginalPrice = nil
	}
	return &out
}

func parseVariants(variants []models.Variant) []models.Variant {
	out := make([]models.Variant, 0, len(variants))
	for _, v := range variants {
		v.Code = strings.TrimSpace(v.Code)
		v.Price = roundPrice(v.Price)
		if len(v.Selection) == 0 {
			v.Selection = nil
		}
		out = append(out, v)
	}
	return out
}

func roundPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	r := math.Round(*p*100) / 100
	return &r
}
