package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// productJSON is the document embedded in script#ProductJson. Prices are in
// cents.
type productJSON struct {
	ID          int64         `json:"id"`
	Handle      string        `json:"handle"`
	Title       string        `json:"title"`
	Vendor      string        `json:"vendor"`
	Description string        `json:"description"`
	Options     []string      `json:"options"`
	Images      []string      `json:"images"`
	Variants    []variantJSON `json:"variants"`
}

type variantJSON struct {
	ID             int64   `json:"id"`
	SKU            string  `json:"sku"`
	Available      *bool   `json:"available"`
	Price          int64   `json:"price"`
	CompareAtPrice *int64  `json:"compare_at_price"`
	Option1        *string `json:"option1"`
	Option2        *string `json:"option2"`
	Option3        *string `json:"option3"`
	FeaturedImage  *struct {
		Src string `json:"src"`
	} `json:"featured_image"`
}

func (v variantJSON) options() []*string {
	return []*string{v.Option1, v.Option2, v.Option3}
}

func (v variantJSON) code() string {
	if v.SKU != "" {
		return v.SKU
	}
	return strconv.FormatInt(v.ID, 10)
}

// productPage is a parsed product page.
type productPage struct {
	url  string
	doc  *parser.Document
	data productJSON
}

func (s *Site) loadProduct(ctx context.Context, run *scraper.Run, url string) (*productPage, error) {
	doc, page, err := run.Document(ctx, url, browser.WithReferer(s.cfg.BaseURL))
	if err != nil {
		return nil, err
	}

	raw := doc.Text("script#ProductJson")
	if raw == "" {
		return nil, scraper.Missing("product json", url)
	}

	var data productJSON
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: invalid product json on %s: %w", scraper.ErrExtraction, url, err)
	}
	if len(data.Variants) == 0 {
		return nil, scraper.Missing("variants", url)
	}

	return &productPage{url: page.URL, doc: doc, data: data}, nil
}

func (p *productPage) canonical(run *scraper.Run) string {
	if href, ok := p.doc.Attr(`link[rel="canonical"]`, "href"); ok && href != "" {
		return run.CheckURL(href)
	}
	if p.url != "" {
		return p.url
	}
	return ""
}

// attributes builds one attribute per product option. Labels come from the
// option selectors' <label> elements when present.
func (p *productPage) attributes() []models.Attribute {
	attrs := make([]models.Attribute, 0, len(p.data.Options))

	for i, option := range p.data.Options {
		if i >= 3 {
			break
		}

		label := p.doc.Text(fmt.Sprintf(`label[for="SingleOptionSelector-%d"]`, i))
		if label == "" {
			label = option
		}

		attr := models.Attribute{ID: slug(option), Label: label}
		seen := make(map[string]bool)
		for _, v := range p.data.Variants {
			value := v.options()[i]
			if value == nil || seen[*value] {
				continue
			}
			seen[*value] = true
			attr.Values = append(attr.Values, models.AttributeValue{ID: slug(*value), Label: *value})
		}
		attrs = append(attrs, attr)
	}

	return attrs
}

// selection maps attribute ids to the variant's value ids.
func (p *productPage) selection(v variantJSON) map[string]string {
	sel := make(map[string]string)
	for i, option := range p.data.Options {
		if i >= 3 {
			break
		}
		if value := v.options()[i]; value != nil {
			sel[slug(option)] = slug(*value)
		}
	}
	return sel
}

// assets binds every product image to the values of the image option of the
// variants featuring it. Images no variant features get an empty selector.
func (p *productPage) assets(run *scraper.Run, imageOption string) []models.Asset {
	optionIdx := -1
	for i, option := range p.data.Options {
		if strings.EqualFold(option, imageOption) && i < 3 {
			optionIdx = i
			break
		}
	}

	assets := make([]models.Asset, 0, len(p.data.Images))
	for _, src := range p.data.Images {
		asset := models.Asset{URL: run.CheckURL(src), Type: "image", Selector: map[string][]string{}}

		if optionIdx >= 0 {
			key := slug(p.data.Options[optionIdx])
			seen := make(map[string]bool)
			for _, v := range p.data.Variants {
				value := v.options()[optionIdx]
				if v.FeaturedImage == nil || value == nil || v.FeaturedImage.Src != src {
					continue
				}
				id := slug(*value)
				if !seen[id] {
					seen[id] = true
					asset.Selector[key] = append(asset.Selector[key], id)
				}
			}
		}

		assets = append(assets, asset)
	}

	return assets
}

func centsToPrice(cents int64) float64 {
	return float64(cents) / 100
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
