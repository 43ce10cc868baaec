package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/price"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

func (s *Site) ScrapeAvailability(ctx context.Context, run *scraper.Run, url string) (*models.AvailabilityProduct, error) {
	p, err := s.loadProduct(ctx, run, url)
	if err != nil {
		return nil, err
	}

	availability, err := s.resolveAvailability(ctx, run, p)
	if err != nil {
		return nil, err
	}

	variants := make([]models.Variant, 0, len(p.data.Variants))
	for i, v := range p.data.Variants {
		variants = append(variants, models.Variant{
			Code:      v.code(),
			Available: availability[i],
			Selection: p.selection(v),
		})
	}

	return &models.AvailabilityProduct{
		ExtractedURL: p.canonical(run),
		Variants:     variants,
	}, nil
}

func (s *Site) ScrapeFull(ctx context.Context, run *scraper.Run, url string) (*models.FullProduct, error) {
	p, err := s.loadProduct(ctx, run, url)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(p.data.Title)
	if title == "" {
		title = p.doc.Text("h1")
	}
	if title == "" {
		return nil, scraper.Missing("title", url)
	}

	currency, err := s.currency(p.doc, url)
	if err != nil {
		return nil, err
	}

	availability, err := s.resolveAvailability(ctx, run, p)
	if err != nil {
		return nil, err
	}

	description, err := describe(run, p.data.Description)
	if err != nil {
		return nil, err
	}

	variants := make([]models.Variant, 0, len(p.data.Variants))
	for i, v := range p.data.Variants {
		amount := centsToPrice(v.Price)
		variants = append(variants, models.Variant{
			Code:      v.code(),
			Available: availability[i],
			Selection: p.selection(v),
			Price:     &amount,
		})
	}

	amount := centsToPrice(p.data.Variants[0].Price)

	return &models.FullProduct{
		ExtractedURL: p.canonical(run),
		Title:        title,
		Brand:        strings.TrimSpace(p.data.Vendor),
		Description:  description,
		Price:        &amount,
		Currency:     currency,
		Attributes:   p.attributes(),
		Assets:       p.assets(run, s.cfg.ImageOption),
		Variants:     variants,
	}, nil
}

// ScrapeMpi reads the microdata price block, which is what the page shows to
// shoppers, rather than the embedded product json.
func (s *Site) ScrapeMpi(ctx context.Context, run *scraper.Run, url string) (*models.MpiProduct, error) {
	doc, page, err := run.Document(ctx, url)
	if err != nil {
		return nil, err
	}

	currency, err := s.currency(doc, url)
	if err != nil {
		return nil, err
	}

	raw, ok := doc.Attr(`[itemprop="price"]`, "content")
	if !ok || raw == "" {
		raw = doc.Text(`[itemprop="price"]`)
	}
	if raw == "" {
		return nil, scraper.Missing("price", url)
	}

	amount, err := run.CheckPrice(raw, currency, true, false)
	if err != nil {
		return nil, err
	}

	product := &models.MpiProduct{
		ExtractedURL: page.URL,
		Title:        doc.Text(`[itemprop="name"]`),
		Price:        amount,
		Currency:     currency,
		InStock:      inStock(doc),
	}
	if sku, ok := doc.Attr(`[itemprop="sku"]`, "content"); ok {
		product.SKU = sku
	}

	if compare := doc.Text(".price--compare"); compare != "" {
		original, err := run.CheckPrice(compare, currency, false, false)
		if err != nil && !errors.Is(err, price.ErrInvalidPrice) {
			return nil, err
		}
		if err == nil {
			product.OriginalPrice = &original
		}
	}

	return product, nil
}

// currency returns the page's microdata currency, which must match the
// configured store currency.
func (s *Site) currency(doc *parser.Document, url string) (string, error) {
	found, ok := doc.Attr(`[itemprop="priceCurrency"]`, "content")
	if !ok || found == "" {
		return s.cfg.Currency, nil
	}

	found = strings.ToUpper(found)
	if found != s.cfg.Currency {
		return "", fmt.Errorf("%w: %s is priced in %s, expected %s", price.ErrCurrencyMismatch, url, found, s.cfg.Currency)
	}
	return found, nil
}

// resolveAvailability returns per-variant stock. Variants the product json
// leaves open are looked up on their own variant pages in one batch.
func (s *Site) resolveAvailability(ctx context.Context, run *scraper.Run, p *productPage) ([]bool, error) {
	out := make([]bool, len(p.data.Variants))

	var pending []int
	var urls []string
	for i, v := range p.data.Variants {
		if v.Available != nil {
			out[i] = *v.Available
			continue
		}

		u := p.variantURL(v)
		pending = append(pending, i)
		urls = append(urls, run.CheckURL(u))
	}

	if len(urls) == 0 {
		return out, nil
	}

	run.Logger().Debug("fetching variant pages", "count", len(urls))
	docs, err := run.FetchPages(ctx, urls)
	if err != nil {
		return nil, err
	}

	for j, doc := range docs {
		out[pending[j]] = inStock(doc)
	}
	return out, nil
}

func (p *productPage) variantURL(v variantJSON) string {
	sel := fmt.Sprintf(`[data-variant-id="%d"]`, v.ID)
	if href, ok := p.doc.Attr(sel, "data-variant-url"); ok && href != "" {
		return href
	}

	base := p.url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s?variant=%d", base, v.ID)
}

func inStock(doc *parser.Document) bool {
	href, _ := doc.Attr(`[itemprop="availability"]`, "href")
	if href == "" {
		href, _ = doc.Attr(`[itemprop="availability"]`, "content")
	}
	return strings.HasSuffix(href, "InStock") || strings.HasSuffix(href, "LimitedAvailability")
}

// describe turns the product description markup into plain text.
func describe(run *scraper.Run, html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := run.Parse([]byte(html))
	if err != nil {
		return "", err
	}
	defer doc.Release()

	return strings.Join(strings.Fields(doc.Selection().Text()), " "), nil
}
