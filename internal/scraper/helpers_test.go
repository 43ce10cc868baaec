package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
)

type fakeSession struct {
	mu      sync.Mutex
	pages   map[string]string
	stats   browser.Stats
	cleared int
	closed  bool
}

func (s *fakeSession) Get(ctx context.Context, url string, _ ...browser.RequestOption) (*browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", browser.ErrFetchFailed, url, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Requests++
	s.stats.NetworkTime += 5 * time.Millisecond

	body, ok := s.pages[url]
	if !ok {
		s.stats.Retries += 2
		return nil, fmt.Errorf("%w: %s: unexpected status 404", browser.ErrFetchFailed, url)
	}
	return &browser.Page{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func (s *fakeSession) GetAll(ctx context.Context, urls []string) ([]*browser.Page, error) {
	pages := make([]*browser.Page, 0, len(urls))
	for _, u := range urls {
		p, err := s.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func (s *fakeSession) Stats() browser.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *fakeSession) ClearCookies() {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	session *fakeSession
	err     error
}

func (p *fakeProvider) NewSession(context.Context) (browser.Session, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

type baseSite struct{}

func (baseSite) Name() string    { return "website" }
func (baseSite) BaseURL() string { return "https://website.com/" }

// fakeSite implements every scrape kind through plain functions.
type fakeSite struct {
	baseSite
	availability func(ctx context.Context, run *Run, url string) (*models.AvailabilityProduct, error)
	full         func(ctx context.Context, run *Run, url string) (*models.FullProduct, error)
	mpi          func(ctx context.Context, run *Run, url string) (*models.MpiProduct, error)
}

func (s *fakeSite) ScrapeAvailability(ctx context.Context, run *Run, url string) (*models.AvailabilityProduct, error) {
	return s.availability(ctx, run, url)
}

func (s *fakeSite) ScrapeFull(ctx context.Context, run *Run, url string) (*models.FullProduct, error) {
	return s.full(ctx, run, url)
}

func (s *fakeSite) ScrapeMpi(ctx context.Context, run *Run, url string) (*models.MpiProduct, error) {
	return s.mpi(ctx, run, url)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

const productURL = "https://website.com/products/shirt-1"

const productHTML = `<html><body>
<h1 class="title"> Linen Shirt </h1>
<span class="brand">Acme</span>
<span class="price">$49.90</span>
<label for="size">Choose: Size!</label>
</body></html>`

func newSession() *fakeSession {
	return &fakeSession{pages: map[string]string{
		productURL:                        productHTML,
		productURL + "?variant=s":         productHTML,
		productURL + "?variant=m":         productHTML,
		"https://website.com/redirect-to": productHTML,
	}}
}

func fullFromPage(ctx context.Context, run *Run, url string) (*models.FullProduct, error) {
	doc, _, err := run.Document(ctx, url)
	if err != nil {
		return nil, err
	}

	title := doc.Text(".title")
	if title == "" {
		return nil, Missing("title", url)
	}

	p, err := run.CheckPrice(doc.Text(".price"), "USD", true, false)
	if err != nil {
		return nil, err
	}

	return &models.FullProduct{
		Title:    title,
		Brand:    doc.Text(".brand"),
		Price:    &p,
		Currency: "usd",
		Attributes: []models.Attribute{{
			ID:    "size",
			Label: doc.Text("label[for=size]"),
			Values: []models.AttributeValue{
				{ID: "s", Label: "S"},
				{ID: "m", Label: "M"},
				{ID: "l", Label: "L"},
			},
		}},
		Assets: []models.Asset{
			{URL: run.CheckURL("/img/s.jpg"), Selector: map[string][]string{"size": {"s"}}},
			{URL: run.CheckURL("/img/m.jpg"), Selector: map[string][]string{"size": {"m"}}},
		},
		Variants: []models.Variant{
			{Code: "SHIRT-S", Available: true, Selection: map[string]string{"size": "s"}},
			{Code: "SHIRT-M", Selection: map[string]string{"size": "m"}},
		},
	}, nil
}
