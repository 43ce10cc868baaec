// Package catalog walks a retailer's navigation menu and collects the product
// URLs listed under every category.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"golang.org/x/sync/errgroup"
)

// EmitFunc receives categories in emission order. A parent category is always
// emitted before any of its children. Returning an error stops the crawl.
type EmitFunc func(*models.Category) error

type Crawler struct {
	site     SiteConfig
	sessions browser.Provider
	logger   *slog.Logger
}

func NewCrawler(site SiteConfig, sessions browser.Provider, logger *slog.Logger) (*Crawler, error) {
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("invalid site config: %w", err)
	}

	return &Crawler{
		site:     site.withDefaults(),
		sessions: sessions,
		logger:   logger.With("component", "crawler"),
	}, nil
}

// Stats summarizes one crawl.
type Stats struct {
	Categories int
	Products   int
	Failures   int
	Requests   int
}

type crawl struct {
	*Crawler
	session browser.Session
	tracker *parser.Tracker
	group   *errgroup.Group

	mu    sync.Mutex
	emit  EmitFunc
	stats Stats
}

// Crawl fetches the navigation page and emits every category found. Listing
// chains of different categories run concurrently; a failing listing only
// ends its own chain. A failing navigation fetch fails the crawl.
func (c *Crawler) Crawl(ctx context.Context, emit EmitFunc) (Stats, error) {
	session, err := c.sessions.NewSession(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	tracker := parser.NewTracker()
	defer tracker.ReleaseAll()

	c.logger.Info("starting crawl", "url", c.site.BaseURL)

	page, err := session.Get(ctx, c.site.BaseURL)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to fetch navigation: %w", err)
	}

	nav, err := tracker.Parse(page.Body)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to parse navigation: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.site.Concurrency)

	cr := &crawl{
		Crawler: c,
		session: session,
		tracker: tracker,
		group:   g,
		emit:    emit,
	}

	walkErr := cr.walk(gctx, nav.Selection(), 0, nil)
	nav.Release()

	if err := g.Wait(); err != nil {
		return cr.snapshot(), err
	}
	if walkErr != nil {
		return cr.snapshot(), walkErr
	}

	stats := cr.snapshot()
	stats.Requests = session.Stats().Requests
	c.logger.Info("crawl completed",
		"categories", stats.Categories,
		"products", stats.Products,
		"failures", stats.Failures,
		"requests", stats.Requests)

	return stats, nil
}

// walk visits the entries of one navigation level in document order.
func (cr *crawl) walk(ctx context.Context, scope *goquery.Selection, depth int, parent *models.Category) error {
	level := cr.site.Levels[depth]
	index := 0

	var err error
	scope.Find(level.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if err = ctx.Err(); err != nil {
			return false
		}

		name := parser.FirstText(item, level.Name)
		if name == "" {
			cr.logger.Debug("skipping navigation entry without name", "depth", depth+1)
			return true
		}
		if depth == 0 && cr.site.skipped(name) {
			cr.logger.Debug("skipping category", "name", name)
			return true
		}

		href := parser.FirstAttr(item, level.Link, "href")
		cat := models.NewCategory(name, parser.NormalizeURL(href, cr.site.BaseURL), index, parent)
		index++

		if depth+1 < len(cr.site.Levels) && item.Find(cr.site.Levels[depth+1].Item).Length() > 0 {
			if err = cr.send(cat); err != nil {
				return false
			}
			err = cr.walk(ctx, item, depth+1, cat)
			return err == nil
		}

		cr.group.Go(func() error {
			return cr.paginate(ctx, cat)
		})
		return true
	})

	return err
}

// paginate follows the listing of cat until there is no next page, then
// emits it if it holds any product.
func (cr *crawl) paginate(ctx context.Context, cat *models.Category) error {
	visited := make(map[string]bool)
	next := cat.URL
	referer := cr.site.BaseURL

	for pages := 0; next != ""; pages++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cr.site.MaxPages > 0 && pages >= cr.site.MaxPages {
			cr.logger.Warn("page limit reached", "category", cat.Name, "pages", pages)
			break
		}
		if visited[next] {
			cr.logger.Warn("pagination loop detected", "category", cat.Name, "url", next)
			break
		}
		visited[next] = true

		page, err := cr.session.Get(ctx, next, browser.WithReferer(referer))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cr.logger.Error("listing fetch failed",
				"category", cat.Name,
				"url", next,
				"products", len(cat.ProductURLs),
				"error", err)
			cr.failed()
			break
		}

		if cr.site.isGiftCard(cat.Name) {
			cat.ProductURLs = append(cat.ProductURLs, models.ProductRef{
				ID:  parser.ProductID(page.URL),
				URL: page.URL,
			})
			return cr.send(cat)
		}

		doc, err := cr.tracker.Parse(page.Body)
		if err != nil {
			cr.logger.Error("listing parse failed", "category", cat.Name, "url", next, "error", err)
			cr.failed()
			break
		}

		cat.ProductURLs = append(cat.ProductURLs, cr.extractProducts(doc)...)

		referer = next
		next = ""
		if cr.site.NextPage != "" {
			if href, ok := doc.Attr(cr.site.NextPage, "href"); ok && href != "" {
				next = parser.NormalizeURL(href, cr.site.BaseURL)
			}
		}
		doc.Release()
	}

	if len(cat.ProductURLs) == 0 {
		cr.logger.Debug("dropping empty category", "category", cat.Name, "url", cat.URL)
		return nil
	}

	return cr.send(cat)
}

func (cr *crawl) extractProducts(doc *parser.Document) []models.ProductRef {
	items := doc.Find(strings.Join(cr.site.ProductSelectors, ", "))
	if items.Length() == 0 && len(cr.site.ProductFallbackSelectors) > 0 {
		items = doc.Find(strings.Join(cr.site.ProductFallbackSelectors, ", "))
	}

	refs := make([]models.ProductRef, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		href := parser.FirstAttr(item, cr.site.ProductLink, "href")
		if href == "" {
			return
		}
		refs = append(refs, models.ProductRef{
			ID:  parser.ProductID(href),
			URL: parser.NormalizeURL(href, cr.site.BaseURL),
		})
	})

	return refs
}

func (cr *crawl) send(cat *models.Category) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if err := cr.emit(cat); err != nil {
		return fmt.Errorf("failed to emit category %q: %w", cat.Name, err)
	}
	cr.stats.Categories++
	cr.stats.Products += len(cat.ProductURLs)
	return nil
}

func (cr *crawl) failed() {
	cr.mu.Lock()
	cr.stats.Failures++
	cr.mu.Unlock()
}

func (cr *crawl) snapshot() Stats {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.stats
}
