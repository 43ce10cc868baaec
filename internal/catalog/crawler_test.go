package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const navHTML = `<html><body><nav>
<div class="js-mega-menu-item"><a href="/collections/shoes"><span> Shoes </span></a></div>
<div class="js-mega-menu-item"><a href="/collections/men"><span>Men</span></a>
  <ul>
    <li><a class="mega-menu-link-list__link" href="/collections/shirts"> Shirts </a></li>
    <li><a class="mega-menu-link-list__link" href="/collections/pants">Pants</a></li>
  </ul>
</div>
<div class="js-mega-menu-item"><a href="/pages/stores"><span>STORES</span></a></div>
<div class="js-mega-menu-item"><a href="/products/gift-card"><span>Gift Card</span></a></div>
<div class="js-mega-menu-item"><a href="/collections/sale"><span>Sale</span></a></div>
</nav></body></html>`

func listing(next string, paths ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paths {
		fmt.Fprintf(&b, `<div class="product-card"><a href="%s">product</a></div>`, p)
	}
	if next != "" {
		fmt.Fprintf(&b, `<div class="next"><a href="%s">Next</a></div>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func defaultPages() map[string]string {
	return map[string]string{
		"/": navHTML,
		"/collections/shoes":        listing("/collections/shoes?page=2", "/products/shoe-1.html", "/products/shoe-2"),
		"/collections/shoes?page=2": listing("", "/products/shoe-3?variant=4"),
		"/collections/shirts": `<html><body><div class="js-lookbook-slider">
			<div><a href="/products/shirt-1">a</a></div>
			<div><a href="/products/shirt-2">b</a></div>
		</div><div class="product-card"><a href="/products/ignored">c</a></div></body></html>`,
		"/collections/pants":  listing("", "/products/pants-1"),
		"/products/gift-card": listing("", "/products/not-a-gift"),
		"/collections/sale":   listing(""),
	}
}

func newServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.RequestURI()]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func storeSite(base string) SiteConfig {
	return SiteConfig{
		BaseURL: base + "/",
		Levels: []Level{
			{Item: ".js-mega-menu-item", Name: "a span", Link: "a"},
			{Item: ".mega-menu-link-list__link"},
		},
		ProductSelectors:         []string{".js-lookbook-slider > div"},
		ProductFallbackSelectors: []string{".product-card"},
		NextPage:                 ".next a",
		SkipCategories:           []string{"stores", "about"},
		Concurrency:              3,
	}
}

func newCrawler(t *testing.T, site SiteConfig) *Crawler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	provider := browser.NewHTTPClient(browser.HTTPOptions{MaxRetries: 1}, logger)
	c, err := NewCrawler(site, provider, logger)
	require.NoError(t, err)
	return c
}

type collector struct {
	mu   sync.Mutex
	cats []*models.Category
}

func (c *collector) emit(cat *models.Category) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cats = append(c.cats, cat)
	return nil
}

func (c *collector) byName(name string) *models.Category {
	for _, cat := range c.cats {
		if cat.Name == name {
			return cat
		}
	}
	return nil
}

func runCrawl(t *testing.T, site SiteConfig) (*collector, Stats) {
	t.Helper()
	col := &collector{}
	stats, err := newCrawler(t, site).Crawl(context.Background(), col.emit)
	require.NoError(t, err)
	return col, stats
}

func TestCrawlNavigationTree(t *testing.T) {
	srv := newServer(t, defaultPages())
	col, stats := runCrawl(t, storeSite(srv.URL))

	names := make([]string, 0, len(col.cats))
	for _, c := range col.cats {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"Shoes", "Men", "Shirts", "Pants", "Gift Card"}, names)
	assert.Equal(t, 5, stats.Categories)

	shoes := col.byName("Shoes")
	require.NotNil(t, shoes)
	assert.Nil(t, shoes.ParentID)
	assert.Equal(t, 0, shoes.Index)
	assert.Equal(t, 1, shoes.Depth)
	assert.Equal(t, srv.URL+"/collections/shoes", shoes.URL)

	men := col.byName("Men")
	require.NotNil(t, men)
	assert.Nil(t, men.ParentID)
	assert.Equal(t, 1, men.Index)
	assert.Empty(t, men.ProductURLs)

	for i, name := range []string{"Shirts", "Pants"} {
		cat := col.byName(name)
		require.NotNil(t, cat, name)
		require.NotNil(t, cat.ParentID)
		assert.Equal(t, men.ID, *cat.ParentID)
		assert.Equal(t, i, cat.Index)
		assert.Equal(t, 2, cat.Depth)
	}

	// skipped entries do not consume an index
	assert.Equal(t, 2, col.byName("Gift Card").Index)
}

func TestCrawlParentsEmittedFirst(t *testing.T) {
	srv := newServer(t, defaultPages())
	col, _ := runCrawl(t, storeSite(srv.URL))

	seen := make(map[string]bool)
	for _, cat := range col.cats {
		if cat.ParentID != nil {
			assert.True(t, seen[*cat.ParentID], "parent of %s emitted later", cat.Name)
		}
		seen[cat.ID] = true
	}
}

func TestCrawlPaginationOrder(t *testing.T) {
	srv := newServer(t, defaultPages())
	col, _ := runCrawl(t, storeSite(srv.URL))

	shoes := col.byName("Shoes")
	require.NotNil(t, shoes)
	assert.Equal(t, []models.ProductRef{
		{ID: "shoe-1", URL: srv.URL + "/products/shoe-1.html"},
		{ID: "shoe-2", URL: srv.URL + "/products/shoe-2"},
		{ID: "shoe-3", URL: srv.URL + "/products/shoe-3?variant=4"},
	}, shoes.ProductURLs)

	shirts := col.byName("Shirts")
	require.NotNil(t, shirts)
	assert.Equal(t, []string{"shirt-1", "shirt-2"}, refIDs(shirts))
}

func TestCrawlGiftCard(t *testing.T) {
	srv := newServer(t, defaultPages())
	col, _ := runCrawl(t, storeSite(srv.URL))

	gift := col.byName("Gift Card")
	require.NotNil(t, gift)
	assert.Equal(t, []models.ProductRef{
		{ID: "gift-card", URL: srv.URL + "/products/gift-card"},
	}, gift.ProductURLs)
}

func TestCrawlPartialListing(t *testing.T) {
	pages := defaultPages()
	// second page of shoes is missing and answers 500
	pages["/collections/shoes"] = listing("/collections/shoes?page=9", "/products/shoe-1")
	srv := newServer(t, pages)

	col, stats := runCrawl(t, storeSite(srv.URL))

	shoes := col.byName("Shoes")
	require.NotNil(t, shoes)
	assert.Equal(t, []string{"shoe-1"}, refIDs(shoes))
	assert.Equal(t, 1, stats.Failures)
}

func TestCrawlFailedFirstPageDropsCategory(t *testing.T) {
	pages := defaultPages()
	delete(pages, "/collections/pants")
	srv := newServer(t, pages)

	col, stats := runCrawl(t, storeSite(srv.URL))

	assert.Nil(t, col.byName("Pants"))
	assert.NotNil(t, col.byName("Shirts"))
	assert.Equal(t, 1, stats.Failures)
}

func TestCrawlPaginationLoop(t *testing.T) {
	pages := defaultPages()
	pages["/collections/pants"] = listing("/collections/pants", "/products/pants-1")
	srv := newServer(t, pages)

	col, _ := runCrawl(t, storeSite(srv.URL))

	pants := col.byName("Pants")
	require.NotNil(t, pants)
	assert.Equal(t, []string{"pants-1"}, refIDs(pants))
}

func TestCrawlMaxPages(t *testing.T) {
	srv := newServer(t, defaultPages())
	site := storeSite(srv.URL)
	site.MaxPages = 1

	col, _ := runCrawl(t, site)

	assert.Equal(t, []string{"shoe-1", "shoe-2"}, refIDs(col.byName("Shoes")))
}

func TestCrawlThirdLevel(t *testing.T) {
	pages := map[string]string{
		"/": `<ul>
			<li class="top"><a href="/c/women">Women</a>
				<ul>
					<li class="mid"><a href="/c/women/tops">Tops</a>
						<ul><li class="leaf"><a href="/c/women/tops/tees">Tees</a></li></ul>
					</li>
					<li class="mid"><a href="/c/women/dresses">Dresses</a></li>
				</ul>
			</li>
		</ul>`,
		"/c/women/tops/tees": listing("", "/p/tee-1"),
		"/c/women/dresses":   listing("", "/p/dress-1"),
	}
	srv := newServer(t, pages)

	site := storeSite(srv.URL)
	site.Levels = []Level{
		{Item: "li.top", Name: "a", Link: "a"},
		{Item: "li.mid", Name: "a", Link: "a"},
		{Item: "li.leaf", Name: "a", Link: "a"},
	}

	col, _ := runCrawl(t, site)

	women := col.byName("Women")
	tops := col.byName("Tops")
	tees := col.byName("Tees")
	dresses := col.byName("Dresses")
	require.NotNil(t, women)
	require.NotNil(t, tops)
	require.NotNil(t, tees)
	require.NotNil(t, dresses)

	assert.Equal(t, women.ID, *tops.ParentID)
	assert.Equal(t, tops.ID, *tees.ParentID)
	assert.Equal(t, 3, tees.Depth)
	assert.Equal(t, 1, dresses.Index)
	assert.Empty(t, tops.ProductURLs)
	assert.Equal(t, []string{"tee-1"}, refIDs(tees))
}

func TestCrawlNavigationFailure(t *testing.T) {
	srv := newServer(t, map[string]string{})

	_, err := newCrawler(t, storeSite(srv.URL)).Crawl(context.Background(), (&collector{}).emit)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrFetchFailed)
}

func TestCrawlEmitError(t *testing.T) {
	srv := newServer(t, defaultPages())
	boom := errors.New("sink closed")

	_, err := newCrawler(t, storeSite(srv.URL)).Crawl(context.Background(), func(*models.Category) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCrawlCancelled(t *testing.T) {
	srv := newServer(t, defaultPages())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCrawler(t, storeSite(srv.URL)).Crawl(ctx, (&collector{}).emit)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSiteConfigValidate(t *testing.T) {
	valid := storeSite("https://website.com")
	require.NoError(t, valid.Validate())

	tests := map[string]func(*SiteConfig){
		"no base":      func(s *SiteConfig) { s.BaseURL = "" },
		"no levels":    func(s *SiteConfig) { s.Levels = nil },
		"too deep":     func(s *SiteConfig) { s.Levels = append(s.Levels, Level{Item: "a"}, Level{Item: "b"}) },
		"empty item":   func(s *SiteConfig) { s.Levels[1].Item = "" },
		"no products":  func(s *SiteConfig) { s.ProductSelectors, s.ProductFallbackSelectors = nil, nil },
		"negative max": func(s *SiteConfig) { s.MaxPages = -1 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			site := storeSite("https://website.com")
			mutate(&site)
			assert.Error(t, site.Validate())
		})
	}
}

func refIDs(cat *models.Category) []string {
	if cat == nil {
		return nil
	}
	ids := make([]string, 0, len(cat.ProductURLs))
	for _, ref := range cat.ProductURLs {
		ids = append(ids, ref.ID)
	}
	return ids
}
