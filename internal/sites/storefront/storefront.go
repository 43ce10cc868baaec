// Package storefront scrapes retailers running the mega-menu storefront
// theme: navigation in .js-mega-menu-item, lookbook or product-card listings
// and a ProductJson script on product pages.
package storefront

import (
	"strings"

	"github.com/maltedev/catalog-scraper/internal/catalog"
)

const Name = "storefront"

type Config struct {
	BaseURL        string
	Currency       string
	ImageOption    string
	SkipCategories []string
	Concurrency    int
	MaxPages       int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://website.com/",
		Currency:       "USD",
		ImageOption:    "color",
		SkipCategories: []string{"stores", "about"},
		Concurrency:    4,
	}
}

type Site struct {
	cfg Config
}

func New(cfg Config) *Site {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Site{cfg: cfg}
}

func (s *Site) Name() string {
	return Name
}

func (s *Site) BaseURL() string {
	return s.cfg.BaseURL
}

// Catalog describes the navigation and listing layout for the crawler.
func (s *Site) Catalog() catalog.SiteConfig {
	return catalog.SiteConfig{
		BaseURL: s.cfg.BaseURL,
		Levels: []catalog.Level{
			{Item: ".js-mega-menu-item", Name: "a span", Link: "a"},
			{Item: ".mega-menu-link-list__link"},
		},
		ProductSelectors:         []string{".js-lookbook-slider > div"},
		ProductFallbackSelectors: []string{".product-card"},
		ProductLink:              "a",
		NextPage:                 ".next a",
		SkipCategories:           s.cfg.SkipCategories,
		GiftCardName:             "gift card",
		Concurrency:              s.cfg.Concurrency,
		MaxPages:                 s.cfg.MaxPages,
	}
}
