// Package app builds the fetcher, site and pipeline components from
// configuration. Both binaries share it.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/catalog"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/sites/storefront"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Limiter paces requests per host: a token bucket, optionally followed by a
// randomized delay.
func Limiter(cfg config.FetcherConfig) ratelimit.RateLimiter {
	chain := ratelimit.Chain{ratelimit.NewHostLimiter(cfg.RatePerSecond, cfg.Burst)}
	if cfg.DelayMax > 0 {
		chain = append(chain, ratelimit.NewJitterLimiter(cfg.DelayMin, cfg.DelayMax))
	}
	return chain
}

// NewProvider returns the session provider selected by cfg.Driver. The closer
// shuts the provider down.
func NewProvider(cfg config.FetcherConfig, logger *slog.Logger) (browser.Provider, io.Closer, error) {
	limiter := Limiter(cfg)

	switch cfg.Driver {
	case "", "http":
		opts := browser.DefaultHTTPOptions()
		opts.Timeout = cfg.Timeout
		opts.MaxRetries = cfg.MaxRetries
		opts.RetryDelay = cfg.RetryDelay
		opts.MaxRequests = cfg.MaxRequests
		opts.Limiter = limiter
		if cfg.UserAgent != "" {
			opts.UserAgent = cfg.UserAgent
		}
		return browser.NewHTTPClient(opts, logger), nopCloser{}, nil

	case "playwright":
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Headless
		opts.Timeout = cfg.Timeout
		opts.MaxRetries = cfg.MaxRetries
		opts.MaxRequests = cfg.MaxRequests
		opts.ProxyServer = cfg.Proxy
		opts.Locale = cfg.Locale
		opts.TimezoneID = cfg.TimezoneID
		opts.Limiter = limiter
		if cfg.AcceptLanguage != "" {
			opts.AcceptLanguage = cfg.AcceptLanguage
			opts.ExtraHeaders["Accept-Language"] = cfg.AcceptLanguage
		}
		if cfg.UserAgent != "" {
			opts.UserAgent = cfg.UserAgent
		}

		pw, err := browser.NewPlaywright(opts, logger)
		if err != nil {
			return nil, nil, err
		}
		return pw, pw, nil

	default:
		return nil, nil, fmt.Errorf("unknown fetcher driver %q", cfg.Driver)
	}
}

func NewSite(cfg config.CrawlerConfig) (*storefront.Site, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CRAWLER_BASE_URL is required")
	}

	sc := storefront.DefaultConfig()
	sc.BaseURL = cfg.BaseURL
	if cfg.Currency != "" {
		sc.Currency = cfg.Currency
	}
	if len(cfg.SkipCategories) > 0 {
		sc.SkipCategories = cfg.SkipCategories
	}
	if cfg.Concurrency > 0 {
		sc.Concurrency = cfg.Concurrency
	}
	sc.MaxPages = cfg.MaxPages

	return storefront.New(sc), nil
}

// Pipeline is the crawler and orchestrator of one site.
type Pipeline struct {
	Site         *storefront.Site
	Crawler      *catalog.Crawler
	Orchestrator *scraper.Orchestrator
}

func NewPipeline(cfg *config.Config, sessions browser.Provider, logger *slog.Logger) (*Pipeline, error) {
	site, err := NewSite(cfg.Crawler)
	if err != nil {
		return nil, err
	}

	crawler, err := catalog.NewCrawler(site.Catalog(), sessions, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create crawler: %w", err)
	}

	orchestrator := scraper.NewOrchestrator(site, sessions, scraper.Config{
		StoreKey: cfg.Scraper.StoreKey,
	}, logger)

	return &Pipeline{
		Site:         site,
		Crawler:      crawler,
		Orchestrator: orchestrator,
	}, nil
}
