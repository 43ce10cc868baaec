package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter(t *testing.T) {
	chain, ok := Limiter(config.FetcherConfig{RatePerSecond: 1, Burst: 1}).(ratelimit.Chain)
	require.True(t, ok)
	assert.Len(t, chain, 1)

	chain = Limiter(config.FetcherConfig{DelayMin: time.Millisecond, DelayMax: 2 * time.Millisecond}).(ratelimit.Chain)
	assert.Len(t, chain, 2)
	assert.NoError(t, chain.Wait(context.Background(), "website.com"))
}

func TestNewProviderHTTP(t *testing.T) {
	p, closer, err := NewProvider(config.FetcherConfig{Driver: "http", Timeout: time.Second, MaxRetries: 2}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.IsType(t, &browser.HTTPClient{}, p)
	assert.NoError(t, closer.Close())
}

func TestNewProviderUnknown(t *testing.T) {
	_, _, err := NewProvider(config.FetcherConfig{Driver: "curl"}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}

func TestNewPipeline(t *testing.T) {
	cfg := &config.Config{
		Crawler: config.CrawlerConfig{BaseURL: "https://website.com/", Currency: "eur", Concurrency: 2, MaxPages: 10},
		Scraper: config.ScraperConfig{StoreKey: "website"},
	}
	sessions := browser.NewHTTPClient(browser.DefaultHTTPOptions(), slog.New(slog.DiscardHandler))

	p, err := NewPipeline(cfg, sessions, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "https://website.com/", p.Site.BaseURL())
	assert.Equal(t, 10, p.Site.Catalog().MaxPages)
	assert.NotNil(t, p.Crawler)
	assert.NotNil(t, p.Orchestrator)

	cfg.Crawler.BaseURL = ""
	_, err = NewPipeline(cfg, sessions, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
