package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"github.com/playwright-community/playwright-go"
)

// Playwright is a Provider backed by one headless Chromium. Each session gets
// its own BrowserContext, so cookies never leak between runs.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless         bool
	Timeout          time.Duration
	UserAgent        string
	ViewportWidth    int
	ViewportHeight   int
	AcceptLanguage   string
	TimezoneID       string
	Locale           string
	ProxyServer      string
	ExtraHeaders     map[string]string
	MaxRetries       int
	MaxRequests      int
	BatchConcurrency int
	Limiter          ratelimit.RateLimiter
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"DNT":             "1",
		},
		MaxRetries:       3,
		BatchConcurrency: 2,
	}
}

func NewPlaywright(opts *Options, logger *slog.Logger) (*Playwright, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 1
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Playwright{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

func (b *Playwright) NewSession(ctx context.Context) (Session, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.opts.ExtraHeaders,
	}

	bctx, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &playwrightSession{
		context: bctx,
		opts:    b.opts,
		logger:  b.logger,
	}, nil
}

func (b *Playwright) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

type playwrightSession struct {
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
	counters
}

func (s *playwrightSession) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Page, error) {
	ro := applyOptions(opts)

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetchFailed, rawURL)
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create new page: %w", ErrFetchFailed, err)
	}
	defer page.Close()

	if len(ro.headers) > 0 {
		if err := page.SetExtraHTTPHeaders(ro.headers); err != nil {
			return nil, fmt.Errorf("%w: failed to set headers: %w", ErrFetchFailed, err)
		}
	}

	resp, err := s.navigateWithRetry(ctx, page, rawURL, u.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get page content: %w", ErrFetchFailed, err)
	}

	status := 0
	if resp != nil {
		status = resp.Status()
	}

	return &Page{
		URL:        page.URL(),
		StatusCode: status,
		Body:       []byte(content),
	}, nil
}

func (s *playwrightSession) navigateWithRetry(ctx context.Context, page playwright.Page, rawURL, host string) (playwright.Response, error) {
	var lastErr error

	for i := 0; i < s.opts.MaxRetries; i++ {
		if i > 0 {
			s.retries.Add(1)
			s.logger.Info("retrying navigation", "attempt", i+1, "url", rawURL)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}

		if s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(ctx, host); err != nil {
				return nil, err
			}
		}
		if err := s.reserve(s.opts.MaxRequests); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.opts.Timeout.Milliseconds())),
		})
		s.observe(time.Since(start))

		if err == nil {
			if resp != nil && resp.Status() >= 400 && resp.Status() < 500 && resp.Status() != 429 {
				return nil, fmt.Errorf("unexpected status %d", resp.Status())
			}
			if resp == nil || (resp.Status() < 500 && resp.Status() != 429) {
				return resp, nil
			}
			err = fmt.Errorf("unexpected status %d", resp.Status())
		} else if errors.Is(err, playwright.ErrTimeout) {
			s.timeouts.Add(1)
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		lastErr = err
		s.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return nil, fmt.Errorf("failed after %d retries: %w", s.opts.MaxRetries, lastErr)
}

func (s *playwrightSession) GetAll(ctx context.Context, urls []string) ([]*Page, error) {
	return getAll(ctx, s, urls, s.opts.BatchConcurrency)
}

func (s *playwrightSession) Stats() Stats {
	return s.snapshot()
}

func (s *playwrightSession) ClearCookies() {
	if err := s.context.ClearCookies(); err != nil {
		s.logger.Warn("failed to clear cookies", "error", err)
	}
}

func (s *playwrightSession) Close() error {
	if err := s.context.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
