package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/maltedev/catalog-scraper/internal/ratelimit"
	"golang.org/x/sync/errgroup"
)

// HTTPOptions configures the plain HTTP fetcher.
type HTTPOptions struct {
	UserAgent        string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	MaxRequests      int
	BatchConcurrency int
	Limiter          ratelimit.RateLimiter
	ExtraHeaders     map[string]string
}

func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		UserAgent:        DefaultOptions().UserAgent,
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		BatchConcurrency: 4,
		ExtraHeaders:     DefaultOptions().ExtraHeaders,
	}
}

// HTTPClient is a Provider backed by net/http. All sessions share one
// transport, so connections are pooled across concurrent runs.
type HTTPClient struct {
	transport http.RoundTripper
	opts      HTTPOptions
	logger    *slog.Logger
}

func NewHTTPClient(opts HTTPOptions, logger *slog.Logger) *HTTPClient {
	defaults := DefaultHTTPOptions()
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = defaults.BatchConcurrency
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	return &HTTPClient{
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		},
		opts:   opts,
		logger: logger.With("component", "http_fetcher"),
	}
}

func (c *HTTPClient) NewSession(ctx context.Context) (Session, error) {
	jar := newResettableJar()
	return &httpSession{
		client: &http.Client{
			Transport: c.transport,
			Jar:       jar,
			Timeout:   c.opts.Timeout,
		},
		jar:    jar,
		opts:   c.opts,
		logger: c.logger,
	}, nil
}

type httpSession struct {
	client *http.Client
	jar    *resettableJar
	opts   HTTPOptions
	logger *slog.Logger
	counters
}

func (s *httpSession) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Page, error) {
	ro := applyOptions(opts)

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetchFailed, rawURL)
	}

	var lastErr error
	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			s.retries.Add(1)
			s.logger.Debug("retrying fetch", "attempt", attempt+1, "url", rawURL)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, ctx.Err())
			case <-time.After(time.Duration(attempt) * s.opts.RetryDelay):
			}
		}

		if s.opts.Limiter != nil {
			if err := s.opts.Limiter.Wait(ctx, u.Host); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
			}
		}

		if err := s.reserve(s.opts.MaxRequests); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
		}

		page, retry, err := s.do(ctx, rawURL, ro)
		if err == nil {
			return page, nil
		}

		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		s.logger.Warn("fetch attempt failed", "url", rawURL, "attempt", attempt+1, "error", err)
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, lastErr)
}

// do performs one attempt and reports whether a failure is worth retrying.
func (s *httpSession) do(ctx context.Context, rawURL string, ro requestOptions) (*Page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}

	req.Header.Set("User-Agent", s.opts.UserAgent)
	for k, v := range s.opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}
	// Let the transport negotiate gzip so bodies are decoded transparently.
	req.Header.Del("Accept-Encoding")

	start := time.Now()
	defer func() { s.observe(time.Since(start)) }()

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			s.timeouts.Add(1)
			return nil, true, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			s.timeouts.Add(1)
			return nil, true, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, true, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}, false, nil
}

func (s *httpSession) GetAll(ctx context.Context, urls []string) ([]*Page, error) {
	return getAll(ctx, s, urls, s.opts.BatchConcurrency)
}

func (s *httpSession) Stats() Stats {
	return s.snapshot()
}

func (s *httpSession) ClearCookies() {
	s.jar.Reset()
}

func (s *httpSession) Close() error {
	return nil
}

// getAll fetches urls concurrently and returns pages in input order.
func getAll(ctx context.Context, s Session, urls []string, limit int) ([]*Page, error) {
	pages := make([]*Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range urls {
		g.Go(func() error {
			page, err := s.Get(gctx, u)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
