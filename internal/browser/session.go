package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrFetchFailed   = errors.New("fetch failed")
	ErrTimeout       = errors.New("fetch timed out")
	ErrRequestBudget = errors.New("request budget exhausted")
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Stats are the cumulative counters of one session.
type Stats struct {
	Requests    int
	Retries     int
	Timeouts    int
	NetworkTime time.Duration
}

// Session is a fetch context with its own cookies and counters. A scrape run
// or a crawl owns exactly one session; sessions created by the same Provider
// share the underlying connection pool.
type Session interface {
	Get(ctx context.Context, url string, opts ...RequestOption) (*Page, error)
	GetAll(ctx context.Context, urls []string) ([]*Page, error)
	Stats() Stats
	ClearCookies()
	Close() error
}

// Provider hands out sessions. Implementations are safe for concurrent use.
type Provider interface {
	NewSession(ctx context.Context) (Session, error)
}

type RequestOption func(*requestOptions)

type requestOptions struct {
	headers map[string]string
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

func WithReferer(referer string) RequestOption {
	return WithHeader("Referer", referer)
}

func applyOptions(opts []RequestOption) requestOptions {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

type counters struct {
	requests    atomic.Int64
	retries     atomic.Int64
	timeouts    atomic.Int64
	networkTime atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Requests:    int(c.requests.Load()),
		Retries:     int(c.retries.Load()),
		Timeouts:    int(c.timeouts.Load()),
		NetworkTime: time.Duration(c.networkTime.Load()),
	}
}

// reserve counts a request attempt against the budget. max <= 0 means no
// budget.
func (c *counters) reserve(max int) error {
	n := c.requests.Add(1)
	if max > 0 && n > int64(max) {
		c.requests.Add(-1)
		return ErrRequestBudget
	}
	return nil
}

func (c *counters) observe(d time.Duration) {
	c.networkTime.Add(int64(d))
}

// resettableJar is a cookie jar that can be emptied while the client using it
// stays alive.
type resettableJar struct {
	mu  sync.RWMutex
	jar http.CookieJar
}

func newResettableJar() *resettableJar {
	j := &resettableJar{}
	j.Reset()
	return j
}

func (j *resettableJar) Reset() {
	jar, _ := cookiejar.New(nil)

	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}
