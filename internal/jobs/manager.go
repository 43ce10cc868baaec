package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/catalog"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/queue"
)

var ErrCrawlRunning = errors.New("a crawl is already running")

type CrawlStore interface {
	CreateRun(ctx context.Context, run *models.CrawlRun) error
	FinishRun(ctx context.Context, run *models.CrawlRun) error
	GetRun(ctx context.Context, id string) (*models.CrawlRun, error)
	SaveCategory(ctx context.Context, runID string, c *models.Category) error
	ListCategories(ctx context.Context, runID string) ([]*models.Category, error)
}

type RecordStore interface {
	Save(ctx context.Context, record *models.ProductRecord) (bool, error)
}

type Crawler interface {
	Crawl(ctx context.Context, emit catalog.EmitFunc) (catalog.Stats, error)
}

type Runner interface {
	Run(ctx context.Context, req models.ScrapeRequest) (*models.ProductRecord, error)
}

type Config struct {
	Site     string
	BaseURL  string
	StoreKey string
	// Kind is the scrape variant queued for every discovered product.
	Kind    models.Kind
	Workers int
}

// Manager runs crawls and feeds the product pages they discover to a pool of
// scrape workers.
type Manager struct {
	crawls  CrawlStore
	records RecordStore
	crawler Crawler
	runner  Runner
	queue   queue.Queue
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	running string
	baseCtx context.Context
	wg      sync.WaitGroup

	stats struct {
		done      atomic.Int64
		failed    atomic.Int64
		changed   atomic.Int64
		unchanged atomic.Int64
	}
}

// Stats are the worker counters since start.
type Stats struct {
	Queued    int    `json:"queued"`
	Done      int64  `json:"done"`
	Failed    int64  `json:"failed"`
	Changed   int64  `json:"changed"`
	Unchanged int64  `json:"unchanged"`
	Running   string `json:"running_crawl,omitempty"`
}

func NewManager(crawls CrawlStore, records RecordStore, crawler Crawler, runner Runner, q queue.Queue, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Kind == "" {
		cfg.Kind = models.KindFull
	}
	if cfg.StoreKey == "" {
		cfg.StoreKey = cfg.Site
	}

	return &Manager{
		crawls:  crawls,
		records: records,
		crawler: crawler,
		runner:  runner,
		queue:   q,
		cfg:     cfg,
		logger:  logger.With("component", "job_manager"),
		baseCtx: context.Background(),
	}
}

// StartCrawl records a new crawl run and walks the site in the background.
// Only one crawl runs at a time.
func (m *Manager) StartCrawl(ctx context.Context) (*models.CrawlRun, error) {
	m.mu.Lock()
	if m.running != "" {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCrawlRunning, m.running)
	}

	run := &models.CrawlRun{
		ID:      uuid.New().String(),
		Site:    m.cfg.Site,
		BaseURL: m.cfg.BaseURL,
		Status:  models.CrawlRunning,
	}
	if err := m.crawls.CreateRun(ctx, run); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to create crawl run: %w", err)
	}
	m.running = run.ID
	baseCtx := m.baseCtx
	m.mu.Unlock()

	m.logger.Info("crawl started", "run_id", run.ID, "base_url", run.BaseURL)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.RunCrawl(baseCtx, run)

		m.mu.Lock()
		m.running = ""
		m.mu.Unlock()
	}()

	return run, nil
}

// RunCrawl walks the site synchronously. Every emitted category is stored and
// its products are queued for scraping; run is finished with the crawl's
// counters.
func (m *Manager) RunCrawl(ctx context.Context, run *models.CrawlRun) {
	logger := m.logger.With("run_id", run.ID)

	stats, err := m.crawler.Crawl(ctx, func(c *models.Category) error {
		if err := m.crawls.SaveCategory(ctx, run.ID, c); err != nil {
			return fmt.Errorf("failed to save category %q: %w", c.Name, err)
		}
		return m.enqueue(c)
	})

	run.Categories = stats.Categories
	run.Products = stats.Products
	run.Failures = stats.Failures
	run.Requests = stats.Requests
	run.Status = models.CrawlCompleted
	if err != nil {
		run.Status = models.CrawlFailed
		run.Error = err.Error()
		logger.Error("crawl failed", "error", err)
	}

	// the run must be finished even when ctx was cancelled
	if ferr := m.crawls.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		logger.Error("failed to finish crawl run", "error", ferr)
	}

	logger.Info("crawl finished",
		"status", run.Status,
		"categories", run.Categories,
		"products", run.Products,
		"failures", run.Failures)
}

func (m *Manager) enqueue(c *models.Category) error {
	tasks := make([]*queue.Task, 0, len(c.ProductURLs))
	for _, ref := range c.ProductURLs {
		tasks = append(tasks, queue.NewTask(models.ScrapeRequest{
			URL:       ref.URL,
			StoreID:   m.cfg.StoreKey,
			ProductID: ref.ID,
			PageID:    c.ID,
			Kind:      m.cfg.Kind,
		}, c.Depth))
	}

	if err := queue.NewBatchQueue(m.queue, len(tasks)).PushBatch(tasks); err != nil {
		return fmt.Errorf("failed to queue products of %q: %w", c.Name, err)
	}
	return nil
}

func (m *Manager) GetCrawl(ctx context.Context, id string) (*models.CrawlRun, error) {
	return m.crawls.GetRun(ctx, id)
}

func (m *Manager) CrawlCategories(ctx context.Context, id string) ([]*models.Category, error) {
	if _, err := m.crawls.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return m.crawls.ListCategories(ctx, id)
}

// Scrape runs one scrape synchronously and stores the record.
func (m *Manager) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ProductRecord, bool, error) {
	record, err := m.runner.Run(ctx, req)
	if err != nil {
		return nil, false, err
	}

	changed, err := m.records.Save(ctx, record)
	if err != nil {
		return record, false, fmt.Errorf("failed to save record: %w", err)
	}
	return record, changed, nil
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return Stats{
		Queued:    m.queue.Size(),
		Done:      m.stats.done.Load(),
		Failed:    m.stats.failed.Load(),
		Changed:   m.stats.changed.Load(),
		Unchanged: m.stats.unchanged.Load(),
		Running:   running,
	}
}

// Wait blocks until background crawls have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
