package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/catalog-scraper/internal/app"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/queue"
	"github.com/maltedev/catalog-scraper/internal/storage"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	baseURL   string
	driver    string
	statePath string
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Crawl retailer catalogs and scrape product pages",
	Long:  "Walks a storefront's category tree and scrapes product pages into records, keeping crawl runs and record hashes in a local state file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if baseURL != "" {
			c.Crawler.BaseURL = baseURL
		}
		if driver != "" {
			c.Fetcher.Driver = driver
		}
		cfg = c

		logger = config.NewLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "storefront base URL (overrides CRAWLER_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "fetcher driver: http or playwright (overrides FETCHER_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "catalog-state.json", "state file for crawl runs and record hashes; empty keeps state in memory")
}

// env is the pipeline of one command invocation.
type env struct {
	store    *storage.FileStore
	queue    *queue.InMemoryQueue
	pipeline *app.Pipeline
	manager  *jobs.Manager
	close    func()
}

func newEnv(kind models.Kind, wrap func(jobs.Crawler) jobs.Crawler) (*env, error) {
	store, err := storage.NewFileStore(statePath)
	if err != nil {
		return nil, err
	}

	sessions, closer, err := app.NewProvider(cfg.Fetcher, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := app.NewPipeline(cfg, sessions, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}

	var crawler jobs.Crawler = pipeline.Crawler
	if wrap != nil {
		crawler = wrap(crawler)
	}

	q := queue.NewInMemoryQueue()
	manager := jobs.NewManager(store, store, crawler, pipeline.Orchestrator, q, jobs.Config{
		Site:     pipeline.Site.Name(),
		BaseURL:  pipeline.Site.BaseURL(),
		StoreKey: cfg.Scraper.StoreKey,
		Kind:     kind,
		Workers:  cfg.Scraper.Workers,
	}, logger)

	return &env{
		store:    store,
		queue:    q,
		pipeline: pipeline,
		manager:  manager,
		close: func() {
			q.Close()
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close fetcher", "error", err)
			}
		},
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
