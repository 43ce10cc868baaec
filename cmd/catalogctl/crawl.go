package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maltedev/catalog-scraper/internal/catalog"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/models"
)

var (
	crawlScrape bool
	crawlKind   string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Walk the category tree",
	Long:  "Walks the storefront navigation and prints every category as one JSON line. With --scrape the discovered products are scraped afterwards.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		kind, err := models.ParseKind(crawlKind)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		e, err := newEnv(kind, func(c jobs.Crawler) jobs.Crawler {
			return newPrintingCrawler(c, out)
		})
		if err != nil {
			return err
		}
		defer e.close()

		run := &models.CrawlRun{
			ID:      uuid.New().String(),
			Site:    e.pipeline.Site.Name(),
			BaseURL: e.pipeline.Site.BaseURL(),
			Status:  models.CrawlRunning,
		}
		if err := e.store.CreateRun(ctx, run); err != nil {
			return err
		}

		e.manager.RunCrawl(ctx, run)
		fmt.Fprintf(os.Stderr, "crawl %s %s: %d categories, %d products, %d failures, %d requests\n",
			run.ID, run.Status, run.Categories, run.Products, run.Failures, run.Requests)

		if crawlScrape && ctx.Err() == nil {
			if err := drain(ctx, e); err != nil {
				return err
			}
		}

		if run.Status == models.CrawlFailed {
			return fmt.Errorf("crawl failed: %s", run.Error)
		}
		return nil
	},
}

// drain scrapes everything the crawl queued and prints the worker counters.
func drain(ctx context.Context, e *env) error {
	e.queue.Close()
	if err := e.manager.StartWorkers(ctx); err != nil {
		return err
	}

	stats := e.manager.Stats()
	fmt.Fprintf(os.Stderr, "scraped %d products: %d changed, %d unchanged, %d failed\n",
		stats.Done+stats.Failed, stats.Changed, stats.Unchanged, stats.Failed)
	return nil
}

// printingCrawler writes each emitted category as a JSON line before passing
// it on.
type printingCrawler struct {
	jobs.Crawler

	mu  sync.Mutex
	enc *json.Encoder
}

func (p *printingCrawler) Crawl(ctx context.Context, emit catalog.EmitFunc) (catalog.Stats, error) {
	return p.Crawler.Crawl(ctx, func(c *models.Category) error {
		if err := p.print(c); err != nil {
			return err
		}
		return emit(c)
	})
}

func (p *printingCrawler) print(c *models.Category) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(c)
}

func newPrintingCrawler(c jobs.Crawler, w io.Writer) *printingCrawler {
	return &printingCrawler{Crawler: c, enc: json.NewEncoder(w)}
}

func init() {
	crawlCmd.Flags().BoolVar(&crawlScrape, "scrape", false, "scrape the discovered products after the crawl")
	crawlCmd.Flags().StringVar(&crawlKind, "kind", "full", "scrape kind for discovered products: availability, full or mpi")
	rootCmd.AddCommand(crawlCmd)
}
