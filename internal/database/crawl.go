package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-scraper/internal/models"
)

var ErrRunNotFound = errors.New("crawl run not found")

// CrawlRepository stores crawl runs and the categories they emit.
type CrawlRepository struct {
	db *DB
}

func NewCrawlRepository(db *DB) *CrawlRepository {
	return &CrawlRepository{db: db}
}

func (r *CrawlRepository) CreateRun(ctx context.Context, run *models.CrawlRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.CrawlRunning
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO crawl_run (id, site, base_url, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Site, run.BaseURL, string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create crawl run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of run.
func (r *CrawlRepository) FinishRun(ctx context.Context, run *models.CrawlRun) error {
	now := time.Now()
	run.FinishedAt = &now

	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE crawl_run
		SET status = $1, categories = $2, products = $3, failures = $4,
			requests = $5, error = $6, finished_at = $7
		WHERE id = $8`,
		string(run.Status), run.Categories, run.Products, run.Failures,
		run.Requests, errMsg, now, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish crawl run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

func (r *CrawlRepository) GetRun(ctx context.Context, id string) (*models.CrawlRun, error) {
	run := &models.CrawlRun{}
	var (
		status string
		errMsg *string
	)

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, site, base_url, status, categories, products, failures,
			requests, error, started_at, finished_at
		FROM crawl_run
		WHERE id = $1`, id).Scan(
		&run.ID, &run.Site, &run.BaseURL, &status, &run.Categories, &run.Products,
		&run.Failures, &run.Requests, &errMsg, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	run.Status = models.CrawlStatus(status)
	if errMsg != nil {
		run.Error = *errMsg
	}
	return run, nil
}

// SaveCategory stores an emitted category together with its product refs.
func (r *CrawlRepository) SaveCategory(ctx context.Context, runID string, c *models.Category) error {
	return r.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO category (id, run_id, parent_id, name, url, position, depth)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, runID, c.ParentID, c.Name, c.URL, c.Index, c.Depth)
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}

		for i, ref := range c.ProductURLs {
			_, err := tx.Exec(ctx, `
				INSERT INTO category_product (category_id, product_id, url, position)
				VALUES ($1, $2, $3, $4)`,
				c.ID, ref.ID, ref.URL, i)
			if err != nil {
				return fmt.Errorf("failed to insert product ref: %w", err)
			}
		}
		return nil
	})
}

// ListCategories returns the categories of a run in emission order.
func (r *CrawlRepository) ListCategories(ctx context.Context, runID string) ([]*models.Category, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT c.id, c.parent_id, c.name, c.url, c.position, c.depth,
			COALESCE(p.product_id, ''), COALESCE(p.url, '')
		FROM category c
		LEFT JOIN category_product p ON p.category_id = c.id
		WHERE c.run_id = $1
		ORDER BY c.seq, p.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var (
		categories []*models.Category
		current    *models.Category
	)
	for rows.Next() {
		var (
			c             models.Category
			refID, refURL string
		)
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name, &c.URL, &c.Index, &c.Depth, &refID, &refURL); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}

		if current == nil || current.ID != c.ID {
			c.ProductURLs = make([]models.ProductRef, 0)
			current = &c
			categories = append(categories, current)
		}
		if refURL != "" {
			current.ProductURLs = append(current.ProductURLs, models.ProductRef{ID: refID, URL: refURL})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return categories, nil
}
