package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-scraper/internal/models"
)

const (
	AggregateProductRecord    = "product_record"
	EventProductRecordChanged = "PRODUCT_RECORD_CHANGED"
)

// RecordChangedPayload is published whenever a product's content hash
// changes. The hash travels as a decimal string since it exceeds float64.
type RecordChangedPayload struct {
	StoreID      string         `json:"store_id"`
	ProductID    string         `json:"product_id"`
	PageID       string         `json:"page_id"`
	Kind         models.Kind    `json:"kind"`
	Hash         string         `json:"hash"`
	PreviousHash string         `json:"previous_hash,omitempty"`
	ExtractedURL string         `json:"extracted_url"`
	Product      any            `json:"product"`
	Metrics      models.Metrics `json:"metrics"`
	ScrapedAt    time.Time      `json:"scraped_at"`
}

// RecordRepository keeps the latest record per product page and kind.
type RecordRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// Save upserts record. When the stored hash equals the record's hash only the
// scrape time and metrics are refreshed and changed is false; otherwise the
// row is replaced and a change event is queued in the same transaction.
func (r *RecordRepository) Save(ctx context.Context, record *models.ProductRecord) (changed bool, err error) {
	if record.Hash == nil {
		return false, errors.New("record has no hash")
	}
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = time.Now()
	}

	product, err := json.Marshal(record.Product)
	if err != nil {
		return false, fmt.Errorf("failed to marshal product: %w", err)
	}
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	hash := record.Hash.String()

	err = r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var previous string
		err := tx.QueryRow(ctx, `
			SELECT hash::text FROM product_record
			WHERE store_id = $1 AND product_id = $2 AND page_id = $3 AND kind = $4
			FOR UPDATE`,
			record.StoreID, record.ProductID, record.PageID, string(record.Kind)).Scan(&previous)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to load stored hash: %w", err)
		}

		if previous == hash {
			_, err := tx.Exec(ctx, `
				UPDATE product_record SET metrics = $1, scraped_at = $2
				WHERE store_id = $3 AND product_id = $4 AND page_id = $5 AND kind = $6`,
				metrics, record.ScrapedAt,
				record.StoreID, record.ProductID, record.PageID, string(record.Kind))
			if err != nil {
				return fmt.Errorf("failed to touch product record: %w", err)
			}
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO product_record (
				store_id, product_id, page_id, kind, hash, product,
				affiliate_url, extracted_url, metrics, scraped_at, changed_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $10)
			ON CONFLICT (store_id, product_id, page_id, kind) DO UPDATE SET
				hash = EXCLUDED.hash,
				product = EXCLUDED.product,
				affiliate_url = EXCLUDED.affiliate_url,
				extracted_url = EXCLUDED.extracted_url,
				metrics = EXCLUDED.metrics,
				scraped_at = EXCLUDED.scraped_at,
				changed_at = EXCLUDED.changed_at`,
			record.StoreID, record.ProductID, record.PageID, string(record.Kind), hash, product,
			record.AffiliateURL, record.ExtractedURL, metrics, record.ScrapedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert product record: %w", err)
		}

		event, err := NewRecordChangedEvent(recordKey(record), RecordChangedPayload{
			StoreID:      record.StoreID,
			ProductID:    record.ProductID,
			PageID:       record.PageID,
			Kind:         record.Kind,
			Hash:         hash,
			PreviousHash: previous,
			ExtractedURL: record.ExtractedURL,
			Product:      record.Product,
			Metrics:      record.Metrics,
			ScrapedAt:    record.ScrapedAt,
		})
		if err != nil {
			return err
		}

		changed = true
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// StoredHash returns the hash last saved for the given product page.
func (r *RecordRepository) StoredHash(ctx context.Context, storeID, productID, pageID string, kind models.Kind) (*big.Int, error) {
	var s string
	err := r.db.pool.QueryRow(ctx, `
		SELECT hash::text FROM product_record
		WHERE store_id = $1 AND product_id = $2 AND page_id = $3 AND kind = $4`,
		storeID, productID, pageID, string(kind)).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stored hash: %w", err)
	}

	h, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored hash %q", s)
	}
	return h, nil
}

func recordKey(record *models.ProductRecord) string {
	return record.StoreID + ":" + record.ProductID + ":" + record.PageID + ":" + string(record.Kind)
}
