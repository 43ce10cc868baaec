package scraper

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// Hash is the md5 of the product's JSON encoding read as a 128-bit integer.
// Struct fields encode in declaration order and map keys sorted, so equal
// products hash equally.
func Hash(product any) (*big.Int, error) {
	raw, err := json.Marshal(product)
	if err != nil {
		return nil, fmt.Errorf("failed to encode product: %w", err)
	}

	sum := md5.Sum(raw)
	return new(big.Int).SetBytes(sum[:]), nil
}

// Assemble hashes product and wraps it into a record for req.
func Assemble(req models.ScrapeRequest, product any, extractedURL string, metrics models.Metrics) (*models.ProductRecord, error) {
	hash, err := Hash(product)
	if err != nil {
		return nil, err
	}

	if extractedURL == "" {
		extractedURL = req.URL
	}

	return &models.ProductRecord{
		Product:        product,
		ScrapingStatus: models.StatusSuccess,
		StoreID:        req.StoreID,
		ProductID:      req.ProductID,
		PageID:         req.PageID,
		Hash:           hash,
		AffiliateURL:   req.AffiliateURL,
		ExtractedURL:   extractedURL,
		Metrics:        metrics,
		Kind:           req.Kind,
		ScrapedAt:      time.Now().UTC(),
	}, nil
}
