package catalog

import (
	"errors"
	"fmt"
	"strings"
)

const maxDepth = 3

// Level describes the navigation entries at one depth of the menu. Item is
// matched inside the parent entry (or the whole page for the first level);
// Name and Link are matched inside the item, an empty selector meaning the
// item itself.
type Level struct {
	Item string
	Name string
	Link string
}

// SiteConfig tells the crawler how a retailer lays out its navigation and
// product listings.
type SiteConfig struct {
	BaseURL string
	Levels  []Level

	ProductSelectors         []string
	ProductFallbackSelectors []string
	ProductLink              string
	NextPage                 string

	SkipCategories []string
	GiftCardName   string

	Concurrency int
	MaxPages    int
}

func (s SiteConfig) Validate() error {
	if s.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if len(s.Levels) == 0 || len(s.Levels) > maxDepth {
		return fmt.Errorf("navigation must have between 1 and %d levels, got %d", maxDepth, len(s.Levels))
	}
	for i, l := range s.Levels {
		if l.Item == "" {
			return fmt.Errorf("level %d has no item selector", i+1)
		}
	}
	if len(s.ProductSelectors) == 0 && len(s.ProductFallbackSelectors) == 0 {
		return errors.New("at least one product selector is required")
	}
	if s.Concurrency < 0 || s.MaxPages < 0 {
		return errors.New("concurrency and max pages must not be negative")
	}
	return nil
}

func (s SiteConfig) withDefaults() SiteConfig {
	if s.GiftCardName == "" {
		s.GiftCardName = "gift card"
	}
	if s.Concurrency == 0 {
		s.Concurrency = 4
	}
	if s.ProductLink == "" {
		s.ProductLink = "a"
	}
	return s
}

func (s SiteConfig) skipped(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, skip := range s.SkipCategories {
		if name == strings.ToLower(strings.TrimSpace(skip)) {
			return true
		}
	}
	return false
}

func (s SiteConfig) isGiftCard(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(s.GiftCardName))
}
