package models

import (
	"github.com/google/uuid"
)

// Category is a node of a retailer's navigation tree. ProductURLs is filled
// while the category's listing is paginated and is never touched once the
// category has been emitted.
type Category struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Index       int          `json:"index"`
	ParentID    *string      `json:"parent_id"`
	Depth       int          `json:"depth"`
	ProductURLs []ProductRef `json:"product_urls"`
}

// ProductRef points at a product page discovered on a listing.
type ProductRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func NewCategory(name, url string, index int, parent *Category) *Category {
	c := &Category{
		ID:          uuid.New().String(),
		Name:        name,
		URL:         url,
		Index:       index,
		Depth:       1,
		ProductURLs: make([]ProductRef, 0),
	}
	if parent != nil {
		parentID := parent.ID
		c.ParentID = &parentID
		c.Depth = parent.Depth + 1
	}
	return c
}

func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}
