package models

import (
	"fmt"
	"strings"
)

// Kind selects which scrape variant runs for a product URL.
type Kind string

const (
	KindAvailability Kind = "availability"
	KindFull         Kind = "full"
	KindMpi          Kind = "mpi"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAvailability, KindFull, KindMpi:
		return k, nil
	default:
		return "", fmt.Errorf("unknown scrape kind %q", s)
	}
}

// Variant is one purchasable selection of a product.
type Variant struct {
	Code      string            `json:"code"`
	Available bool              `json:"available"`
	Selection map[string]string `json:"selection,omitempty"`
	Price     *float64          `json:"price,omitempty"`
	CodeCheck *CodeCheck        `json:"codeCheck,omitempty"`
}

// CodeCheck annotates a variant code without replacing it.
type CodeCheck struct {
	Normalized string `json:"normalized"`
	Valid      bool   `json:"valid"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

type AttributeValue struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Attribute struct {
	ID     string           `json:"id"`
	Label  string           `json:"label"`
	Values []AttributeValue `json:"values"`
}

// Asset is a product image. Selector maps attribute ids to the value ids the
// asset belongs to; an empty selector marks the default asset.
type Asset struct {
	URL      string              `json:"url"`
	Type     string              `json:"type,omitempty"`
	Selector map[string][]string `json:"selector"`
}

// AvailabilityProduct is the payload of an availability scrape.
type AvailabilityProduct struct {
	URL          string    `json:"url"`
	ExtractedURL string    `json:"extractedUrl,omitempty"`
	InStock      bool      `json:"inStock"`
	Variants     []Variant `json:"variants"`
}

// FullProduct is the payload of a full detail scrape.
type FullProduct struct {
	URL          string      `json:"url"`
	ExtractedURL string      `json:"extractedUrl,omitempty"`
	Title        string      `json:"title"`
	Brand        string      `json:"brand,omitempty"`
	Description  string      `json:"description,omitempty"`
	Price        *float64    `json:"price,omitempty"`
	Currency     string      `json:"currency,omitempty"`
	Attributes   []Attribute `json:"attributes"`
	Assets       []Asset     `json:"assets"`
	Variants     []Variant   `json:"variants"`
}

// MpiProduct is the payload of a merchant price index scrape.
type MpiProduct struct {
	URL           string   `json:"url"`
	ExtractedURL  string   `json:"extractedUrl,omitempty"`
	Title         string   `json:"title,omitempty"`
	SKU           string   `json:"sku,omitempty"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty"`
	Currency      string   `json:"currency"`
	InStock       bool     `json:"inStock"`
}

// Payload holds exactly one variant payload, tagged by Kind.
type Payload struct {
	Kind         Kind
	Availability *AvailabilityProduct
	Full         *FullProduct
	Mpi          *MpiProduct
}

// Product returns the payload carried for p.Kind, or nil.
func (p Payload) Product() any {
	switch p.Kind {
	case KindAvailability:
		if p.Availability != nil {
			return p.Availability
		}
	case KindFull:
		if p.Full != nil {
			return p.Full
		}
	case KindMpi:
		if p.Mpi != nil {
			return p.Mpi
		}
	}
	return nil
}

func (p *AvailabilityProduct) Validate(partial bool) []string {
	var fields []string

	if p.URL == "" {
		fields = append(fields, "url")
	}
	if len(p.Variants) == 0 {
		fields = append(fields, "variants")
	}
	for i, v := range p.Variants {
		if v.Code == "" {
			fields = append(fields, fmt.Sprintf("variants[%d].code", i))
		}
		if !partial && len(v.Selection) == 0 {
			fields = append(fields, fmt.Sprintf("variants[%d].selection", i))
		}
	}

	return fields
}

func (p *FullProduct) Validate(partial bool) []string {
	var fields []string

	if p.URL == "" {
		fields = append(fields, "url")
	}
	if p.Title == "" {
		fields = append(fields, "title")
	}
	for i, attr := range p.Attributes {
		if attr.ID == "" {
			fields = append(fields, fmt.Sprintf("attributes[%d].id", i))
		}
		if attr.Label == "" {
			fields = append(fields, fmt.Sprintf("attributes[%d].label", i))
		}
		for j, v := range attr.Values {
			if v.ID == "" {
				fields = append(fields, fmt.Sprintf("attributes[%d].values[%d].id", i, j))
			}
		}
	}
	for i, asset := range p.Assets {
		if asset.URL == "" {
			fields = append(fields, fmt.Sprintf("assets[%d].url", i))
		}
	}
	for i, v := range p.Variants {
		if v.Code == "" {
			fields = append(fields, fmt.Sprintf("variants[%d].code", i))
		}
	}

	if !partial {
		if p.Brand == "" {
			fields = append(fields, "brand")
		}
		if p.Price == nil {
			fields = append(fields, "price")
		}
		if p.Currency == "" {
			fields = append(fields, "currency")
		}
		if len(p.Assets) == 0 {
			fields = append(fields, "assets")
		}
	}

	return fields
}

func (p *MpiProduct) Validate(partial bool) []string {
	var fields []string

	if p.URL == "" {
		fields = append(fields, "url")
	}
	if p.Price < 0 {
		fields = append(fields, "price")
	}
	if p.Currency == "" {
		fields = append(fields, "currency")
	}

	if !partial {
		if p.Title == "" {
			fields = append(fields, "title")
		}
		if p.SKU == "" {
			fields = append(fields, "sku")
		}
	}

	return fields
}
