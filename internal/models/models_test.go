package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"availability", KindAvailability, false},
		{" Full ", KindFull, false},
		{"MPI", KindMpi, false},
		{"reviews", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCategory(t *testing.T) {
	root := NewCategory("Shoes", "https://website.com/shoes", 0, nil)
	assert.True(t, root.IsRoot())
	assert.Equal(t, 1, root.Depth)
	assert.NotEmpty(t, root.ID)
	assert.NotNil(t, root.ProductURLs)

	child := NewCategory("Men", "https://website.com/shoes/men", 1, root)
	assert.False(t, child.IsRoot())
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)
	assert.Equal(t, 2, child.Depth)
	assert.NotEqual(t, root.ID, child.ID)
}

func TestCategoryJSON(t *testing.T) {
	root := NewCategory("Shoes", "https://website.com/shoes", 0, nil)

	data, err := json.Marshal(root)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "parent_id")
	assert.Nil(t, raw["parent_id"])
	assert.Equal(t, []any{}, raw["product_urls"])
}

func TestPayloadProduct(t *testing.T) {
	full := &FullProduct{URL: "u"}

	assert.Same(t, full, Payload{Kind: KindFull, Full: full}.Product())
	assert.Nil(t, Payload{Kind: KindMpi, Full: full}.Product())
	assert.Nil(t, Payload{Kind: KindAvailability}.Product())
}

func TestValidate(t *testing.T) {
	price := 10.0

	tests := map[string]struct {
		product interface{ Validate(bool) []string }
		partial bool
		want    []string
	}{
		"availability ok": {
			product: &AvailabilityProduct{URL: "u", Variants: []Variant{{Code: "A"}}},
			partial: true,
		},
		"availability missing code": {
			product: &AvailabilityProduct{URL: "u", Variants: []Variant{{}}},
			partial: true,
			want:    []string{"variants[0].code"},
		},
		"availability strict needs selection": {
			product: &AvailabilityProduct{URL: "u", Variants: []Variant{{Code: "A"}}},
			want:    []string{"variants[0].selection"},
		},
		"full partial": {
			product: &FullProduct{URL: "u", Title: "Dress"},
			partial: true,
		},
		"full strict": {
			product: &FullProduct{URL: "u", Title: "Dress", Price: &price},
			want:    []string{"brand", "currency", "assets"},
		},
		"mpi negative price": {
			product: &MpiProduct{URL: "u", Price: -1, Currency: "USD"},
			partial: true,
			want:    []string{"price"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.product.Validate(tt.partial))
		})
	}
}

func TestCrawlRunDone(t *testing.T) {
	assert.False(t, (&CrawlRun{Status: CrawlRunning}).Done())
	assert.True(t, (&CrawlRun{Status: CrawlCompleted}).Done())
	assert.True(t, (&CrawlRun{Status: CrawlFailed}).Done())
}
