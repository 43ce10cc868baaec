package scraper

import (
	"testing"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFull(t *testing.T) {
	price := 19.999
	raw := &models.FullProduct{
		Title:    "  Shirt ",
		Currency: " eur",
		Price:    &price,
		Attributes: []models.Attribute{{
			ID:    " size ",
			Label: "Size",
			Values: []models.AttributeValue{
				{ID: "s", Label: " S "},
			},
		}},
		Assets: []models.Asset{
			{URL: " a.jpg"},
			{URL: "a.jpg", Selector: map[string][]string{"size": {"s"}}},
		},
	}

	got := parseFull(raw, "https://website.com/p/1")

	assert.Equal(t, "https://website.com/p/1", got.URL)
	assert.Equal(t, "Shirt", got.Title)
	assert.Equal(t, "EUR", got.Currency)
	assert.InDelta(t, 20.0, *got.Price, 0.0001)
	assert.Equal(t, "size", got.Attributes[0].ID)
	assert.Equal(t, []models.AttributeValue{{ID: "s", Label: "S"}}, got.Attributes[0].Values)
	require.Len(t, got.Assets, 2)
	assert.NotNil(t, got.Assets[0].Selector)
	assert.NotNil(t, got.Variants)

	// input is left alone
	assert.Equal(t, "  Shirt ", raw.Title)
	assert.Equal(t, " a.jpg", raw.Assets[0].URL)
	assert.InDelta(t, 19.999, price, 0.0001)
}

func TestParseFullLeavesBrokenEntriesToValidation(t *testing.T) {
	tests := []struct {
		name       string
		attributes []models.Attribute
		assets     []models.Asset
		wantAssets int
		wantFields []string
	}{
		{
			name: "duplicate url with another selector is kept",
			assets: []models.Asset{
				{URL: "a.jpg", Selector: map[string][]string{"color": {"red"}}},
				{URL: "a.jpg", Selector: map[string][]string{"color": {"blue"}}},
			},
			wantAssets: 2,
		},
		{
			name: "empty url is rejected",
			assets: []models.Asset{
				{URL: "a.jpg"},
				{URL: "a.jpg", Selector: map[string][]string{"color": {"red"}}},
				{URL: "  "},
			},
			wantAssets: 3,
			wantFields: []string{"assets[2].url"},
		},
		{
			name: "empty value id is rejected",
			attributes: []models.Attribute{{
				ID:     "size",
				Label:  "Size",
				Values: []models.AttributeValue{{ID: "s", Label: "S"}, {ID: " ", Label: "broken"}},
			}},
			assets:     []models.Asset{{URL: "a.jpg"}},
			wantAssets: 1,
			wantFields: []string{"attributes[0].values[1].id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFull(&models.FullProduct{
				Title:      "Shirt",
				Attributes: tt.attributes,
				Assets:     tt.assets,
			}, "https://website.com/p/1")

			require.Len(t, got.Assets, tt.wantAssets)

			err := validate.New().Validate(got, true)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}

			var violation *validate.SchemaViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tt.wantFields, violation.Fields)
		})
	}
}

func TestParseMpi(t *testing.T) {
	same := 10.0
	higher := 12.5

	got := parseMpi(&models.MpiProduct{Price: 9.999, OriginalPrice: &same, Currency: "usd"}, "u")
	assert.InDelta(t, 10.0, got.Price, 0.0001)
	assert.Nil(t, got.OriginalPrice)
	assert.Equal(t, "USD", got.Currency)

	got = parseMpi(&models.MpiProduct{Price: 10, OriginalPrice: &higher, Currency: "USD"}, "u")
	require.NotNil(t, got.OriginalPrice)
	assert.InDelta(t, 12.5, *got.OriginalPrice, 0.0001)
}

func TestParseAvailabilityInStock(t *testing.T) {
	got := parseAvailability(&models.AvailabilityProduct{
		Variants: []models.Variant{{Code: "a"}, {Code: "b", Available: true, Selection: map[string]string{}}},
	}, "u")

	assert.True(t, got.InStock)
	assert.Nil(t, got.Variants[1].Selection)

	got = parseAvailability(&models.AvailabilityProduct{InStock: false}, "u")
	assert.False(t, got.InStock)
	assert.NotNil(t, got.Variants)
}
