package scraper

import (
	"testing"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Choose: Size!", "Size"},
		{"Select Size", "Size"},
		{"select a color", "Color"},
		{"SELECT AN OPTION:", "Option"},
		{"Choose - Width", "Width"},
		{"Select Select Size", "Select Size"},
		{"Size!!", "Size!"},
		{"Size:*", "Size:"},
		{"Selection", "Selection"},
		{"select amount", "Amount"},
		{"Size:", "Size"},
		{"size", "Size"},
		{"SHOE SIZE", "Shoe Size"},
		{"  Colour  ", "Colour"},
		{"Select", "Select"},
		{"Choose:", "Choose"},
		{"???", "??"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanLabel(tt.in))
		})
	}
}

func TestCleanLabelIdempotent(t *testing.T) {
	labels := []string{"Size", "Colour", "Shoe Size", "Width 2", "Élégance", "Select"}

	for _, label := range labels {
		assert.Equal(t, label, CleanLabel(label))
		assert.Equal(t, CleanLabel(label), CleanLabel(CleanLabel(label)), label)
	}

	// labels that clean to a prompt-free alphanumeric ending stay put
	for _, label := range []string{"Choose: Size!", "Select a Colour", "SELECT AN OPTION:", "shoe size"} {
		once := CleanLabel(label)
		assert.Equal(t, once, CleanLabel(once), label)
	}
}

func selector(pairs ...string) map[string][]string {
	s := map[string][]string{}
	for i := 0; i < len(pairs); i += 2 {
		s[pairs[i]] = append(s[pairs[i]], pairs[i+1])
	}
	return s
}

func colorAttr(values ...string) models.Attribute {
	attr := models.Attribute{ID: "color", Label: "Color"}
	for _, v := range values {
		attr.Values = append(attr.Values, models.AttributeValue{ID: v, Label: v})
	}
	return attr
}

func TestBackfillAssets(t *testing.T) {
	tests := []struct {
		name    string
		product models.FullProduct
		added   bool
	}{
		{
			name: "orphan value",
			product: models.FullProduct{
				Attributes: []models.Attribute{colorAttr("red", "blue", "green")},
				Assets: []models.Asset{
					{URL: "red.jpg", Selector: selector("color", "red")},
					{URL: "blue.jpg", Selector: selector("color", "blue")},
				},
			},
			added: true,
		},
		{
			name: "every value covered",
			product: models.FullProduct{
				Attributes: []models.Attribute{colorAttr("red", "blue")},
				Assets: []models.Asset{
					{URL: "red.jpg", Selector: selector("color", "red")},
					{URL: "blue.jpg", Selector: selector("color", "blue")},
				},
			},
		},
		{
			name: "already has default asset",
			product: models.FullProduct{
				Attributes: []models.Attribute{colorAttr("red", "blue")},
				Assets: []models.Asset{
					{URL: "all.jpg"},
					{URL: "red.jpg", Selector: selector("color", "red")},
				},
			},
		},
		{
			name:    "no assets",
			product: models.FullProduct{Attributes: []models.Attribute{colorAttr("red")}},
		},
		{
			name: "selector key without attribute",
			product: models.FullProduct{
				Assets: []models.Asset{{URL: "a.jpg", Selector: selector("material", "linen")}},
			},
		},
		{
			name: "multi value selector",
			product: models.FullProduct{
				Attributes: []models.Attribute{colorAttr("red", "blue")},
				Assets: []models.Asset{
					{URL: "both.jpg", Selector: selector("color", "red", "color", "blue")},
				},
			},
		},
		{
			name: "several keys with orphans add one asset",
			product: models.FullProduct{
				Attributes: []models.Attribute{
					colorAttr("red", "blue"),
					{ID: "size", Values: []models.AttributeValue{{ID: "s"}, {ID: "m"}}},
				},
				Assets: []models.Asset{
					{URL: "red-s.jpg", Selector: selector("color", "red", "size", "s")},
				},
			},
			added: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.product
			before := len(p.Assets)

			added := backfillAssets(&p)
			assert.Equal(t, tt.added, added)

			if !tt.added {
				assert.Len(t, p.Assets, before)
				return
			}

			require.Len(t, p.Assets, before+1)
			assert.Equal(t, p.Assets[1].URL, p.Assets[0].URL)
			assert.NotNil(t, p.Assets[0].Selector)
			assert.Empty(t, p.Assets[0].Selector)
			// the copied asset keeps its selector
			assert.NotEmpty(t, p.Assets[1].Selector)
		})
	}
}

func TestBackfillAssetsRunsOnce(t *testing.T) {
	p := models.FullProduct{
		Attributes: []models.Attribute{colorAttr("red", "blue")},
		Assets:     []models.Asset{{URL: "red.jpg", Selector: selector("color", "red")}},
	}

	require.True(t, backfillAssets(&p))
	assert.False(t, backfillAssets(&p))
	assert.Len(t, p.Assets, 2)
}
