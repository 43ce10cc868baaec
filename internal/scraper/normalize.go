package scraper

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maltedev/catalog-scraper/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelPrefixRe = regexp.MustCompile(`(?i)^(?:select|choose)\b[\s:\-]*(?:an?\s+)?`)

// backfillAssets prepends a default asset when every asset is bound to a
// selection but some attribute value has no asset of its own. It reports
// whether an asset was added.
func backfillAssets(p *models.FullProduct) bool {
	if len(p.Assets) == 0 {
		return false
	}
	for _, asset := range p.Assets {
		if len(asset.Selector) == 0 {
			return false
		}
	}

	var keys []string
	referenced := make(map[string]map[string]bool)
	for _, asset := range p.Assets {
		for key, values := range asset.Selector {
			if referenced[key] == nil {
				referenced[key] = make(map[string]bool)
				keys = append(keys, key)
			}
			for _, v := range values {
				referenced[key][v] = true
			}
		}
	}

	for _, key := range keys {
		if !hasOrphan(p.Attributes, key, referenced[key]) {
			continue
		}

		def := p.Assets[0]
		def.Selector = map[string][]string{}
		p.Assets = append([]models.Asset{def}, p.Assets...)
		return true
	}

	return false
}

func hasOrphan(attrs []models.Attribute, key string, referenced map[string]bool) bool {
	for _, attr := range attrs {
		if attr.ID != key {
			continue
		}
		for _, v := range attr.Values {
			if !referenced[v.ID] {
				return true
			}
		}
		return false
	}
	return false
}

func cleanLabels(p *models.FullProduct) {
	for i := range p.Attributes {
		p.Attributes[i].Label = CleanLabel(p.Attributes[i].Label)
	}
}

// CleanLabel strips a leading "select"/"choose" prompt and one trailing
// punctuation rune from an attribute label and title-cases it:
// "Choose: Size!" becomes "Size". A label that would end up empty is only
// title-cased.
func CleanLabel(label string) string {
	label = strings.TrimSpace(label)
	orig := label

	if loc := labelPrefixRe.FindStringIndex(label); loc != nil && loc[1] > 0 && loc[1] < len(label) {
		label = label[loc[1]:]
	}

	if r, size := utf8.DecodeLastRuneInString(label); size > 0 && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
		label = strings.TrimSpace(label[:len(label)-size])
	}
	if label == "" {
		label = orig
	}

	return cases.Title(language.Und).String(label)
}
