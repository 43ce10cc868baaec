// Package codes normalizes retailer variant codes into dedup keys.
package codes

import (
	"strings"
	"unicode"

	"github.com/maltedev/catalog-scraper/internal/models"
)

const maxCodeLength = 64

// Normalizer builds comparable keys from variant codes.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize annotates every variant with a CodeCheck. With mutate set the
// variant codes are replaced by their normalized form and duplicates are
// dropped; otherwise codes are left untouched. The input slice is never
// modified.
func (n *Normalizer) Normalize(productID, storeKey string, variants []models.Variant, mutate bool) []models.Variant {
	out := make([]models.Variant, 0, len(variants))
	seen := make(map[string]bool, len(variants))

	for _, v := range variants {
		normalized := Key(storeKey, v.Code)
		if normalized == "" {
			normalized = Key(storeKey, productID)
		}

		check := &models.CodeCheck{
			Normalized: normalized,
			Valid:      isValid(normalized),
			Duplicate:  seen[normalized],
		}
		seen[normalized] = true

		if mutate {
			if check.Duplicate {
				continue
			}
			v.Code = normalized
		}

		v.CodeCheck = check
		out = append(out, v)
	}

	return out
}

// Key upper-cases code, removes whitespace and strips a leading store key
// prefix such as "STOREFRONT-".
func Key(storeKey, code string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)

	if storeKey != "" {
		prefix := strings.ToUpper(storeKey)
		for _, sep := range []string{"-", "_", ":"} {
			if rest, ok := strings.CutPrefix(key, prefix+sep); ok && rest != "" {
				key = rest
				break
			}
		}
	}

	return key
}

func isValid(key string) bool {
	if key == "" || len(key) > maxCodeLength {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.' && r != '/' {
			return false
		}
	}
	return true
}
