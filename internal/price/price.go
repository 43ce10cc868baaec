// Package price turns scraped price strings into numbers and checks that the
// page is priced in the expected currency.
package price

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrExcessPrecision  = errors.New("price has more than two decimals")
)

var (
	numberRe = regexp.MustCompile(`\d[\d.,'\s]*`)
	isoRe    = regexp.MustCompile(`\b[A-Z]{3}\b`)
)

// symbols maps currency signs to the ISO codes they may stand for.
var symbols = map[string][]string{
	"US$": {"USD"},
	"C$":  {"CAD"},
	"A$":  {"AUD"},
	"NZ$": {"NZD"},
	"HK$": {"HKD"},
	"$":   {"USD", "CAD", "AUD", "NZD", "HKD", "SGD", "MXN"},
	"€":   {"EUR"},
	"£":   {"GBP"},
	"¥":   {"JPY", "CNY"},
	"₹":   {"INR"},
	"₩":   {"KRW"},
	"kr":  {"SEK", "NOK", "DKK"},
	"zł":  {"PLN"},
	"CHF": {"CHF"},
	"Fr.": {"CHF"},
}

var knownCodes = func() map[string]bool {
	codes := map[string]bool{"BRL": true, "ZAR": true, "TRY": true, "CZK": true, "HUF": true, "RUB": true}
	for _, list := range symbols {
		for _, code := range list {
			codes[code] = true
		}
	}
	return codes
}()

// symbolOrder lists longer signs first so "US$" wins over "$".
var symbolOrder = []string{"US$", "C$", "A$", "NZ$", "HK$", "Fr.", "CHF", "zł", "kr", "$", "€", "£", "¥", "₹", "₩"}

// Checker parses prices. The zero value is ready to use.
type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

// Check extracts the amount from raw. currency is the ISO code the page is
// expected to use. With strictCurrency set, a raw string naming a different
// currency fails with ErrCurrencyMismatch. Amounts with more than two
// decimals fail unless allowExcessPrecision is set.
func (c *Checker) Check(raw, currency string, strictCurrency, allowExcessPrecision bool) (float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return 0, fmt.Errorf("%w: no currency to check %q against", ErrCurrencyMismatch, raw)
	}

	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidPrice)
	}

	if strictCurrency {
		found := detectCurrencies(raw)
		if len(found) > 0 && !contains(found, currency) {
			return 0, fmt.Errorf("%w: expected %s, page shows %q", ErrCurrencyMismatch, currency, raw)
		}
	}

	if strings.HasPrefix(raw, "-") {
		return 0, fmt.Errorf("%w: negative amount %q", ErrInvalidPrice, raw)
	}

	number := strings.TrimRight(numberRe.FindString(raw), ".,' ")
	if number == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrInvalidPrice, raw)
	}

	normalized, decimals := normalizeNumber(number)
	if decimals > 2 && !allowExcessPrecision {
		return 0, fmt.Errorf("%w: %q", ErrExcessPrecision, raw)
	}

	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidPrice, raw, err)
	}

	return amount, nil
}

func detectCurrencies(raw string) []string {
	var found []string

	for _, code := range isoRe.FindAllString(raw, -1) {
		if knownCodes[code] {
			found = append(found, code)
		}
	}

	rest := raw
	for _, sym := range symbolOrder {
		if strings.Contains(rest, sym) {
			found = append(found, symbols[sym]...)
			rest = strings.ReplaceAll(rest, sym, " ")
		}
	}

	return found
}

// normalizeNumber rewrites a localized number ("1.234,50", "1,234.50",
// "1 234", "12,5") into strconv form and reports its decimal places.
func normalizeNumber(s string) (string, int) {
	s = strings.NewReplacer(" ", "", "'", "").Replace(s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	sep := byte(0)
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			sep = '.'
		} else {
			sep = ','
		}
	case lastDot >= 0:
		sep = decimalCandidate(s, '.')
	case lastComma >= 0:
		sep = decimalCandidate(s, ',')
	}

	if sep == 0 {
		return strings.NewReplacer(".", "", ",", "").Replace(s), 0
	}

	idx := strings.LastIndexByte(s, sep)
	intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:idx])
	frac := s[idx+1:]
	if intPart == "" {
		intPart = "0"
	}
	return intPart + "." + frac, len(frac)
}

// decimalCandidate decides whether the only separator kind in s is a decimal
// mark. A single separator followed by exactly three digits is read as a
// thousands separator, as is any separator that repeats.
func decimalCandidate(s string, sep byte) byte {
	if strings.Count(s, string(sep)) > 1 {
		return 0
	}
	if len(s)-strings.IndexByte(s, sep)-1 == 3 {
		return 0
	}
	return sep
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
