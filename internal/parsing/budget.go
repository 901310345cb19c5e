package parsing

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencySymbols = regexp.MustCompile(`[£$€]`)
	currencyWords   = regexp.MustCompile(`(?i)\b(pounds?|dollars?|euros?|gbp|usd|eur)\b`)
	commas          = regexp.MustCompile(`,`)
	leadingNumberRE = regexp.MustCompile(`^-?\s*(\d+(?:\.\d+)?)\s*(k)?`)
)

// minBudgetGuardPence rejects values below this floor as a parse
// failure, guarding against quantity-field mis-reads (e.g. "2" meaning
// two tattoos, not a £2 budget) — §4.5.
const minBudgetGuardPence = 5000

// ParseBudget strips currency symbols/words/commas, extracts a leading
// non-negative number, applies an optional "k" multiplier, and returns
// the amount in pence. A negative prefix, a non-positive value, or a
// value below the guard floor all return nil.
func ParseBudget(text string) *int64 {
	s := Normalize(text)
	s = currencySymbols.ReplaceAllString(s, "")
	s = currencyWords.ReplaceAllString(s, "")
	s = commas.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-")

	m := leadingNumberRE.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	if negative {
		return nil
	}
	if strings.EqualFold(m[2], "k") {
		value *= 1000
	}
	if value <= 0 {
		return nil
	}
	pence := int64(value * 100)
	if pence < minBudgetGuardPence {
		return nil
	}
	return &pence
}
