package parsing

import (
	"regexp"
	"strings"
)

// Location is a parsed city/country pair. Country is always populated
// when City is; City may be empty if only a country was given.
type Location struct {
	City    string
	Country string
}

var flexibleWords = regexp.MustCompile(`(?i)^(flexible|anywhere|any|wherever|not sure|no preference|don'?t care|n/?a)$`)

// countryAliases normalizes common spellings/abbreviations to a single
// canonical country name.
var countryAliases = map[string]string{
	"uk":               "United Kingdom",
	"u.k.":             "United Kingdom",
	"united kingdom":   "United Kingdom",
	"england":          "United Kingdom",
	"scotland":         "United Kingdom",
	"wales":            "United Kingdom",
	"northern ireland": "United Kingdom",
	"great britain":    "United Kingdom",
	"gb":               "United Kingdom",

	"usa":           "United States",
	"u.s.a.":        "United States",
	"us":            "United States",
	"u.s.":          "United States",
	"united states": "United States",
	"america":       "United States",

	"ireland": "Ireland",
	"eire":    "Ireland",

	"france":      "France",
	"germany":     "Germany",
	"spain":       "Spain",
	"italy":       "Italy",
	"netherlands": "Netherlands",
	"holland":     "Netherlands",
	"portugal":    "Portugal",
	"belgium":     "Belgium",
}

// cityCountry infers a country from a recognized city name when the
// client gives city only.
var cityCountry = map[string]string{
	"london":     "United Kingdom",
	"manchester": "United Kingdom",
	"birmingham": "United Kingdom",
	"leeds":      "United Kingdom",
	"glasgow":    "United Kingdom",
	"edinburgh":  "United Kingdom",
	"liverpool":  "United Kingdom",
	"bristol":    "United Kingdom",

	"new york":     "United States",
	"los angeles":  "United States",
	"chicago":      "United States",
	"miami":        "United States",
	"san francisco": "United States",

	"dublin": "Ireland",
	"paris":  "France",
	"berlin": "Germany",
	"madrid": "Spain",
	"rome":   "Italy",
}

// ParseLocation splits free text on a comma into city/country parts,
// normalizes known country aliases, and infers a country from a
// recognized city when none was given. A flexible-keyword answer
// ("anywhere", "flexible", ...) is treated as a parse failure (nil),
// since location drives region-based pricing and cannot be inferred.
func ParseLocation(text string) *Location {
	s := strings.TrimSpace(Normalize(text))
	if s == "" || flexibleWords.MatchString(s) {
		return nil
	}

	parts := strings.SplitN(s, ",", 2)
	if len(parts) == 2 {
		city := strings.TrimSpace(parts[0])
		countryRaw := strings.TrimSpace(parts[1])
		country := canonicalCountry(countryRaw)
		if country == "" {
			return nil
		}
		return &Location{City: city, Country: country}
	}

	single := strings.TrimSpace(parts[0])
	if country := canonicalCountry(single); country != "" {
		return &Location{Country: country}
	}
	if country, ok := cityCountry[strings.ToLower(single)]; ok {
		return &Location{City: single, Country: country}
	}
	return nil
}

func canonicalCountry(s string) string {
	if c, ok := countryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return ""
}
