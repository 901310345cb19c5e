// Package parsing implements the field-specific rule-based parsers (C5):
// dimensions, budget, location, and slot selection, plus the bundle and
// wrong-field guards and the three-strikes failure counter's copy
// variant selection. Grounded on the teacher's DetectTimeSelection
// (internal/conversation/time_selection.go), generalized from calendar
// slot matching to the spec's simpler caller-supplied-list selection.
package parsing

import (
	"regexp"
	"strings"
)

var (
	nbsp = " "
	zwsp = "​"
	ws   = regexp.MustCompile(`\s+`)
)

// Normalize strips NBSP/ZWSP and collapses whitespace. Callers are
// expected to already have NFC-normalized UTF-8 text from the transport
// layer; this function performs the remainder of §4.5's text-hygiene step.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, nbsp, " ")
	s = strings.ReplaceAll(s, zwsp, "")
	s = strings.TrimSpace(s)
	s = ws.ReplaceAllString(s, " ")
	return s
}

// AlphabeticRatio returns the fraction of letters among all non-space
// runes, used by the wrong-field guard (§4.5).
func AlphabeticRatio(s string) float64 {
	letters, total := 0, 0
	for _, r := range s {
		if r == ' ' {
			continue
		}
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}
