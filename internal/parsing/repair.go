package parsing

import (
	"fmt"
	"regexp"
	"strings"
)

// RepairVariant selects which copy tone a reprompt should use, keyed
// off the per-field failure counter (§4.5).
type RepairVariant int

const (
	// VariantGentle is used on the first failure for a field.
	VariantGentle RepairVariant = iota
	// VariantShortExampleBoundary is used on the second failure.
	VariantShortExampleBoundary
	// VariantHandover signals the caller to force a C6 transition to
	// NEEDS_ARTIST_REPLY rather than send another reprompt.
	VariantHandover
)

// NextVariant returns the copy variant for the attempt that is about
// to be made, given the failure count already recorded for the field
// (i.e. the number of prior failures, before this one).
func NextVariant(priorFailures int) RepairVariant {
	switch {
	case priorFailures <= 0:
		return VariantGentle
	case priorFailures == 1:
		return VariantShortExampleBoundary
	default:
		return VariantHandover
	}
}

// HandoverReason formats the reason written to handover_reason when a
// field exhausts its three strikes.
func HandoverReason(field string) string {
	return fmt.Sprintf("Unable to parse %s after 3 attempts", field)
}

// bundleSignal identifies one independently-detectable answer shape
// within a message, for the bundle guard.
type bundleSignal int

const (
	signalDimension bundleSignal = iota
	signalBudget
	signalStyleKeyword
	signalInstagramHandle
)

var styleKeywords = regexp.MustCompile(`(?i)\b(traditional|neo[\s-]?traditional|realism|blackwork|fine[\s-]?line|japanese|tribal|watercolou?r|geometric|dotwork|minimalist|script)\b`)
var instagramHandleRE = regexp.MustCompile(`@[A-Za-z0-9_.]{2,30}`)
var currencyHint = regexp.MustCompile(`(?i)[£$€]|\b(pounds?|dollars?|euros?|gbp|usd|eur)\b`)
var dimensionTokenRE = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*[x×]\s*\d+(?:\.\d+)?\s*(?:cm|inch(?:es)?|in\b)?|\d+(?:\.\d+)?\s*(?:cm|inch(?:es)?)\b`)

// detectSignals returns the distinct bundle signals present in text.
// Instagram-handle and style-keyword are folded into a single signal
// when both are present, since at the reference_images/instagram_handle
// step they form one coherent answer rather than two bundled ones.
func detectSignals(text string) map[bundleSignal]bool {
	signals := map[bundleSignal]bool{}
	if ParseDimensions(text) != nil {
		signals[signalDimension] = true
	}
	for _, m := range dimensionTokenRE.FindAllString(text, -1) {
		if ParseDimensions(m) != nil {
			signals[signalDimension] = true
		}
	}
	if hasBudgetSignal(text) {
		signals[signalBudget] = true
	}
	hasStyle := styleKeywords.MatchString(text)
	hasHandle := instagramHandleRE.MatchString(text)
	switch {
	case hasStyle && hasHandle:
		signals[signalInstagramHandle] = true
	case hasStyle:
		signals[signalStyleKeyword] = true
	case hasHandle:
		signals[signalInstagramHandle] = true
	}
	return signals
}

// hasBudgetSignal reports a budget signal per the bundle guard's
// stricter bar: a currency symbol/word alongside a number, or a parsed
// value >= £50.
func hasBudgetSignal(text string) bool {
	if currencyHint.MatchString(text) && strings.ContainsAny(text, "0123456789") {
		return true
	}
	amount := ParseBudget(text)
	return amount != nil && *amount >= 5000
}

// BundleGuardTriggered reports whether text carries >= 2 independent
// answer signals and is not itself a valid answer for the current
// question — in which case the caller should reprompt with a
// "one at a time" message without advancing state.
func BundleGuardTriggered(text string, currentAnswerValid bool) bool {
	if currentAnswerValid {
		return false
	}
	return len(detectSignals(text)) >= 2
}

// WrongFieldGuardTriggered applies the alphabetic-ratio heuristic at
// the idea/placement steps: text that looks like a budget or a
// dimensions answer rather than free-form prose is reprompted instead
// of saved.
func WrongFieldGuardTriggered(questionKey, text string) bool {
	ratio := AlphabeticRatio(text)
	switch questionKey {
	case "idea", "placement":
		if ParseBudget(text) != nil && ratio < 0.30 {
			return true
		}
		if ParseDimensions(text) != nil && ratio < 0.50 {
			return true
		}
	}
	return false
}

// FailureCounter tracks per-field parse failure counts for a single
// lead, mirroring the persisted parse_failure_counts map.
type FailureCounter map[string]int

// RecordFailure increments the field's counter and returns the
// resulting count along with the variant that should be used.
func (c FailureCounter) RecordFailure(field string) (count int, variant RepairVariant) {
	prior := c[field]
	variant = NextVariant(prior)
	c[field] = prior + 1
	return c[field], variant
}

// Reset zeroes the field's counter on a successful parse.
func (c FailureCounter) Reset(field string) {
	delete(c, field)
}

// Count returns the current failure count for field, or 0.
func (c FailureCounter) Count(field string) int {
	return c[field]
}

// trimLower is a small shared helper for callers composing guard
// checks against raw inbound text.
func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
