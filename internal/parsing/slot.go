package parsing

import (
	"regexp"
	"strconv"
	"strings"
)

// optionRE matches "option 2", "number 2", "#2", "choice 2" — adapted
// from the teacher's DetectTimeSelection priority-one pattern.
var optionRE = regexp.MustCompile(`(?i)^(?:option|number|#|choice)\s*(\d+)\s*$`)

// bareNumberRE matches a lone digit answer, e.g. "2" or "2.".
var bareNumberRE = regexp.MustCompile(`^(\d+)\.?$`)

// ordinalWords maps spelled-out ordinals to their 1-based index,
// carried over verbatim from the teacher's ordinalMap.
var ordinalWords = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
	"fifth": 5, "5th": 5,
	"sixth": 6, "6th": 6,
}

// ParseSlotSelection picks a 1-based index out of free text against a
// caller-supplied count of offered slots. It tries, in order: an
// "option N" / "#N" phrase, a spelled-out ordinal word, then a bare
// number. An index outside [1, slotCount] or no match at all returns
// nil — the teacher's date/calendar matching (matchSlotsByDate) and
// meridiem-time parsing have no analog here, since slots are a fixed
// caller-supplied list rather than live availability.
func ParseSlotSelection(text string, slotCount int) *int {
	s := strings.ToLower(strings.TrimSpace(Normalize(text)))
	if s == "" || slotCount <= 0 {
		return nil
	}

	if m := optionRE.FindStringSubmatch(s); m != nil {
		return clampIndex(atoiOrZero(m[1]), slotCount)
	}

	if idx, ok := ordinalWords[s]; ok {
		return clampIndex(idx, slotCount)
	}

	if m := bareNumberRE.FindStringSubmatch(s); m != nil {
		return clampIndex(atoiOrZero(m[1]), slotCount)
	}

	return nil
}

func clampIndex(idx, slotCount int) *int {
	if idx < 1 || idx > slotCount {
		return nil
	}
	return &idx
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
