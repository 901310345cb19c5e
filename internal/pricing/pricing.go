// Package pricing implements the estimation & pricing utility used by
// the conversation orchestrator's complete_qualification step (§4.10).
package pricing

import (
	"math"
	"strings"

	"github.com/inkline/bookingbot/internal/leads"
)

// hardPlacements bump the estimated category one step (§4.10).
var hardPlacements = map[string]bool{
	"ribs": true, "stomach": true, "side": true, "spine": true,
	"back": true, "sleeve": true, "thigh": true,
}

// Inputs bundles the qualifying answers the estimation functions need.
type Inputs struct {
	AreaCM2       float64
	Coverup       bool
	Complexity3   bool // complexity level 3 (highest)
	Placement     string
	LocationCountry string
	BudgetPence   int64
}

// Category returns the derived size bucket from area, bumped for
// coverup, complexity-3, and hard placements.
func Category(in Inputs) leads.EstimatedCategory {
	cat := baseCategory(in.AreaCM2)
	bumps := 0
	if in.Coverup {
		bumps++
	}
	if in.Complexity3 {
		bumps++
	}
	if hardPlacements[strings.ToLower(strings.TrimSpace(in.Placement))] {
		bumps++
	}
	for i := 0; i < bumps; i++ {
		cat = bumpCategory(cat)
	}
	return cat
}

func baseCategory(areaCM2 float64) leads.EstimatedCategory {
	switch {
	case areaCM2 < 50:
		return leads.CategorySmall
	case areaCM2 < 150:
		return leads.CategoryMedium
	case areaCM2 < 300:
		return leads.CategoryLarge
	default:
		return leads.CategoryXL
	}
}

func bumpCategory(cat leads.EstimatedCategory) leads.EstimatedCategory {
	switch cat {
	case leads.CategorySmall:
		return leads.CategoryMedium
	case leads.CategoryMedium:
		return leads.CategoryLarge
	default:
		return leads.CategoryXL
	}
}

// EstimatedDays computes the XL-only multi-day estimate, clamped to
// [1.0, 4.0] in 0.5 increments.
func EstimatedDays(in Inputs) float64 {
	days := 0.0
	switch {
	case in.AreaCM2 < 350:
		days = 1.5
	case in.AreaCM2 < 500:
		days = 2.0
	case in.AreaCM2 < 700:
		days = 2.5
	default:
		days = 3.0
	}
	if in.Coverup {
		days += 0.5
	}
	if in.Complexity3 {
		days += 0.5
	}
	if hardPlacements[strings.ToLower(strings.TrimSpace(in.Placement))] {
		days += 0.5
	}
	return math.Min(4.0, math.Max(1.0, days))
}

// DepositPence computes the deposit in pence for a given category and
// (for XL) estimated days.
func DepositPence(cat leads.EstimatedCategory, estimatedDays float64) int64 {
	switch cat {
	case leads.CategorySmall, leads.CategoryMedium:
		return 15000
	case leads.CategoryLarge:
		return 20000
	case leads.CategoryXL:
		return int64(20000 * estimatedDays)
	default:
		return 0
	}
}

// countryRegion maps a handful of representative country names/aliases
// to their pricing region; unmatched countries default to ROW.
var countryRegion = map[string]leads.RegionBucket{
	"united kingdom": leads.RegionUK,
	"uk":              leads.RegionUK,
	"england":         leads.RegionUK,
	"scotland":        leads.RegionUK,
	"wales":           leads.RegionUK,
	"northern ireland": leads.RegionUK,

	"france":      leads.RegionEurope,
	"germany":     leads.RegionEurope,
	"spain":       leads.RegionEurope,
	"italy":       leads.RegionEurope,
	"netherlands": leads.RegionEurope,
	"ireland":     leads.RegionEurope,
	"portugal":    leads.RegionEurope,
	"belgium":     leads.RegionEurope,
}

// Region derives the pricing region bucket from a free-text country.
func Region(country string) leads.RegionBucket {
	if r, ok := countryRegion[strings.ToLower(strings.TrimSpace(country))]; ok {
		return r
	}
	return leads.RegionROW
}

// MinBudgetPence returns the region's minimum acceptable budget, in pence.
func MinBudgetPence(region leads.RegionBucket) int64 {
	switch region {
	case leads.RegionUK:
		return 40000
	case leads.RegionEurope:
		return 50000
	default:
		return 60000
	}
}

// hourRange is the internal-only [min,max] hour estimate per category.
var hourRange = map[leads.EstimatedCategory][2]float64{
	leads.CategorySmall:  {4, 5},
	leads.CategoryMedium: {5, 7},
	leads.CategoryLarge:  {7.5, 10},
	leads.CategoryXL:     {9.5, 11},
}

// hourlyRatePence is the internal-only region hourly rate, in pence.
var hourlyRatePence = map[leads.RegionBucket]float64{
	leads.RegionUK:     13000,
	leads.RegionEurope: 14000,
	leads.RegionROW:    15000,
}

// PriceRangePence returns the internal-only [min, max] price estimate in
// pence, for operator reference only — never sent to the client.
func PriceRangePence(cat leads.EstimatedCategory, region leads.RegionBucket) (min, max float64) {
	hrs, ok := hourRange[cat]
	if !ok {
		hrs = hourRange[leads.CategoryMedium]
	}
	rate := hourlyRatePence[region]
	if rate == 0 {
		rate = hourlyRatePence[leads.RegionROW]
	}
	return hrs[0] * rate, hrs[1] * rate
}
