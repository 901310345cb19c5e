// Package tour tracks the studio's travel schedule so the qualifying
// interview can offer a touring city when the client's own city isn't
// one the studio works from: a small dated stop list, sorted by start
// date, with a city lookup and a "next upcoming stop" query — no stops
// at all, or none left in the future, is a legitimate outcome (the lead
// gets waitlisted rather than offered a city forever).
package tour

import (
	"sort"
	"strings"
	"time"
)

// Stop is one leg of the studio's travel schedule.
type Stop struct {
	City    string
	Country string
	StartAt time.Time
	EndAt   time.Time
	Notes   string
}

// Schedule is an immutable, start-date-sorted view of the studio's
// upcoming and past tour stops.
type Schedule struct {
	stops []Stop
}

// NewSchedule sorts stops by start date and returns a Schedule. The
// input slice is copied; callers may reuse or mutate it afterward.
func NewSchedule(stops []Stop) *Schedule {
	sorted := make([]Stop, len(stops))
	copy(sorted, stops)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartAt.Before(sorted[j].StartAt) })
	return &Schedule{stops: sorted}
}

// DefaultSchedule is the studio's configured travel calendar. A real
// deployment would load this from config or a calendar integration;
// this is the small static booking window this single-artist studio
// currently runs with.
func DefaultSchedule(now time.Time) *Schedule {
	return NewSchedule([]Stop{
		{City: "London", Country: "UK", StartAt: now.AddDate(0, 0, -3), EndAt: now.AddDate(0, 0, 60)},
		{City: "Manchester", Country: "UK", StartAt: now.AddDate(0, 0, 14), EndAt: now.AddDate(0, 0, 16)},
		{City: "Dublin", Country: "Ireland", StartAt: now.AddDate(0, 1, 0), EndAt: now.AddDate(0, 1, 2)},
		{City: "Berlin", Country: "Germany", StartAt: now.AddDate(0, 2, 0), EndAt: now.AddDate(0, 2, 3)},
	})
}

// IsCityOnTour reports whether city has a non-past stop scheduled.
func (s *Schedule) IsCityOnTour(city string, now time.Time) bool {
	if s == nil {
		return false
	}
	want := strings.ToLower(strings.TrimSpace(city))
	for _, stop := range s.stops {
		if stop.EndAt.Before(now) {
			continue
		}
		if strings.ToLower(stop.City) == want {
			return true
		}
	}
	return false
}

// ClosestUpcoming returns the next stop starting at or after now. The
// schedule is sorted, so the first match is the closest. ok is false
// when every stop has already started or the schedule is empty — the
// caller should fall back to waitlisting.
func (s *Schedule) ClosestUpcoming(now time.Time) (Stop, bool) {
	if s == nil {
		return Stop{}, false
	}
	for _, stop := range s.stops {
		if !stop.StartAt.Before(now) {
			return stop, true
		}
	}
	return Stop{}, false
}
