package tour

import (
	"testing"
	"time"
)

func TestIsCityOnTourMatchesCaseInsensitively(t *testing.T) {
	now := time.Now().UTC()
	s := NewSchedule([]Stop{
		{City: "Berlin", Country: "Germany", StartAt: now.AddDate(0, 0, -1), EndAt: now.AddDate(0, 0, 5)},
	})
	if !s.IsCityOnTour("berlin", now) {
		t.Fatal("expected berlin to match Berlin case-insensitively")
	}
	if s.IsCityOnTour("paris", now) {
		t.Fatal("paris has no stop, expected false")
	}
}

func TestIsCityOnTourIgnoresPastStops(t *testing.T) {
	now := time.Now().UTC()
	s := NewSchedule([]Stop{
		{City: "Madrid", StartAt: now.AddDate(0, 0, -30), EndAt: now.AddDate(0, 0, -10)},
	})
	if s.IsCityOnTour("Madrid", now) {
		t.Fatal("expected a lapsed stop not to count as on tour")
	}
}

func TestClosestUpcomingReturnsEarliestFutureStop(t *testing.T) {
	now := time.Now().UTC()
	s := NewSchedule([]Stop{
		{City: "Berlin", StartAt: now.AddDate(0, 2, 0), EndAt: now.AddDate(0, 2, 3)},
		{City: "Dublin", StartAt: now.AddDate(0, 0, 10), EndAt: now.AddDate(0, 0, 12)},
	})
	next, ok := s.ClosestUpcoming(now)
	if !ok {
		t.Fatal("expected an upcoming stop")
	}
	if next.City != "Dublin" {
		t.Fatalf("expected the earlier stop Dublin, got %s", next.City)
	}
}

func TestClosestUpcomingFalseWhenEverythingHasPassed(t *testing.T) {
	now := time.Now().UTC()
	s := NewSchedule([]Stop{
		{City: "Berlin", StartAt: now.AddDate(0, -2, 0), EndAt: now.AddDate(0, -1, -28)},
	})
	if _, ok := s.ClosestUpcoming(now); ok {
		t.Fatal("expected no upcoming stop once the whole schedule has passed, so the lead waitlists")
	}
}

func TestNilScheduleIsSafe(t *testing.T) {
	var s *Schedule
	if s.IsCityOnTour("London", time.Now()) {
		t.Fatal("expected nil schedule to report no cities on tour")
	}
	if _, ok := s.ClosestUpcoming(time.Now()); ok {
		t.Fatal("expected nil schedule to report nothing upcoming")
	}
}
