package handover

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/leads"
)

func TestBuildPacketCarriesRecentAnswersAndParseFailures(t *testing.T) {
	leadID := uuid.New()
	lead := &leads.Lead{
		ID:                   leadID,
		Phone:                "+447700900000",
		Status:               leads.StatusNeedsArtistReply,
		CurrentStep:          1,
		HandoverReason:       "coverup_parse_failed",
		ParseFailureCounts:   map[string]int{"coverup": 3, "idea": 0},
		LocationCity:         "London",
		LocationCountry:      "UK",
		RegionBucket:         leads.RegionUK,
		EstimatedCategory:    leads.CategoryMedium,
		MinBudgetAmountPence: 20000,
		BelowMinBudget:       false,
	}

	now := time.Now().UTC()
	answers := []leads.LeadAnswer{
		{ID: uuid.New(), LeadID: leadID, QuestionKey: "idea", Text: "a rose on my forearm", CreatedAt: now},
		{ID: uuid.New(), LeadID: leadID, QuestionKey: "dimensions", Text: "10x15cm", CreatedAt: now.Add(time.Minute)},
		{ID: uuid.New(), LeadID: leadID, QuestionKey: "budget", Text: "£500", CreatedAt: now.Add(2 * time.Minute)},
	}

	packet := BuildPacket(lead, answers)

	if len(packet.LastMessages) != 3 {
		t.Fatalf("expected all 3 answers within the 5-message window, got %d", len(packet.LastMessages))
	}
	if packet.Dimensions != "10x15cm" {
		t.Fatalf("expected dimensions to be carried from the answer history, got %q", packet.Dimensions)
	}
	if packet.Budget != "£500" {
		t.Fatalf("expected budget to be carried from the answer history, got %q", packet.Budget)
	}
	if packet.ParseFailures["coverup"] != 3 {
		t.Fatalf("expected coverup parse failure count 3, got %d", packet.ParseFailures["coverup"])
	}
	if _, ok := packet.ParseFailures["idea"]; ok {
		t.Fatal("expected zero-count fields to be dropped from parse failures")
	}
}

func TestBuildPacketKeepsOnlyLastFiveMessages(t *testing.T) {
	leadID := uuid.New()
	lead := &leads.Lead{ID: leadID, Status: leads.StatusNeedsArtistReply}

	now := time.Now().UTC()
	var answers []leads.LeadAnswer
	for i := 0; i < 8; i++ {
		answers = append(answers, leads.LeadAnswer{
			ID: uuid.New(), LeadID: leadID,
			QuestionKey: "idea", Text: "answer", CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	packet := BuildPacket(lead, answers)
	if len(packet.LastMessages) != recentMessageCount {
		t.Fatalf("expected the packet capped at %d messages, got %d", recentMessageCount, len(packet.LastMessages))
	}
}

func TestFlattenOmitsEmptyFields(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Status: leads.StatusNeedsArtistReply}
	packet := BuildPacket(lead, nil)
	flat := packet.Flatten()

	if _, ok := flat["dimensions"]; ok {
		t.Fatal("expected no dimensions key when no answer was given")
	}
	if _, ok := flat["parse_failures"]; ok {
		t.Fatal("expected no parse_failures key when nothing failed")
	}
	if flat["status"] != string(leads.StatusNeedsArtistReply) {
		t.Fatalf("expected status in flattened map, got %q", flat["status"])
	}
}
