// Package handover builds the context packet handed to the studio's
// operator at the moment a lead is routed to NEEDS_ARTIST_REPLY: recent
// inbound messages, parse failure counts, size/budget/location, and the
// estimation/deposit numbers the artist needs to pick up the
// conversation without re-reading the whole thread.
package handover

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/inkline/bookingbot/internal/leads"
)

// recentMessageCount mirrors the original's last-5-messages window.
const recentMessageCount = 5

// Message is one answer shown to the operator, oldest first.
type Message struct {
	QuestionKey string
	Text        string
}

// Packet is the handover context compiled for one lead.
type Packet struct {
	LeadID         string
	Phone          string
	Status         leads.Status
	CurrentStep    int
	HandoverReason string

	LastMessages  []Message
	ParseFailures map[string]int

	Dimensions string
	Budget     string

	LocationCity    string
	LocationCountry string
	RegionBucket    leads.RegionBucket

	EstimatedCategory           leads.EstimatedCategory
	MinBudgetAmountPence        int64
	BelowMinBudget              bool
	EstimatedDepositAmountPence int64
	DepositAmountPence          int64
}

// BuildPacket compiles a Packet from the lead's current fields and its
// answer history. answers must already be ordered oldest-first (the
// order leads.Repository.Answers returns), matching the "latest wins
// per key" convention used throughout this package.
func BuildPacket(lead *leads.Lead, answers []leads.LeadAnswer) Packet {
	latest := leads.LatestAnswers(answers)

	tail := answers
	if len(tail) > recentMessageCount {
		tail = tail[len(tail)-recentMessageCount:]
	}
	lastMessages := make([]Message, 0, len(tail))
	for _, a := range tail {
		lastMessages = append(lastMessages, Message{QuestionKey: a.QuestionKey, Text: a.Text})
	}

	parseFailures := make(map[string]int)
	for field, count := range lead.ParseFailureCounts {
		if count > 0 {
			parseFailures[field] = count
		}
	}

	return Packet{
		LeadID:         lead.ID.String(),
		Phone:          lead.Phone,
		Status:         lead.Status,
		CurrentStep:    lead.CurrentStep,
		HandoverReason: lead.HandoverReason,

		LastMessages:  lastMessages,
		ParseFailures: parseFailures,

		Dimensions: latest[questionKeyDimensions].Text,
		Budget:     latest[questionKeyBudget].Text,

		LocationCity:    lead.LocationCity,
		LocationCountry: lead.LocationCountry,
		RegionBucket:    lead.RegionBucket,

		EstimatedCategory:           lead.EstimatedCategory,
		MinBudgetAmountPence:        lead.MinBudgetAmountPence,
		BelowMinBudget:              lead.BelowMinBudget,
		EstimatedDepositAmountPence: lead.EstimatedDepositAmountPence,
		DepositAmountPence:          lead.DepositAmountPence,
	}
}

// These mirror the question keys internal/orchestrator scripts the
// qualifying interview with; duplicated here (rather than imported)
// to avoid a dependency cycle between orchestrator and handover.
const (
	questionKeyDimensions = "dimensions"
	questionKeyBudget     = "budget"
)

// Flatten reduces the packet to the flat string map
// ports.OperatorNotifier carries today, so a richer handover context
// can ride the existing notification path without widening that
// interface. Parse-failure counts and recent messages are serialized
// as compact summaries rather than nested structures.
func (p Packet) Flatten() map[string]string {
	out := map[string]string{
		"lead_id":      p.LeadID,
		"phone":        p.Phone,
		"status":       string(p.Status),
		"current_step": strconv.Itoa(p.CurrentStep),
		"reason":       p.HandoverReason,
	}
	if p.Dimensions != "" {
		out["dimensions"] = p.Dimensions
	}
	if p.Budget != "" {
		out["budget"] = p.Budget
	}
	if p.LocationCity != "" {
		out["location_city"] = p.LocationCity
	}
	if p.LocationCountry != "" {
		out["location_country"] = p.LocationCountry
	}
	if p.RegionBucket != "" {
		out["region"] = string(p.RegionBucket)
	}
	if p.EstimatedCategory != "" {
		out["category"] = string(p.EstimatedCategory)
	}
	if p.BelowMinBudget {
		out["below_min_budget"] = "true"
	}
	out["min_budget_pence"] = strconv.FormatInt(p.MinBudgetAmountPence, 10)
	out["estimated_deposit_pence"] = strconv.FormatInt(p.EstimatedDepositAmountPence, 10)
	out["locked_deposit_pence"] = strconv.FormatInt(p.DepositAmountPence, 10)

	if len(p.ParseFailures) > 0 {
		fields := make([]string, 0, len(p.ParseFailures))
		for field := range p.ParseFailures {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, fmt.Sprintf("%s=%d", field, p.ParseFailures[field]))
		}
		out["parse_failures"] = strings.Join(parts, ",")
	}

	if len(p.LastMessages) > 0 {
		parts := make([]string, 0, len(p.LastMessages))
		for _, m := range p.LastMessages {
			parts = append(parts, fmt.Sprintf("%s=%s", m.QuestionKey, m.Text))
		}
		out["last_messages"] = strings.Join(parts, " | ")
	}

	return out
}
