// Package copy composes the outbound text for every message key the
// conversation orchestrator and payment correlator emit. Grounded on
// the teacher's internal/rebooking/templates.go: a plain Go
// switch/fmt.Sprintf composer rather than a templating engine, since
// the message set is fixed and small enough to read as code.
package copy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inkline/bookingbot/internal/leads"
)

// questionPrompt is the client-facing text asked for each qualifying
// step (§4.7 step 1's fixed question sequence).
var questionPrompt = map[string]string{
	"idea":             "Tell me about the tattoo idea you have in mind.",
	"coverup":          "Is this a cover-up of an existing tattoo? (yes/no)",
	"placement":        "Where on your body would you like it placed?",
	"dimensions":       "What size are you thinking? Give me a rough width x height, e.g. \"10cm x 15cm\".",
	"complexity":       "How detailed is the design — simple, medium, or highly detailed?",
	"budget":           "What's your budget for this piece?",
	"location":         "What city and country are you based in?",
	"style":            "What style are you going for (e.g. traditional, realism, fine line)?",
	"instagram_handle": "Do you have an Instagram handle I can check out your references on? Reply \"skip\" if not.",
	"reference_images": "Send over any reference images you have, or reply \"skip\" to continue.",
}

// Renderer implements ports.CopyRenderer for the studio's fixed
// message vocabulary.
type Renderer struct {
	studioName string
}

// NewRenderer builds a Renderer. studioName is interpolated into the
// welcome and deposit-request copy.
func NewRenderer(studioName string) *Renderer {
	if studioName == "" {
		studioName = "the studio"
	}
	return &Renderer{studioName: studioName}
}

// Render implements ports.CopyRenderer. messageKey is one of the
// orchestrator's fixed keys, a question key from the qualifying
// sequence, or one of the "confirm_and_<question>" /
// "repair_<field>_variant_<n>" / "static_ack_<status>" families the
// orchestrator composes dynamically.
func (r *Renderer) Render(messageKey string, lead *leads.Lead, params map[string]string) (string, error) {
	switch {
	case strings.HasPrefix(messageKey, "welcome_and_"):
		question, ok := questionPrompt[strings.TrimPrefix(messageKey, "welcome_and_")]
		if !ok {
			return "", fmt.Errorf("copy: unknown welcome question key %q", messageKey)
		}
		return fmt.Sprintf("Hey! Thanks for reaching out to %s. %s", r.studioName, question), nil

	case strings.HasPrefix(messageKey, "confirm_and_"):
		question, ok := questionPrompt[strings.TrimPrefix(messageKey, "confirm_and_")]
		if !ok {
			return "", fmt.Errorf("copy: unknown confirm question key %q", messageKey)
		}
		return fmt.Sprintf(
			"Just to confirm what I've got so far — size %s, budget %s, location %s. %s",
			params["dimensions"], params["budget"], params["location"], question,
		), nil

	case strings.HasPrefix(messageKey, "repair_"):
		return renderRepair(messageKey, params)

	case strings.HasPrefix(messageKey, "static_ack_"):
		return renderStatusAck(strings.TrimPrefix(messageKey, "static_ack_")), nil

	case strings.HasPrefix(messageKey, "status_"):
		return renderStatusAck(strings.TrimPrefix(messageKey, "status_")), nil

	case messageKey == "tour_conversion_offer":
		return fmt.Sprintf("The artist will be touring in %s soon — want to book your session for that stop? (yes/no)", params["city"]), nil

	case messageKey == "deposit_request" && params["checkout_url"] != "":
		return fmt.Sprintf("Good news — your design has been approved. Follow this link to pay your deposit and lock in your slot: %s", params["checkout_url"]), nil
	}

	if question, ok := questionPrompt[messageKey]; ok {
		return question, nil
	}

	if text, ok := fixedCopy[messageKey]; ok {
		return text, nil
	}

	return "", fmt.Errorf("copy: unknown message key %q", messageKey)
}

var fixedCopy = map[string]string{
	"media_wrong_step":           "I can only take reference images at the reference-images step — let's finish the current question first.",
	"wrong_field_reprompt":       "That doesn't look right for this question — could you try again?",
	"bundle_guard_reprompt":      "One thing at a time! Let's take that question again.",
	"opted_out_ack":              "You've been unsubscribed and won't receive further messages. Reply START to resume any time.",
	"qualification_complete":     "Thanks, that's everything I need! I've passed your request to the artist for review — you'll hear back shortly.",
	"deposit_request":            "Good news — your design has been approved. Follow the link below to pay your deposit and lock in your slot.",
	"rejected":                   "Thanks for your interest, but we won't be able to take on this piece. Wishing you the best finding the right artist for it.",
	"booking_confirmed":          "You're all booked in! We'll send a reminder closer to your appointment.",
	"slot_confirmed":             "Great, you're confirmed for that time slot. Looking forward to seeing you!",
	"collecting_time_window_ack": "Got it, thanks! One more set of times that would work for you?",
	"tour_accepted":              "Awesome, I've sent your request through for review on that date.",
	"tour_offer_reask":           "Sorry, I didn't catch that — would you like to book during that tour stop? (yes/no)",
	"waitlisted":                 "We don't currently have a tour date near you, but I've added you to the waitlist and will reach out when one is scheduled.",
	"handover_holding_reply":     "Thanks for your patience — the artist will get back to you personally as soon as they can.",
}

func renderRepair(messageKey string, params map[string]string) (string, error) {
	field := params["field"]
	if field == "" {
		return "", fmt.Errorf("copy: repair key %q missing field param", messageKey)
	}
	variant := "0"
	if idx := strings.LastIndex(messageKey, "_variant_"); idx != -1 {
		variant = messageKey[idx+len("_variant_"):]
	}
	n, _ := strconv.Atoi(variant)
	question := questionPrompt[field]
	if question == "" {
		question = fmt.Sprintf("your %s", field)
	}
	if n == 0 {
		return fmt.Sprintf("Sorry, I didn't quite get that. %s", question), nil
	}
	return fmt.Sprintf("Let's try that once more, briefly: %s (a short, direct answer works best)", question), nil
}

func renderStatusAck(status string) string {
	switch strings.ToUpper(status) {
	case string(leads.StatusPendingApproval):
		return "Your request is still with the artist for review — hang tight!"
	case string(leads.StatusAwaitingDeposit):
		return "We're waiting on your deposit to lock in your slot — check the link we sent earlier."
	case string(leads.StatusDepositPaid):
		return "Your deposit is in — we'll be in touch to finalize the booking."
	default:
		return "Thanks for the message — we'll get back to you shortly."
	}
}
