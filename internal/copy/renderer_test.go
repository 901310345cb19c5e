package copy

import (
	"strings"
	"testing"
)

func TestRenderWelcomeQuestion(t *testing.T) {
	r := NewRenderer("Ink & Iron")
	text, err := r.Render("welcome_and_idea", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Ink & Iron") || !strings.Contains(text, "tattoo idea") {
		t.Fatalf("unexpected welcome text: %q", text)
	}
}

func TestRenderConfirmAndQuestion(t *testing.T) {
	r := NewRenderer("")
	text, err := r.Render("confirm_and_style", nil, map[string]string{
		"dimensions": "10cm x 15cm", "budget": "£200", "location": "London, UK",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "10cm x 15cm") || !strings.Contains(text, "style are you going for") {
		t.Fatalf("unexpected confirm text: %q", text)
	}
}

func TestRenderRepairVariants(t *testing.T) {
	r := NewRenderer("")
	gentle, err := r.Render("repair_budget_variant_0", nil, map[string]string{"field": "budget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boundary, err := r.Render("repair_budget_variant_1", nil, map[string]string{"field": "budget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gentle == boundary {
		t.Fatal("expected distinct copy per repair variant")
	}
}

func TestRenderStaticAckByStatus(t *testing.T) {
	r := NewRenderer("")
	text, err := r.Render("static_ack_awaiting_deposit", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "deposit") {
		t.Fatalf("unexpected status ack text: %q", text)
	}
}

func TestRenderDepositRequestIncludesCheckoutURL(t *testing.T) {
	r := NewRenderer("")
	text, err := r.Render("deposit_request", nil, map[string]string{"checkout_url": "https://checkout.stripe.com/cs_123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "https://checkout.stripe.com/cs_123") {
		t.Fatalf("expected checkout url in deposit request text, got %q", text)
	}
}

func TestRenderUnknownKeyErrors(t *testing.T) {
	r := NewRenderer("")
	if _, err := r.Render("totally_unknown_key", nil, nil); err == nil {
		t.Fatal("expected error for unknown message key")
	}
}

func TestRenderFixedKeys(t *testing.T) {
	r := NewRenderer("")
	for _, key := range []string{"qualification_complete", "deposit_request", "rejected", "booking_confirmed", "slot_confirmed", "opted_out_ack"} {
		if _, err := r.Render(key, nil, nil); err != nil {
			t.Fatalf("key %q: unexpected error: %v", key, err)
		}
	}
}
