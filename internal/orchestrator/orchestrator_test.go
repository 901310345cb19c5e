package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/pkg/logging"
)

type fakeOutbox struct {
	mu      sync.Mutex
	entries []outboundPayload
	keys    []string
}

func (f *fakeOutbox) Enqueue(ctx context.Context, orgID string, leadID *uuid.UUID, channel, eventType string, payload any) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := payload.(outboundPayload); ok {
		f.entries = append(f.entries, p)
	}
	f.keys = append(f.keys, eventType)
	return uuid.New(), nil
}

type fakeCopy struct{}

func (fakeCopy) Render(messageKey string, lead *leads.Lead, params map[string]string) (string, error) {
	return "copy:" + messageKey, nil
}

type fakeOperator struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeOperator) NotifyOperator(ctx context.Context, leadID uuid.UUID, event string, details map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func newTestOrchestrator() (*Orchestrator, *leads.InMemoryRepository, *fakeOutbox, *fakeOperator) {
	repo := leads.NewInMemoryRepository()
	arbiter := window.NewArbiter(nil, systemevent.NewInMemoryStore(), func() time.Time { return time.Now().UTC() })
	outbox := &fakeOutbox{}
	operator := &fakeOperator{}
	o := New(repo, arbiter, outbox, fakeCopy{}, operator, nil, clockid.New(), logging.Default())
	return o, repo, outbox, operator
}

func TestHandleNewStartsQualifying(t *testing.T) {
	o, repo, outbox, _ := newTestOrchestrator()
	ctx := context.Background()
	lead, err := repo.Create(ctx, "artist-1", "+447700900000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := o.HandleInbound(ctx, lead, "hi", false)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if updated.Status != leads.StatusQualifying {
		t.Fatalf("expected QUALIFYING, got %v", updated.Status)
	}
	if updated.CurrentStep != 0 {
		t.Fatalf("expected step 0, got %d", updated.CurrentStep)
	}
	if len(outbox.entries) != 1 {
		t.Fatalf("expected 1 outbound, got %d", len(outbox.entries))
	}
}

func TestQualifyingHappyPathReachesPendingApproval(t *testing.T) {
	o, repo, _, operator := newTestOrchestrator()
	ctx := context.Background()
	lead, err := repo.Create(ctx, "artist-1", "+447700900000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	lead, err = o.HandleInbound(ctx, lead, "hi", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	answers := []struct {
		text     string
		hasMedia bool
	}{
		{"A dragon wrapping around my forearm", false},
		{"No", false},
		{"forearm", false},
		{"10x15cm", false},
		{"medium", false},
		{"£1000", false},
		{"London, UK", false},
		{"traditional", false},
		{"@mytattoos", false},
		{"", true},
	}

	for i, a := range answers {
		lead, err = o.HandleInbound(ctx, lead, a.text, a.hasMedia)
		if err != nil {
			t.Fatalf("answer %d (%q): %v", i, a.text, err)
		}
	}

	if lead.Status != leads.StatusPendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %v (step %d)", lead.Status, lead.CurrentStep)
	}
	if lead.EstimatedCategory != leads.CategoryLarge {
		t.Fatalf("expected LARGE category, got %v", lead.EstimatedCategory)
	}
	if lead.DepositAmountPence != 20000 {
		t.Fatalf("expected deposit 20000 pence, got %d", lead.DepositAmountPence)
	}
	found := false
	for _, e := range operator.events {
		if e == "qualification_complete" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected operator notified of qualification_complete, got %v", operator.events)
	}
}

func TestThreeStrikesHandoverOnBudget(t *testing.T) {
	o, repo, _, _ := newTestOrchestrator()
	ctx := context.Background()
	lead, err := repo.Create(ctx, "artist-1", "+447700900000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lead, err = o.HandleInbound(ctx, lead, "hi", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	prelude := []string{"A dragon wrapping around my forearm", "No", "forearm", "10x15cm", "medium"}
	for _, text := range prelude {
		lead, err = o.HandleInbound(ctx, lead, text, false)
		if err != nil {
			t.Fatalf("prelude %q: %v", text, err)
		}
	}
	if lead.Status != leads.StatusQualifying {
		t.Fatalf("expected still QUALIFYING before budget attempts, got %v", lead.Status)
	}

	for i := 0; i < 3; i++ {
		lead, err = o.HandleInbound(ctx, lead, "banana", false)
		if err != nil {
			t.Fatalf("budget attempt %d: %v", i, err)
		}
	}

	if lead.Status != leads.StatusNeedsArtistReply {
		t.Fatalf("expected NEEDS_ARTIST_REPLY after three strikes, got %v", lead.Status)
	}
	if lead.HandoverReason == "" {
		t.Fatalf("expected handover reason to be set")
	}
}

func TestOptOutDominatesFromNeedsArtistReply(t *testing.T) {
	o, repo, _, _ := newTestOrchestrator()
	ctx := context.Background()
	lead, err := repo.Create(ctx, "artist-1", "+447700900000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lead.Status = leads.StatusNeedsArtistReply
	repo.Seed(lead)

	updated, err := o.HandleInbound(ctx, lead, "STOP", false)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if updated.Status != leads.StatusOptOut {
		t.Fatalf("expected OPTOUT, got %v", updated.Status)
	}
}

func TestRestartKeywordResumesFromOptOut(t *testing.T) {
	o, repo, _, _ := newTestOrchestrator()
	ctx := context.Background()
	lead, err := repo.Create(ctx, "artist-1", "+447700900000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	lead.Status = leads.StatusOptOut
	repo.Seed(lead)

	updated, err := o.HandleInbound(ctx, lead, "START", false)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if updated.Status != leads.StatusQualifying {
		t.Fatalf("expected restart into QUALIFYING, got %v", updated.Status)
	}
}

var _ = ports.OutboundMessage{}
