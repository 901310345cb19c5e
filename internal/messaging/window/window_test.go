package window

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/systemevent"
)

func newTestLead(status leads.Status, lastClientMessageAt *time.Time) *leads.Lead {
	return &leads.Lead{
		ID:                  uuid.New(),
		Status:              status,
		LastClientMessageAt: lastClientMessageAt,
	}
}

func TestArbitrateOptedOutAlwaysWins(t *testing.T) {
	recent := time.Now()
	lead := newTestLead(leads.StatusOptOut, &recent)
	arbiter := NewArbiter(nil, systemevent.NewInMemoryStore(), nil)

	decision, err := arbiter.Arbitrate(context.Background(), lead, "qualifying_question", &Template{Name: "qualifying_question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != DecisionOptedOut {
		t.Fatalf("expected opted out, got %s", decision)
	}
}

func TestArbitrateWindowOpen(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	lead := newTestLead(leads.StatusQualifying, &recent)
	arbiter := NewArbiter(nil, systemevent.NewInMemoryStore(), nil)

	decision, err := arbiter.Arbitrate(context.Background(), lead, "qualifying_question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != DecisionOpen {
		t.Fatalf("expected open, got %s", decision)
	}
}

func TestArbitrateWindowClosedWithTemplate(t *testing.T) {
	stale := time.Now().Add(-48 * time.Hour)
	lead := newTestLead(leads.StatusQualifying, &stale)
	events := systemevent.NewInMemoryStore()
	arbiter := NewArbiter(nil, events, nil)

	decision, err := arbiter.Arbitrate(context.Background(), lead, "qualifying_question", &Template{Name: "qualifying_question"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != DecisionClosedTemplateUsed {
		t.Fatalf("expected closed_template_used, got %s", decision)
	}
	if !events.HasEventType("window_closed") {
		t.Fatal("expected a window_closed system event")
	}
}

func TestArbitrateWindowClosedNoTemplate(t *testing.T) {
	stale := time.Now().Add(-48 * time.Hour)
	lead := newTestLead(leads.StatusQualifying, &stale)
	arbiter := NewArbiter(nil, systemevent.NewInMemoryStore(), nil)

	decision, err := arbiter.Arbitrate(context.Background(), lead, "qualifying_question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != DecisionBlockedNoTemplate {
		t.Fatalf("expected blocked_no_template, got %s", decision)
	}
}

func TestCacheReadThroughViaMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client)

	leadID := uuid.New().String()
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, leadID); err != nil || ok {
		t.Fatalf("expected cache miss, got ok=%v err=%v", ok, err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := cache.Set(ctx, leadID, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := cache.Get(ctx, leadID)
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if !got.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "lead-1"); err != nil || ok {
		t.Fatalf("expected nil-safe miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "lead-1", time.Now()); err != nil {
		t.Fatalf("expected nil-safe set, got error: %v", err)
	}
}
