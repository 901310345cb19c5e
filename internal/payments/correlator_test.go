package payments

import (
	"context"
	"sync"
	"testing"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/pkg/logging"
)

type fakeProcessedStore struct {
	mu        sync.Mutex
	processed map[string]bool
}

func newFakeProcessedStore() *fakeProcessedStore {
	return &fakeProcessedStore{processed: map[string]bool{}}
}

func (f *fakeProcessedStore) CheckOnly(ctx context.Context, provider, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[provider+":"+eventID], nil
}

func (f *fakeProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := provider + ":" + eventID
	if f.processed[key] {
		return false, nil
	}
	f.processed[key] = true
	return true, nil
}

type fakeNotifier struct {
	sent []ports.OutboundMessage
}

func (f *fakeNotifier) Send(ctx context.Context, msg ports.OutboundMessage) (ports.SendResult, error) {
	f.sent = append(f.sent, msg)
	return ports.SendResult{MessageID: "msg-1"}, nil
}

func seedAwaitingDepositLead(repo *leads.InMemoryRepository, sessionID string) *leads.Lead {
	lead, _ := repo.Create(context.Background(), "artist-1", "+447700900000")
	lead.Status = leads.StatusAwaitingDeposit
	lead.CheckoutSessionID = sessionID
	repo.Seed(lead)
	return lead
}

func TestProcessCheckoutCompletedSuccess(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedAwaitingDepositLead(repo, "cs_A")

	processed := newFakeProcessedStore()
	notifier := &fakeNotifier{}
	correlator := NewCorrelator(repo, processed, systemevent.NewInMemoryStore(), nil, notifier, nil, nil, clockid.New(), logging.Default())

	result, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_A", PaymentIntentID: "pi_1", LeadID: lead.ID.String(),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeConfirmed {
		t.Fatalf("expected confirmed, got %v", result.Outcome)
	}

	updated, _ := repo.GetByID(context.Background(), "artist-1", lead.ID)
	if updated.Status != leads.StatusBookingPending {
		t.Fatalf("expected BOOKING_PENDING, got %v", updated.Status)
	}
	if updated.DepositPaidAt == nil {
		t.Fatalf("expected deposit_paid_at to be stamped")
	}
}

func TestProcessCheckoutCompletedDuplicate(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedAwaitingDepositLead(repo, "cs_A")

	processed := newFakeProcessedStore()
	_, _ = processed.MarkProcessed(context.Background(), "stripe", "evt_1")
	correlator := NewCorrelator(repo, processed, systemevent.NewInMemoryStore(), nil, &fakeNotifier{}, nil, nil, clockid.New(), logging.Default())

	result, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_A", PaymentIntentID: "pi_1", LeadID: lead.ID.String(),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %v", result.Outcome)
	}
	updated, _ := repo.GetByID(context.Background(), "artist-1", lead.ID)
	if updated.Status != leads.StatusAwaitingDeposit {
		t.Fatalf("expected lead untouched at AWAITING_DEPOSIT, got %v", updated.Status)
	}
}

func TestProcessCheckoutCompletedSessionMismatch(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedAwaitingDepositLead(repo, "cs_A")

	correlator := NewCorrelator(repo, newFakeProcessedStore(), systemevent.NewInMemoryStore(), nil, &fakeNotifier{}, nil, nil, clockid.New(), logging.Default())

	_, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_B", PaymentIntentID: "pi_1", LeadID: lead.ID.String(),
	})
	if err != ErrSessionMismatch {
		t.Fatalf("expected session mismatch error, got %v", err)
	}
}

func TestProcessCheckoutCompletedMalformedLeadID(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	correlator := NewCorrelator(repo, newFakeProcessedStore(), systemevent.NewInMemoryStore(), nil, &fakeNotifier{}, nil, nil, clockid.New(), logging.Default())

	_, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_A", PaymentIntentID: "pi_1", LeadID: "not-a-uuid",
	})
	if err != ErrMalformedLeadID {
		t.Fatalf("expected malformed lead id error, got %v", err)
	}
}

func TestProcessCheckoutCompletedRetriesFromNeedsArtistReply(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedAwaitingDepositLead(repo, "cs_A")
	lead.Status = leads.StatusNeedsArtistReply
	repo.Seed(lead)

	correlator := NewCorrelator(repo, newFakeProcessedStore(), systemevent.NewInMemoryStore(), nil, &fakeNotifier{}, nil, nil, clockid.New(), logging.Default())

	result, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_A", PaymentIntentID: "pi_1", LeadID: lead.ID.String(),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeConfirmed {
		t.Fatalf("expected confirmed via handover retry, got %v", result.Outcome)
	}
}

func TestProcessCheckoutCompletedStatusMismatch(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedAwaitingDepositLead(repo, "cs_A")
	lead.Status = leads.StatusQualifying
	repo.Seed(lead)

	correlator := NewCorrelator(repo, newFakeProcessedStore(), systemevent.NewInMemoryStore(), nil, &fakeNotifier{}, nil, nil, clockid.New(), logging.Default())

	_, err := correlator.ProcessCheckoutCompleted(context.Background(), "artist-1", CheckoutCompletedEvent{
		EventID: "evt_1", SessionID: "cs_A", PaymentIntentID: "pi_1", LeadID: lead.ID.String(),
	})
	if err != ErrStatusMismatch {
		t.Fatalf("expected status mismatch error, got %v", err)
	}
}
