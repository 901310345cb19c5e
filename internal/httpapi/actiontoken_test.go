package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/actiontoken"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/ports"
)

// fakeTokenStore is an in-memory stand-in for actiontoken.Store,
// satisfying tokenValidator and tokenIssuer without a pgx pool.
type fakeTokenStore struct {
	tokens map[string]*actiontoken.Token
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[string]*actiontoken.Token{}}
}

func (f *fakeTokenStore) seed(value string, tok *actiontoken.Token) {
	f.tokens[value] = tok
}

func (f *fakeTokenStore) Issue(ctx context.Context, leadID uuid.UUID, actionType string, requiredStatus leads.Status, expiryDays int) (*actiontoken.Token, error) {
	value := "tok-" + uuid.NewString()
	tok := &actiontoken.Token{
		ID:             uuid.New(),
		Value:          value,
		LeadID:         leadID,
		ActionType:     actionType,
		RequiredStatus: requiredStatus,
		ExpiresAt:      time.Now().Add(time.Duration(expiryDays) * 24 * time.Hour),
		CreatedAt:      time.Now(),
	}
	f.tokens[value] = tok
	return tok, nil
}

func (f *fakeTokenStore) Validate(ctx context.Context, value string, currentLeadStatus leads.Status) (*actiontoken.Token, error) {
	tok, ok := f.tokens[value]
	if !ok {
		return nil, actiontoken.ErrTokenNotFound
	}
	if tok.Used {
		return tok, actiontoken.ErrTokenUsed
	}
	if time.Now().After(tok.ExpiresAt) {
		return tok, actiontoken.ErrTokenExpired
	}
	if tok.RequiredStatus != currentLeadStatus {
		return tok, actiontoken.ErrStatusMismatch
	}
	return tok, nil
}

func (f *fakeTokenStore) Claim(ctx context.Context, value string) (bool, error) {
	tok, ok := f.tokens[value]
	if !ok {
		return false, actiontoken.ErrTokenNotFound
	}
	if tok.Used {
		return false, nil
	}
	tok.Used = true
	return true, nil
}

func newTestActionTokenHandler(t *testing.T) (*ActionTokenHandler, *leads.InMemoryRepository, *fakeTokenStore) {
	t.Helper()
	repo := leads.NewInMemoryRepository()
	tokens := newFakeTokenStore()
	h := NewActionTokenHandler(tokens, repo, noopOutbox{}, noopCopy{}, nil, nil)
	return h, repo, tokens
}

// stubCheckoutCreator is a fixed-URL ports.CheckoutSessionCreator for
// testing the approve action's deposit-link wiring without a live
// Stripe account.
type stubCheckoutCreator struct {
	sessionID string
	url       string
}

func (s stubCheckoutCreator) CreateCheckoutSession(ctx context.Context, lead *leads.Lead, amountPence int64, metadata map[string]string) (ports.CheckoutSession, error) {
	return ports.CheckoutSession{SessionID: s.sessionID, URL: s.url}, nil
}

func seedLead(t *testing.T, repo *leads.InMemoryRepository, status leads.Status) *leads.Lead {
	t.Helper()
	lead, err := repo.Create(context.Background(), "artist-1", "+442071234567")
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	if status != leads.StatusNew {
		if _, _, err := repo.UpdateStatusIfMatches(context.Background(), lead.ID, leads.StatusNew, status); err != nil {
			t.Fatalf("advance seeded lead: %v", err)
		}
	}
	lead, _ = repo.GetByIDAnyArtist(context.Background(), lead.ID)
	return lead
}

func TestActionTokenConfirmRendersPage(t *testing.T) {
	h, repo, tokens := newTestActionTokenHandler(t)
	lead := seedLead(t, repo, leads.StatusPendingApproval)
	tok, err := tokens.Issue(context.Background(), lead.ID, "approve", leads.StatusPendingApproval, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/a/"+tok.Value, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", tok.Value)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.HandleConfirm(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestActionTokenExecuteApprovesLead(t *testing.T) {
	h, repo, tokens := newTestActionTokenHandler(t)
	lead := seedLead(t, repo, leads.StatusPendingApproval)
	tok, err := tokens.Issue(context.Background(), lead.ID, "approve", leads.StatusPendingApproval, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("POST", "/a/"+tok.Value, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", tok.Value)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.HandleExecute(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["executed"] != true {
		t.Fatalf("expected executed=true, got %+v", resp)
	}

	updated, err := repo.GetByIDAnyArtist(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if updated.Status != leads.StatusAwaitingDeposit {
		t.Fatalf("expected AWAITING_DEPOSIT, got %s", updated.Status)
	}
}

func TestActionTokenExecuteApproveCreatesCheckoutSession(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	tokens := newFakeTokenStore()
	checkout := stubCheckoutCreator{sessionID: "cs_test_1", url: "https://checkout.stripe.com/cs_test_1"}
	h := NewActionTokenHandler(tokens, repo, noopOutbox{}, noopCopy{}, checkout, nil)

	lead := seedLead(t, repo, leads.StatusPendingApproval)
	tok, err := tokens.Issue(context.Background(), lead.ID, "approve", leads.StatusPendingApproval, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("POST", "/a/"+tok.Value, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", tok.Value)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.HandleExecute(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, err := repo.GetByIDAnyArtist(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if updated.CheckoutSessionID != "cs_test_1" {
		t.Fatalf("expected checkout session id to be persisted, got %q", updated.CheckoutSessionID)
	}
}

func TestActionTokenExecuteRejectsSecondUse(t *testing.T) {
	h, repo, tokens := newTestActionTokenHandler(t)
	lead := seedLead(t, repo, leads.StatusPendingApproval)
	tok, err := tokens.Issue(context.Background(), lead.ID, "approve", leads.StatusPendingApproval, 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	exec := func() int {
		req := httptest.NewRequest("POST", "/a/"+tok.Value, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("token", tok.Value)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		h.HandleExecute(rec, req)
		return rec.Code
	}

	if code := exec(); code != 200 {
		t.Fatalf("first execute: expected 200, got %d", code)
	}
	if code := exec(); code == 200 {
		t.Fatalf("second execute: expected non-200, got %d", code)
	}
}

func TestActionTokenConfirmRejectsUnknownToken(t *testing.T) {
	h, _, _ := newTestActionTokenHandler(t)

	req := httptest.NewRequest("GET", "/a/nope", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.HandleConfirm(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
