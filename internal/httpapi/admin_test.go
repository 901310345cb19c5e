package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inkline/bookingbot/internal/leads"
)

func TestStatsHandlerCountsByStatus(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	seedLead(t, repo, leads.StatusPendingApproval)
	seedLead(t, repo, leads.StatusAwaitingDeposit)
	seedLead(t, repo, leads.StatusNeedsArtistReply)

	h := NewStatsHandler(repo, func() time.Time { return time.Now() }, nil)
	req := httptest.NewRequest("GET", "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ConversationsStarted != 3 {
		t.Fatalf("expected 3 conversations, got %d", stats.ConversationsStarted)
	}
	if stats.PendingApproval != 1 || stats.AwaitingDeposit != 1 || stats.PendingHandovers != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
}

func TestActionTokenIssueHandlerMintsURL(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedLead(t, repo, leads.StatusPendingApproval)
	tokens := newFakeTokenStore()

	h := NewActionTokenIssueHandler(tokens, repo, "https://bookingbot.example", 7, nil)

	req := httptest.NewRequest("POST", "/admin/leads/"+lead.ID.String()+"/actions/approve", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("leadID", lead.ID.String())
	rctx.URLParams.Add("type", "approve")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["url"] == "" {
		t.Fatalf("expected non-empty url, got %+v", resp)
	}
}

func TestActionTokenIssueHandlerRejectsWrongStatus(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	lead := seedLead(t, repo, leads.StatusNew)
	tokens := newFakeTokenStore()

	h := NewActionTokenIssueHandler(tokens, repo, "https://bookingbot.example", 7, nil)

	req := httptest.NewRequest("POST", "/admin/leads/"+lead.ID.String()+"/actions/approve", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("leadID", lead.ID.String())
	rctx.URLParams.Add("type", "approve")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	if rec.Code != 409 {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}
