package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/metrics"
	"github.com/inkline/bookingbot/internal/orchestrator"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/systemevent"
)

type fakeProcessedStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeProcessedStore() *fakeProcessedStore {
	return &fakeProcessedStore{seen: map[string]bool{}}
}

func (f *fakeProcessedStore) CheckAndRecord(ctx context.Context, provider, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := provider + ":" + eventID
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

type noopCopy struct{}

func (noopCopy) Render(messageKey string, lead *leads.Lead, params map[string]string) (string, error) {
	return "copy:" + messageKey, nil
}

type noopOutbox struct{}

func (noopOutbox) Enqueue(ctx context.Context, orgID string, leadID *uuid.UUID, channel, eventType string, payload any) (uuid.UUID, error) {
	return uuid.New(), nil
}

type noopOperator struct{}

func (noopOperator) NotifyOperator(ctx context.Context, leadID uuid.UUID, event string, details map[string]string) error {
	return nil
}

var _ ports.CopyRenderer = noopCopy{}
var _ ports.OperatorNotifier = noopOperator{}

func newTestInboundHandler(t *testing.T, appSecret string) (*InboundHandler, *leads.InMemoryRepository) {
	t.Helper()
	repo := leads.NewInMemoryRepository()
	arbiter := window.NewArbiter(nil, systemevent.NewInMemoryStore(), func() time.Time { return time.Now().UTC() })
	orch := orchestrator.New(repo, arbiter, noopOutbox{}, noopCopy{}, noopOperator{}, nil, clockid.New(), nil)
	metrics.ResetDefault()
	h := NewInboundHandler(InboundDeps{
		ArtistID:     "artist-1",
		AppSecret:    appSecret,
		Leads:        repo,
		Orchestrator: orch,
		Processed:    newFakeProcessedStore(),
		Metrics:      metrics.Default(),
	})
	return h, repo
}

func whatsappBody(msgID, from, text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"entry": []map[string]any{
			{
				"changes": []map[string]any{
					{
						"value": map[string]any{
							"messages": []map[string]any{
								{
									"id":   msgID,
									"from": from,
									"type": "text",
									"text": map[string]any{"body": text},
								},
							},
						},
					},
				},
			},
		},
	})
	return body
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestInboundMessageCreatesLeadAndStartsQualifying(t *testing.T) {
	h, repo := newTestInboundHandler(t, "")
	body := whatsappBody("wamid.1", "+442071234567", "Hi")

	req := httptest.NewRequest("POST", "/webhooks/whatsapp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp inboundResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.Type != "message" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	leadID, err := uuid.Parse(resp.LeadID)
	if err != nil {
		t.Fatalf("invalid lead id in response: %v", err)
	}
	lead, err := repo.GetByID(context.Background(), "artist-1", leadID)
	if err != nil {
		t.Fatalf("lead lookup failed: %v", err)
	}
	if lead.Status != leads.StatusQualifying {
		t.Fatalf("expected QUALIFYING, got %s", lead.Status)
	}
}

func TestInboundMessageRejectsBadSignature(t *testing.T) {
	h, _ := newTestInboundHandler(t, "supersecret")
	body := whatsappBody("wamid.2", "+442071234567", "Hi")

	req := httptest.NewRequest("POST", "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	if rec.Code != 403 {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestInboundMessageAcceptsValidSignature(t *testing.T) {
	h, _ := newTestInboundHandler(t, "supersecret")
	body := whatsappBody("wamid.3", "+442071234567", "Hi")

	req := httptest.NewRequest("POST", "/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("supersecret", body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInboundMessageDuplicateIsAcknowledged(t *testing.T) {
	h, _ := newTestInboundHandler(t, "")
	body := whatsappBody("wamid.4", "+442071234567", "Hi")

	req1 := httptest.NewRequest("POST", "/webhooks/whatsapp", bytes.NewReader(body))
	rec1 := httptest.NewRecorder()
	h.HandleMessage(rec1, req1)
	if rec1.Code != 200 {
		t.Fatalf("first request: expected 200, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest("POST", "/webhooks/whatsapp", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	h.HandleMessage(rec2, req2)

	var resp inboundResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec2.Code != 200 || resp.Type != "duplicate" {
		t.Fatalf("expected duplicate ack, got %d %+v", rec2.Code, resp)
	}
}

func TestHandleVerificationEchoesChallenge(t *testing.T) {
	repo := leads.NewInMemoryRepository()
	_ = repo
	h := NewInboundHandler(InboundDeps{VerifyToken: "tok123", Leads: leads.NewInMemoryRepository(), Processed: newFakeProcessedStore(), Metrics: metrics.Default()})

	req := httptest.NewRequest("GET", "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=tok123&hub.challenge=echo-me", nil)
	rec := httptest.NewRecorder()
	h.HandleVerification(rec, req)

	if rec.Code != 200 || rec.Body.String() != "echo-me" {
		t.Fatalf("expected echoed challenge, got %d %q", rec.Code, rec.Body.String())
	}
}
