package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestRouterHealthCheck(t *testing.T) {
	r := New(&Config{})
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouterAdminRoutesRequireSecret(t *testing.T) {
	r := New(&Config{})
	req := httptest.NewRequest("GET", "/admin/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404 when admin is unmounted, got %d", rec.Code)
	}
}

func TestRouterWebhookRoutesRespondWhenUnwired(t *testing.T) {
	r := New(&Config{})
	req := httptest.NewRequest("POST", "/webhooks/whatsapp", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404 when inbound handler is unwired, got %d", rec.Code)
	}
}
