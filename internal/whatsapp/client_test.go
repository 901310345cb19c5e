package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendText(t *testing.T) {
	var received sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test_token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		resp := SendResponse{Messages: []struct {
			ID string `json:"id"`
		}{{ID: "wamid.001"}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test_token", "1234567890")
	client.SetGraphAPIBase(server.URL)

	resp, err := client.SendText(context.Background(), "+15551234567", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Messages[0].ID != "wamid.001" {
		t.Errorf("message id = %s, want wamid.001", resp.Messages[0].ID)
	}
	if received.To != "+15551234567" {
		t.Errorf("sent to = %s, want +15551234567", received.To)
	}
	if received.Text.Body != "hello" {
		t.Errorf("sent body = %s, want hello", received.Text.Body)
	}
}

func TestSendTemplate(t *testing.T) {
	var received sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		resp := SendResponse{Messages: []struct {
			ID string `json:"id"`
		}{{ID: "wamid.002"}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient("test_token", "1234567890")
	client.SetGraphAPIBase(server.URL)

	_, err := client.SendTemplate(context.Background(), "+15551234567", "slot_confirmed", "en", []string{"Tuesday 3pm"})
	if err != nil {
		t.Fatal(err)
	}
	if received.Template.Name != "slot_confirmed" {
		t.Errorf("template name = %s, want slot_confirmed", received.Template.Name)
	}
	if len(received.Template.Params) != 1 || received.Template.Params[0].Parameters[0].Text != "Tuesday 3pm" {
		t.Errorf("unexpected template params: %+v", received.Template.Params)
	}
}

func TestSendTextAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResponse{Error: &apiError{Code: 131047, Message: "re-engagement window expired"}})
	}))
	defer server.Close()

	client := NewClient("test_token", "1234567890")
	client.SetGraphAPIBase(server.URL)

	if _, err := client.SendText(context.Background(), "+15551234567", "hello"); err == nil {
		t.Fatal("expected error for API error response")
	}
}
