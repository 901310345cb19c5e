package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/metrics"
	"github.com/inkline/bookingbot/internal/orchestrator"
	"github.com/inkline/bookingbot/pkg/logging"
)

var inboundTracer = otel.Tracer("bookingbot.internal.httpapi.inbound")

// ProcessedEventStore is the idempotency check the inbound handler
// needs before dispatching a message to the orchestrator.
type ProcessedEventStore interface {
	CheckAndRecord(ctx context.Context, provider, eventID string) (bool, error)
}

// leadsResolver is the subset of leads.Repository the inbound handler
// needs: resolving (and lazily creating) the lead behind a phone number.
type leadsResolver interface {
	GetOrCreateByPhone(ctx context.Context, artistID, phone string) (*leads.Lead, error)
}

// inboundWebhookEvent mirrors the subset of the WhatsApp Cloud API
// payload the orchestrator depends on (§6): entry[0].changes[0].value.messages[0].
type inboundWebhookEvent struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []inboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *mediaRef `json:"image"`
	Video    *mediaRef `json:"video"`
	Audio    *mediaRef `json:"audio"`
	Document *mediaRef `json:"document"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type mediaRef struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

var knownMessageTypes = map[string]bool{
	"text": true, "image": true, "video": true, "audio": true, "document": true, "location": true,
}

func (m inboundMessage) body() (text string, hasMedia bool) {
	switch m.Type {
	case "text":
		if m.Text != nil {
			text = m.Text.Body
		}
	case "image":
		hasMedia = true
		if m.Image != nil {
			text = m.Image.Caption
		}
	case "video":
		hasMedia = true
		if m.Video != nil {
			text = m.Video.Caption
		}
	case "audio":
		hasMedia = true
	case "document":
		hasMedia = true
		if m.Document != nil {
			text = m.Document.Caption
		}
	case "location":
		hasMedia = true
	}
	return text, hasMedia
}

// verifySignature checks the X-Hub-Signature-256 header, matching the
// Meta-style `sha256=<hex>` format used across every inbound channel
// webhook this studio will ever receive.
func verifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" {
		return true
	}
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sigHex))
}

// InboundHandler implements the inbound message webhook (§6): GET
// verification handshake, POST signature-verified dispatch into the
// Conversation Orchestrator. Grounded on the teacher's Instagram
// webhook handler shape, adapted to the WhatsApp Cloud API wire format
// the core's entry[].changes[].value.messages[] subset depends on.
type InboundHandler struct {
	deps InboundDeps
}

// InboundDeps collects the handler's collaborators.
type InboundDeps struct {
	ArtistID    string
	VerifyToken string
	AppSecret   string
	Leads       leadsResolver
	Orchestrator *orchestrator.Orchestrator
	Processed   ProcessedEventStore
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
}

func NewInboundHandler(deps InboundDeps) *InboundHandler {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &InboundHandler{deps: deps}
}

// HandleVerification answers the GET subscribe handshake.
func (h *InboundHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.deps.VerifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}

// HandleMessage implements the POST path. Responses are always HTTP
// 200 for a successfully classified event — including duplicates and
// out-of-order messages — per §6; 4xx is reserved for malformed
// signature/payload.
func (h *InboundHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx, span := inboundTracer.Start(r.Context(), "httpapi.inbound.webhook")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if !verifySignature(h.deps.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		span.RecordError(fmt.Errorf("signature verification failed"))
		writeJSONError(w, http.StatusForbidden, "signature verification failed")
		return
	}

	var evt inboundWebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	msg, ok := extractMessage(evt)
	if !ok {
		writeJSON(w, http.StatusOK, inboundResponse{Received: true})
		return
	}

	if !knownMessageTypes[msg.Type] {
		writeJSON(w, http.StatusOK, inboundResponse{Received: true, Type: "unclassified"})
		return
	}

	span.SetAttributes(
		attribute.String("bookingbot.artist_id", h.deps.ArtistID),
		attribute.String("bookingbot.message_type", msg.Type),
	)

	duplicate, err := h.deps.Processed.CheckAndRecord(ctx, "whatsapp", msg.ID)
	if err != nil {
		span.RecordError(err)
		h.deps.Logger.Error("inbound: idempotency check failed", "error", err)
		writeJSON(w, http.StatusOK, inboundResponse{Received: false, Error: "internal error"})
		return
	}
	if duplicate {
		h.deps.Metrics.Duplicate("inbound_message")
		writeJSON(w, http.StatusOK, inboundResponse{Received: true, Type: "duplicate"})
		return
	}

	lead, err := h.deps.Leads.GetOrCreateByPhone(ctx, h.deps.ArtistID, msg.From)
	if err != nil {
		span.RecordError(err)
		h.deps.Logger.Error("inbound: lead lookup failed", "error", err)
		writeJSON(w, http.StatusOK, inboundResponse{Received: false, Error: "lead lookup failed"})
		return
	}
	span.SetAttributes(attribute.String("bookingbot.lead_id", lead.ID.String()))

	if msgTimestamp, ok := parseUnixSeconds(msg.Timestamp); ok && lead.LastClientMessageAt != nil && msgTimestamp.Before(*lead.LastClientMessageAt) {
		writeJSON(w, http.StatusOK, inboundResponse{Received: true, Type: "out_of_order", LeadID: lead.ID.String()})
		return
	}

	text, hasMedia := msg.body()
	updated, err := h.deps.Orchestrator.HandleInbound(ctx, lead, text, hasMedia)
	if err != nil {
		span.RecordError(err)
		h.deps.Logger.Error("inbound: orchestrator failed", "error", err, "lead_id", lead.ID)
		writeJSON(w, http.StatusOK, inboundResponse{Received: false, Error: "processing error", LeadID: lead.ID.String()})
		return
	}

	writeJSON(w, http.StatusOK, inboundResponse{Received: true, Type: "message", LeadID: updated.ID.String()})
}

func extractMessage(evt inboundWebhookEvent) (inboundMessage, bool) {
	for _, entry := range evt.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return change.Value.Messages[0], true
			}
		}
	}
	return inboundMessage{}, false
}

func parseUnixSeconds(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

type inboundResponse struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
	LeadID   string `json:"lead_id,omitempty"`
	Error    string `json:"error,omitempty"`
}
