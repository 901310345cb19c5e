package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkline/bookingbot/internal/payments"
	"github.com/inkline/bookingbot/pkg/logging"
)

var paymentTracer = otel.Tracer("bookingbot.internal.httpapi.payment")

// stripeWebhookEvent is the subset of a checkout.session.completed
// payload the payment correlator depends on (§6).
type stripeWebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			AmountTotal   int64             `json:"amount_total"`
			Metadata      map[string]string `json:"metadata"`
			ClientRefID   string            `json:"client_reference_id"`
		} `json:"object"`
	} `json:"data"`
}

const checkoutSessionCompleted = "checkout.session.completed"

// verifyStripeSignature parses the Stripe-Signature header's `t=`/`v1=`
// parts and checks HMAC-SHA256(secret, "t.payload") within a 5 minute
// tolerance. Grounded on the teacher's verifyStripeSignature.
func verifyStripeSignature(secret string, payload []byte, header string) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(time.Now().Unix()-ts) > 300 {
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// PaymentHandler implements the payment webhook (§6, §4.8): verified
// checkout.session.completed events are handed to the Payment
// Correlator. Grounded on the teacher's StripeWebhookHandler.Handle.
type PaymentHandler struct {
	artistID      string
	webhookSecret string
	correlator    *payments.Correlator
	logger        *logging.Logger
}

func NewPaymentHandler(artistID, webhookSecret string, correlator *payments.Correlator, logger *logging.Logger) *PaymentHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentHandler{artistID: artistID, webhookSecret: webhookSecret, correlator: correlator, logger: logger}
}

func (h *PaymentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := paymentTracer.Start(r.Context(), "httpapi.payment.webhook")
	defer span.End()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature")) {
		span.RecordError(fmt.Errorf("signature verification failed"))
		writeJSONError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil || evt.ID == "" {
		span.RecordError(err)
		writeJSONError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	span.SetAttributes(attribute.String("bookingbot.event_type", evt.Type))

	if evt.Type != checkoutSessionCompleted {
		writeJSON(w, http.StatusOK, paymentResponse{Received: true, Type: evt.Type})
		return
	}

	leadID := evt.Data.Object.Metadata["lead_id"]
	if leadID == "" {
		leadID = evt.Data.Object.ClientRefID
	}

	result, err := h.correlator.ProcessCheckoutCompleted(ctx, h.artistID, payments.CheckoutCompletedEvent{
		EventID:          evt.ID,
		SessionID:        evt.Data.Object.ID,
		PaymentIntentID:  evt.Data.Object.PaymentIntent,
		LeadID:           leadID,
		AmountTotalPence: evt.Data.Object.AmountTotal,
	})
	if err != nil {
		span.RecordError(err)
		h.respondError(w, evt.Type, err)
		return
	}

	span.SetAttributes(attribute.String("bookingbot.lead_id", result.LeadID.String()))
	writeJSON(w, http.StatusOK, paymentResponse{Received: true, Type: evt.Type, LeadID: result.LeadID.String(), Outcome: string(result.Outcome)})
}

func (h *PaymentHandler) respondError(w http.ResponseWriter, eventType string, err error) {
	switch {
	case errors.Is(err, payments.ErrMalformedLeadID):
		writeJSON(w, http.StatusBadRequest, paymentResponse{Received: false, Type: eventType, Error: err.Error()})
	case errors.Is(err, payments.ErrLeadNotFound):
		writeJSON(w, http.StatusNotFound, paymentResponse{Received: false, Type: eventType, Error: err.Error()})
	case errors.Is(err, payments.ErrSessionMismatch), errors.Is(err, payments.ErrStatusMismatch):
		writeJSON(w, http.StatusBadRequest, paymentResponse{Received: false, Type: eventType, Error: err.Error()})
	default:
		h.logger.Error("payment webhook processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, paymentResponse{Received: false, Type: eventType, Error: "internal error"})
	}
}

type paymentResponse struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
	LeadID   string `json:"lead_id,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}
