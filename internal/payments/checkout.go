package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/pkg/logging"
)

var stripeCheckoutTracer = otel.Tracer("bookingbot.internal.payments.stripe")

// StripeCheckoutCreator implements ports.CheckoutSessionCreator against
// Stripe's Checkout Sessions API. Adapted from the teacher's
// StripeCheckoutService: the Connect destination-charge branch (and its
// per-org account resolver) is dropped since this studio bills through
// a single Stripe account, not a platform fanning out to many
// connected clinics.
type StripeCheckoutCreator struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeCheckoutCreator builds a StripeCheckoutCreator. successURL
// and cancelURL are the redirect targets after the client pays or
// abandons checkout.
func NewStripeCheckoutCreator(secretKey, successURL, cancelURL string, dryRun bool, logger *logging.Logger) *StripeCheckoutCreator {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeCheckoutCreator{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		dryRun:     dryRun,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeCheckoutCreator) WithBaseURL(baseURL string) *StripeCheckoutCreator {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// CreateCheckoutSession implements ports.CheckoutSessionCreator.
func (s *StripeCheckoutCreator) CreateCheckoutSession(ctx context.Context, lead *leads.Lead, amountPence int64, metadata map[string]string) (ports.CheckoutSession, error) {
	ctx, span := stripeCheckoutTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookingbot.lead_id", lead.ID.String()),
		attribute.Int("bookingbot.amount_pence", int(amountPence)),
	)

	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation",
			"lead_id", lead.ID, "amount_pence", amountPence)
		return ports.CheckoutSession{
			SessionID: fakeID,
			URL:       fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
		}, nil
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", "gbp")
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", amountPence))
	form.Set("line_items[0][price_data][product_data][name]", "Tattoo deposit")
	form.Set("line_items[0][quantity]", "1")

	if s.successURL != "" {
		form.Set("success_url", s.successURL)
	}
	if s.cancelURL != "" {
		form.Set("cancel_url", s.cancelURL)
	}

	form.Set("metadata[lead_id]", lead.ID.String())
	form.Set("payment_intent_data[metadata][lead_id]", lead.ID.String())
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
		form.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		span.RecordError(err)
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		span.RecordError(fmt.Errorf("stripe api status %d", resp.StatusCode))
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var parsed stripeCheckoutSessionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return ports.CheckoutSession{}, fmt.Errorf("payments: stripe response missing checkout url")
	}

	return ports.CheckoutSession{SessionID: parsed.ID, URL: parsed.URL}, nil
}

// stripeCheckoutSessionResponse is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
