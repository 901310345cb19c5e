package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inkline/bookingbot/internal/events"
	"github.com/inkline/bookingbot/internal/ports"
)

// outboxPayload mirrors the orchestrator's outboundPayload and the
// action-token handler's enqueue map — the two producers of outbox
// rows on the "whatsapp" channel.
type outboxPayload struct {
	To             string            `json:"to"`
	Body           string            `json:"body,omitempty"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`
}

// DeliveryHandler implements events.DeliveryHandler for the "whatsapp"
// outbox channel, decoding each entry's payload and handing it to a
// Notifier. Grounded on internal/worker/messaging/retry_sender.go's
// drain-then-transport shape, adapted from a direct ListRetryCandidates
// poll loop to the Deliverer/DeliveryHandler split this core uses.
type DeliveryHandler struct {
	notifier ports.Notifier
}

func NewDeliveryHandler(notifier ports.Notifier) *DeliveryHandler {
	return &DeliveryHandler{notifier: notifier}
}

func (h *DeliveryHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Channel != "whatsapp" {
		return fmt.Errorf("whatsapp: delivery handler cannot route channel %q", entry.Channel)
	}
	var payload outboxPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("whatsapp: decode outbox payload: %w", err)
	}
	_, err := h.notifier.Send(ctx, ports.OutboundMessage{
		To:             payload.To,
		Body:           payload.Body,
		TemplateName:   payload.TemplateName,
		TemplateParams: payload.TemplateParams,
	})
	return err
}
