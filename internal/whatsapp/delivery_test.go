package whatsapp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/inkline/bookingbot/internal/events"
	"github.com/inkline/bookingbot/internal/ports"
)

type captureNotifier struct {
	sent ports.OutboundMessage
}

func (c *captureNotifier) Send(ctx context.Context, msg ports.OutboundMessage) (ports.SendResult, error) {
	c.sent = msg
	return ports.SendResult{MessageID: "msg-1"}, nil
}

func TestDeliveryHandlerDecodesPayload(t *testing.T) {
	notifier := &captureNotifier{}
	h := NewDeliveryHandler(notifier)

	payload, _ := json.Marshal(outboxPayload{To: "+442071234567", Body: "hello"})
	err := h.Handle(context.Background(), events.OutboxEntry{Channel: "whatsapp", Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.sent.To != "+442071234567" || notifier.sent.Body != "hello" {
		t.Fatalf("unexpected outbound message: %+v", notifier.sent)
	}
}

func TestDeliveryHandlerRejectsWrongChannel(t *testing.T) {
	h := NewDeliveryHandler(&captureNotifier{})
	err := h.Handle(context.Background(), events.OutboxEntry{Channel: "instagram"})
	if err == nil {
		t.Fatal("expected error for non-whatsapp channel")
	}
}
