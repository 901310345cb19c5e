// Package ports declares the capability interfaces the conversation
// orchestrator and payment correlator depend on without importing any
// concrete adapter. Copy rendering, spreadsheet mirroring, checkout
// session creation, and operator notification are all external
// collaborators injected at wiring time (cmd/api).
package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/leads"
)

// OutboundMessage is what a Notifier actually sends to the client.
type OutboundMessage struct {
	To               string
	Body             string
	TemplateName     string
	TemplateParams   map[string]string
}

// SendResult is what the transport returns on a successful send.
type SendResult struct {
	MessageID string
}

// Notifier sends outbound client messages over whatever transport is
// configured (WhatsApp Cloud API, Instagram, dry-run logger, ...).
type Notifier interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// OperatorNotifier alerts the studio's human operator out of band
// (chat + email per the dual-channel decision).
type OperatorNotifier interface {
	NotifyOperator(ctx context.Context, leadID uuid.UUID, event string, details map[string]string) error
}

// CopyRenderer composes the text for a named message key, given the
// lead and arbitrary render parameters. Concrete implementations may
// be static templates or i18n-aware renderers; the orchestrator never
// knows which.
type CopyRenderer interface {
	Render(messageKey string, lead *leads.Lead, params map[string]string) (string, error)
}

// CheckoutSession is the subset of a payment-provider checkout session
// the core needs to reference.
type CheckoutSession struct {
	SessionID string
	URL       string
}

// CheckoutSessionCreator starts a hosted checkout session for a lead's
// deposit amount.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, lead *leads.Lead, amountPence int64, metadata map[string]string) (CheckoutSession, error)
}

// MirrorSink mirrors a lead snapshot to an external system of record
// (spreadsheet, CRM) for operator visibility. Calls are best-effort and
// MUST NOT block the transactional envelope that produced the snapshot.
type MirrorSink interface {
	Mirror(ctx context.Context, snapshot LeadSnapshot) error
}

// LeadSnapshot is the flattened view of a lead mirrored externally.
type LeadSnapshot struct {
	LeadID          uuid.UUID
	Phone           string
	Status          leads.Status
	EstimatedCategory string
	DepositAmountPence int64
	CorrelationID   string
}

// Slot is a caller-offered appointment window, independent of the
// calendar system that produced it.
type Slot = leads.Slot

// SlotProvider supplies the list of slots offered to a lead awaiting
// booking confirmation. The core treats these as an opaque ordered
// list; it never queries a calendar itself.
type SlotProvider interface {
	SuggestedSlots(ctx context.Context, lead *leads.Lead) ([]Slot, error)
}
