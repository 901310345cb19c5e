package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/pkg/logging"
)

// ProcessedEventStore is the subset of events.ProcessedStore the
// correlator needs — a read-only pre-check and a post-commit record,
// per the insert-ordering rule in §4.8 step 9.
type ProcessedEventStore interface {
	CheckOnly(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

const idempotencyProvider = "stripe"

var (
	ErrMalformedLeadID  = errors.New("payments: malformed lead id in webhook metadata")
	ErrLeadNotFound     = errors.New("payments: lead not found")
	ErrSessionMismatch  = errors.New("payments: checkout session id mismatch")
	ErrStatusMismatch   = errors.New("payments: lead status does not permit deposit confirmation")
)

// CheckoutCompletedEvent is the subset of a checkout.session.completed
// webhook the correlator depends on; the HTTP layer parses the raw
// provider payload into this shape before calling ProcessCheckoutCompleted.
type CheckoutCompletedEvent struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
	LeadID          string
	AmountTotalPence int64
}

// Outcome classifies the caller-visible result of processing.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDuplicate Outcome = "duplicate"
)

// Result is returned to the HTTP layer to compose the JSON response.
type Result struct {
	Outcome Outcome
	LeadID  uuid.UUID
}

// Correlator implements the Payment Correlator (C8): verified
// checkout.session.completed events drive a DEPOSIT_PAID transition
// and its side-effects, guarded by idempotency and session-id
// consistency checks. Grounded on the teacher's StripeWebhookHandler.Handle,
// generalized from its fixed lead-update calls to the Lead state machine.
type Correlator struct {
	leads     leads.Repository
	processed ProcessedEventStore
	events    systemevent.Recorder
	arbiter   *window.Arbiter
	notifier  ports.Notifier
	operator  ports.OperatorNotifier
	mirror    ports.MirrorSink
	clock     clockid.Clock
	logger    *logging.Logger
}

func NewCorrelator(
	leadsRepo leads.Repository,
	processed ProcessedEventStore,
	events systemevent.Recorder,
	arbiter *window.Arbiter,
	notifier ports.Notifier,
	operator ports.OperatorNotifier,
	mirror ports.MirrorSink,
	clock clockid.Clock,
	logger *logging.Logger,
) *Correlator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Correlator{
		leads: leadsRepo, processed: processed, events: events, arbiter: arbiter,
		notifier: notifier, operator: operator, mirror: mirror, clock: clock, logger: logger,
	}
}

// ProcessCheckoutCompleted implements §4.8 steps 1-9. artistID scopes
// the lead lookup the way every other repository call in this module does.
func (c *Correlator) ProcessCheckoutCompleted(ctx context.Context, artistID string, evt CheckoutCompletedEvent) (Result, error) {
	leadID, err := uuid.Parse(evt.LeadID)
	if err != nil {
		return Result{}, ErrMalformedLeadID
	}

	lead, err := c.leads.GetByID(ctx, artistID, leadID)
	if err != nil {
		return Result{}, ErrLeadNotFound
	}

	if lead.CheckoutSessionID != "" && lead.CheckoutSessionID != evt.SessionID {
		c.recordWarn(ctx, "session_id_mismatch", &leadID, map[string]string{
			"expected": lead.CheckoutSessionID, "got": evt.SessionID,
		})
		return Result{}, ErrSessionMismatch
	}

	if duplicate, err := c.processed.CheckOnly(ctx, idempotencyProvider, evt.EventID); err != nil {
		return Result{}, fmt.Errorf("payments: duplicate check: %w", err)
	} else if duplicate {
		return Result{Outcome: OutcomeDuplicate, LeadID: leadID}, nil
	}

	now := c.clock.Now()
	matched, updated, err := c.leads.MarkDepositPaid(ctx, leadID, leads.StatusAwaitingDeposit, evt.PaymentIntentID, now)
	if err != nil {
		return Result{}, fmt.Errorf("payments: mark deposit paid: %w", err)
	}
	if !matched {
		matched, updated, err = c.reconcileStatusMismatch(ctx, artistID, leadID, evt, now)
		if err != nil {
			return Result{}, err
		}
		if !matched {
			return Result{}, ErrStatusMismatch
		}
	}

	if _, err := c.leads.Transition(ctx, leadID, leads.StatusDepositPaid, leads.StatusBookingPending, ""); err != nil {
		c.logger.Error("payments: booking_pending transition failed", "error", err, "lead_id", leadID)
	}

	c.runPostCommitSideEffects(ctx, updated)

	if _, err := c.processed.MarkProcessed(ctx, idempotencyProvider, evt.EventID); err != nil {
		c.logger.Error("payments: failed to record processed event, degrading to at-least-once", "error", err, "event_id", evt.EventID)
	}

	return Result{Outcome: OutcomeConfirmed, LeadID: leadID}, nil
}

// reconcileStatusMismatch handles §4.8 step 6: if the lead is already
// DEPOSIT_PAID this is a legitimate duplicate-success; if it moved to
// NEEDS_ARTIST_REPLY during handover, retry the conditional update from
// there; anything else is a genuine failure.
func (c *Correlator) reconcileStatusMismatch(ctx context.Context, artistID string, leadID uuid.UUID, evt CheckoutCompletedEvent, now time.Time) (bool, *leads.Lead, error) {
	current, err := c.leads.GetByID(ctx, artistID, leadID)
	if err != nil {
		return false, nil, fmt.Errorf("payments: reconcile fetch: %w", err)
	}
	if current.Status == leads.StatusDepositPaid {
		return true, current, nil
	}
	if current.Status == leads.StatusNeedsArtistReply {
		matched, updated, err := c.leads.MarkDepositPaid(ctx, leadID, leads.StatusNeedsArtistReply, evt.PaymentIntentID, now)
		if err != nil {
			return false, nil, fmt.Errorf("payments: retry mark deposit paid: %w", err)
		}
		return matched, updated, nil
	}
	c.recordWarn(ctx, "webhook_failure", &leadID, map[string]string{"reason": "status_mismatch", "status": string(current.Status)})
	if c.operator != nil {
		_ = c.operator.NotifyOperator(ctx, leadID, "payment_status_mismatch", map[string]string{"status": string(current.Status)})
	}
	return false, nil, nil
}

// runPostCommitSideEffects fires the three post-commit actions in
// §4.8 step 8. Mirroring is genuinely asynchronous (best-effort,
// detached from the request context); the confirmation send and
// operator notification are synchronous but their failure does not
// unwind the already-committed transition.
func (c *Correlator) runPostCommitSideEffects(ctx context.Context, lead *leads.Lead) {
	if c.mirror != nil {
		snapshot := ports.LeadSnapshot{
			LeadID:             lead.ID,
			Phone:              lead.Phone,
			Status:             lead.Status,
			EstimatedCategory:  string(lead.EstimatedCategory),
			DepositAmountPence: lead.DepositAmountPence,
			CorrelationID:      lead.ID.String(),
		}
		go func() {
			mirrorCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.mirror.Mirror(mirrorCtx, snapshot); err != nil {
				c.logger.Error("payments: mirror failed", "error", err, "lead_id", lead.ID)
			}
		}()
	}

	if c.notifier != nil {
		decision, err := c.decideWindow(ctx, lead)
		if err != nil {
			c.logger.Error("payments: arbitrate confirmation send failed", "error", err, "lead_id", lead.ID)
		} else if decision != window.DecisionOptedOut && decision != window.DecisionBlockedNoTemplate {
			if _, err := c.notifier.Send(ctx, ports.OutboundMessage{To: lead.Phone, TemplateName: "deposit_received"}); err != nil {
				c.logger.Error("payments: confirmation send failed", "error", err, "lead_id", lead.ID)
			}
		}
	}

	if c.operator != nil {
		if err := c.operator.NotifyOperator(ctx, lead.ID, "deposit_paid", map[string]string{"phone": lead.Phone}); err != nil {
			c.logger.Error("payments: operator notify failed", "error", err, "lead_id", lead.ID)
		}
	}
}

func (c *Correlator) decideWindow(ctx context.Context, lead *leads.Lead) (window.Decision, error) {
	if c.arbiter == nil {
		return window.DecisionOpen, nil
	}
	return c.arbiter.Arbitrate(ctx, lead, "deposit_received", &window.Template{Name: "deposit_received"})
}

func (c *Correlator) recordWarn(ctx context.Context, eventType string, leadID *uuid.UUID, payload map[string]string) {
	if c.events == nil {
		return
	}
	if err := c.events.Warn(ctx, eventType, leadID, payload); err != nil {
		c.logger.Error("payments: failed to record system event", "error", err, "event_type", eventType)
	}
}
