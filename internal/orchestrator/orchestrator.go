// Package orchestrator implements the conversation orchestrator (C7):
// it routes inbound text by the lead's current status, invokes the
// parse/repair engine for the qualifying interview, and composes each
// outbound turn through the Window Arbiter and Outbox. Grounded on the
// teacher's status-dispatch shape in internal/conversation/orchestrator.go,
// generalized from its queue-backed async dispatch to a synchronous
// per-request handler bounded by the caller's own transaction.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/handover"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/parsing"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/tour"
	"github.com/inkline/bookingbot/pkg/logging"
)

// OutboxEnqueuer is the subset of events.OutboxStore the orchestrator
// needs: every outbound turn commits to the outbox before any delivery
// attempt (spec invariant 6a).
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, orgID string, leadID *uuid.UUID, channel, eventType string, payload any) (uuid.UUID, error)
}

// outboundPayload is what lands in the outbox row for a chat send.
type outboundPayload struct {
	To             string            `json:"to"`
	Body           string            `json:"body,omitempty"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`
}

// Question sequence walked during QUALIFYING. Fixed per lead's
// artist/default namespace; order is significant (§4.7 step 1, GLOSSARY
// "Step").
const (
	QuestionIdea             = "idea"
	QuestionCoverup          = "coverup"
	QuestionPlacement        = "placement"
	QuestionDimensions       = "dimensions"
	QuestionComplexity       = "complexity"
	QuestionBudget           = "budget"
	QuestionLocation         = "location"
	QuestionStyle            = "style"
	QuestionInstagramHandle  = "instagram_handle"
	QuestionReferenceImages  = "reference_images"
)

var questionSequence = []string{
	QuestionIdea, QuestionCoverup, QuestionPlacement, QuestionDimensions,
	QuestionComplexity, QuestionBudget, QuestionLocation, QuestionStyle,
	QuestionInstagramHandle, QuestionReferenceImages,
}

// holdReplyCadence is the minimum gap between holding replies sent
// while a lead sits in NEEDS_ARTIST_REPLY (§4.7 NEEDS_ARTIST_REPLY row).
const holdReplyCadence = 6 * time.Hour

var (
	restartKeywords      = regexp.MustCompile(`(?i)^\s*(start|resume|continue|yes)\s*$`)
	optOutKeywords       = regexp.MustCompile(`(?i)^\s*(stop|unsubscribe|quit|cancel)\s*$`)
	humanKeywords        = regexp.MustCompile(`(?i)\b(talk to a human|speak to (a|someone)|real person|human please|speak with (a|the) artist)\b`)
	refundKeywords       = regexp.MustCompile(`(?i)\b(refund|money back|want my money)\b`)
	deleteDataKeywords   = regexp.MustCompile(`(?i)\b(delete my data|delete my information|erase my data|gdpr)\b`)
	continueKeyword      = regexp.MustCompile(`(?i)^\s*continue\s*$`)
	tourAcceptKeywords   = regexp.MustCompile(`(?i)^\s*(yes|accept|ok|okay)\s*$`)
	tourDeclineKeywords  = regexp.MustCompile(`(?i)^\s*(no|decline)\s*$`)
	coverupKeywords      = regexp.MustCompile(`(?i)\b(cover[\s-]?up|covering (an|my) old tattoo)\b`)
	hesitationKeywords   = regexp.MustCompile(`(?i)\b(not sure|i don'?t know|maybe|still thinking|undecided)\b`)
	priceNegotiation     = regexp.MustCompile(`(?i)\b(discount|lower price|can you do it for less|best price|cheaper)\b`)
	availabilityProbing  = regexp.MustCompile(`(?i)\b(are you free|what'?s your availability|when can you fit me in|any openings)\b`)
	complexity3Keyword   = regexp.MustCompile(`(?i)\b(complexity\s*3|extremely detailed|highly detailed|very intricate)\b`)
)

const longQuestionThreshold = 280

// Orchestrator drives handle_inbound (§4.7).
type Orchestrator struct {
	repo     leads.Repository
	arbiter  *window.Arbiter
	outbox   OutboxEnqueuer
	copy     ports.CopyRenderer
	operator ports.OperatorNotifier
	tour     *tour.Schedule
	clock    clockid.Clock
	logger   *logging.Logger
}

func New(
	repo leads.Repository,
	arbiter *window.Arbiter,
	outbox OutboxEnqueuer,
	copyRenderer ports.CopyRenderer,
	operator ports.OperatorNotifier,
	tourSchedule *tour.Schedule,
	clock clockid.Clock,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	if tourSchedule == nil {
		tourSchedule = tour.DefaultSchedule(clock.Now())
	}
	return &Orchestrator{repo: repo, arbiter: arbiter, outbox: outbox, copy: copyRenderer, operator: operator, tour: tourSchedule, clock: clock, logger: logger}
}

// HandleInbound dispatches an inbound message by the lead's current
// status. Callers are responsible for the surrounding idempotency check
// (C2) against (provider, external_id) before invoking this method.
func (o *Orchestrator) HandleInbound(ctx context.Context, lead *leads.Lead, text string, hasMedia bool) (*leads.Lead, error) {
	trimmed := strings.TrimSpace(text)

	// Opt-out wins: short-circuit every status before status-specific
	// dispatch runs, per the "opt-out wins" design note (§9). OPTOUT
	// itself and statuses with no legal OPTOUT target fall through to
	// their normal dispatch below.
	if lead.Status != leads.StatusOptOut && optOutKeywords.MatchString(trimmed) && isOptOutTransitionable(lead.Status) {
		updated, err := o.repo.Transition(ctx, lead.ID, lead.Status, leads.StatusOptOut, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: opt-out: %w", err)
		}
		if err := o.send(ctx, updated, "opted_out_ack", nil); err != nil {
			o.logger.Error("orchestrator: opt-out ack failed", "error", err, "lead_id", updated.ID)
		}
		return updated, nil
	}

	switch lead.Status {
	case leads.StatusOptOut:
		return o.handleOptOut(ctx, lead, trimmed, hasMedia)
	case leads.StatusAbandoned, leads.StatusStale:
		return o.handleRestartFromDormant(ctx, lead, trimmed, hasMedia)
	case leads.StatusNew:
		return o.handleNew(ctx, lead)
	case leads.StatusQualifying:
		return o.handleQualifying(ctx, lead, trimmed, hasMedia)
	case leads.StatusPendingApproval:
		return o.ackOnly(ctx, lead, "status_pending_approval")
	case leads.StatusAwaitingDeposit:
		return o.ackOnly(ctx, lead, "status_awaiting_deposit")
	case leads.StatusDepositPaid:
		return o.ackOnly(ctx, lead, "status_deposit_paid")
	case leads.StatusBookingPending:
		return o.handleBookingPending(ctx, lead, trimmed)
	case leads.StatusCollectingTimeWindows:
		return o.handleCollectingTimeWindows(ctx, lead, trimmed)
	case leads.StatusTourConversionOffered:
		return o.handleTourConversionOffered(ctx, lead, trimmed)
	case leads.StatusNeedsArtistReply:
		return o.handleNeedsArtistReply(ctx, lead, trimmed)
	case leads.StatusBooked, leads.StatusRejected, leads.StatusNeedsFollowUp, leads.StatusNeedsManualFollowUp:
		return o.ackOnly(ctx, lead, "static_ack_"+strings.ToLower(string(lead.Status)))
	default:
		return o.recoverUnknownStatus(ctx, lead)
	}
}

// handleOptOut: only restart keywords transition back to NEW, then
// re-enter handle_inbound; anything else is acknowledged and dropped.
func (o *Orchestrator) handleOptOut(ctx context.Context, lead *leads.Lead, text string, hasMedia bool) (*leads.Lead, error) {
	if !restartKeywords.MatchString(text) {
		return lead, nil
	}
	_, updated, err := o.repo.UpdateStatusIfMatches(ctx, lead.ID, leads.StatusOptOut, leads.StatusNew)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: restart from optout: %w", err)
	}
	return o.HandleInbound(ctx, updated, text, hasMedia)
}

// handleRestartFromDormant: ABANDONED | STALE restart on any message.
func (o *Orchestrator) handleRestartFromDormant(ctx context.Context, lead *leads.Lead, text string, hasMedia bool) (*leads.Lead, error) {
	now := o.clock.Now()
	if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{LastClientMessageAt: &now}); err != nil {
		return nil, fmt.Errorf("orchestrator: touch last_client_message_at: %w", err)
	}
	updated, err := o.repo.Transition(ctx, lead.ID, lead.Status, leads.StatusNew, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: restart to new: %w", err)
	}
	return o.HandleInbound(ctx, updated, text, hasMedia)
}

// handleNew: NEW -> QUALIFYING, step 0, welcome + first question.
func (o *Orchestrator) handleNew(ctx context.Context, lead *leads.Lead) (*leads.Lead, error) {
	updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusNew, leads.StatusQualifying, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: new to qualifying: %w", err)
	}
	zero := 0
	if err := o.repo.UpdateFields(ctx, updated.ID, leads.Fields{CurrentStep: &zero}); err != nil {
		return nil, fmt.Errorf("orchestrator: set current_step: %w", err)
	}
	updated.CurrentStep = 0
	if err := o.send(ctx, updated, "welcome_and_"+QuestionIdea, nil); err != nil {
		o.logger.Error("orchestrator: welcome send failed", "error", err, "lead_id", updated.ID)
	}
	return updated, nil
}

// ackOnly sends a static acknowledgment with no state mutation.
func (o *Orchestrator) ackOnly(ctx context.Context, lead *leads.Lead, messageKey string) (*leads.Lead, error) {
	if err := o.send(ctx, lead, messageKey, nil); err != nil {
		o.logger.Error("orchestrator: ack send failed", "error", err, "lead_id", lead.ID, "message_key", messageKey)
	}
	return lead, nil
}

// recoverUnknownStatus resets an unrecognized status straight to NEW,
// bypassing the legal-transition table, per §4.7's recovery clause.
func (o *Orchestrator) recoverUnknownStatus(ctx context.Context, lead *leads.Lead) (*leads.Lead, error) {
	_, updated, err := o.repo.UpdateStatusIfMatches(ctx, lead.ID, lead.Status, leads.StatusNew)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: recover unknown status: %w", err)
	}
	return updated, nil
}

// handleBookingPending: attempt slot selection when slots are on offer.
func (o *Orchestrator) handleBookingPending(ctx context.Context, lead *leads.Lead, text string) (*leads.Lead, error) {
	if len(lead.SuggestedSlots) == 0 {
		return lead, nil
	}
	idx := parsing.ParseSlotSelection(text, len(lead.SuggestedSlots))
	if idx == nil {
		return o.repairOrHandover(ctx, lead, "slot", text)
	}
	slot := lead.SuggestedSlots[*idx-1]
	if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{SelectedSlotStartAt: &slot.Start, SelectedSlotEndAt: &slot.End}); err != nil {
		return nil, fmt.Errorf("orchestrator: store selected slot: %w", err)
	}
	_ = o.repo.ResetParseFailure(ctx, lead.ID, "slot")
	lead.SelectedSlotStartAt, lead.SelectedSlotEndAt = &slot.Start, &slot.End
	if err := o.send(ctx, lead, "slot_confirmed", nil); err != nil {
		o.logger.Error("orchestrator: slot confirmation send failed", "error", err, "lead_id", lead.ID)
	}
	if o.operator != nil {
		_ = o.operator.NotifyOperator(ctx, lead.ID, "slot_selected", map[string]string{"phone": lead.Phone})
	}
	return lead, nil
}

// handleCollectingTimeWindows: append free-form windows; transition
// after two distinct answers have been collected.
func (o *Orchestrator) handleCollectingTimeWindows(ctx context.Context, lead *leads.Lead, text string) (*leads.Lead, error) {
	if _, err := o.repo.AppendAnswer(ctx, lead.ID, "preferred_time_windows", text); err != nil {
		return nil, fmt.Errorf("orchestrator: append time window: %w", err)
	}
	answers, err := o.repo.Answers(ctx, lead.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list answers: %w", err)
	}
	count := 0
	for _, a := range answers {
		if a.QuestionKey == "preferred_time_windows" {
			count++
		}
	}
	if count < 2 {
		if err := o.send(ctx, lead, "collecting_time_window_ack", nil); err != nil {
			o.logger.Error("orchestrator: time window ack failed", "error", err, "lead_id", lead.ID)
		}
		return lead, nil
	}
	updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusCollectingTimeWindows, leads.StatusNeedsArtistReply, "collected preferred time windows")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: time windows to handover: %w", err)
	}
	if o.operator != nil {
		_ = o.operator.NotifyOperator(ctx, updated.ID, "time_windows_collected", map[string]string{"phone": updated.Phone})
	}
	return updated, nil
}

// handleTourConversionOffered: accept/decline the offered tour city.
func (o *Orchestrator) handleTourConversionOffered(ctx context.Context, lead *leads.Lead, text string) (*leads.Lead, error) {
	switch {
	case tourAcceptKeywords.MatchString(text):
		updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusTourConversionOffered, leads.StatusPendingApproval, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: tour accept: %w", err)
		}
		if err := o.send(ctx, updated, "tour_accepted", nil); err != nil {
			o.logger.Error("orchestrator: tour accepted send failed", "error", err, "lead_id", updated.ID)
		}
		return updated, nil
	case tourDeclineKeywords.MatchString(text):
		updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusTourConversionOffered, leads.StatusWaitlisted, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: tour decline: %w", err)
		}
		if err := o.send(ctx, updated, "waitlisted", nil); err != nil {
			o.logger.Error("orchestrator: waitlisted send failed", "error", err, "lead_id", updated.ID)
		}
		return updated, nil
	default:
		if err := o.send(ctx, lead, "tour_offer_reask", nil); err != nil {
			o.logger.Error("orchestrator: tour reask failed", "error", err, "lead_id", lead.ID)
		}
		return lead, nil
	}
}

// handleNeedsArtistReply: bot is paused. CONTINUE resumes at the
// current step; anything else gets a rate-limited holding reply.
func (o *Orchestrator) handleNeedsArtistReply(ctx context.Context, lead *leads.Lead, text string) (*leads.Lead, error) {
	if continueKeyword.MatchString(text) {
		updated, err := o.repo.Transition(ctx, lead.ID, leads.StatusNeedsArtistReply, leads.StatusQualifying, "")
		if err != nil {
			return nil, fmt.Errorf("orchestrator: resume from handover: %w", err)
		}
		return updated, nil
	}
	now := o.clock.Now()
	if lead.HandoverLastHoldReplyAt != nil && now.Sub(clockid.AsUTC(*lead.HandoverLastHoldReplyAt)) < holdReplyCadence {
		return lead, nil
	}
	if err := o.send(ctx, lead, "handover_holding_reply", nil); err != nil {
		o.logger.Error("orchestrator: holding reply failed", "error", err, "lead_id", lead.ID)
		return lead, nil
	}
	if err := o.repo.UpdateFields(ctx, lead.ID, leads.Fields{HandoverLastHoldReplyAt: &now}); err != nil {
		return nil, fmt.Errorf("orchestrator: stamp hold reply: %w", err)
	}
	lead.HandoverLastHoldReplyAt = &now
	return lead, nil
}

// isOptOutTransitionable reports whether STOP-class keywords can act
// on the lead's current status (the legal-transition table names an
// explicit OPTOUT target from every active status but NEW/ABANDONED/STALE,
// which fall through to their own dispatch branches instead).
func isOptOutTransitionable(status leads.Status) bool {
	return leads.IsLegalTransition(status, leads.StatusOptOut)
}

func (o *Orchestrator) handoverTo(ctx context.Context, lead *leads.Lead, reason string) (*leads.Lead, error) {
	updated, err := o.repo.Transition(ctx, lead.ID, lead.Status, leads.StatusNeedsArtistReply, reason)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: handover: %w", err)
	}
	if o.operator != nil {
		answers, err := o.repo.Answers(ctx, updated.ID)
		if err != nil {
			o.logger.Error("orchestrator: handover packet answers lookup failed", "error", err, "lead_id", updated.ID)
		}
		packet := handover.BuildPacket(updated, answers)
		_ = o.operator.NotifyOperator(ctx, updated.ID, "handover", packet.Flatten())
	}
	return updated, nil
}

func (o *Orchestrator) send(ctx context.Context, lead *leads.Lead, messageKey string, params map[string]string) error {
	decision, err := o.arbiter.Arbitrate(ctx, lead, messageKey, &window.Template{Name: messageKey, Params: params})
	if err != nil {
		return fmt.Errorf("orchestrator: arbitrate: %w", err)
	}
	payload, ok := o.composePayload(lead, messageKey, params, decision)
	if !ok {
		return nil
	}
	if _, err := o.outbox.Enqueue(ctx, lead.ArtistID, &lead.ID, "whatsapp", messageKey, payload); err != nil {
		return fmt.Errorf("orchestrator: enqueue: %w", err)
	}
	return nil
}

func (o *Orchestrator) composePayload(lead *leads.Lead, messageKey string, params map[string]string, decision window.Decision) (outboundPayload, bool) {
	switch decision {
	case window.DecisionOptedOut, window.DecisionBlockedNoTemplate:
		return outboundPayload{}, false
	case window.DecisionClosedTemplateUsed:
		return outboundPayload{To: lead.Phone, TemplateName: messageKey, TemplateParams: params}, true
	default:
		body := messageKey
		if o.copy != nil {
			if text, err := o.copy.Render(messageKey, lead, params); err == nil {
				body = text
			} else {
				o.logger.Error("orchestrator: render failed", "error", err, "message_key", messageKey)
			}
		}
		return outboundPayload{To: lead.Phone, Body: body, TemplateParams: params}, true
	}
}
