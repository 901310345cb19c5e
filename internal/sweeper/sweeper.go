// Package sweeper implements the periodic reminder/abandonment driver
// (C9): a scan over leads matching time-based predicates that sends
// reminders or performs status transitions. Grounded on the teacher's
// rebooking.Worker.ProcessDue loop, generalized from a single
// rebooking predicate to the full table in §4.9.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/messaging/window"
	"github.com/inkline/bookingbot/internal/ports"
	"github.com/inkline/bookingbot/internal/systemevent"
	"github.com/inkline/bookingbot/pkg/logging"
)

// IdempotencyChecker is the subset of events.ProcessedStore the sweeper
// needs: every reminder path MUST consult it first (§4.9).
type IdempotencyChecker interface {
	CheckAndRecord(ctx context.Context, provider, eventID string) (isDuplicate bool, err error)
}

const idempotencyProvider = "sweeper"

// Sweeper scans leads and applies the §4.9 predicate table.
type Sweeper struct {
	repo      leads.Repository
	idem      IdempotencyChecker
	arbiter   *window.Arbiter
	notifier  ports.Notifier
	operator  ports.OperatorNotifier
	recorder  systemevent.Recorder
	clock     clockid.Clock
	logger    *logging.Logger
}

func New(
	repo leads.Repository,
	idem IdempotencyChecker,
	arbiter *window.Arbiter,
	notifier ports.Notifier,
	operator ports.OperatorNotifier,
	recorder systemevent.Recorder,
	clock clockid.Clock,
	logger *logging.Logger,
) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		repo: repo, idem: idem, arbiter: arbiter, notifier: notifier,
		operator: operator, recorder: recorder, clock: clock, logger: logger,
	}
}

// Run executes one sweep pass across all predicates and returns the
// number of leads that had an action applied.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	processed := 0
	steps := []func(ctx context.Context) (int, error){
		s.sweepQualifyingReminder1,
		s.sweepQualifyingReminder2,
		s.sweepQualifyingAbandon,
		s.sweepPendingApprovalStale,
		s.sweepAwaitingDepositExpired,
		s.sweepBookingPendingFollowUp,
		s.sweepBookingReminders,
	}
	for _, step := range steps {
		n, err := step(ctx)
		if err != nil {
			return processed, err
		}
		processed += n
	}
	return processed, nil
}

func (s *Sweeper) now() time.Time {
	return s.clock.Now()
}

// sweepQualifyingReminder1: QUALIFYING, >=12h since last_client_message_at, reminder-1 unsent.
func (s *Sweeper) sweepQualifyingReminder1(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusQualifying)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list qualifying: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if lead.ReminderQualifying1SentAt != nil || !elapsedAtLeast(lead.LastClientMessageAt, s.now(), 12*time.Hour) {
			continue
		}
		key := fmt.Sprintf("reminder_qualifying_%s_1_12h", lead.ID)
		if ok := s.dispatchReminder(ctx, lead, key, "reminder_qualifying_1"); ok {
			at := s.now()
			if err := s.repo.UpdateFields(ctx, lead.ID, leads.Fields{ReminderQualifying1SentAt: &at}); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// sweepQualifyingReminder2: QUALIFYING, >=36h, reminder-2 unsent.
func (s *Sweeper) sweepQualifyingReminder2(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusQualifying)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list qualifying: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if lead.ReminderQualifying2SentAt != nil || !elapsedAtLeast(lead.LastClientMessageAt, s.now(), 36*time.Hour) {
			continue
		}
		key := fmt.Sprintf("reminder_qualifying_%s_2_36h", lead.ID)
		if ok := s.dispatchReminder(ctx, lead, key, "reminder_qualifying_2"); ok {
			at := s.now()
			if err := s.repo.UpdateFields(ctx, lead.ID, leads.Fields{ReminderQualifying2SentAt: &at}); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// sweepQualifyingAbandon: QUALIFYING, >=48h → ABANDONED.
func (s *Sweeper) sweepQualifyingAbandon(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusQualifying)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list qualifying: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if !elapsedAtLeast(lead.LastClientMessageAt, s.now(), 48*time.Hour) {
			continue
		}
		if _, err := s.repo.Transition(ctx, lead.ID, leads.StatusQualifying, leads.StatusAbandoned, ""); err != nil {
			s.logger.Error("sweeper: abandon transition failed", "error", err, "lead_id", lead.ID)
			continue
		}
		count++
	}
	return count, nil
}

// sweepPendingApprovalStale: PENDING_APPROVAL, >=3d since pending_approval_at → STALE.
func (s *Sweeper) sweepPendingApprovalStale(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusPendingApproval)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list pending approval: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if !elapsedAtLeast(lead.PendingApprovalAt, s.now(), 3*24*time.Hour) {
			continue
		}
		if _, err := s.repo.Transition(ctx, lead.ID, leads.StatusPendingApproval, leads.StatusStale, ""); err != nil {
			s.logger.Error("sweeper: stale transition failed", "error", err, "lead_id", lead.ID)
			continue
		}
		count++
	}
	return count, nil
}

// sweepAwaitingDepositExpired: AWAITING_DEPOSIT, deposit_sent_at+24h elapsed, unpaid → DEPOSIT_EXPIRED.
func (s *Sweeper) sweepAwaitingDepositExpired(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusAwaitingDeposit)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list awaiting deposit: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if lead.DepositPaidAt != nil || !elapsedAtLeast(lead.DepositSentAt, s.now(), 24*time.Hour) {
			continue
		}
		if _, err := s.repo.Transition(ctx, lead.ID, leads.StatusAwaitingDeposit, leads.StatusDepositExpired, ""); err != nil {
			s.logger.Error("sweeper: deposit expiry transition failed", "error", err, "lead_id", lead.ID)
			continue
		}
		count++
	}
	return count, nil
}

// sweepBookingPendingFollowUp: BOOKING_PENDING, booking_pending_at+72h elapsed → NEEDS_FOLLOW_UP, notify operator.
func (s *Sweeper) sweepBookingPendingFollowUp(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusBookingPending)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list booking pending: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		if !elapsedAtLeast(lead.BookingPendingAt, s.now(), 72*time.Hour) {
			continue
		}
		if _, err := s.repo.Transition(ctx, lead.ID, leads.StatusBookingPending, leads.StatusNeedsFollowUp, "booking slot not confirmed within 72h"); err != nil {
			s.logger.Error("sweeper: booking follow-up transition failed", "error", err, "lead_id", lead.ID)
			continue
		}
		if s.operator != nil {
			_ = s.operator.NotifyOperator(ctx, lead.ID, "booking_pending_follow_up", map[string]string{"phone": lead.Phone})
		}
		count++
	}
	return count, nil
}

// sweepBookingReminders: DEPOSIT_PAID|BOOKING_LINK_SENT, 24h/72h since booking link send.
func (s *Sweeper) sweepBookingReminders(ctx context.Context) (int, error) {
	candidates, err := s.repo.ListByStatuses(ctx, leads.StatusDepositPaid, leads.StatusBookingLinkSent)
	if err != nil {
		return 0, fmt.Errorf("sweeper: list deposit paid: %w", err)
	}
	count := 0
	for _, lead := range candidates {
		sentAt := lead.DepositPaidAt
		if lead.ReminderBooking24hSentAt == nil && elapsedAtLeast(sentAt, s.now(), 24*time.Hour) {
			key := fmt.Sprintf("reminder_booking_%s_24h", lead.ID)
			if s.dispatchReminder(ctx, lead, key, "reminder_booking_24h") {
				at := s.now()
				if err := s.repo.UpdateFields(ctx, lead.ID, leads.Fields{ReminderBooking24hSentAt: &at}); err != nil {
					return count, err
				}
				count++
			}
			continue
		}
		if lead.ReminderBooking72hSentAt == nil && elapsedAtLeast(sentAt, s.now(), 72*time.Hour) {
			key := fmt.Sprintf("reminder_booking_%s_72h", lead.ID)
			if s.dispatchReminder(ctx, lead, key, "reminder_booking_72h") {
				at := s.now()
				if err := s.repo.UpdateFields(ctx, lead.ID, leads.Fields{ReminderBooking72hSentAt: &at}); err != nil {
					return count, err
				}
				count++
			}
		}
	}
	return count, nil
}

// dispatchReminder checks idempotency, arbitrates the send window, and
// delivers via the notifier. It returns true only if a send actually
// happened (duplicates and arbiter-blocked sends return false so the
// caller does not stamp the reminder as sent).
func (s *Sweeper) dispatchReminder(ctx context.Context, lead *leads.Lead, idempotencyKey, intent string) bool {
	duplicate, err := s.idem.CheckAndRecord(ctx, idempotencyProvider, idempotencyKey)
	if err != nil {
		s.logger.Error("sweeper: idempotency check failed", "error", err, "key", idempotencyKey)
		return false
	}
	if duplicate {
		return false
	}
	if lead.Status == leads.StatusOptOut {
		return false
	}
	if s.arbiter != nil {
		decision, err := s.arbiter.Arbitrate(ctx, lead, intent, &window.Template{Name: intent})
		if err != nil {
			s.logger.Error("sweeper: arbitrate failed", "error", err, "lead_id", lead.ID)
			return false
		}
		if decision == window.DecisionOptedOut || decision == window.DecisionBlockedNoTemplate {
			return false
		}
	}
	if s.notifier == nil {
		return true
	}
	if _, err := s.notifier.Send(ctx, ports.OutboundMessage{To: lead.Phone, TemplateName: intent}); err != nil {
		s.logger.Error("sweeper: send failed", "error", err, "lead_id", lead.ID, "intent", intent)
		return false
	}
	return true
}

func elapsedAtLeast(since *time.Time, now time.Time, d time.Duration) bool {
	if since == nil {
		return false
	}
	return now.Sub(clockid.AsUTC(*since)) >= d
}
