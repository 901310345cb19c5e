package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fields is a partial-update descriptor: only non-nil members are
// written by UpdateFields. Status is deliberately excluded — status
// mutates only through Transition, UpdateStatusIfMatches, or
// MarkDepositPaid, per invariant 1 in spec.md §3.
type Fields struct {
	CurrentStep *int

	EstimatedCategory           *EstimatedCategory
	EstimatedDays               *float64
	EstimatedDepositAmountPence *int64
	DepositAmountPence          *int64 // not written by UpdateFields; the amount is set only through LockDepositAmount
	DepositRuleVersion          *string

	LocationCity         *string
	LocationCountry      *string
	RegionBucket         *RegionBucket
	MinBudgetAmountPence *int64
	BelowMinBudget       *bool

	CheckoutSessionID        *string
	PaymentIntentID          *string
	DepositCheckoutExpiresAt *time.Time
	DepositSentAt            *time.Time

	SuggestedSlots      *[]Slot
	SelectedSlotStartAt *time.Time
	SelectedSlotEndAt   *time.Time
	CalendarEventID     *string

	NeedsArtistReplyNotifiedAt *time.Time
	NeedsFollowUpNotifiedAt    *time.Time
	HandoverLastHoldReplyAt    *time.Time
	HandoverReason             *string

	LastClientMessageAt *time.Time
	LastBotMessageAt    *time.Time

	ReminderQualifying1SentAt *time.Time
	ReminderQualifying2SentAt *time.Time
	ReminderBooking24hSentAt  *time.Time
	ReminderBooking72hSentAt  *time.Time
}

// Repository is the persistence contract for the Lead aggregate and its
// state-machine operations (C6).
type Repository interface {
	Create(ctx context.Context, artistID, phone string) (*Lead, error)
	GetByID(ctx context.Context, artistID string, id uuid.UUID) (*Lead, error)
	// GetByIDAnyArtist looks up a lead without the artist_id scope
	// check, for callers whose own authorization already binds them to
	// a specific lead: an action-token confirmation link, where the token
	// itself (not an artist-scoped session) proves access, and the admin
	// token-issue endpoint behind admin auth.
	GetByIDAnyArtist(ctx context.Context, id uuid.UUID) (*Lead, error)
	GetOrCreateByPhone(ctx context.Context, artistID, phone string) (*Lead, error)
	ListByStatuses(ctx context.Context, statuses ...Status) ([]*Lead, error)

	Answers(ctx context.Context, leadID uuid.UUID) ([]LeadAnswer, error)
	AppendAnswer(ctx context.Context, leadID uuid.UUID, questionKey, text string) (LeadAnswer, error)
	IncrementParseFailure(ctx context.Context, leadID uuid.UUID, field string) (int, error)
	ResetParseFailure(ctx context.Context, leadID uuid.UUID, field string) error

	// Transition applies a row-locked, legal-table-checked status change.
	// See §4.6 steps 1-5.
	Transition(ctx context.Context, leadID uuid.UUID, from, to Status, reason string) (*Lead, error)

	// UpdateStatusIfMatches is the optimistic-lock conditional UPDATE used
	// by admin operations and the payment correlator.
	UpdateStatusIfMatches(ctx context.Context, leadID uuid.UUID, expected, to Status) (bool, *Lead, error)

	// MarkDepositPaid is UpdateStatusIfMatches specialised for the payment
	// correlator's step 5/6: it additionally stamps deposit_paid_at and
	// payment_intent_id in the same atomic UPDATE.
	MarkDepositPaid(ctx context.Context, leadID uuid.UUID, expectedFrom Status, paymentIntentID string, paidAt time.Time) (bool, *Lead, error)

	// AdvanceStepIfAt is the optimistic "winner sends" step-advancement primitive.
	AdvanceStepIfAt(ctx context.Context, leadID uuid.UUID, expectedStep int) (bool, error)

	// LockDepositAmount sets deposit_amount_pence and
	// deposit_amount_locked_at only if not already locked (invariant 2).
	LockDepositAmount(ctx context.Context, leadID uuid.UUID, amountPence int64) error

	UpdateFields(ctx context.Context, leadID uuid.UUID, f Fields) error
}

// InMemoryRepository is an in-process Repository used by orchestrator,
// sweeper, and payment-correlator unit tests that don't need a database.
type InMemoryRepository struct {
	mu      sync.Mutex
	leads   map[uuid.UUID]*Lead
	answers map[uuid.UUID][]LeadAnswer
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[uuid.UUID]*Lead),
		answers: make(map[uuid.UUID][]LeadAnswer),
	}
}

// Seed overwrites (or inserts) a lead by id, for tests that need to set
// up status/timestamp combinations Transition would otherwise reject.
func (r *InMemoryRepository) Seed(lead *Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = cloneLead(lead)
}

func (r *InMemoryRepository) Create(ctx context.Context, artistID, phone string) (*Lead, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	if artistID == "" {
		return nil, ErrMissingArtistID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lead := &Lead{
		ID:                 uuid.New(),
		ArtistID:           artistID,
		Phone:              phone,
		CreatedAt:          time.Now().UTC(),
		Status:             StatusNew,
		ParseFailureCounts: map[string]int{},
	}
	r.leads[lead.ID] = lead
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, artistID string, id uuid.UUID) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok || lead.ArtistID != artistID {
		return nil, ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetByIDAnyArtist(ctx context.Context, id uuid.UUID) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) GetOrCreateByPhone(ctx context.Context, artistID, phone string) (*Lead, error) {
	r.mu.Lock()
	var latest *Lead
	for _, l := range r.leads {
		if l.ArtistID == artistID && l.Phone == phone {
			if latest == nil || l.CreatedAt.After(latest.CreatedAt) {
				latest = l
			}
		}
	}
	r.mu.Unlock()
	if latest != nil {
		return cloneLead(latest), nil
	}
	return r.Create(ctx, artistID, phone)
}

func (r *InMemoryRepository) ListByStatuses(ctx context.Context, statuses ...Status) ([]*Lead, error) {
	want := set(statuses...)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Lead
	for _, l := range r.leads {
		if want[l.Status] {
			out = append(out, cloneLead(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) Answers(ctx context.Context, leadID uuid.UUID) ([]LeadAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]LeadAnswer(nil), r.answers[leadID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) AppendAnswer(ctx context.Context, leadID uuid.UUID, questionKey, text string) (LeadAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ans := LeadAnswer{ID: uuid.New(), LeadID: leadID, QuestionKey: questionKey, Text: text, CreatedAt: time.Now().UTC()}
	r.answers[leadID] = append(r.answers[leadID], ans)
	return ans, nil
}

func (r *InMemoryRepository) IncrementParseFailure(ctx context.Context, leadID uuid.UUID, field string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return 0, ErrLeadNotFound
	}
	if lead.ParseFailureCounts == nil {
		lead.ParseFailureCounts = map[string]int{}
	}
	lead.ParseFailureCounts[field]++
	return lead.ParseFailureCounts[field], nil
}

func (r *InMemoryRepository) ResetParseFailure(ctx context.Context, leadID uuid.UUID, field string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	if lead.ParseFailureCounts != nil {
		lead.ParseFailureCounts[field] = 0
	}
	return nil
}

func (r *InMemoryRepository) Transition(ctx context.Context, leadID uuid.UUID, from, to Status, reason string) (*Lead, error) {
	if !IsLegalTransition(from, to) {
		return nil, ErrIllegalTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if lead.Status != from {
		return nil, ErrTransitionRace
	}
	now := time.Now().UTC()
	lead.Status = to
	stampStatusTimestamp(lead, to, now)
	if to == StatusNeedsArtistReply && reason != "" {
		lead.HandoverReason = reason
	}
	return cloneLead(lead), nil
}

func (r *InMemoryRepository) UpdateStatusIfMatches(ctx context.Context, leadID uuid.UUID, expected, to Status) (bool, *Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return false, nil, ErrLeadNotFound
	}
	if lead.Status != expected {
		return false, cloneLead(lead), nil
	}
	now := time.Now().UTC()
	lead.Status = to
	stampStatusTimestamp(lead, to, now)
	return true, cloneLead(lead), nil
}

func (r *InMemoryRepository) MarkDepositPaid(ctx context.Context, leadID uuid.UUID, expectedFrom Status, paymentIntentID string, paidAt time.Time) (bool, *Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return false, nil, ErrLeadNotFound
	}
	if lead.Status != expectedFrom {
		return false, cloneLead(lead), nil
	}
	lead.Status = StatusDepositPaid
	lead.PaymentIntentID = paymentIntentID
	lead.DepositPaidAt = &paidAt
	return true, cloneLead(lead), nil
}

func (r *InMemoryRepository) AdvanceStepIfAt(ctx context.Context, leadID uuid.UUID, expectedStep int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return false, ErrLeadNotFound
	}
	if lead.CurrentStep != expectedStep {
		return false, nil
	}
	lead.CurrentStep = expectedStep + 1
	return true, nil
}

func (r *InMemoryRepository) LockDepositAmount(ctx context.Context, leadID uuid.UUID, amountPence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	if lead.DepositAmountLockedAt != nil {
		return nil // invariant 2: never reduced, never re-locked
	}
	now := time.Now().UTC()
	lead.DepositAmountPence = amountPence
	lead.DepositAmountLockedAt = &now
	return nil
}

func (r *InMemoryRepository) UpdateFields(ctx context.Context, leadID uuid.UUID, f Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	applyFields(lead, f)
	return nil
}

func applyFields(lead *Lead, f Fields) {
	if f.CurrentStep != nil {
		lead.CurrentStep = *f.CurrentStep
	}
	if f.EstimatedCategory != nil {
		lead.EstimatedCategory = *f.EstimatedCategory
	}
	if f.EstimatedDays != nil {
		lead.EstimatedDays = *f.EstimatedDays
	}
	if f.EstimatedDepositAmountPence != nil {
		lead.EstimatedDepositAmountPence = *f.EstimatedDepositAmountPence
	}
	if f.DepositRuleVersion != nil {
		lead.DepositRuleVersion = *f.DepositRuleVersion
	}
	if f.LocationCity != nil {
		lead.LocationCity = *f.LocationCity
	}
	if f.LocationCountry != nil {
		lead.LocationCountry = *f.LocationCountry
	}
	if f.RegionBucket != nil {
		lead.RegionBucket = *f.RegionBucket
	}
	if f.MinBudgetAmountPence != nil {
		lead.MinBudgetAmountPence = *f.MinBudgetAmountPence
	}
	if f.BelowMinBudget != nil {
		lead.BelowMinBudget = *f.BelowMinBudget
	}
	if f.CheckoutSessionID != nil {
		lead.CheckoutSessionID = *f.CheckoutSessionID
	}
	if f.PaymentIntentID != nil {
		lead.PaymentIntentID = *f.PaymentIntentID
	}
	if f.DepositCheckoutExpiresAt != nil {
		lead.DepositCheckoutExpiresAt = f.DepositCheckoutExpiresAt
	}
	if f.DepositSentAt != nil {
		lead.DepositSentAt = f.DepositSentAt
	}
	if f.SuggestedSlots != nil {
		lead.SuggestedSlots = *f.SuggestedSlots
	}
	if f.SelectedSlotStartAt != nil {
		lead.SelectedSlotStartAt = f.SelectedSlotStartAt
	}
	if f.SelectedSlotEndAt != nil {
		lead.SelectedSlotEndAt = f.SelectedSlotEndAt
	}
	if f.CalendarEventID != nil {
		lead.CalendarEventID = *f.CalendarEventID
	}
	if f.NeedsArtistReplyNotifiedAt != nil {
		lead.NeedsArtistReplyNotifiedAt = f.NeedsArtistReplyNotifiedAt
	}
	if f.NeedsFollowUpNotifiedAt != nil {
		lead.NeedsFollowUpNotifiedAt = f.NeedsFollowUpNotifiedAt
	}
	if f.HandoverLastHoldReplyAt != nil {
		lead.HandoverLastHoldReplyAt = f.HandoverLastHoldReplyAt
	}
	if f.HandoverReason != nil {
		lead.HandoverReason = *f.HandoverReason
	}
	if f.LastClientMessageAt != nil {
		lead.LastClientMessageAt = f.LastClientMessageAt
	}
	if f.LastBotMessageAt != nil {
		lead.LastBotMessageAt = f.LastBotMessageAt
	}
	if f.ReminderQualifying1SentAt != nil {
		lead.ReminderQualifying1SentAt = f.ReminderQualifying1SentAt
	}
	if f.ReminderQualifying2SentAt != nil {
		lead.ReminderQualifying2SentAt = f.ReminderQualifying2SentAt
	}
	if f.ReminderBooking24hSentAt != nil {
		lead.ReminderBooking24hSentAt = f.ReminderBooking24hSentAt
	}
	if f.ReminderBooking72hSentAt != nil {
		lead.ReminderBooking72hSentAt = f.ReminderBooking72hSentAt
	}
}

// stampStatusTimestamp sets the status-entry timestamp field for to, but
// only if it is currently null — "stamped once on first entry".
func stampStatusTimestamp(lead *Lead, to Status, at time.Time) {
	switch to {
	case StatusQualifying:
		if lead.QualifyingStartedAt == nil {
			lead.QualifyingStartedAt = &at
		}
	case StatusPendingApproval:
		if lead.PendingApprovalAt == nil {
			lead.PendingApprovalAt = &at
		}
	case StatusAwaitingDeposit:
		if lead.ApprovedAt == nil {
			lead.ApprovedAt = &at
		}
	case StatusRejected:
		if lead.RejectedAt == nil {
			lead.RejectedAt = &at
		}
	case StatusStale:
		if lead.StaleAt == nil {
			lead.StaleAt = &at
		}
	case StatusAbandoned:
		if lead.AbandonedAt == nil {
			lead.AbandonedAt = &at
		}
	case StatusNeedsArtistReply:
		if lead.NeedsArtistReplyAt == nil {
			lead.NeedsArtistReplyAt = &at
		}
	case StatusNeedsFollowUp:
		if lead.NeedsFollowUpAt == nil {
			lead.NeedsFollowUpAt = &at
		}
	case StatusBookingPending:
		if lead.BookingPendingAt == nil {
			lead.BookingPendingAt = &at
		}
	case StatusBooked:
		if lead.BookedAt == nil {
			lead.BookedAt = &at
		}
	}
}

func cloneLead(l *Lead) *Lead {
	cp := *l
	cp.ParseFailureCounts = make(map[string]int, len(l.ParseFailureCounts))
	for k, v := range l.ParseFailureCounts {
		cp.ParseFailureCounts[k] = v
	}
	cp.SuggestedSlots = append([]Slot(nil), l.SuggestedSlots...)
	return &cp
}
