package leads

import (
	"time"

	"github.com/google/uuid"
)

// RegionBucket groups a lead's location into the pricing regions used by
// the estimation utility.
type RegionBucket string

const (
	RegionUK     RegionBucket = "UK"
	RegionEurope RegionBucket = "EUROPE"
	RegionROW    RegionBucket = "ROW"
)

// EstimatedCategory is the derived size bucket used for deposit calculation.
type EstimatedCategory string

const (
	CategorySmall  EstimatedCategory = "SMALL"
	CategoryMedium EstimatedCategory = "MEDIUM"
	CategoryLarge  EstimatedCategory = "LARGE"
	CategoryXL     EstimatedCategory = "XL"
)

// Slot is a single caller-supplied booking slot candidate.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Lead is the aggregate root: one prospective booking, identified by an
// opaque lead id and externally by a phone identifier.
type Lead struct {
	ID        uuid.UUID
	ArtistID  string
	Phone     string
	CreatedAt time.Time

	// Flow position.
	Status             Status
	CurrentStep        int
	ParseFailureCounts map[string]int

	// Estimation.
	EstimatedCategory           EstimatedCategory
	EstimatedDays               float64 // XL only, multiple of 0.5
	EstimatedDepositAmountPence int64
	DepositAmountPence          int64 // locked value, never reduced once set
	DepositAmountLockedAt       *time.Time
	DepositRuleVersion          string

	// Region & pricing.
	LocationCity         string
	LocationCountry      string
	RegionBucket         RegionBucket
	MinBudgetAmountPence int64
	BelowMinBudget       bool

	// Checkout.
	CheckoutSessionID        string
	PaymentIntentID          string
	DepositCheckoutExpiresAt *time.Time
	DepositSentAt            *time.Time
	DepositPaidAt            *time.Time

	// Slot/booking.
	SuggestedSlots      []Slot
	SelectedSlotStartAt *time.Time
	SelectedSlotEndAt   *time.Time
	CalendarEventID     string
	BookingPendingAt    *time.Time
	BookedAt            *time.Time

	// Per-status timestamps. Stamped once on first entry; never overwritten.
	QualifyingStartedAt *time.Time
	PendingApprovalAt   *time.Time
	ApprovedAt          *time.Time
	RejectedAt          *time.Time
	StaleAt             *time.Time
	AbandonedAt         *time.Time
	NeedsArtistReplyAt  *time.Time
	NeedsFollowUpAt     *time.Time

	// Operator notifications.
	NeedsArtistReplyNotifiedAt *time.Time
	NeedsFollowUpNotifiedAt    *time.Time
	HandoverLastHoldReplyAt    *time.Time
	HandoverReason             string

	// Windowing.
	LastClientMessageAt *time.Time
	LastBotMessageAt    *time.Time

	// Sweeper idempotency timestamps (distinct from the status-entry
	// timestamps above; these mark when a specific reminder fired).
	ReminderQualifying1SentAt *time.Time
	ReminderQualifying2SentAt *time.Time
	ReminderBooking24hSentAt  *time.Time
	ReminderBooking72hSentAt  *time.Time
}

// LeadAnswer is a captured answer to a scripted question. "Latest-wins
// per key" is determined by (created_at, id) order on read.
type LeadAnswer struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	QuestionKey string
	Text        string
	CreatedAt   time.Time
}

// LatestAnswers reduces an ordered slice of answers to "latest wins per
// key". Callers must pass answers already ordered by (created_at, id).
func LatestAnswers(answers []LeadAnswer) map[string]LeadAnswer {
	latest := make(map[string]LeadAnswer, len(answers))
	for _, a := range answers {
		latest[a.QuestionKey] = a
	}
	return latest
}
