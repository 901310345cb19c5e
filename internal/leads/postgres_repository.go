package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores leads in the relational database. The row
// lock acquired in Transition is the unit of per-lead serialization
// described in spec.md §5; the pattern (begin tx, SELECT ... FOR UPDATE,
// validate, UPDATE, commit) is grounded on a brokerage pack repo's
// agreement status-transition service, since the teacher repo itself
// does not use row-level locking anywhere.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, artistID, phone string) (*Lead, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	if artistID == "" {
		return nil, ErrMissingArtistID
	}
	id := uuid.New()
	query := `
		INSERT INTO leads (id, artist_id, phone, status, current_step, parse_failure_counts)
		VALUES ($1, $2, $3, $4, 0, '{}'::jsonb)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query, id, artistID, phone, StatusNew).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return &Lead{
		ID:                 id,
		ArtistID:           artistID,
		Phone:              phone,
		Status:             StatusNew,
		CreatedAt:          createdAt,
		ParseFailureCounts: map[string]int{},
	}, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, artistID string, id uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, selectLeadQuery+" WHERE id = $1 AND artist_id = $2", id, artistID)
	return scanLead(row)
}

// GetByIDAnyArtist fetches a lead by id without artist scoping, for
// callers whose own authorization already binds them to one lead: an
// internal caller after a conditional UPDATE has authorized the write,
// or an action-token confirmation where the token itself proves access.
func (r *PostgresRepository) GetByIDAnyArtist(ctx context.Context, id uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, selectLeadQuery+" WHERE id = $1", id)
	return scanLead(row)
}

func (r *PostgresRepository) GetOrCreateByPhone(ctx context.Context, artistID, phone string) (*Lead, error) {
	row := r.pool.QueryRow(ctx, selectLeadQuery+" WHERE artist_id = $1 AND phone = $2 ORDER BY created_at DESC LIMIT 1", artistID, phone)
	lead, err := scanLead(row)
	if err == nil {
		return lead, nil
	}
	if err != ErrLeadNotFound {
		return nil, err
	}
	return r.Create(ctx, artistID, phone)
}

func (r *PostgresRepository) ListByStatuses(ctx context.Context, statuses ...Status) ([]*Lead, error) {
	rows, err := r.pool.Query(ctx, selectLeadQuery+" WHERE status = ANY($1)", statuses)
	if err != nil {
		return nil, fmt.Errorf("leads: list by status: %w", err)
	}
	defer rows.Close()
	var out []*Lead
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Answers(ctx context.Context, leadID uuid.UUID) ([]LeadAnswer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, question_key, text, created_at
		FROM lead_answers
		WHERE lead_id = $1
		ORDER BY created_at, id
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("leads: answers query: %w", err)
	}
	defer rows.Close()
	var out []LeadAnswer
	for rows.Next() {
		var a LeadAnswer
		if err := rows.Scan(&a.ID, &a.LeadID, &a.QuestionKey, &a.Text, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("leads: scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendAnswer(ctx context.Context, leadID uuid.UUID, questionKey, text string) (LeadAnswer, error) {
	id := uuid.New()
	var createdAt time.Time
	query := `
		INSERT INTO lead_answers (id, lead_id, question_key, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query, id, leadID, questionKey, text).Scan(&createdAt); err != nil {
		return LeadAnswer{}, fmt.Errorf("leads: insert answer: %w", err)
	}
	return LeadAnswer{ID: id, LeadID: leadID, QuestionKey: questionKey, Text: text, CreatedAt: createdAt}, nil
}

func (r *PostgresRepository) IncrementParseFailure(ctx context.Context, leadID uuid.UUID, field string) (int, error) {
	query := `
		UPDATE leads
		SET parse_failure_counts = jsonb_set(
			coalesce(parse_failure_counts, '{}'::jsonb),
			array[$2::text],
			to_jsonb(coalesce((parse_failure_counts->>$2)::int, 0) + 1)
		)
		WHERE id = $1
		RETURNING (parse_failure_counts->>$2)::int
	`
	var count int
	if err := r.pool.QueryRow(ctx, query, leadID, field).Scan(&count); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrLeadNotFound
		}
		return 0, fmt.Errorf("leads: increment parse failure: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) ResetParseFailure(ctx context.Context, leadID uuid.UUID, field string) error {
	query := `
		UPDATE leads
		SET parse_failure_counts = jsonb_set(coalesce(parse_failure_counts, '{}'::jsonb), array[$2::text], '0')
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query, leadID, field)
	if err != nil {
		return fmt.Errorf("leads: reset parse failure: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// Transition implements §4.6 steps 1-5: reject illegal pairs early,
// acquire a row lock, re-read and compare status, write, stamp, commit.
func (r *PostgresRepository) Transition(ctx context.Context, leadID uuid.UUID, from, to Status, reason string) (*Lead, error) {
	if !IsLegalTransition(from, to) {
		return nil, ErrIllegalTransition
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	if err := tx.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1 FOR UPDATE`, leadID).Scan(&current); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: lock lead: %w", err)
	}
	if current != from {
		return nil, ErrTransitionRace
	}

	stampCol := statusTimestampColumn[to]
	reasonClause := ""
	args := []any{to, leadID}
	if stampCol != "" {
		reasonClause = fmt.Sprintf(", %s = coalesce(%s, now())", stampCol, stampCol)
	}
	if to == StatusNeedsArtistReply && reason != "" {
		reasonClause += ", handover_reason = $3"
		args = append(args, reason)
	}
	query := fmt.Sprintf(`UPDATE leads SET status = $1%s WHERE id = $2`, reasonClause)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("leads: apply transition: %w", err)
	}

	lead, err := scanLead(tx.QueryRow(ctx, selectLeadQuery+" WHERE id = $1", leadID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit transition: %w", err)
	}
	return lead, nil
}

// UpdateStatusIfMatches is the optimistic conditional UPDATE used outside
// the row-lock path (admin operations, payment correlator retries).
func (r *PostgresRepository) UpdateStatusIfMatches(ctx context.Context, leadID uuid.UUID, expected, to Status) (bool, *Lead, error) {
	stampCol := statusTimestampColumn[to]
	setClause := "status = $1"
	if stampCol != "" {
		setClause += fmt.Sprintf(", %s = coalesce(%s, now())", stampCol, stampCol)
	}
	query := fmt.Sprintf(`UPDATE leads SET %s WHERE id = $2 AND status = $3`, setClause)
	ct, err := r.pool.Exec(ctx, query, to, leadID, expected)
	if err != nil {
		return false, nil, fmt.Errorf("leads: update status if matches: %w", err)
	}
	lead, lerr := r.GetByIDAnyArtist(ctx, leadID)
	if lerr != nil && lerr != ErrLeadNotFound {
		return false, nil, lerr
	}
	return ct.RowsAffected() == 1, lead, nil
}

// MarkDepositPaid specializes UpdateStatusIfMatches for the payment
// correlator's DEPOSIT_PAID transition (§4.8 step 5/6).
func (r *PostgresRepository) MarkDepositPaid(ctx context.Context, leadID uuid.UUID, expectedFrom Status, paymentIntentID string, paidAt time.Time) (bool, *Lead, error) {
	query := `
		UPDATE leads
		SET status = $1, payment_intent_id = $2, deposit_paid_at = coalesce(deposit_paid_at, $3)
		WHERE id = $4 AND status = $5
	`
	ct, err := r.pool.Exec(ctx, query, StatusDepositPaid, paymentIntentID, paidAt, leadID, expectedFrom)
	if err != nil {
		return false, nil, fmt.Errorf("leads: mark deposit paid: %w", err)
	}
	lead, lerr := r.GetByIDAnyArtist(ctx, leadID)
	if lerr != nil && lerr != ErrLeadNotFound {
		return false, nil, lerr
	}
	return ct.RowsAffected() == 1, lead, nil
}

// AdvanceStepIfAt is the optimistic step-advancement primitive (§4.6,
// §5 "winner sends"). Exactly one concurrent caller wins the race.
func (r *PostgresRepository) AdvanceStepIfAt(ctx context.Context, leadID uuid.UUID, expectedStep int) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE leads SET current_step = $1 WHERE id = $2 AND current_step = $3
	`, expectedStep+1, leadID, expectedStep)
	if err != nil {
		return false, fmt.Errorf("leads: advance step if at: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// LockDepositAmount writes deposit_amount_pence and
// deposit_amount_locked_at only on first write (invariant 2).
func (r *PostgresRepository) LockDepositAmount(ctx context.Context, leadID uuid.UUID, amountPence int64) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET deposit_amount_pence = $1, deposit_amount_locked_at = now()
		WHERE id = $2 AND deposit_amount_locked_at IS NULL
	`, amountPence, leadID)
	if err != nil {
		return fmt.Errorf("leads: lock deposit amount: %w", err)
	}
	_ = ct
	return nil
}

func (r *PostgresRepository) UpdateFields(ctx context.Context, leadID uuid.UUID, f Fields) error {
	set := make([]string, 0, 16)
	args := make([]any, 0, 16)
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if f.CurrentStep != nil {
		add("current_step", *f.CurrentStep)
	}
	if f.EstimatedCategory != nil {
		add("estimated_category", *f.EstimatedCategory)
	}
	if f.EstimatedDays != nil {
		add("estimated_days", *f.EstimatedDays)
	}
	if f.EstimatedDepositAmountPence != nil {
		add("estimated_deposit_amount_pence", *f.EstimatedDepositAmountPence)
	}
	if f.DepositRuleVersion != nil {
		add("deposit_rule_version", *f.DepositRuleVersion)
	}
	if f.LocationCity != nil {
		add("location_city", *f.LocationCity)
	}
	if f.LocationCountry != nil {
		add("location_country", *f.LocationCountry)
	}
	if f.RegionBucket != nil {
		add("region_bucket", *f.RegionBucket)
	}
	if f.MinBudgetAmountPence != nil {
		add("min_budget_amount_pence", *f.MinBudgetAmountPence)
	}
	if f.BelowMinBudget != nil {
		add("below_min_budget", *f.BelowMinBudget)
	}
	if f.CheckoutSessionID != nil {
		add("checkout_session_id", *f.CheckoutSessionID)
	}
	if f.PaymentIntentID != nil {
		add("payment_intent_id", *f.PaymentIntentID)
	}
	if f.DepositCheckoutExpiresAt != nil {
		add("deposit_checkout_expires_at", *f.DepositCheckoutExpiresAt)
	}
	if f.DepositSentAt != nil {
		add("deposit_sent_at", *f.DepositSentAt)
	}
	if f.SuggestedSlots != nil {
		data, err := json.Marshal(*f.SuggestedSlots)
		if err != nil {
			return fmt.Errorf("leads: marshal suggested slots: %w", err)
		}
		add("suggested_slots_json", data)
	}
	if f.SelectedSlotStartAt != nil {
		add("selected_slot_start_at", *f.SelectedSlotStartAt)
	}
	if f.SelectedSlotEndAt != nil {
		add("selected_slot_end_at", *f.SelectedSlotEndAt)
	}
	if f.CalendarEventID != nil {
		add("calendar_event_id", *f.CalendarEventID)
	}
	if f.NeedsArtistReplyNotifiedAt != nil {
		add("needs_artist_reply_notified_at", *f.NeedsArtistReplyNotifiedAt)
	}
	if f.NeedsFollowUpNotifiedAt != nil {
		add("needs_follow_up_notified_at", *f.NeedsFollowUpNotifiedAt)
	}
	if f.HandoverLastHoldReplyAt != nil {
		add("handover_last_hold_reply_at", *f.HandoverLastHoldReplyAt)
	}
	if f.HandoverReason != nil {
		add("handover_reason", *f.HandoverReason)
	}
	if f.LastClientMessageAt != nil {
		add("last_client_message_at", *f.LastClientMessageAt)
	}
	if f.LastBotMessageAt != nil {
		add("last_bot_message_at", *f.LastBotMessageAt)
	}
	if f.ReminderQualifying1SentAt != nil {
		add("reminder_qualifying_1_sent_at", *f.ReminderQualifying1SentAt)
	}
	if f.ReminderQualifying2SentAt != nil {
		add("reminder_qualifying_2_sent_at", *f.ReminderQualifying2SentAt)
	}
	if f.ReminderBooking24hSentAt != nil {
		add("reminder_booking_24h_sent_at", *f.ReminderBooking24hSentAt)
	}
	if f.ReminderBooking72hSentAt != nil {
		add("reminder_booking_72h_sent_at", *f.ReminderBooking72hSentAt)
	}

	if len(set) == 0 {
		return nil
	}
	args = append(args, leadID)
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", joinSet(set), len(args))
	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("leads: update fields: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}

// statusTimestampColumn maps a destination status to the once-only
// status-entry timestamp column stamped on first arrival (§3).
var statusTimestampColumn = map[Status]string{
	StatusQualifying:       "qualifying_started_at",
	StatusPendingApproval:  "pending_approval_at",
	StatusAwaitingDeposit:  "approved_at",
	StatusRejected:         "rejected_at",
	StatusStale:            "stale_at",
	StatusAbandoned:        "abandoned_at",
	StatusNeedsArtistReply: "needs_artist_reply_at",
	StatusNeedsFollowUp:    "needs_follow_up_at",
	StatusBookingPending:   "booking_pending_at",
	StatusBooked:           "booked_at",
}

const selectLeadQuery = `
	SELECT id, artist_id, phone, created_at, status, current_step, parse_failure_counts,
	       estimated_category, estimated_days, estimated_deposit_amount_pence,
	       deposit_amount_pence, deposit_amount_locked_at, deposit_rule_version,
	       location_city, location_country, region_bucket, min_budget_amount_pence, below_min_budget,
	       checkout_session_id, payment_intent_id, deposit_checkout_expires_at, deposit_sent_at, deposit_paid_at,
	       suggested_slots_json, selected_slot_start_at, selected_slot_end_at, calendar_event_id,
	       booking_pending_at, booked_at,
	       qualifying_started_at, pending_approval_at, approved_at, rejected_at, stale_at, abandoned_at,
	       needs_artist_reply_at, needs_follow_up_at,
	       needs_artist_reply_notified_at, needs_follow_up_notified_at, handover_last_hold_reply_at, handover_reason,
	       last_client_message_at, last_bot_message_at,
	       reminder_qualifying_1_sent_at, reminder_qualifying_2_sent_at,
	       reminder_booking_24h_sent_at, reminder_booking_72h_sent_at
	FROM leads
`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	return scanLeadRow(row)
}

func scanLeadRow(row rowScanner) (*Lead, error) {
	var l Lead
	var parseFailures []byte
	var slots []byte
	if err := row.Scan(
		&l.ID, &l.ArtistID, &l.Phone, &l.CreatedAt, &l.Status, &l.CurrentStep, &parseFailures,
		&l.EstimatedCategory, &l.EstimatedDays, &l.EstimatedDepositAmountPence,
		&l.DepositAmountPence, &l.DepositAmountLockedAt, &l.DepositRuleVersion,
		&l.LocationCity, &l.LocationCountry, &l.RegionBucket, &l.MinBudgetAmountPence, &l.BelowMinBudget,
		&l.CheckoutSessionID, &l.PaymentIntentID, &l.DepositCheckoutExpiresAt, &l.DepositSentAt, &l.DepositPaidAt,
		&slots, &l.SelectedSlotStartAt, &l.SelectedSlotEndAt, &l.CalendarEventID,
		&l.BookingPendingAt, &l.BookedAt,
		&l.QualifyingStartedAt, &l.PendingApprovalAt, &l.ApprovedAt, &l.RejectedAt, &l.StaleAt, &l.AbandonedAt,
		&l.NeedsArtistReplyAt, &l.NeedsFollowUpAt,
		&l.NeedsArtistReplyNotifiedAt, &l.NeedsFollowUpNotifiedAt, &l.HandoverLastHoldReplyAt, &l.HandoverReason,
		&l.LastClientMessageAt, &l.LastBotMessageAt,
		&l.ReminderQualifying1SentAt, &l.ReminderQualifying2SentAt,
		&l.ReminderBooking24hSentAt, &l.ReminderBooking72hSentAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: scan lead: %w", err)
	}
	if len(parseFailures) > 0 {
		if err := json.Unmarshal(parseFailures, &l.ParseFailureCounts); err != nil {
			return nil, fmt.Errorf("leads: unmarshal parse failure counts: %w", err)
		}
	}
	if l.ParseFailureCounts == nil {
		l.ParseFailureCounts = map[string]int{}
	}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &l.SuggestedSlots); err != nil {
			return nil, fmt.Errorf("leads: unmarshal suggested slots: %w", err)
		}
	}
	return &l, nil
}
