// Package actiontoken implements single-use operator confirmation
// links: an opaque >=256-bit token scoped to a lead, an action type,
// and the lead status required for the action to still be valid.
package actiontoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkline/bookingbot/internal/clockid"
	"github.com/inkline/bookingbot/internal/leads"
)

// DefaultExpiryDays is used when the caller does not override it via
// config (action_token_expiry_days).
const DefaultExpiryDays = 7

var (
	ErrTokenNotFound  = errors.New("actiontoken: token not found")
	ErrTokenUsed      = errors.New("actiontoken: token already used")
	ErrTokenExpired   = errors.New("actiontoken: token expired")
	ErrStatusMismatch = errors.New("actiontoken: lead status no longer matches required status")
)

// Token is a single-use operator confirmation credential.
type Token struct {
	ID             uuid.UUID
	Value          string
	LeadID         uuid.UUID
	ActionType     string
	RequiredStatus leads.Status
	ExpiresAt      time.Time
	Used           bool
	UsedAt         *time.Time
	CreatedAt      time.Time
}

// Store persists and validates ActionTokens.
type Store struct {
	pool  *pgxpool.Pool
	clock clockid.Clock
}

func NewStore(pool *pgxpool.Pool, clock clockid.Clock) *Store {
	if pool == nil {
		panic("actiontoken: pgx pool required")
	}
	return &Store{pool: pool, clock: clock}
}

// Issue mints a new token for the given lead/action, valid for
// expiryDays (DefaultExpiryDays when <= 0).
func (s *Store) Issue(ctx context.Context, leadID uuid.UUID, actionType string, requiredStatus leads.Status, expiryDays int) (*Token, error) {
	if expiryDays <= 0 {
		expiryDays = DefaultExpiryDays
	}
	value, err := clockid.NewToken(32)
	if err != nil {
		return nil, fmt.Errorf("actiontoken: mint token: %w", err)
	}
	now := s.clock.Now()
	tok := &Token{
		ID:             s.clock.NewID(),
		Value:          value,
		LeadID:         leadID,
		ActionType:     actionType,
		RequiredStatus: requiredStatus,
		ExpiresAt:      now.AddDate(0, 0, expiryDays),
		CreatedAt:      now,
	}
	query := `
		INSERT INTO action_tokens (id, token, lead_id, action_type, required_status, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
	`
	if _, err := s.pool.Exec(ctx, query, tok.ID, tok.Value, tok.LeadID, tok.ActionType, tok.RequiredStatus, tok.ExpiresAt, tok.CreatedAt); err != nil {
		return nil, fmt.Errorf("actiontoken: insert: %w", err)
	}
	return tok, nil
}

// Validate checks, in order, that the token exists, is unused, is
// unexpired, and that the lead's current status still matches the
// token's required status — the exact order the confirmation view and
// POST handler must enforce.
func (s *Store) Validate(ctx context.Context, value string, currentLeadStatus leads.Status) (*Token, error) {
	tok, err := s.lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if tok.Used {
		return tok, ErrTokenUsed
	}
	if s.clock.Now().After(tok.ExpiresAt) {
		return tok, ErrTokenExpired
	}
	if tok.RequiredStatus != currentLeadStatus {
		return tok, ErrStatusMismatch
	}
	return tok, nil
}

// Claim atomically marks the token used, returning false if another
// request already claimed it (UPDATE affected zero rows).
func (s *Store) Claim(ctx context.Context, value string) (bool, error) {
	query := `
		UPDATE action_tokens
		SET used = true, used_at = $2
		WHERE token = $1 AND used = false
	`
	ct, err := s.pool.Exec(ctx, query, value, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("actiontoken: claim: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) lookup(ctx context.Context, value string) (*Token, error) {
	query := `
		SELECT id, token, lead_id, action_type, required_status, expires_at, used, used_at, created_at
		FROM action_tokens
		WHERE token = $1
	`
	var tok Token
	row := s.pool.QueryRow(ctx, query, value)
	if err := row.Scan(&tok.ID, &tok.Value, &tok.LeadID, &tok.ActionType, &tok.RequiredStatus,
		&tok.ExpiresAt, &tok.Used, &tok.UsedAt, &tok.CreatedAt); err != nil {
		return nil, ErrTokenNotFound
	}
	return &tok, nil
}
