package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkline/bookingbot/pkg/logging"
)

// outboxPool is the subset of *pgxpool.Pool the outbox store needs,
// narrowed to an interface (matching ProcessedStore's rowQuerier) so
// it can be driven by pgxmock in tests without a real pool.
type outboxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Status is the outbox row lifecycle state (§4.3).
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// backoffBaseMinutes and backoffCapMinutes implement
// next_retry_at = now + min(5*3^attempts, 1440) minutes.
const (
	backoffBaseMinutes = 5
	backoffCapMinutes  = 1440
)

// OutboxEntry represents a pending or retrying outbound send.
type OutboxEntry struct {
	ID          uuid.UUID
	OrgID       string
	LeadID      *uuid.UUID
	Channel     string
	Type        string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	LastError   *string
	NextRetryAt *time.Time
	CreatedAt   time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore persists events for reliable delivery.
type OutboxStore struct {
	pool outboxPool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

// Enqueue inserts a new outbox row in PENDING status. The orchestrator
// MUST call Enqueue before attempting delivery (§4.3).
func (s *OutboxStore) Enqueue(ctx context.Context, orgID string, leadID *uuid.UUID, channel, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO outbox (id, org_id, lead_id, channel, type, payload, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`
	if _, err := s.pool.Exec(ctx, query, id, orgID, leadID, channel, eventType, data, StatusPending); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// RetryDue selects rows in PENDING or FAILED status whose next_retry_at
// has elapsed (or is null), oldest first, up to limit rows.
func (s *OutboxStore) RetryDue(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, org_id, lead_id, channel, type, payload, status, attempts, last_error, next_retry_at, created_at
		FROM outbox
		WHERE status IN ($1, $2)
		  AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, StatusPending, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch retry due: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.OrgID, &entry.LeadID, &entry.Channel, &entry.Type,
			&payload, &entry.Status, &entry.Attempts, &entry.LastError, &entry.NextRetryAt, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkSent sets SENT, increments attempts, and clears retry/error fields.
func (s *OutboxStore) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox
		SET status = $2, attempts = attempts + 1, last_error = NULL, next_retry_at = NULL
		WHERE id = $1 AND status IN ($3, $4)
	`
	ct, err := s.pool.Exec(ctx, query, id, StatusSent, StatusPending, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("events: mark sent: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed sets FAILED, increments attempts, records the error, and
// schedules the next retry with exponential backoff capped at 24h. The
// backoff is computed from the attempt count read just before the
// update, so the delay reflects the attempt that just failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, sendErr error) (bool, error) {
	var errStr *string
	if sendErr != nil {
		msg := sendErr.Error()
		errStr = &msg
	}
	current, err := s.currentAttempts(ctx, id)
	if err != nil {
		return false, err
	}
	delayMinutes := backoffMinutes(current)
	query := `
		UPDATE outbox
		SET status = $2, attempts = attempts + 1, last_error = $3, next_retry_at = now() + ($4 || ' minutes')::interval
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, query, id, StatusFailed, errStr, delayMinutes)
	if err != nil {
		return false, fmt.Errorf("events: mark failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *OutboxStore) currentAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	if err := s.pool.QueryRow(ctx, `SELECT attempts FROM outbox WHERE id = $1`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("events: read attempts: %w", err)
	}
	return attempts, nil
}

// backoffMinutes computes min(5*3^attempts, 1440).
func backoffMinutes(attempts int) int {
	delay := float64(backoffBaseMinutes) * math.Pow(3, float64(attempts))
	if delay > backoffCapMinutes {
		return backoffCapMinutes
	}
	return int(delay)
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.RetryDue(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			if _, markErr := d.store.MarkFailed(ctx, entry.ID, err); markErr != nil {
				d.logger.Error("failed to mark outbox failed", "error", markErr, "event_id", entry.ID)
			}
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			continue
		}
		if ok, err := d.store.MarkSent(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox sent", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
}
