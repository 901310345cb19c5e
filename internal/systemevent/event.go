// Package systemevent implements the append-only SystemEvent log used
// across the lead lifecycle for soft-failure and audit signals
// (duplicate detection, window-arbiter decisions, webhook rejections,
// sweeper actions). Events are created exclusively through Record to
// guarantee a uniform shape.
package systemevent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Level classifies the severity of a logged event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single append-only log row.
type Event struct {
	ID        uuid.UUID
	Level     Level
	EventType string
	LeadID    *uuid.UUID
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Recorder is the capability consumed by the rest of the codebase so
// callers can swap Store for InMemoryStore in tests.
type Recorder interface {
	Record(ctx context.Context, level Level, eventType string, leadID *uuid.UUID, payload any) error
	Info(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error
	Warn(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error
	Error(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error
}

// Store persists SystemEvents.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("systemevent: pgx pool required")
	}
	return &Store{pool: pool}
}

// Record is the single helper through which every SystemEvent must be
// created; leadID may be nil for events not scoped to a lead.
func (s *Store) Record(ctx context.Context, level Level, eventType string, leadID *uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("systemevent: marshal payload: %w", err)
	}
	query := `
		INSERT INTO system_events (id, level, event_type, lead_id, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	if _, err := s.pool.Exec(ctx, query, uuid.New(), level, eventType, leadID, data); err != nil {
		return fmt.Errorf("systemevent: insert: %w", err)
	}
	return nil
}

// Info records an info-level event. Convenience wrapper over Record.
func (s *Store) Info(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelInfo, eventType, leadID, payload)
}

// Warn records a warn-level event.
func (s *Store) Warn(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelWarn, eventType, leadID, payload)
}

// Error records an error-level event.
func (s *Store) Error(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelError, eventType, leadID, payload)
}

// ListByLead returns events for a lead, most recent first, for admin
// inspection and acceptance tests.
func (s *Store) ListByLead(ctx context.Context, leadID uuid.UUID, limit int32) ([]Event, error) {
	query := `
		SELECT id, level, event_type, lead_id, payload_json, created_at
		FROM system_events
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("systemevent: list by lead: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Level, &e.EventType, &e.LeadID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("systemevent: scan: %w", err)
		}
		e.Payload = append([]byte(nil), payload...)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InMemoryStore is a test double that records events in process
// memory, used by unit tests that assert on emitted SystemEvents
// without a database.
type InMemoryStore struct {
	Events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Record(ctx context.Context, level Level, eventType string, leadID *uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("systemevent: marshal payload: %w", err)
	}
	s.Events = append(s.Events, Event{
		ID:        uuid.New(),
		Level:     level,
		EventType: eventType,
		LeadID:    leadID,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) Info(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelInfo, eventType, leadID, payload)
}

func (s *InMemoryStore) Warn(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelWarn, eventType, leadID, payload)
}

func (s *InMemoryStore) Error(ctx context.Context, eventType string, leadID *uuid.UUID, payload any) error {
	return s.Record(ctx, LevelError, eventType, leadID, payload)
}

func (s *InMemoryStore) HasEventType(eventType string) bool {
	for _, e := range s.Events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}
