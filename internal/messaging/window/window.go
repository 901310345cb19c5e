// Package window implements the 24h messaging-window arbiter: every
// outbound turn is classified as open (free-form send allowed), closed
// (window lapsed, only an approved template may go out), blocked (window
// lapsed and no template was supplied), or opted out (lead is in OPTOUT
// and nothing may be sent). Style grounded on
// internal/messaging/compliance/quiet_hours.go (small struct + predicate
// method); the opted-out short-circuit mirrors
// internal/messaging/compliance/stop_detector.go's keyword-first check
// before any window math runs.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkline/bookingbot/internal/leads"
	"github.com/inkline/bookingbot/internal/systemevent"
)

// windowDuration is the WhatsApp Business messaging-window length: a
// free-form send is only allowed within 24h of the lead's last inbound
// message.
const windowDuration = 24 * time.Hour

// Decision is the arbiter's verdict for one outbound turn.
type Decision string

const (
	DecisionOpen               Decision = "open"
	DecisionClosedTemplateUsed Decision = "closed_template_used"
	DecisionBlockedNoTemplate  Decision = "blocked_no_template"
	DecisionOptedOut           Decision = "opted_out"
)

// Template names the approved template a caller is prepared to fall
// back to if the window is closed. Name empty means no template is
// available for this send.
type Template struct {
	Name   string
	Params map[string]string
}

// Cache is a read-through cache of last_client_message_at, keyed by
// lead id, so the Sweeper's periodic scan doesn't hit Postgres for a
// window check on every candidate lead. Every method is nil-receiver
// safe: a nil Cache (no REDIS_URL configured) degrades to "always miss"
// rather than panicking.
type Cache struct {
	redis *redis.Client
}

// NewCache builds a Cache over redisClient. redisClient may be nil.
func NewCache(redisClient *redis.Client) *Cache {
	return &Cache{redis: redisClient}
}

func cacheKey(leadID string) string {
	return "window:last_client_message:" + leadID
}

// Get returns the cached last_client_message_at for leadID, or
// (zero, false) on a cache miss or when the cache is disabled.
func (c *Cache) Get(ctx context.Context, leadID string) (time.Time, bool, error) {
	if c == nil || c.redis == nil {
		return time.Time{}, false, nil
	}
	val, err := c.redis.Get(ctx, cacheKey(leadID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("window: cache get: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Set populates the cache for leadID, expiring the entry once it can no
// longer affect a window decision.
func (c *Cache) Set(ctx context.Context, leadID string, lastClientMessageAt time.Time) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if err := c.redis.Set(ctx, cacheKey(leadID), lastClientMessageAt.Format(time.RFC3339Nano), windowDuration).Err(); err != nil {
		return fmt.Errorf("window: cache set: %w", err)
	}
	return nil
}

// Arbiter classifies outbound turns against the 24h messaging window.
type Arbiter struct {
	cache  *Cache
	events systemevent.Recorder
	now    func() time.Time
}

// NewArbiter builds an Arbiter. cache may be nil (window checks then
// fall back to the lead's own LastClientMessageAt on every call).
func NewArbiter(cache *Cache, events systemevent.Recorder, now func() time.Time) *Arbiter {
	if now == nil {
		now = time.Now
	}
	return &Arbiter{cache: cache, events: events, now: now}
}

// Arbitrate decides whether intent can go out to lead right now. tmpl
// may be nil or have an empty Name, meaning no template fallback is
// available for this send. A lead with no recorded inbound message is
// treated as inside the window.
func (a *Arbiter) Arbitrate(ctx context.Context, lead *leads.Lead, intent string, tmpl *Template) (Decision, error) {
	if lead.Status == leads.StatusOptOut {
		return DecisionOptedOut, nil
	}

	lastClientMessageAt, ok := a.lastClientMessageAt(ctx, lead)
	if !ok || a.now().Sub(lastClientMessageAt) < windowDuration {
		return DecisionOpen, nil
	}

	decision := DecisionBlockedNoTemplate
	if tmpl != nil && tmpl.Name != "" {
		decision = DecisionClosedTemplateUsed
	}
	if a.events != nil {
		_ = a.events.Info(ctx, "window_closed", &lead.ID, map[string]string{
			"intent":   intent,
			"decision": string(decision),
		})
	}
	return decision, nil
}

func (a *Arbiter) lastClientMessageAt(ctx context.Context, lead *leads.Lead) (time.Time, bool) {
	if cached, ok, err := a.cache.Get(ctx, lead.ID.String()); err == nil && ok {
		return cached, true
	}
	if lead.LastClientMessageAt == nil {
		return time.Time{}, false
	}
	_ = a.cache.Set(ctx, lead.ID.String(), *lead.LastClientMessageAt)
	return *lead.LastClientMessageAt, true
}
