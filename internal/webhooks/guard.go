// Package webhooks holds pieces shared by the provider webhook handlers.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultEventTTL = 72 * time.Hour

type eventStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// EventGuard deduplicates provider deliveries by event id.
type EventGuard struct {
	store    eventStore
	ttl      time.Duration
	provider string
}

func NewEventGuard(store eventStore, provider string, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("event store is required")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	return &EventGuard{store: store, ttl: ttl, provider: provider}, nil
}

// CheckAndMark reports whether eventID was already seen and marks it otherwise.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(g.provider, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !set, nil
}

// Delete forgets eventID so a failed delivery can be retried by the provider.
func (g *EventGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(g.provider, eventID))
}
