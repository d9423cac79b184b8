// Package notify keeps the user's notification list: newest first, bounded,
// persisted after every change.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/ports"
)

// DefaultMax is the number of notifications kept.
const DefaultMax = 50

// Tracker owns the notification list.
type Tracker struct {
	store ports.NotificationStore
	clock clock.Clock
	max   int

	mu    sync.Mutex
	items []domain.Notification
	subs  []func(domain.Notification)
}

// NewTracker creates a tracker. store may be nil to keep the list in memory
// only; max <= 0 uses DefaultMax.
func NewTracker(store ports.NotificationStore, clk clock.Clock, max int) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &Tracker{store: store, clock: clk, max: max}
}

// Load replaces the in-memory list with the persisted one. Called once at
// startup.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	items, err := t.store.LoadNotifications(ctx)
	if err != nil {
		return fmt.Errorf("notify.Load: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(items) > t.max {
		items = items[:t.max]
	}
	t.items = items
	return nil
}

// Subscribe registers fn to be called for every added notification.
func (t *Tracker) Subscribe(fn func(domain.Notification)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Add prepends a notification and persists the list.
func (t *Tracker) Add(ctx context.Context, kind domain.NotificationKind, message, orderUUID string) domain.Notification {
	n := domain.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		Timestamp: t.clock.Now().UnixMilli(),
		OrderUUID: orderUUID,
	}

	t.mu.Lock()
	items := make([]domain.Notification, 0, min(len(t.items)+1, t.max))
	items = append(items, n)
	for _, it := range t.items {
		if len(items) == t.max {
			break
		}
		items = append(items, it)
	}
	t.items = items
	t.persist(ctx)
	subs := append([]func(domain.Notification){}, t.subs...)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
	return n
}

// Dismiss removes one notification. It returns false when id is unknown.
func (t *Tracker) Dismiss(ctx context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, it := range t.items {
		if it.ID == id {
			t.items = append(t.items[:i:i], t.items[i+1:]...)
			t.persist(ctx)
			return true
		}
	}
	return false
}

// Clear removes every notification.
func (t *Tracker) Clear(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = nil
	t.persist(ctx)
}

// List returns a copy of the notifications, newest first.
func (t *Tracker) List() []domain.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Notification{}, t.items...)
}

// persist writes the list. Failures are logged and otherwise ignored.
// Caller holds t.mu.
func (t *Tracker) persist(ctx context.Context) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveNotifications(ctx, t.items); err != nil {
		slog.Warn("failed to persist notifications", "err", err, "count", len(t.items))
	}
}
