package store

import (
	"context"
	"errors"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// ErrStopped is returned by Query once the actor has exited.
var ErrStopped = errors.New("store: actor stopped")

// Actor owns a Store and serializes every access to it through a mailbox.
// Closures posted from one goroutine run in the order they were posted.
type Actor struct {
	name  string
	store *Store
	inbox chan func(*Store)
	done  chan struct{}
}

// NewActor wraps s. buffer is the mailbox capacity.
func NewActor(name string, s *Store, buffer int) *Actor {
	if buffer < 0 {
		buffer = 0
	}
	return &Actor{
		name:  name,
		store: s,
		inbox: make(chan func(*Store), buffer),
		done:  make(chan struct{}),
	}
}

// Name identifies the actor in logs.
func (a *Actor) Name() string { return a.name }

// Run processes the mailbox until ctx is cancelled.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-a.inbox:
			fn(a.store)
		}
	}
}

// Post enqueues fn without waiting for it to run. It blocks while the
// mailbox is full and drops fn once the actor has stopped.
func (a *Actor) Post(fn func(*Store)) {
	select {
	case a.inbox <- fn:
	case <-a.done:
	}
}

// Query runs fn on the actor goroutine and waits for it to finish.
func (a *Actor) Query(ctx context.Context, fn func(*Store)) error {
	finished := make(chan struct{})
	wrapped := func(s *Store) {
		defer close(finished)
		fn(s)
	}
	select {
	case a.inbox <- wrapped:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-a.done:
		// Run may have exited with wrapped still queued.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the store contents.
func (a *Actor) Snapshot(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	err := a.Query(ctx, func(s *Store) { out = s.Snapshot() })
	return out, err
}
