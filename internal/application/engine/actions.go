package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/store"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

// ErrOrderNotFound is returned when no open order matches the uuid.
var ErrOrderNotFound = errors.New("engine: open order not found")

// UpdateOrder submits new terms for an open order. The order is looked up in
// the store backing mode, completed with the escrow record and posted. On
// success the update is applied to the open record in the public and
// personal stores. Returns the server message.
func (e *Engine) UpdateOrder(ctx context.Context, mode views.Mode, uuid string, upd domain.OrderUpdate) (string, error) {
	order, err := e.openOrder(ctx, mode, uuid)
	if err != nil {
		return "", fmt.Errorf("engine.UpdateOrder: %w", err)
	}

	payload := order.FillBlanks(e.backend.FetchEscrowRecord(ctx, order.Escrow))
	upd.Apply(&payload)
	payload.UUID = order.UUID
	payload.Status = domain.StatusOpen

	res, err := e.backend.PostRecord(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("engine.UpdateOrder: post: %w", err)
	}

	apply := func(s *store.Store) { s.UpdateOpen(uuid, upd.Apply) }
	e.public.Post(apply)
	e.personal.Post(apply)

	slog.Info("order updated", "uuid", uuid, "message", res.Message)
	return res.Message, nil
}

// CancelOrder closes an open order. The stores change only when the push
// streams report the closed record.
func (e *Engine) CancelOrder(ctx context.Context, mode views.Mode, uuid string) (string, error) {
	order, err := e.openOrder(ctx, mode, uuid)
	if err != nil {
		return "", fmt.Errorf("engine.CancelOrder: %w", err)
	}

	payload := order.FillBlanks(e.backend.FetchEscrowRecord(ctx, order.Escrow))
	payload.UUID = order.UUID
	payload.Status = domain.StatusClosed

	res, err := e.backend.PostRecord(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("engine.CancelOrder: post: %w", err)
	}
	slog.Info("order close requested", "uuid", uuid, "message", res.Message)
	return res.Message, nil
}

// OpenShared makes a shared order visible in the public store. When the
// order is already there nothing is fetched. Returns true when the order is
// present afterwards.
func (e *Engine) OpenShared(ctx context.Context, uuid string) (bool, error) {
	var present bool
	if err := e.public.Query(ctx, func(s *store.Store) {
		_, present = s.Get(uuid)
	}); err != nil {
		return false, fmt.Errorf("engine.OpenShared: %w", err)
	}
	if present {
		return true, nil
	}

	orders, err := e.backend.LookupOrder(ctx, uuid)
	if err != nil {
		return false, fmt.Errorf("engine.OpenShared: lookup: %w", err)
	}
	err = e.public.Query(ctx, func(s *store.Store) {
		for _, o := range orders {
			s.Inject(o)
		}
		_, present = s.Get(uuid)
	})
	if err != nil {
		return false, fmt.Errorf("engine.OpenShared: inject: %w", err)
	}
	return present, nil
}

func (e *Engine) openOrder(ctx context.Context, mode views.Mode, uuid string) (domain.Order, error) {
	source := e.public
	switch mode {
	case views.ModeMine:
		source = e.personal
	case views.ModeFiltered:
		source = e.filtered
	}

	var (
		order domain.Order
		found bool
	)
	err := source.Query(ctx, func(s *store.Store) {
		order, found = s.Get(uuid)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !found || order.Status != domain.StatusOpen {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, uuid)
	}
	return order, nil
}
