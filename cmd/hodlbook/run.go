package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/hodlbook/config"
	"github.com/alejandrodnm/hodlbook/internal/api"
	"github.com/alejandrodnm/hodlbook/internal/application/engine"
	"github.com/alejandrodnm/hodlbook/internal/ports"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

// runWatch corre el motor, la API HTTP y el refresco periódico de la consola
// hasta que ctx se cancela.
func runWatch(ctx context.Context, cfg *config.Config, eng *engine.Engine, notifier ports.Notifier, mode views.Mode, shared string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return eng.Run(gctx) })

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewHandler(eng).Router(cfg.HTTP.CORSOrigins),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("views API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("views API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if shared != "" {
		g.Go(func() error {
			openShared(gctx, eng, shared)
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.RefreshInterval())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				render(gctx, eng, notifier, mode)
			}
		}
	})

	return g.Wait()
}

// runOnce espera la carga inicial del store de la vista, imprime la vista
// una vez y sale.
func runOnce(ctx context.Context, eng *engine.Engine, notifier ports.Notifier, mode views.Mode, shared string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	if err := waitLoaded(ctx, eng, storeFor(mode), 10*time.Second); err != nil {
		slog.Warn("initial sync incomplete", "err", err)
	}
	if shared != "" {
		openShared(ctx, eng, shared)
	}
	render(ctx, eng, notifier, mode)

	cancel()
	return <-done
}

func waitLoaded(ctx context.Context, eng *engine.Engine, name string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		st, err := eng.Status(ctx)
		if err == nil && st.Loaded[name] {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("store %s not loaded after %s", name, timeout)
		case <-poll.C:
		}
	}
}

func storeFor(mode views.Mode) string {
	switch mode {
	case views.ModeMine:
		return "personal"
	case views.ModeFiltered:
		return "filtered"
	default:
		return "public"
	}
}

func openShared(ctx context.Context, eng *engine.Engine, uuid string) {
	present, err := eng.OpenShared(ctx, uuid)
	if err != nil {
		slog.Warn("shared order lookup failed", "uuid", uuid, "err", err)
		return
	}
	slog.Info("shared order", "uuid", uuid, "present", present)
}

func render(ctx context.Context, eng *engine.Engine, notifier ports.Notifier, mode views.Mode) {
	view, err := eng.View(ctx, mode)
	if err != nil {
		slog.Debug("view unavailable", "err", err)
		return
	}
	if err := notifier.Notify(ctx, view); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}
