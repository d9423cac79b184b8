// Package api serves the derived views and the engine controls over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alejandrodnm/hodlbook/internal/adapters/backend"
	"github.com/alejandrodnm/hodlbook/internal/application/engine"
	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

// Service is what the handlers need from the engine.
type Service interface {
	View(ctx context.Context, mode views.Mode) (views.View, error)
	Status(ctx context.Context) (engine.Status, error)
	Settings() domain.Settings
	Pause()
	Resume() int
	Notifications() []domain.Notification
	DismissNotification(ctx context.Context, id string) bool
	ClearNotifications(ctx context.Context)
	UpdateOrder(ctx context.Context, mode views.Mode, uuid string, upd domain.OrderUpdate) (string, error)
	CancelOrder(ctx context.Context, mode views.Mode, uuid string) (string, error)
	OpenShared(ctx context.Context, uuid string) (bool, error)
	SetWallet(ctx context.Context, address string) error
	SetFilter(ctx context.Context, address string) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	svc Service
}

// NewHandler creates a new handler
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Router builds the chi router. Empty origins disables CORS.
func (h *Handler) Router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.Health)
	r.Get("/settings", h.GetSettings)
	r.Get("/views/{mode}", h.GetView)
	r.Get("/filled/{mode}", h.GetFilled)

	r.Get("/notifications", h.GetNotifications)
	r.Delete("/notifications", h.ClearNotifications)
	r.Delete("/notifications/{id}", h.DismissNotification)

	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)

	r.Put("/wallet", h.SetWallet)
	r.Put("/filter", h.SetFilter)

	r.Post("/shared/{uuid}", h.OpenShared)
	r.Patch("/orders/{uuid}", h.UpdateOrder)
	r.Delete("/orders/{uuid}", h.CancelOrder)
	return r
}

// Health reports loaded flags and store sizes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetSettings returns the order-form limits.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s := h.svc.Settings()
	writeJSON(w, http.StatusOK, map[string]float64{
		"open_max": s.OpenMax,
		"open_min": s.OpenMin,
		"fill_min": s.FillMin,
	})
}

// GetView returns the rows of one mode with their display status.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetFilled returns the filled/closed groups of one mode.
func (h *Handler) GetFilled(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Filled)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (views.View, bool) {
	mode, err := views.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown mode")
		return views.View{}, false
	}
	view, err := h.svc.View(r.Context(), mode)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return views.View{}, false
	}
	return view, true
}

// GetNotifications lists notifications, newest first.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Notifications()
	if items == nil {
		items = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// DismissNotification removes one notification.
func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	if !h.svc.DismissNotification(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications removes every notification.
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearNotifications(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Pause starts queueing public frames.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.svc.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Resume replays queued public frames.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	n := h.svc.Resume()
	writeJSON(w, http.StatusOK, map[string]int{"replayed": n})
}

type addressRequest struct {
	Address string `json:"address"`
}

// SetWallet switches the personal streams.
func (h *Handler) SetWallet(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.svc.SetWallet)
}

// SetFilter switches the filtered stream.
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.svc.SetFilter)
}

func (h *Handler) setAddress(w http.ResponseWriter, r *http.Request, set func(context.Context, string) error) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := set(r.Context(), req.Address); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": strings.TrimSpace(req.Address)})
}

// OpenShared injects a shared order into the public book when missing.
func (h *Handler) OpenShared(w http.ResponseWriter, r *http.Request) {
	present, err := h.svc.OpenShared(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeActionError(w, err)
		return
	}
	if !present {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"present": true})
}

// UpdateOrder posts new terms for an open order. ?mode= selects the store
// the order is looked up in (book by default).
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	mode, ok := actionMode(w, r)
	if !ok {
		return
	}
	var upd domain.OrderUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.svc.UpdateOrder(r.Context(), mode, chi.URLParam(r, "uuid"), upd)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// CancelOrder closes an open order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	mode, ok := actionMode(w, r)
	if !ok {
		return
	}
	msg, err := h.svc.CancelOrder(r.Context(), mode, chi.URLParam(r, "uuid"))
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func actionMode(w http.ResponseWriter, r *http.Request) (views.Mode, bool) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		return views.ModeBook, true
	}
	mode, err := views.ParseMode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown mode")
		return "", false
	}
	return mode, true
}

// writeActionError maps engine and backend failures to a status and the
// message the backend sent.
func writeActionError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, engine.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "open order not found")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	case errors.Is(err, backend.ErrUnreachable):
		writeError(w, http.StatusBadGateway, backend.ErrUnreachable.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
