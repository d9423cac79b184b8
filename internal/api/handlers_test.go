package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hodlbook/internal/adapters/backend"
	"github.com/alejandrodnm/hodlbook/internal/api"
	"github.com/alejandrodnm/hodlbook/internal/application/engine"
	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

type fakeService struct {
	mu       sync.Mutex
	paused   bool
	wallet   string
	mode     views.Mode
	update   domain.OrderUpdate
	notes    []domain.Notification
	actErr   error
	shared   bool
	statusOK bool
}

func (f *fakeService) View(_ context.Context, mode views.Mode) (views.View, error) {
	return views.View{
		Mode: mode,
		Rows: []views.Row{{
			Order:   domain.Order{UUID: "a", Status: domain.StatusOpen},
			Display: domain.StatusStopped,
		}},
		Filled: map[string][]domain.Order{"p": {{UUID: "f", Origin: "p", Status: domain.StatusFilled}}},
	}, nil
}

func (f *fakeService) Status(context.Context) (engine.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.statusOK {
		return engine.Status{}, fmt.Errorf("store: actor stopped")
	}
	return engine.Status{Loaded: map[string]bool{"public": true}}, nil
}

func (f *fakeService) Settings() domain.Settings {
	return domain.DefaultSettings()
}

func (f *fakeService) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeService) Resume() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return 3
}

func (f *fakeService) Notifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes
}

func (f *fakeService) DismissNotification(_ context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notes {
		if n.ID == id {
			f.notes = append(f.notes[:i], f.notes[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeService) ClearNotifications(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = nil
}

func (f *fakeService) UpdateOrder(_ context.Context, mode views.Mode, _ string, upd domain.OrderUpdate) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode, f.update = mode, upd
	return "Order updated", f.actErr
}

func (f *fakeService) CancelOrder(_ context.Context, mode views.Mode, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	return "Order closed", f.actErr
}

func (f *fakeService) OpenShared(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shared, f.actErr
}

func (f *fakeService) SetWallet(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallet = strings.TrimSpace(address)
	return nil
}

func (f *fakeService) SetFilter(context.Context, string) error { return nil }

// with runs fn holding the fake's lock.
func (f *fakeService) with(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func serve(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewHandler(svc).Router([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestGetView(t *testing.T) {
	srv := serve(t, &fakeService{})

	resp, body := do(t, http.MethodGet, srv.URL+"/views/mine", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "mine", body["mode"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(domain.StatusStopped), rows[0].(map[string]any)["display"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/views/everything", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetFilled(t *testing.T) {
	srv := serve(t, &fakeService{})

	resp, body := do(t, http.MethodGet, srv.URL+"/filled/book", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "p")
}

func TestHealth(t *testing.T) {
	svc := &fakeService{}
	srv := serve(t, svc)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	svc.with(func() { svc.statusOK = true })
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["loaded"].(map[string]any)["public"])
}

func TestNotifications(t *testing.T) {
	svc := &fakeService{notes: []domain.Notification{{ID: "n1"}, {ID: "n2"}}}
	srv := serve(t, svc)

	resp, _ := do(t, http.MethodDelete, srv.URL+"/notifications/n1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	svc.with(func() { assert.Len(t, svc.notes, 1) })

	resp, _ = do(t, http.MethodDelete, srv.URL+"/notifications/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/notifications", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	svc.with(func() { assert.Empty(t, svc.notes) })

	get, err := http.Get(srv.URL + "/notifications")
	require.NoError(t, err)
	defer get.Body.Close()
	var list []domain.Notification
	require.NoError(t, json.NewDecoder(get.Body).Decode(&list))
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestPauseResume(t *testing.T) {
	svc := &fakeService{}
	srv := serve(t, svc)

	resp, _ := do(t, http.MethodPost, srv.URL+"/pause", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	svc.with(func() { assert.True(t, svc.paused) })

	_, body := do(t, http.MethodPost, srv.URL+"/resume", "")
	assert.Equal(t, float64(3), body["replayed"])
	svc.with(func() { assert.False(t, svc.paused) })
}

func TestSetWallet(t *testing.T) {
	svc := &fakeService{}
	srv := serve(t, svc)

	resp, body := do(t, http.MethodPut, srv.URL+"/wallet", `{"address":" 5Abc "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5Abc", body["address"])
	svc.with(func() { assert.Equal(t, "5Abc", svc.wallet) })

	resp, _ = do(t, http.MethodPut, srv.URL+"/wallet", `nope`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateOrder(t *testing.T) {
	svc := &fakeService{}
	srv := serve(t, svc)

	resp, body := do(t, http.MethodPatch, srv.URL+"/orders/a?mode=mine", `{"ask": 2.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order updated", body["message"])
	svc.with(func() {
		assert.Equal(t, views.ModeMine, svc.mode)
		require.NotNil(t, svc.update.Ask)
		assert.Equal(t, 2.5, *svc.update.Ask)
		assert.Nil(t, svc.update.Bid)
	})

	resp, _ = do(t, http.MethodPatch, srv.URL+"/orders/a?mode=bogus", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", fmt.Errorf("engine.CancelOrder: %w: a", engine.ErrOrderNotFound), http.StatusNotFound, "open order not found"},
		{"backend", fmt.Errorf("engine.CancelOrder: post: %w", &backend.APIError{Status: 400, Message: "Error (400): bad"}), http.StatusBadGateway, "Error (400): bad"},
		{"unreachable", fmt.Errorf("post: %w", backend.ErrUnreachable), http.StatusBadGateway, backend.ErrUnreachable.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, &fakeService{actErr: tc.err})

			resp, body := do(t, http.MethodDelete, srv.URL+"/orders/a", "")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.msg, body["error"])
		})
	}

	svc := &fakeService{}
	srv := serve(t, svc)
	resp, body := do(t, http.MethodDelete, srv.URL+"/orders/a", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order closed", body["message"])
	svc.with(func() { assert.Equal(t, views.ModeBook, svc.mode) })
}

func TestOpenShared(t *testing.T) {
	svc := &fakeService{}
	srv := serve(t, svc)

	resp, _ := do(t, http.MethodPost, srv.URL+"/shared/s", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	svc.with(func() { svc.shared = true })
	resp, body := do(t, http.MethodPost, srv.URL+"/shared/s", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["present"])
}

func TestCORS(t *testing.T) {
	srv := serve(t, &fakeService{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/views/book", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
