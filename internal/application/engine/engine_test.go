package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hodlbook/internal/application/engine"
	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/notify"
	"github.com/alejandrodnm/hodlbook/internal/ports"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

const wait = 2 * time.Second

// --- fakes ---

type message struct {
	raw []byte
	ack chan struct{}
}

type fakeStream struct {
	onConnect func(bool)
	frames    chan message

	mu        sync.Mutex
	connected bool
}

func (s *fakeStream) Run(ctx context.Context, handle func([]byte)) error {
	if s.onConnect != nil {
		s.onConnect(false)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-s.frames:
			handle(m.raw)
			close(m.ack)
		}
	}
}

func (s *fakeStream) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type fakeStreams struct {
	mu     sync.Mutex
	opened map[string][]*fakeStream
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{opened: make(map[string][]*fakeStream)}
}

func (f *fakeStreams) Book(address string, onConnect func(bool)) ports.Stream {
	return f.open("book:"+address, onConnect)
}

func (f *fakeStreams) Tap(address string, onConnect func(bool)) ports.Stream {
	return f.open("tap:"+address, onConnect)
}

func (f *fakeStreams) open(key string, onConnect func(bool)) *fakeStream {
	s := &fakeStream{onConnect: onConnect, frames: make(chan message)}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened[key] = append(f.opened[key], s)
	return s
}

func (f *fakeStreams) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened[key])
}

// latest waits for the newest stream under key to connect.
func (f *fakeStreams) latest(t *testing.T, key string) *fakeStream {
	t.Helper()
	var s *fakeStream
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.opened[key]
		if len(list) == 0 {
			return false
		}
		s = list[len(list)-1]
		return s.isConnected()
	}, wait, time.Millisecond, "stream %s never connected", key)
	return s
}

// send delivers raw and returns once the engine handled it.
func (f *fakeStreams) send(t *testing.T, key, raw string) {
	t.Helper()
	s := f.latest(t, key)
	m := message{raw: []byte(raw), ack: make(chan struct{})}
	select {
	case s.frames <- m:
	case <-time.After(wait):
		t.Fatalf("stream %s not reading", key)
	}
	<-m.ack
}

type fakeBackend struct {
	mu       sync.Mutex
	settings domain.Settings
	prices   map[int]float64
	escrow   domain.Order
	lookup   []domain.Order
	lookups  int
	posted   []domain.Order
	postErr  error
}

func (b *fakeBackend) FetchSettings(context.Context) (domain.Settings, error) {
	return b.settings, nil
}

func (b *fakeBackend) FetchPrices(context.Context) (map[int]float64, error) {
	return b.prices, nil
}

func (b *fakeBackend) FetchEscrowRecord(context.Context, string) domain.Order {
	return b.escrow
}

func (b *fakeBackend) LookupOrder(context.Context, string) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups++
	return b.lookup, nil
}

func (b *fakeBackend) PostRecord(_ context.Context, o domain.Order) (domain.RecResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posted = append(b.posted, o)
	if b.postErr != nil {
		return domain.RecResult{}, b.postErr
	}
	return domain.RecResult{Message: "Order updated"}, nil
}

func (b *fakeBackend) lastPosted() domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.posted[len(b.posted)-1]
}

// --- harness ---

type harness struct {
	engine  *engine.Engine
	streams *fakeStreams
	backend *fakeBackend
	clock   *clock.Mock
	tracker *notify.Tracker
}

func start(t *testing.T, cfg engine.Config) *harness {
	t.Helper()
	h := &harness{
		streams: newFakeStreams(),
		backend: &fakeBackend{settings: domain.Settings{OpenMax: 20, OpenMin: 1, FillMin: 0.1}},
		clock:   clock.NewMock(),
	}
	h.tracker = notify.NewTracker(nil, h.clock, 0)
	h.engine = engine.New(h.backend, h.streams, h.tracker, h.clock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func (h *harness) view(t *testing.T, mode views.Mode) views.View {
	t.Helper()
	v, err := h.engine.View(context.Background(), mode)
	require.NoError(t, err)
	return v
}

func (h *harness) status(t *testing.T) engine.Status {
	t.Helper()
	st, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	return st
}

func record(uuid string, status domain.Status, extra string) string {
	return fmt.Sprintf(`{"uuid":%q,"date":"2026-03-01 12:00:00","status":%d,"type":1,"public":"True","escrow":"esc-%s"%s}`,
		uuid, status, uuid, extra)
}

func batch(records ...string) string {
	out := "["
	for i, r := range records {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out + "]"
}

func rowUUIDs(v views.View) []string {
	out := make([]string, 0, len(v.Rows))
	for _, r := range v.Rows {
		out = append(out, r.UUID)
	}
	return out
}

// --- tests ---

func TestEngine_PublicBatchAndPurge(t *testing.T) {
	h := start(t, engine.Config{})

	h.streams.send(t, "book:", batch(record("a", 1, ""), record("b", 1, "")))
	assert.ElementsMatch(t, []string{"a", "b"}, rowUUIDs(h.view(t, views.ModeBook)))

	h.streams.send(t, "book:", record("a", 2, ""))
	assert.Equal(t, []string{"b"}, rowUUIDs(h.view(t, views.ModeBook)))
	assert.True(t, h.status(t).Loaded["public"])
}

func TestEngine_DropsGarbageFrames(t *testing.T) {
	h := start(t, engine.Config{})

	h.streams.send(t, "book:", "not json")
	h.streams.send(t, "book:", `{"foo": 1}`)

	st := h.status(t)
	assert.False(t, st.Loaded["public"])
	assert.Zero(t, st.Orders["public"])
}

func TestEngine_PauseReplayEquivalence(t *testing.T) {
	frames := []string{
		batch(record("a", 1, `,"tao":1`), record("b", 1, "")),
		record("c", 1, ""),
		record("a", 2, ""),
		`{}`,
		batch(record("b", 1, `,"alpha":4`), record("d", 3, "")),
	}

	direct := start(t, engine.Config{})
	for _, f := range frames {
		direct.streams.send(t, "book:", f)
	}

	paused := start(t, engine.Config{})
	paused.engine.Pause()
	for _, f := range frames {
		paused.streams.send(t, "book:", f)
	}
	st := paused.status(t)
	assert.True(t, st.Paused)
	assert.Equal(t, len(frames), st.Queued)
	assert.Zero(t, st.Orders["public"])

	assert.Equal(t, len(frames), paused.engine.Resume())

	want := direct.view(t, views.ModeBook)
	got := paused.view(t, views.ModeBook)
	assert.Equal(t, want.Rows, got.Rows)
	assert.Equal(t, want.Filled, got.Filled)
	assert.Zero(t, paused.status(t).Queued)
}

func TestEngine_CrossSyncPatchesStatusOnly(t *testing.T) {
	h := start(t, engine.Config{Wallet: "w1"})

	h.streams.send(t, "book:", batch(record("a", 1, `,"tao":3`)))
	h.streams.send(t, "book:w1", batch(record("a", 2, "")))

	require.Eventually(t, func() bool {
		group := h.view(t, views.ModeBook).Filled["a"]
		return len(group) == 1 && group[0].Status == domain.StatusFilled
	}, wait, time.Millisecond)

	public := h.view(t, views.ModeBook).Filled["a"][0]
	assert.Equal(t, 3.0, public.Tao, "only the status changes")
	assert.Empty(t, h.view(t, views.ModeBook).Rows)
}

func TestEngine_NotificationsOnlyAfterLoaded(t *testing.T) {
	h := start(t, engine.Config{Wallet: "w1"})

	// history backfill is silent
	h.streams.send(t, "book:w1", batch(record("aaaaaaaa-1", 2, ""), record("bbbbbbbb-2", 1, "")))
	h.status(t)
	assert.Empty(t, h.engine.Notifications())

	h.streams.send(t, "book:w1", record("bbbbbbbb-2", 3, ""))
	h.streams.send(t, "book:w1", batch(record("cccccccc-3", 2, "")))
	h.status(t)

	got := h.engine.Notifications()
	require.Len(t, got, 2)
	assert.Equal(t, domain.NotifyFilled, got[0].Kind)
	assert.Equal(t, "Order cccccccc... has been filled", got[0].Message)
	assert.Equal(t, domain.NotifyCancelled, got[1].Kind)
	assert.Equal(t, "Order bbbbbbbb... has been closed", got[1].Message)
	assert.Equal(t, "bbbbbbbb-2", got[1].OrderUUID)

	// re-sent resolution: no duplicate notification
	h.streams.send(t, "book:w1", record("bbbbbbbb-2", 3, ""))
	h.status(t)
	assert.Len(t, h.engine.Notifications(), 2)

	require.True(t, h.engine.DismissNotification(context.Background(), got[0].ID))
	assert.Len(t, h.engine.Notifications(), 1)
	h.engine.ClearNotifications(context.Background())
	assert.Empty(t, h.engine.Notifications())
}

func TestEngine_LoadedFallback(t *testing.T) {
	h := start(t, engine.Config{LoadedFallback: 3 * time.Second})
	h.streams.latest(t, "book:")

	h.clock.Add(2 * time.Second)
	assert.False(t, h.status(t).Loaded["public"])

	h.clock.Add(time.Second)
	require.Eventually(t, func() bool { return h.status(t).Loaded["public"] }, wait, time.Millisecond)
}

func TestEngine_SetWalletResetsPersonal(t *testing.T) {
	h := start(t, engine.Config{Wallet: "w1"})
	ctx := context.Background()

	h.streams.send(t, "book:w1", batch(record("a", 1, "")))
	st := h.status(t)
	require.Equal(t, 1, st.Orders["personal"])
	require.True(t, st.Loaded["personal"])

	require.NoError(t, h.engine.SetWallet(ctx, " w2 "))
	st = h.status(t)
	assert.Zero(t, st.Orders["personal"])
	assert.False(t, st.Loaded["personal"])
	assert.Equal(t, "w2", st.Wallet)

	h.streams.send(t, "book:w2", batch(record("b", 1, "")))
	assert.Equal(t, []string{"b"}, rowUUIDs(h.view(t, views.ModeMine)))
	assert.Equal(t, 1, h.streams.count("tap:w2"))

	require.NoError(t, h.engine.SetWallet(ctx, ""))
	assert.Zero(t, h.status(t).Orders["personal"])
	assert.Equal(t, 1, h.streams.count("book:w2"))
}

func TestEngine_SetFilter(t *testing.T) {
	h := start(t, engine.Config{})

	require.NoError(t, h.engine.SetFilter(context.Background(), "5F"))
	h.streams.send(t, "book:5F", batch(record("a", 3, ""), record("b", 1, `,"public":"False"`)))

	v := h.view(t, views.ModeFiltered)
	assert.ElementsMatch(t, []string{"a", "b"}, rowUUIDs(v))
	assert.Len(t, v.Filled["a"], 1)
}

func TestEngine_HighlightMarkersExpire(t *testing.T) {
	h := start(t, engine.Config{})

	// initial sync: no markers
	h.streams.send(t, "book:", batch(record("a", 1, "")))
	require.False(t, h.view(t, views.ModeBook).Rows[0].Highlight)

	h.streams.send(t, "book:", batch(record("b", 1, "")))
	rows := h.view(t, views.ModeBook).Rows
	highlighted := map[string]bool{}
	for _, r := range rows {
		highlighted[r.UUID] = r.Highlight
	}
	assert.Equal(t, map[string]bool{"a": false, "b": true}, highlighted)

	h.clock.Add(3500 * time.Millisecond)
	require.Eventually(t, func() bool {
		for _, r := range h.view(t, views.ModeBook).Rows {
			if r.Highlight {
				return false
			}
		}
		return true
	}, wait, time.Millisecond)
}

func TestEngine_EscrowTicksRoutedPerStream(t *testing.T) {
	h := start(t, engine.Config{Wallet: "w1"})

	h.streams.send(t, "book:", batch(record("a", 1, `,"tao":1`)))
	h.streams.send(t, "book:w1", batch(record("b", 1, `,"alpha":1`)))

	h.streams.send(t, "tap:", `{"escrow":"esc-a","tao":5}`)
	h.streams.send(t, "tap:w1", `{"escrow":"esc-b","alpha":7}`)
	// wrong stream for this escrow: ignored by the personal store
	h.streams.send(t, "tap:w1", `{"escrow":"esc-a","tao":99}`)
	h.clock.Add(200 * time.Millisecond)

	require.Eventually(t, func() bool {
		book := h.view(t, views.ModeBook).Rows
		mine := h.view(t, views.ModeMine).Rows
		return len(book) == 1 && book[0].Tao == 5 && len(mine) == 1 && mine[0].Alpha == 7
	}, wait, time.Millisecond)
}

func TestEngine_PriceTicksAndBootstrap(t *testing.T) {
	h := start(t, engine.Config{})

	require.Eventually(t, func() bool {
		return h.engine.Settings().OpenMax == 20
	}, wait, time.Millisecond)

	h.streams.send(t, "tap:", `{"price":{"1":0.5,"2":0},"subnet_name":{"1":"apex"}}`)
	h.streams.send(t, "tap:", `{"price":{"1":0.75}}`)
	assert.Equal(t, "apex", h.engine.Board().Names()[1])

	h.clock.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		p, ok := h.engine.Board().Price(1)
		return ok && p == 0.75
	}, wait, time.Millisecond)
	_, ok := h.engine.Board().Price(2)
	assert.False(t, ok)
}

func TestEngine_UpdateOrder(t *testing.T) {
	h := start(t, engine.Config{})
	h.backend.escrow = domain.Order{UUID: "other", Wallet: "w9", Accept: "5Acc", Status: domain.StatusFilled}

	h.streams.send(t, "book:", batch(record("a", 1, `,"ask":1,"asset":3`)))

	ask := 2.5
	msg, err := h.engine.UpdateOrder(context.Background(), views.ModeBook, "a", domain.OrderUpdate{Ask: &ask})
	require.NoError(t, err)
	assert.Equal(t, "Order updated", msg)

	posted := h.backend.lastPosted()
	assert.Equal(t, "a", posted.UUID)
	assert.Equal(t, domain.StatusOpen, posted.Status)
	assert.Equal(t, 2.5, posted.Ask)
	assert.Equal(t, 3, posted.Asset)
	assert.Equal(t, "w9", posted.Wallet, "blank fields come from the escrow record")

	require.Eventually(t, func() bool {
		rows := h.view(t, views.ModeBook).Rows
		return len(rows) == 1 && rows[0].Ask == 2.5
	}, wait, time.Millisecond)
}

func TestEngine_UpdateOrderSurfacesPostError(t *testing.T) {
	h := start(t, engine.Config{})
	errRejected := errors.New("Error (400): bad ask")
	h.backend.postErr = errRejected

	h.streams.send(t, "book:", batch(record("a", 1, `,"ask":1`)))

	ask := 9.0
	_, err := h.engine.UpdateOrder(context.Background(), views.ModeBook, "a", domain.OrderUpdate{Ask: &ask})
	require.ErrorIs(t, err, errRejected)

	rows := h.view(t, views.ModeBook).Rows
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].Ask)
}

func TestEngine_CancelOrder(t *testing.T) {
	h := start(t, engine.Config{Wallet: "w1"})

	h.streams.send(t, "book:w1", batch(record("a", 1, ""), record("b", 2, "")))

	_, err := h.engine.CancelOrder(context.Background(), views.ModeMine, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, h.backend.lastPosted().Status)

	_, err = h.engine.CancelOrder(context.Background(), views.ModeMine, "b")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	_, err = h.engine.CancelOrder(context.Background(), views.ModeBook, "a")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
}

func TestEngine_OpenShared(t *testing.T) {
	h := start(t, engine.Config{})
	h.backend.lookup = []domain.Order{{
		UUID: "s", Date: "2026-03-01 12:00:00", Status: domain.StatusOpen, Public: true, Type: domain.TypeBuy,
	}}

	present, err := h.engine.OpenShared(context.Background(), "s")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []string{"s"}, rowUUIDs(h.view(t, views.ModeBook)))

	present, err = h.engine.OpenShared(context.Background(), "s")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, 1, h.backend.lookups)
}
