// Package engine wires the push streams, the three order stores, the tick
// aggregator and the notification tracker into one running client.
//
// Stream handlers never touch a store directly: each frame is decoded on the
// stream goroutine and posted as a closure to the store's actor. Handlers
// take e.mu only to check the pause flag and the slot generation, and actor
// closures never take e.mu.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/expiry"
	"github.com/alejandrodnm/hodlbook/internal/frame"
	"github.com/alejandrodnm/hodlbook/internal/notify"
	"github.com/alejandrodnm/hodlbook/internal/ports"
	"github.com/alejandrodnm/hodlbook/internal/store"
	"github.com/alejandrodnm/hodlbook/internal/ticks"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

const (
	defaultHighlightTTL   = 3500 * time.Millisecond
	defaultLoadedFallback = 3 * time.Second
	defaultMailbox        = 256
)

// Stream slots. Each slot runs at most one connection at a time.
const (
	slotBook     = "book"
	slotTap      = "tap"
	slotMine     = "mine"
	slotMyTap    = "mytap"
	slotFiltered = "filtered"
)

var slotNames = []string{slotBook, slotTap, slotMine, slotMyTap, slotFiltered}

// Config holds configuration for the engine.
type Config struct {
	Wallet         string
	Filter         string
	TickWindow     time.Duration
	HighlightTTL   time.Duration
	LoadedFallback time.Duration
	Tombstones     int
	Mailbox        int
}

// Status summarizes the engine for health checks.
type Status struct {
	Paused  bool            `json:"paused"`
	Queued  int             `json:"queued"`
	Wallet  string          `json:"wallet,omitempty"`
	Filter  string          `json:"filter,omitempty"`
	Loaded  map[string]bool `json:"loaded"`
	Orders  map[string]int  `json:"orders"`
	Commits int             `json:"price_commits"`
}

type slot struct {
	gen      uint64
	cancel   context.CancelFunc
	fallback *clock.Timer
}

// Engine is the running order-book client.
type Engine struct {
	cfg     Config
	clock   clock.Clock
	backend ports.Backend
	streams ports.StreamFactory
	tracker *notify.Tracker

	public   *store.Actor
	personal *store.Actor
	filtered *store.Actor

	sched   *ticks.Scheduler
	agg     *ticks.Aggregator
	board   *ticks.Board
	markers *expiry.Map[domain.OrderType]

	mu       sync.Mutex
	ctx      context.Context
	wg       sync.WaitGroup
	paused   bool
	queue    [][]byte
	slots    map[string]*slot
	settings domain.Settings
}

// New creates an engine. clk may be nil to use the wall clock.
func New(
	backend ports.Backend,
	streams ports.StreamFactory,
	tracker *notify.Tracker,
	clk clock.Clock,
	cfg Config,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.HighlightTTL <= 0 {
		cfg.HighlightTTL = defaultHighlightTTL
	}
	if cfg.LoadedFallback <= 0 {
		cfg.LoadedFallback = defaultLoadedFallback
	}
	if cfg.Mailbox <= 0 {
		cfg.Mailbox = defaultMailbox
	}
	cfg.Wallet = strings.TrimSpace(cfg.Wallet)
	cfg.Filter = strings.TrimSpace(cfg.Filter)

	e := &Engine{
		cfg:      cfg,
		clock:    clk,
		backend:  backend,
		streams:  streams,
		tracker:  tracker,
		public:   store.NewActor("public", store.New(store.Public, cfg.Tombstones), cfg.Mailbox),
		personal: store.NewActor("personal", store.New(store.Personal, cfg.Tombstones), cfg.Mailbox),
		filtered: store.NewActor("filtered", store.New(store.Filtered, cfg.Tombstones), cfg.Mailbox),
		sched:    ticks.NewScheduler(clk),
		board:    ticks.NewBoard(),
		markers:  expiry.New[domain.OrderType](clk, cfg.HighlightTTL),
		slots:    make(map[string]*slot, len(slotNames)),
		settings: domain.DefaultSettings(),
	}
	e.agg = ticks.NewAggregator(e.sched, cfg.TickWindow, e)
	for _, name := range slotNames {
		e.slots[name] = &slot{}
	}
	return e
}

// Run starts the store actors and the streams and blocks until ctx is
// cancelled. Stream failures are logged and never stop the engine.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	e.mu.Lock()
	e.ctx = gctx
	e.mu.Unlock()

	for _, a := range []*store.Actor{e.public, e.personal, e.filtered} {
		g.Go(func() error { return a.Run(gctx) })
	}

	e.mu.Lock()
	e.startLocked(slotBook, "")
	e.startLocked(slotTap, "")
	if e.cfg.Wallet != "" {
		e.startLocked(slotMine, e.cfg.Wallet)
		e.startLocked(slotMyTap, e.cfg.Wallet)
	}
	if e.cfg.Filter != "" {
		e.startLocked(slotFiltered, e.cfg.Filter)
	}
	e.mu.Unlock()

	g.Go(func() error {
		e.bootstrap(gctx)
		return nil
	})

	<-gctx.Done()
	e.mu.Lock()
	for _, name := range slotNames {
		e.stopLocked(name)
	}
	e.mu.Unlock()
	e.sched.Stop()
	e.wg.Wait()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine.Run: %w", err)
	}
	return nil
}

// bootstrap loads the order-form settings and the initial subnet prices.
// Both are best effort: the tap stream keeps prices current anyway.
func (e *Engine) bootstrap(ctx context.Context) {
	settings, err := e.backend.FetchSettings(ctx)
	if err != nil {
		slog.Warn("settings fetch failed, using defaults", "err", err)
	} else {
		e.mu.Lock()
		e.settings = settings
		e.mu.Unlock()
	}

	prices, err := e.backend.FetchPrices(ctx)
	if err != nil {
		slog.Warn("initial price fetch failed", "err", err)
		return
	}
	if len(prices) > 0 {
		e.board.CommitPrices(prices)
	}
	slog.Debug("initial prices loaded", "assets", len(prices))
}

// startLocked opens a fresh connection in slot name. Frames from previous
// connections of the same slot are ignored from here on.
func (e *Engine) startLocked(name, address string) {
	sl := e.slots[name]
	sl.gen++
	gen := sl.gen

	ctx, cancel := context.WithCancel(e.ctx)
	sl.cancel = cancel

	onConnect := func(reconnect bool) { e.connected(name, gen, reconnect) }
	var s ports.Stream
	if name == slotTap || name == slotMyTap {
		s = e.streams.Tap(address, onConnect)
	} else {
		s = e.streams.Book(address, onConnect)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := s.Run(ctx, func(raw []byte) { e.handle(name, gen, raw) }); err != nil {
			slog.Warn("stream stopped", "stream", name, "err", err)
		}
	}()
}

func (e *Engine) stopLocked(name string) {
	sl := e.slots[name]
	sl.gen++
	if sl.cancel != nil {
		sl.cancel()
		sl.cancel = nil
	}
	if sl.fallback != nil {
		sl.fallback.Stop()
		sl.fallback = nil
	}
}

// connected arms the loaded fallback for order streams. A reconnect re-arms
// it; it is a no-op once the store is loaded.
func (e *Engine) connected(name string, gen uint64, reconnect bool) {
	actor := e.storeFor(name)
	if actor == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sl := e.slots[name]
	if sl.gen != gen {
		return
	}
	if sl.fallback != nil {
		sl.fallback.Stop()
	}
	sl.fallback = e.clock.AfterFunc(e.cfg.LoadedFallback, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.slots[name].gen != gen {
			return
		}
		actor.Post(func(s *store.Store) {
			if s.MarkLoaded() {
				slog.Info("store loaded by fallback", "store", actor.Name())
			}
		})
	})
	slog.Debug("loaded fallback armed", "stream", name, "reconnect", reconnect)
}

func (e *Engine) storeFor(name string) *store.Actor {
	switch name {
	case slotBook:
		return e.public
	case slotMine:
		return e.personal
	case slotFiltered:
		return e.filtered
	}
	return nil
}

// handle routes one raw frame from slot name.
func (e *Engine) handle(name string, gen uint64, raw []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.slots[name].gen != gen {
		return
	}

	switch name {
	case slotBook:
		if e.paused {
			e.queue = append(e.queue, raw)
			return
		}
		e.dispatchPublic(raw)
	case slotMine:
		e.dispatch(e.personal, raw, e.applyPersonal)
	case slotFiltered:
		e.dispatch(e.filtered, raw, applyFiltered)
	case slotTap, slotMyTap:
		e.agg.HandleFrame(name, raw)
	}
}

func (e *Engine) dispatchPublic(raw []byte) {
	e.dispatch(e.public, raw, e.applyPublic)
}

func (e *Engine) dispatch(a *store.Actor, raw []byte, apply func(frame.Frame) func(*store.Store)) {
	f := frame.Decode(raw)
	if !f.Recognized() {
		slog.Debug("frame dropped", "store", a.Name(), "bytes", len(raw))
		return
	}
	a.Post(apply(f))
}

func (e *Engine) applyPublic(f frame.Frame) func(*store.Store) {
	return func(s *store.Store) {
		loaded := s.Loaded()
		if s.MarkLoaded() {
			slog.Info("store loaded", "store", "public")
		}
		if len(f.Records) == 0 {
			return
		}
		var res store.MergeResult
		if f.Single {
			res = s.Apply(f.Records[0], true)
		} else {
			res = s.Merge(f.Records, loaded)
		}
		for _, m := range res.Markers {
			e.markers.Insert(m.Key, m.Type)
		}
	}
}

func (e *Engine) applyPersonal(f frame.Frame) func(*store.Store) {
	return func(s *store.Store) {
		loaded := s.Loaded()
		if s.MarkLoaded() {
			slog.Info("store loaded", "store", "personal")
		}
		if len(f.Records) == 0 {
			return
		}
		var res store.MergeResult
		if f.Single {
			res = s.Apply(f.Records[0], false)
		} else {
			res = s.Merge(f.Records, false)
		}

		applied := make([]domain.Order, 0, len(res.Transitions))
		for _, t := range res.Transitions {
			applied = append(applied, t.Order)
		}
		if resolved := store.Resolutions(applied); len(resolved) > 0 {
			e.public.Post(func(p *store.Store) {
				if n := p.PatchStatus(resolved); n > 0 {
					slog.Debug("public statuses synced", "patched", n)
				}
			})
		}

		if loaded {
			e.notifyTransitions(res.Transitions)
		}
	}
}

func applyFiltered(f frame.Frame) func(*store.Store) {
	return func(s *store.Store) {
		if s.MarkLoaded() {
			slog.Info("store loaded", "store", "filtered")
		}
		if len(f.Records) == 0 {
			return
		}
		if f.Single {
			s.Apply(f.Records[0], false)
			return
		}
		s.Merge(f.Records, false)
	}
}

func (e *Engine) notifyTransitions(transitions []store.Transition) {
	if e.tracker == nil {
		return
	}
	for _, t := range transitions {
		if !t.Changed() {
			continue
		}
		short := domain.ShortUUID(t.Order.UUID)
		switch t.Order.Status {
		case domain.StatusFilled:
			e.tracker.Add(e.context(), domain.NotifyFilled,
				fmt.Sprintf("Order %s... has been filled", short), t.Order.UUID)
		case domain.StatusClosed:
			e.tracker.Add(e.context(), domain.NotifyCancelled,
				fmt.Sprintf("Order %s... has been closed", short), t.Order.UUID)
		}
	}
}

// context returns the run context without taking e.mu. Actor goroutines
// start after Run sets e.ctx and it never changes afterwards.
func (e *Engine) context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// --- ticks.Sink ---

// CommitPrices implements ticks.Sink.
func (e *Engine) CommitPrices(prices map[int]float64) {
	e.board.CommitPrices(prices)
}

// CommitNames implements ticks.Sink.
func (e *Engine) CommitNames(names map[int]string) {
	e.board.CommitNames(names)
}

// CommitEscrows implements ticks.Sink. Ticks from the public tap patch the
// public store; ticks from the wallet tap patch the personal store.
func (e *Engine) CommitEscrows(stream string, ticks map[string]domain.EscrowTick) {
	target := e.public
	if stream == slotMyTap {
		target = e.personal
	}
	target.Post(func(s *store.Store) {
		if n := s.PatchEscrows(ticks); n > 0 {
			slog.Debug("escrow ticks applied", "store", target.Name(), "patched", n)
		}
	})
}

// --- pause / replay ---

// Pause queues public frames until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

// Resume replays queued public frames in arrival order and returns how many
// were replayed.
func (e *Engine) Resume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	queued := e.queue
	e.queue = nil
	e.paused = false
	for _, raw := range queued {
		e.dispatchPublic(raw)
	}
	return len(queued)
}

// --- address changes ---

// SetWallet switches the personal streams to address. The personal store is
// reset before the new streams open; an empty address disables them.
func (e *Engine) SetWallet(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)

	e.mu.Lock()
	defer e.mu.Unlock()
	if address == e.cfg.Wallet {
		return nil
	}
	e.cfg.Wallet = address
	if e.ctx == nil {
		return nil
	}

	e.stopLocked(slotMine)
	e.stopLocked(slotMyTap)
	e.agg.Discard(slotMyTap)
	if err := e.personal.Query(ctx, (*store.Store).Reset); err != nil {
		return fmt.Errorf("engine.SetWallet: reset: %w", err)
	}
	if address != "" {
		e.startLocked(slotMine, address)
		e.startLocked(slotMyTap, address)
	}
	slog.Info("wallet changed", "wallet", address)
	return nil
}

// SetFilter switches the filtered stream to address; an empty address
// disables it.
func (e *Engine) SetFilter(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)

	e.mu.Lock()
	defer e.mu.Unlock()
	if address == e.cfg.Filter {
		return nil
	}
	e.cfg.Filter = address
	if e.ctx == nil {
		return nil
	}

	e.stopLocked(slotFiltered)
	if err := e.filtered.Query(ctx, (*store.Store).Reset); err != nil {
		return fmt.Errorf("engine.SetFilter: reset: %w", err)
	}
	if address != "" {
		e.startLocked(slotFiltered, address)
	}
	slog.Info("filter changed", "filter", address)
	return nil
}

// --- reads ---

// Settings returns the order-form limits.
func (e *Engine) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Board returns the committed prices and subnet names.
func (e *Engine) Board() *ticks.Board { return e.board }

// View derives the table for mode from the current store contents.
func (e *Engine) View(ctx context.Context, mode views.Mode) (views.View, error) {
	var src views.Sources
	var err error
	if src.Public, err = e.public.Snapshot(ctx); err != nil {
		return views.View{}, fmt.Errorf("engine.View: public: %w", err)
	}
	if src.Personal, err = e.personal.Snapshot(ctx); err != nil {
		return views.View{}, fmt.Errorf("engine.View: personal: %w", err)
	}
	if src.Filtered, err = e.filtered.Snapshot(ctx); err != nil {
		return views.View{}, fmt.Errorf("engine.View: filtered: %w", err)
	}

	return views.Build(mode, src, views.Context{
		Prices:  e.board.Prices(),
		Names:   e.board.Names(),
		Markers: e.markers.Snapshot(),
		Now:     e.clock.Now(),
	}), nil
}

// Status reports loaded flags and store sizes.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	st := Status{
		Paused:  e.paused,
		Queued:  len(e.queue),
		Wallet:  e.cfg.Wallet,
		Filter:  e.cfg.Filter,
		Loaded:  make(map[string]bool, 3),
		Orders:  make(map[string]int, 3),
		Commits: e.board.Commits(),
	}
	e.mu.Unlock()

	for _, a := range []*store.Actor{e.public, e.personal, e.filtered} {
		err := a.Query(ctx, func(s *store.Store) {
			st.Loaded[a.Name()] = s.Loaded()
			st.Orders[a.Name()] = s.Len()
		})
		if err != nil {
			return Status{}, fmt.Errorf("engine.Status: %s: %w", a.Name(), err)
		}
	}
	return st, nil
}

// Notifications returns the notification list, newest first.
func (e *Engine) Notifications() []domain.Notification {
	if e.tracker == nil {
		return nil
	}
	return e.tracker.List()
}

// DismissNotification removes one notification.
func (e *Engine) DismissNotification(ctx context.Context, id string) bool {
	if e.tracker == nil {
		return false
	}
	return e.tracker.Dismiss(ctx, id)
}

// ClearNotifications removes every notification.
func (e *Engine) ClearNotifications(ctx context.Context) {
	if e.tracker != nil {
		e.tracker.Clear(ctx)
	}
}
