package ticks

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/frame"
)

const priceBufferID = "prices"

// Sink receives coalesced commits. Calls happen on scheduler goroutines.
type Sink interface {
	CommitPrices(prices map[int]float64)
	CommitNames(names map[int]string)
	CommitEscrows(stream string, ticks map[string]domain.EscrowTick)
}

// Aggregator buffers tick frames from the tap streams. Prices share one
// buffer across streams; escrow ticks are buffered per stream.
type Aggregator struct {
	sched  *Scheduler
	window time.Duration
	sink   Sink

	mu      sync.Mutex
	prices  map[int]float64
	escrows map[string]map[string]domain.EscrowTick
}

// NewAggregator creates an aggregator. window <= 0 uses DefaultWindow.
func NewAggregator(sched *Scheduler, window time.Duration, sink Sink) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		sched:   sched,
		window:  window,
		sink:    sink,
		prices:  make(map[int]float64),
		escrows: make(map[string]map[string]domain.EscrowTick),
	}
}

// HandleFrame decodes one tap-stream frame. A frame may carry a subnet price
// broadcast ({"price": {...}, "subnet_name": {...}}) or a single escrow
// balance update ({"escrow", "tao", "alpha", "price"}). Anything else is
// dropped.
func (a *Aggregator) HandleFrame(stream string, raw []byte) {
	v, ok := frame.DecodeValue(raw)
	if !ok {
		slog.Debug("tick frame dropped", "stream", stream)
		return
	}
	msg, ok := v.(map[string]any)
	if !ok {
		return
	}

	if prices, ok := msg["price"].(map[string]any); ok {
		for key, value := range prices {
			asset, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			a.AddPrice(asset, frame.Number(value))
		}
	}

	if names, ok := msg["subnet_name"].(map[string]any); ok {
		next := make(map[int]string, len(names))
		for key, value := range names {
			asset, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			if name, ok := value.(string); ok {
				next[asset] = name
			}
		}
		if len(next) > 0 {
			a.sink.CommitNames(next)
		}
	}

	if escrow := frame.Text(msg["escrow"]); escrow != "" {
		a.AddEscrow(stream, domain.EscrowTick{
			Escrow: escrow,
			Tao:    frame.Number(msg["tao"]),
			Alpha:  frame.Number(msg["alpha"]),
			Price:  frame.Number(msg["price"]),
		})
	}
}

// AddPrice buffers a subnet price. Non-positive prices are rejected.
func (a *Aggregator) AddPrice(asset int, price float64) bool {
	if price <= 0 {
		return false
	}
	a.mu.Lock()
	a.prices[asset] = price
	a.mu.Unlock()
	a.sched.ScheduleCoalescedFlush(priceBufferID, a.window, a.flushPrices)
	return true
}

// AddEscrow buffers a balance tick for stream. The latest tick per escrow wins.
func (a *Aggregator) AddEscrow(stream string, t domain.EscrowTick) {
	if t.Escrow == "" {
		return
	}
	a.mu.Lock()
	buf, ok := a.escrows[stream]
	if !ok {
		buf = make(map[string]domain.EscrowTick)
		a.escrows[stream] = buf
	}
	buf[t.Escrow] = t
	a.mu.Unlock()
	a.sched.ScheduleCoalescedFlush(escrowBufferID(stream), a.window, func() { a.flushEscrows(stream) })
}

// Discard drops everything buffered for stream and cancels its flush.
func (a *Aggregator) Discard(stream string) {
	a.sched.Cancel(escrowBufferID(stream))
	a.mu.Lock()
	delete(a.escrows, stream)
	a.mu.Unlock()
}

func (a *Aggregator) flushPrices() {
	a.mu.Lock()
	pending := a.prices
	a.prices = make(map[int]float64)
	a.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	a.sink.CommitPrices(pending)
}

func (a *Aggregator) flushEscrows(stream string) {
	a.mu.Lock()
	pending := a.escrows[stream]
	delete(a.escrows, stream)
	a.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	a.sink.CommitEscrows(stream, pending)
}

func escrowBufferID(stream string) string {
	return "escrow:" + stream
}
