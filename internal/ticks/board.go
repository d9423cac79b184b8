package ticks

import (
	"maps"
	"sync"
)

// Board holds the committed subnet prices and names.
type Board struct {
	mu      sync.RWMutex
	prices  map[int]float64
	names   map[int]string
	commits int
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		prices: make(map[int]float64),
		names:  make(map[int]string),
	}
}

// CommitPrices merges prices into the board as one commit. Non-positive
// values are ignored.
func (b *Board) CommitPrices(prices map[int]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for asset, p := range prices {
		if p > 0 {
			b.prices[asset] = p
		}
	}
	b.commits++
}

// CommitNames merges subnet names.
func (b *Board) CommitNames(names map[int]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	maps.Copy(b.names, names)
}

// Prices returns a copy of the committed prices.
func (b *Board) Prices() map[int]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.prices)
}

// Price returns the committed price for asset.
func (b *Board) Price(asset int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prices[asset]
	return p, ok
}

// Names returns a copy of the subnet names.
func (b *Board) Names() map[int]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.names)
}

// Commits counts price commits applied so far.
func (b *Board) Commits() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.commits
}
