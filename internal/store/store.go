// Package store holds the three independently merged order stores and their
// conflict-resolution policies.
//
// A Store is a plain reducer and is not safe for concurrent use; the engine
// wraps each one in an Actor so a single goroutine owns it.
package store

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// DefaultTombstones bounds how many purged uuids a live store remembers.
const DefaultTombstones = 4096

// Policy selects how a store treats terminal records.
type Policy int

const (
	// Public is the live order book: terminal records are purged.
	Public Policy = iota
	// Personal is the wallet history: every status is retained.
	Personal
	// Filtered answers "everything for this address": every status is retained.
	Filtered
)

func (p Policy) String() string {
	switch p {
	case Personal:
		return "personal"
	case Filtered:
		return "filtered"
	default:
		return "public"
	}
}

// Transition records an applied change of status for one uuid.
type Transition struct {
	Order   domain.Order
	From    domain.Status
	Existed bool
}

// Changed reports whether the record is new or moved to a different status.
func (t Transition) Changed() bool {
	return !t.Existed || t.From != t.Order.Status
}

// MergeResult describes what a merge did to the store.
type MergeResult struct {
	Applied     int
	Removed     int
	Skipped     int
	Markers     []domain.Marker
	Transitions []Transition
}

// Store is one uuid-keyed namespace of orders.
type Store struct {
	policy     Policy
	orders     map[string]domain.Order
	tombstones *lru.Cache[string, domain.Status]
	loaded     bool
}

// New creates an empty store. tombstones <= 0 uses DefaultTombstones.
func New(policy Policy, tombstones int) *Store {
	if tombstones <= 0 {
		tombstones = DefaultTombstones
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, domain.Status](tombstones)
	return &Store{
		policy:     policy,
		orders:     make(map[string]domain.Order),
		tombstones: cache,
	}
}

// Policy returns the merge policy of the store.
func (s *Store) Policy() Policy { return s.policy }

// Len returns the number of live records.
func (s *Store) Len() int { return len(s.orders) }

// Get returns the record for uuid.
func (s *Store) Get(uuid string) (domain.Order, bool) {
	o, ok := s.orders[uuid]
	return o, ok
}

// Snapshot returns a copy of the store, newest first.
func (s *Store) Snapshot() []domain.Order {
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].DateTime(), out[j].DateTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}

// Loaded reports whether the initial sync finished.
func (s *Store) Loaded() bool { return s.loaded }

// MarkLoaded flips the readiness flag. It returns true on the first call.
func (s *Store) MarkLoaded() bool {
	if s.loaded {
		return false
	}
	s.loaded = true
	return true
}

// Reset empties the store and clears the loaded flag.
func (s *Store) Reset() {
	s.orders = make(map[string]domain.Order)
	s.tombstones.Purge()
	s.loaded = false
}

// purges reports whether the policy removes o instead of storing it.
func (s *Store) purges(o domain.Order) bool {
	if s.policy != Public {
		return false
	}
	return o.Status.IsTerminal() || o.Status == domain.StatusError
}

// stale reports whether o must be skipped given what the store has seen.
func (s *Store) stale(o domain.Order) bool {
	if existing, ok := s.orders[o.UUID]; ok {
		return domain.IsStale(existing.Status, o.Status)
	}
	if tomb, ok := s.tombstones.Peek(o.UUID); ok {
		return domain.IsStale(tomb, o.Status)
	}
	return false
}

func (s *Store) remove(o domain.Order) bool {
	if tomb, ok := s.tombstones.Peek(o.UUID); !ok || o.Status > tomb {
		s.tombstones.Add(o.UUID, o.Status)
	}
	if _, ok := s.orders[o.UUID]; !ok {
		return false
	}
	delete(s.orders, o.UUID)
	return true
}

// Merge folds a batch into the store. When highlight is set, records moving
// into open (new, previously not open, or with a new escrow) produce markers.
func (s *Store) Merge(batch []domain.Order, highlight bool) MergeResult {
	var res MergeResult
	for _, o := range batch {
		if o.UUID == "" {
			continue
		}
		existing, existed := s.orders[o.UUID]

		if s.purges(o) {
			if s.remove(o) {
				res.Removed++
			}
			continue
		}
		if s.stale(o) {
			res.Skipped++
			continue
		}

		if highlight && o.Status == domain.StatusOpen &&
			(!existed || existing.Status != domain.StatusOpen || existing.Escrow != o.Escrow) {
			res.Markers = append(res.Markers, domain.Marker{Key: domain.HighlightKey(o), Type: o.Type})
		}

		s.upsert(o, existing, existed, &res)
	}
	return res
}

// Apply is the single-record update path. A record matching on (uuid,
// status) is a duplicate and is merged silently; a uuid-only match is a
// status transition; anything else is inserted. Transitions and inserts into
// open produce a marker when highlight is set.
func (s *Store) Apply(o domain.Order, highlight bool) MergeResult {
	var res MergeResult
	if o.UUID == "" {
		return res
	}
	existing, existed := s.orders[o.UUID]

	if s.purges(o) {
		if s.remove(o) {
			res.Removed++
		}
		return res
	}
	if s.stale(o) {
		res.Skipped++
		return res
	}

	duplicate := existed && existing.Status == o.Status
	if highlight && !duplicate && o.Status == domain.StatusOpen &&
		(!existed || existing.Status != domain.StatusOpen) {
		res.Markers = append(res.Markers, domain.Marker{Key: domain.HighlightKey(o), Type: o.Type})
	}

	s.upsert(o, existing, existed, &res)
	return res
}

// Inject adds a record fetched out of band unless the store already holds
// the same (uuid, status).
func (s *Store) Inject(o domain.Order) MergeResult {
	if existing, ok := s.orders[o.UUID]; ok && existing.Status == o.Status {
		return MergeResult{Skipped: 1}
	}
	return s.Apply(o, false)
}

func (s *Store) upsert(o, existing domain.Order, existed bool, res *MergeResult) {
	merged := o
	if existed {
		merged = existing.Overlay(o)
	}
	s.orders[o.UUID] = merged
	res.Applied++
	res.Transitions = append(res.Transitions, Transition{
		Order:   merged,
		From:    existing.Status,
		Existed: existed,
	})
}

// PatchStatus sets only the status field of records whose status differs
// from the update. It never removes records and never moves a status
// backwards. Returns the number patched.
func (s *Store) PatchStatus(updates []domain.Order) int {
	patched := 0
	for _, u := range updates {
		o, ok := s.orders[u.UUID]
		if !ok || o.Status == u.Status || domain.IsStale(o.Status, u.Status) {
			continue
		}
		o.Status = u.Status
		s.orders[u.UUID] = o
		patched++
	}
	return patched
}

// PatchEscrows applies coalesced balance ticks to open orders whose escrow
// matches. Orders that are not open are left alone and no record is created.
func (s *Store) PatchEscrows(ticks map[string]domain.EscrowTick) int {
	if len(ticks) == 0 {
		return 0
	}
	patched := 0
	for uuid, o := range s.orders {
		if o.Status != domain.StatusOpen || o.Escrow == "" {
			continue
		}
		t, ok := ticks[o.Escrow]
		if !ok {
			continue
		}
		o.MergeBalances(t.Tao, t.Alpha, t.Price)
		s.orders[uuid] = o
		patched++
	}
	return patched
}

// UpdateOpen applies fn to the open record for uuid. Returns false when no
// open record exists.
func (s *Store) UpdateOpen(uuid string, fn func(*domain.Order)) bool {
	o, ok := s.orders[uuid]
	if !ok || o.Status != domain.StatusOpen {
		return false
	}
	fn(&o)
	o.UUID = uuid
	s.orders[uuid] = o
	return true
}
