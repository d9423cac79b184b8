// Package views derives the read models shown to the user from store
// snapshots. Every function is pure.
package views

import (
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/hodlbook/internal/domain"
)

// Mode selects which source feeds the main table.
type Mode string

const (
	ModeBook     Mode = "book"
	ModeMine     Mode = "mine"
	ModeFiltered Mode = "filtered"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBook, ModeMine, ModeFiltered:
		return m, nil
	}
	return "", fmt.Errorf("views.ParseMode: unknown mode %q", s)
}

// Sources are the store snapshots a view is built from.
type Sources struct {
	Public   []domain.Order
	Personal []domain.Order
	Filtered []domain.Order
}

// Row is one order as displayed.
type Row struct {
	domain.Order
	Display    domain.Status `json:"display"`
	SubnetName string        `json:"subnet_name,omitempty"`
	Highlight  bool          `json:"highlight,omitempty"`
}

// View is the fully derived table for one mode.
type View struct {
	Mode        Mode                      `json:"mode"`
	Rows        []Row                     `json:"rows"`
	Filled      map[string][]domain.Order `json:"filled"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// Context carries the non-order inputs of a view.
type Context struct {
	Prices  map[int]float64
	Names   map[int]string
	Markers map[string]domain.OrderType
	Now     time.Time
}

// OpenOrders keeps orders that are open and public.
func OpenOrders(orders []domain.Order) []domain.Order {
	var out []domain.Order
	for _, o := range orders {
		if o.Status == domain.StatusOpen && o.Public {
			out = append(out, o)
		}
	}
	return out
}

// FilledMap groups filled and closed records under their parent order,
// newest first within each group.
func FilledMap(orders []domain.Order) map[string][]domain.Order {
	out := make(map[string][]domain.Order)
	for _, o := range orders {
		if o.Status != domain.StatusFilled && o.Status != domain.StatusClosed {
			continue
		}
		key := o.ParentKey()
		out[key] = append(out[key], o)
	}
	for _, group := range out {
		sortByDateDesc(group)
	}
	return out
}

// UniqueLatest keeps one record per uuid, the one with the greatest date,
// and sorts the result newest first. On equal dates the first seen wins.
func UniqueLatest(orders []domain.Order) []domain.Order {
	latest := make(map[string]int, len(orders))
	var out []domain.Order
	for _, o := range orders {
		idx, ok := latest[o.UUID]
		if !ok {
			latest[o.UUID] = len(out)
			out = append(out, o)
			continue
		}
		if o.DateTime().After(out[idx].DateTime()) {
			out[idx] = o
		}
	}
	sortByDateDesc(out)
	return out
}

// Select returns the row source and filled source for mode.
func Select(mode Mode, src Sources) (rows, filled []domain.Order) {
	switch mode {
	case ModeMine:
		return src.Personal, src.Personal
	case ModeFiltered:
		return src.Filtered, src.Filtered
	default:
		return OpenOrders(src.Public), src.Public
	}
}

// Build derives the complete view for mode.
func Build(mode Mode, src Sources, vc Context) View {
	rows, filled := Select(mode, src)
	unique := UniqueLatest(rows)

	out := View{
		Mode:        mode,
		Rows:        make([]Row, 0, len(unique)),
		Filled:      FilledMap(filled),
		GeneratedAt: vc.Now,
	}
	for _, o := range unique {
		_, marked := vc.Markers[domain.HighlightKey(o)]
		out.Rows = append(out.Rows, Row{
			Order:      o,
			Display:    domain.DisplayStatus(o, vc.Prices, vc.Now),
			SubnetName: vc.Names[o.Asset],
			Highlight:  marked,
		})
	}
	return out
}

func sortByDateDesc(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].DateTime().After(orders[j].DateTime())
	})
}
