package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle code the backend assigns to an order record.
type Status int

const (
	StatusInit    Status = -1
	StatusUnset   Status = 0
	StatusOpen    Status = 1
	StatusFilled  Status = 2
	StatusClosed  Status = 3
	StatusError   Status = 4
	StatusStopped Status = 5
	StatusExpired Status = 6
)

// String returns the label shown to users.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusFilled:
		return "Filled"
	case StatusClosed:
		return "Closed"
	case StatusError:
		return "Error"
	case StatusStopped:
		return "Stopped"
	case StatusExpired:
		return "Expired"
	default:
		return "Init"
	}
}

// IsTerminal reports whether an order with this status no longer takes part
// in live order-book views.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusClosed || s == StatusExpired
}

// IsResolution reports whether the status is one the personal stream is
// authoritative for (filled or closed).
func (s Status) IsResolution() bool {
	return s == StatusFilled || s == StatusClosed
}

// OrderType distinguishes sell (1) from buy (2) orders.
type OrderType int

const (
	TypeSell OrderType = 1
	TypeBuy  OrderType = 2
)

func (t OrderType) String() string {
	if t == TypeSell {
		return "Sell"
	}
	return "Buy"
}

// GTC is the "good till cancelled" sentinel stored in Order.GTD.
const GTC = "gtc"

// Order is the canonical record every inbound frame is normalized into.
// Numeric fields use 0 for "unknown".
type Order struct {
	UUID    string    `json:"uuid"`
	Date    string    `json:"date"`
	Origin  string    `json:"origin"`
	Escrow  string    `json:"escrow"`
	Wallet  string    `json:"wallet"`
	Accept  string    `json:"accept"`
	Period  float64   `json:"period"`
	Asset   int       `json:"asset"`
	Type    OrderType `json:"type"`
	Ask     float64   `json:"ask"`
	Bid     float64   `json:"bid"`
	Stp     float64   `json:"stp"`
	Lmt     float64   `json:"lmt"`
	GTD     string    `json:"gtd"`
	Partial bool      `json:"partial"`
	Public  bool      `json:"public"`
	Tao     float64   `json:"tao"`
	Alpha   float64   `json:"alpha"`
	Price   float64   `json:"price"`
	Status  Status    `json:"status"`
}

// ParentKey groups fill and close records under the order they came from.
func (o Order) ParentKey() string {
	if o.Origin != "" {
		return o.Origin
	}
	return o.UUID
}

// DateTime parses Date. Unparseable dates sort as the zero time.
func (o Order) DateTime() time.Time {
	t, _ := ParseTime(o.Date)
	return t
}

// MergeBalances copies the tao/alpha/price triple onto o, keeping the
// current value wherever the incoming one is not positive.
func (o *Order) MergeBalances(tao, alpha, price float64) {
	if tao > 0 {
		o.Tao = tao
	}
	if alpha > 0 {
		o.Alpha = alpha
	}
	if price > 0 {
		o.Price = price
	}
}

// Overlay returns in with the balances of o preserved where in carries no
// positive value.
func (o Order) Overlay(in Order) Order {
	merged := in
	merged.Tao, merged.Alpha, merged.Price = o.Tao, o.Alpha, o.Price
	merged.MergeBalances(in.Tao, in.Alpha, in.Price)
	return merged
}

// IsStale reports whether incoming must not replace existing: a non-positive
// status never overwrites a positive one, and a positive status never moves
// backwards.
func IsStale(existing, incoming Status) bool {
	if existing <= 0 {
		return false
	}
	if incoming <= 0 {
		return true
	}
	return incoming < existing
}

// ParseTime parses the timestamp formats the backend emits. Timestamps
// without a zone are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, GTC) {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
