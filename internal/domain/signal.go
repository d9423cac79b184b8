package domain

import (
	"fmt"
	"time"
)

// EscrowTick is a balance update for the order funded by Escrow.
type EscrowTick struct {
	Escrow string
	Tao    float64
	Alpha  float64
	Price  float64
}

// HighlightKey identifies a transient "just opened" marker.
func HighlightKey(o Order) string {
	return fmt.Sprintf("%s-%d-%s", o.UUID, o.Status, o.Escrow)
}

// Marker is a highlight registered for a freshly opened order.
type Marker struct {
	Key  string
	Type OrderType
}

// NotificationKind classifies a user notification.
type NotificationKind string

const (
	NotifyFilled    NotificationKind = "filled"
	NotifyCancelled NotificationKind = "cancelled"
	NotifyMatch     NotificationKind = "match"
	NotifyInvited   NotificationKind = "invited"
)

// Notification is a persisted user-facing event.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"type"`
	Message   string           `json:"message"`
	Timestamp int64            `json:"timestamp"` // unix millis
	OrderUUID string           `json:"orderUuid,omitempty"`
}

// Time returns the notification timestamp.
func (n Notification) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}

// Settings are the order-form limits served by the backend as
// [openMax, openMin, fillMin].
type Settings struct {
	OpenMax float64
	OpenMin float64
	FillMin float64
}

// DefaultSettings are used until the backend answers.
func DefaultSettings() Settings {
	return Settings{OpenMax: 10, OpenMin: 0.01, FillMin: 0.001}
}

// ShortUUID truncates an order id for messages.
func ShortUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// RecResult is the decoded answer to a record submission. Tao, Alpha and
// Price are 0 when the server did not send them.
type RecResult struct {
	Message   string
	Tao       float64
	Alpha     float64
	Price     float64
	Status    Status
	HasStatus bool
}
