package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the routing key of a kitchen event.
type Type string

const (
	TypeKOTPrinted     Type = "kot.printed"
	TypeOrderCompleted Type = "order.completed"
)

const envelopeVersion = 1

// Actor identifies the waiter behind an event.
type Actor struct {
	WaiterID string `json:"waiterId,omitempty"`
}

// Envelope is the stable message body published to the exchange.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	Type       Type            `json:"type"`
	VenueID    string          `json:"venueId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// KOTPrinted is emitted after a ticket reached the printer.
type KOTPrinted struct {
	KOTID         string          `json:"kotId"`
	TableID       string          `json:"tableId"`
	PendingOnly   bool            `json:"pendingOnly"`
	Items         []KOTItem       `json:"items"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

// KOTItem is one printed line.
type KOTItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// OrderCompleted is emitted after the remote store finalised an order.
type OrderCompleted struct {
	TableID string `json:"tableId"`
}

// NewEnvelope wraps payload with a fresh event id.
func NewEnvelope(t Type, venueID, waiterID string, at time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		Type:       t,
		VenueID:    venueID,
		OccurredAt: at.UTC(),
		Data:       data,
	}
	if waiterID != "" {
		env.Actor = &Actor{WaiterID: waiterID}
	}
	return env, nil
}
