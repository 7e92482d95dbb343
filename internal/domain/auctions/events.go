package auctions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event
type EventType string

const (
	EventTypeAuctionCreated   EventType = "auction.created"
	EventTypeBidPlaced        EventType = "bid.placed"
	EventTypeBidRejected      EventType = "bid.rejected"
	EventTypeAuctionClosed    EventType = "auction.closed"
	EventTypeAuctionCancelled EventType = "auction.cancelled"
	EventTypeAuctionSettled   EventType = "auction.settled"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// IsValid checks if the event type is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventTypeAuctionCreated,
		EventTypeBidPlaced,
		EventTypeBidRejected,
		EventTypeAuctionClosed,
		EventTypeAuctionCancelled,
		EventTypeAuctionSettled:
		return true
	default:
		return false
	}
}

// EventPayload is the JSON body stored in the outbox and published to the
// auction.events exchange. Consumers treat it as a change hint and re-read the
// full snapshot; only AuctionID is required.
type EventPayload struct {
	AuctionID  uuid.UUID `json:"auction_id"`
	BidID      uuid.UUID `json:"bid_id,omitzero"`
	Amount     int64     `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MarshalEventPayload serializes an event payload for the outbox
func MarshalEventPayload(p EventPayload) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalEventPayload parses an event payload received from the broker
func UnmarshalEventPayload(body []byte) (EventPayload, error) {
	var p EventPayload
	err := json.Unmarshal(body, &p)
	return p, err
}
