package auctions

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an auction
type Status string

const (
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks whether the winning bid has been settled
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// BidStatus represents the state of a single bid. A bid moves from pending to
// accepted or rejected exactly once and never reverts.
type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
)

// Auction represents a crop lot a farmer has put up for live bidding.
// Quantities are in maunds, prices and amounts in whole AgroCoins.
type Auction struct {
	ID                   uuid.UUID
	FarmerID             uuid.UUID
	FarmerName           string
	CropName             string
	Location             string
	TotalQuantity        int64
	SellableQuantity     int64
	StartingPricePerUnit int64
	TotalPrice           int64
	DurationMinutes      int
	Status               Status
	HighestBid           int64
	WinningBidID         *uuid.UUID
	PaymentStatus        PaymentStatus
	PaymentAt            *time.Time
	EndsAt               time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Bid represents a buyer's bid on an auction
type Bid struct {
	ID         uuid.UUID
	AuctionID  uuid.UUID
	BidderID   uuid.UUID
	BidderName string
	Amount     int64
	Status     BidStatus
	CreatedAt  time.Time
}

// Snapshot is the full observable state of one auction: the auction record
// plus its bids. Watch subscribers always receive complete snapshots, never
// deltas, so a reconnecting client can resume from any one of them.
type Snapshot struct {
	Auction Auction `json:"auction"`
	Bids    []Bid   `json:"bids"`
}

// Reserve is the minimum acceptable first bid: starting price times the
// quantity on offer.
func (a *Auction) Reserve() int64 {
	return a.StartingPricePerUnit * a.SellableQuantity
}

// CurrentThreshold returns the amount a new bid must strictly exceed. Any
// recorded pending bid already exceeds the reserve, so the stored highest bid
// wins whenever one exists.
func (a *Auction) CurrentThreshold() int64 {
	if a.HighestBid > a.Reserve() {
		return a.HighestBid
	}
	return a.Reserve()
}

// IsOwnedBy reports whether the given user created this auction
func (a *Auction) IsOwnedBy(userID uuid.UUID) bool {
	return a.FarmerID == userID
}

// HasEnded reports whether the bidding window has elapsed
func (a *Auction) HasEnded(now time.Time) bool {
	return now.After(a.EndsAt)
}
