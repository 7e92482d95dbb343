package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// SaveBid appends a bid within a transaction; bids are never updated here
	SaveBid(ctx context.Context, tx pgx.Tx, bid *auctions.Bid) error

	// GetBid retrieves a bid by its ID
	GetBid(ctx context.Context, bidID uuid.UUID) (*auctions.Bid, error)

	// ListBidsByAuction retrieves all bids for an auction, newest first
	ListBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*auctions.Bid, error)
}

// AuctionRepository is the subset of auction persistence the ledger needs
type AuctionRepository interface {
	// GetAuction retrieves an auction by its ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error)

	// GetAuctionForUpdate retrieves an auction and locks its row for update.
	// This serializes concurrent bid appends against the same auction.
	GetAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error)

	// RaiseHighestBid lifts the stored highest bid to the given amount if it
	// is higher; a bid that lost a concurrent race leaves the value untouched
	RaiseHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) error
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
