package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// Repository defines the interface for auction persistence. It carries no
// business rules; every invariant is enforced by the services that call it.
type Repository interface {
	// CreateAuction inserts a new auction within a transaction. Returns
	// ErrActiveAuctionExists when the farmer already holds an active auction.
	CreateAuction(ctx context.Context, tx pgx.Tx, auction *Auction) error

	// GetAuction retrieves an auction by its ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error)

	// GetAuctionForUpdate retrieves an auction and locks its row for update.
	// Must be called within a transaction; this serializes all state-changing
	// operations against the same auction.
	GetAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error)

	// ListOpen retrieves open auctions with pagination
	ListOpen(ctx context.Context, limit, offset int) ([]*Auction, error)

	// ListByFarmer retrieves all auctions created by a farmer
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*Auction, error)

	// ListExpiredOpen retrieves ids of open auctions whose bidding window has
	// elapsed, for the expiry sweep.
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// CloseAuction transitions open -> closed and records the winning bid as a
	// single conditional update. Returns false when the auction was not open
	// at write time.
	CloseAuction(ctx context.Context, tx pgx.Tx, auctionID, winningBidID uuid.UUID) (bool, error)

	// CancelAuction transitions open -> cancelled conditionally. Returns false
	// when the auction was not open at write time.
	CancelAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error)

	// MarkSettled transitions closed -> completed and flips the payment fields
	MarkSettled(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, paidAt time.Time) error

	// DeleteAuction removes an open, bid-free auction. Returns false when the
	// condition no longer held at write time.
	DeleteAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error)

	// RecomputeHighestBid resets the stored highest bid to the maximum amount
	// over the auction's remaining pending bids, or zero when none are left
	RecomputeHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int64, error)

	// GetSnapshot retrieves the auction together with all its bids
	GetSnapshot(ctx context.Context, auctionID uuid.UUID) (*Snapshot, error)
}

// BidRepository is the subset of bid persistence the state machine needs
type BidRepository interface {
	// GetBidForUpdate retrieves a bid and locks its row. Must be called within
	// a transaction.
	GetBidForUpdate(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*Bid, error)

	// UpdateBidStatus sets a bid's status within a transaction
	UpdateBidStatus(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, status BidStatus) error

	// CountBidsByAuction returns the number of bids recorded for an auction
	CountBidsByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error)

	// CountBidsByAuctionTx is CountBidsByAuction inside an open transaction,
	// so the count is consistent with the locked auction row.
	CountBidsByAuctionTx(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int64, error)
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
