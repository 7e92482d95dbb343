package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// AuctionRepository is the subset of auction persistence settlement needs
type AuctionRepository interface {
	// GetAuctionForUpdate retrieves an auction and locks its row for update.
	// Must be called within a transaction; this is the idempotency gate.
	GetAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error)

	// MarkSettled transitions closed -> completed and flips the payment fields
	MarkSettled(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, paidAt time.Time) error
}

// BidRepository is the subset of bid persistence settlement needs
type BidRepository interface {
	// GetBid retrieves a bid by its ID
	GetBid(ctx context.Context, bidID uuid.UUID) (*auctions.Bid, error)
}

// OutboxRepository defines the interface for outbox event persistence
type OutboxRepository interface {
	// SaveEvent saves an outbox event within a transaction
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
