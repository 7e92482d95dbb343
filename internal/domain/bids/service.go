package bids

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// SubmitBidCommand carries a buyer's bid against an open auction
type SubmitBidCommand struct {
	AuctionID  uuid.UUID
	BidderID   uuid.UUID
	BidderName string
	Amount     int64
}

// Validation errors
var (
	ErrBidTooLow         = fmt.Errorf("bid amount must be higher than the current highest bid")
	ErrAuctionNotOpen    = fmt.Errorf("auction is not open for bidding")
	ErrAuctionEnded      = fmt.Errorf("auction bidding window has ended")
	ErrInvalidBidAmount  = fmt.Errorf("bid amount must be positive")
	ErrSelfBidNotAllowed = fmt.Errorf("farmer cannot bid on their own auction")
)

// validateBidAmount checks a bid against the threshold it must strictly exceed
func validateBidAmount(bidAmount, threshold int64) error {
	if bidAmount <= 0 {
		return ErrInvalidBidAmount
	}
	if bidAmount <= threshold {
		return ErrBidTooLow
	}
	return nil
}

// validateAuctionBiddable checks that an auction can still take bids
func validateAuctionBiddable(auction *auctions.Auction, bidderID uuid.UUID, now time.Time) error {
	if auction.FarmerID == bidderID {
		return ErrSelfBidNotAllowed
	}
	if auction.Status != auctions.StatusOpen {
		return ErrAuctionNotOpen
	}
	if auction.HasEnded(now) {
		return ErrAuctionEnded
	}
	return nil
}

// Ledger validates and appends bids. Appends against one auction are
// serialized by a row lock, so the stored highest bid is always the true
// maximum even when two buyers submit at the same moment.
type Ledger struct {
	txManager   database.TransactionManager
	auctionRepo AuctionRepository
	bidRepo     BidRepository
	outboxRepo  OutboxRepository
}

// NewLedger creates a new bid ledger
func NewLedger(
	txManager database.TransactionManager,
	auctionRepo AuctionRepository,
	bidRepo BidRepository,
	outboxRepo OutboxRepository,
) *Ledger {
	return &Ledger{
		txManager:   txManager,
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		outboxRepo:  outboxRepo,
	}
}

// SubmitBid appends a new pending bid. The amount is validated against the
// highest bid observed when the request arrived; two racing bids that both
// beat that value are then serialized by the row lock and both recorded, with
// the higher one reported as the highest. A bid arriving after a higher bid
// has committed sees the new threshold here and fails with ErrBidTooLow.
func (l *Ledger) SubmitBid(ctx context.Context, cmd SubmitBidCommand) (*auctions.Bid, error) {
	now := time.Now()

	// Entry read: establish the threshold this bid was submitted against.
	observed, err := l.auctionRepo.GetAuction(ctx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	if valErr := validateAuctionBiddable(observed, cmd.BidderID, now); valErr != nil {
		return nil, valErr
	}
	if valErr := validateBidAmount(cmd.Amount, observed.CurrentThreshold()); valErr != nil {
		return nil, valErr
	}

	tx, err := l.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Lock the auction row; only one bid append per auction proceeds at a time.
	auction, err := l.auctionRepo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	// Re-check lifecycle under the lock. The amount is deliberately not
	// re-checked against the highest bid: a bid that lost the race to a
	// concurrent higher bid is still recorded as pending.
	if valErr := validateAuctionBiddable(auction, cmd.BidderID, now); valErr != nil {
		return nil, valErr
	}

	bid := &auctions.Bid{
		ID:         uuid.New(),
		AuctionID:  cmd.AuctionID,
		BidderID:   cmd.BidderID,
		BidderName: cmd.BidderName,
		Amount:     cmd.Amount,
		Status:     auctions.BidStatusPending,
		CreatedAt:  now,
	}

	if saveErr := l.bidRepo.SaveBid(ctx, tx, bid); saveErr != nil {
		return nil, fmt.Errorf("failed to save bid: %w", saveErr)
	}

	if raiseErr := l.auctionRepo.RaiseHighestBid(ctx, tx, cmd.AuctionID, cmd.Amount); raiseErr != nil {
		return nil, fmt.Errorf("failed to update highest bid: %w", raiseErr)
	}

	payload, marshalErr := auctions.MarshalEventPayload(auctions.EventPayload{
		AuctionID:  cmd.AuctionID,
		BidID:      bid.ID,
		Amount:     bid.Amount,
		OccurredAt: now,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", marshalErr)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: auctions.EventTypeBidPlaced.String(),
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: now,
	}

	if saveErr := l.outboxRepo.SaveEvent(ctx, tx, outboxEvent); saveErr != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", saveErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	return bid, nil
}

// ListBids returns all bids for an auction, newest first
func (l *Ledger) ListBids(ctx context.Context, auctionID uuid.UUID) ([]*auctions.Bid, error) {
	if _, err := l.auctionRepo.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return l.bidRepo.ListBidsByAuction(ctx, auctionID)
}

// HighestBid reports the amount a new bid must beat for the given auction
func (l *Ledger) HighestBid(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	auction, err := l.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return auction.CurrentThreshold(), nil
}
