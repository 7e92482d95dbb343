package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// Service errors
var (
	ErrAuctionNotClosed = fmt.Errorf("auction is not awaiting payment")
	ErrAlreadySettled   = fmt.Errorf("auction has already been paid for")
	ErrNotWinningBidder = fmt.Errorf("only the winning bidder can settle the auction")
	ErrNoWinningBid     = fmt.Errorf("auction has no winning bid")
)

// SettleCommand identifies the auction the winning buyer wants to pay for
type SettleCommand struct {
	AuctionID uuid.UUID
	CallerID  uuid.UUID
}

// Receipt records a completed settlement
type Receipt struct {
	AuctionID uuid.UUID
	BidID     uuid.UUID
	BuyerID   uuid.UUID
	FarmerID  uuid.UUID
	Amount    int64
	PaidAt    time.Time
}

// Engine performs the one payment an auction ever sees: exactly the winning
// bid amount moves from the buyer's wallet to the farmer's, and the auction
// completes, all in a single transaction.
type Engine struct {
	txManager    database.TransactionManager
	auctionRepo  AuctionRepository
	bidRepo      BidRepository
	walletLedger *wallets.Ledger
	outboxRepo   OutboxRepository
	logger       *slog.Logger
}

// NewEngine creates a new settlement engine
func NewEngine(
	txManager database.TransactionManager,
	auctionRepo AuctionRepository,
	bidRepo BidRepository,
	walletLedger *wallets.Ledger,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		txManager:    txManager,
		auctionRepo:  auctionRepo,
		bidRepo:      bidRepo,
		walletLedger: walletLedger,
		outboxRepo:   outboxRepo,
		logger:       logger,
	}
}

// Settle pays for a closed auction. The auction row is locked first, so the
// payment-status check and the transfer are one atomic unit: a second call on
// the same auction either waits on the lock and then sees paid, or sees paid
// outright; either way it fails with ErrAlreadySettled and no coins move.
// ErrInsufficientFunds leaves the auction closed and unpaid; the buyer can
// retry after topping up.
func (e *Engine) Settle(ctx context.Context, cmd SettleCommand) (*Receipt, error) {
	tx, err := e.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := e.auctionRepo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	if auction.PaymentStatus == auctions.PaymentStatusPaid {
		return nil, ErrAlreadySettled
	}
	if auction.Status != auctions.StatusClosed {
		return nil, ErrAuctionNotClosed
	}
	if auction.WinningBidID == nil {
		return nil, ErrNoWinningBid
	}

	winningBid, err := e.bidRepo.GetBid(ctx, *auction.WinningBidID)
	if err != nil {
		return nil, err
	}
	if winningBid.BidderID != cmd.CallerID {
		return nil, ErrNotWinningBidder
	}

	buyer := wallets.Account{UserID: winningBid.BidderID, Role: wallets.RoleBuyer}
	farmer := wallets.Account{UserID: auction.FarmerID, Role: wallets.RoleFarmer}

	if transferErr := e.walletLedger.TransferTx(ctx, tx, buyer, farmer, winningBid.Amount); transferErr != nil {
		return nil, transferErr
	}

	paidAt := time.Now()
	if markErr := e.auctionRepo.MarkSettled(ctx, tx, auction.ID, paidAt); markErr != nil {
		return nil, fmt.Errorf("failed to mark auction settled: %w", markErr)
	}

	payload, marshalErr := auctions.MarshalEventPayload(auctions.EventPayload{
		AuctionID:  auction.ID,
		BidID:      winningBid.ID,
		Amount:     winningBid.Amount,
		OccurredAt: paidAt,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", marshalErr)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: auctions.EventTypeAuctionSettled.String(),
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: paidAt,
	}
	if saveErr := e.outboxRepo.SaveEvent(ctx, tx, outboxEvent); saveErr != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", saveErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	e.logger.Info("auction settled",
		"auction_id", auction.ID,
		"bid_id", winningBid.ID,
		"buyer_id", winningBid.BidderID,
		"farmer_id", auction.FarmerID,
		"amount", winningBid.Amount,
	)

	return &Receipt{
		AuctionID: auction.ID,
		BidID:     winningBid.ID,
		BuyerID:   winningBid.BidderID,
		FarmerID:  auction.FarmerID,
		Amount:    winningBid.Amount,
		PaidAt:    paidAt,
	}, nil
}
