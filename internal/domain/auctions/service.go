package auctions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/events"
)

// MaxDurationMinutes bounds how long a lot can stay open for bidding
const MaxDurationMinutes = 5

// Upper bounds on quantities and unit prices. Their product stays well inside
// int64, so total price arithmetic cannot overflow.
const (
	MaxQuantity     = 1_000_000_000
	MaxPricePerUnit = 1_000_000_000
)

// Service errors
var (
	ErrAuctionNotFound     = fmt.Errorf("auction not found")
	ErrBidNotFound         = fmt.Errorf("bid not found")
	ErrNotAuctionOwner     = fmt.Errorf("only the auction's farmer can perform this action")
	ErrStateConflict       = fmt.Errorf("auction state changed; operation no longer applies")
	ErrBidNotPending       = fmt.Errorf("bid is no longer pending")
	ErrAuctionHasBids      = fmt.Errorf("auction already has bids")
	ErrActiveAuctionExists = fmt.Errorf("farmer already has an active auction")
	ErrQuantityOverCap     = fmt.Errorf("sellable quantity exceeds half of the predicted yield")
	ErrInvalidQuantity     = fmt.Errorf("quantity must be positive")
	ErrInvalidPrice        = fmt.Errorf("starting price must be positive")
	ErrInvalidDuration     = fmt.Errorf("duration must be between 1 and 5 minutes")
	ErrMissingField        = fmt.Errorf("required field is empty")
)

// CreateAuctionCommand carries everything needed to list a crop lot.
// PredictedYield comes from the external yield-prediction collaborator and is
// only used to cap the sellable quantity at creation time.
type CreateAuctionCommand struct {
	FarmerID             uuid.UUID
	FarmerName           string
	CropName             string
	Location             string
	TotalQuantity        int64
	SellableQuantity     int64
	PredictedYield       int64
	StartingPricePerUnit int64
	DurationMinutes      int
}

// AcceptBidCommand represents the farmer's single irreversible accept decision
type AcceptBidCommand struct {
	AuctionID uuid.UUID
	BidID     uuid.UUID
	CallerID  uuid.UUID
}

// RejectBidCommand represents the farmer turning down a pending bid
type RejectBidCommand struct {
	AuctionID uuid.UUID
	BidID     uuid.UUID
	CallerID  uuid.UUID
}

// CancelAuctionCommand represents the farmer withdrawing a bid-free auction
type CancelAuctionCommand struct {
	AuctionID uuid.UUID
	CallerID  uuid.UUID
}

// DeleteAuctionCommand represents the farmer deleting a bid-free open auction
type DeleteAuctionCommand struct {
	AuctionID uuid.UUID
	CallerID  uuid.UUID
}

// validateSellableQuantity enforces the 50%-of-predicted-yield cap
func validateSellableQuantity(sellable, predictedYield int64) error {
	if sellable <= 0 || predictedYield <= 0 || sellable > MaxQuantity || predictedYield > 2*MaxQuantity {
		return ErrInvalidQuantity
	}
	if sellable*2 > predictedYield {
		return ErrQuantityOverCap
	}
	return nil
}

// validateDuration bounds the bidding window
func validateDuration(minutes int) error {
	if minutes <= 0 || minutes > MaxDurationMinutes {
		return ErrInvalidDuration
	}
	return nil
}

func validateCreateAuction(cmd CreateAuctionCommand) error {
	if cmd.CropName == "" || cmd.Location == "" {
		return ErrMissingField
	}
	if cmd.TotalQuantity <= 0 || cmd.TotalQuantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if cmd.StartingPricePerUnit <= 0 || cmd.StartingPricePerUnit > MaxPricePerUnit {
		return ErrInvalidPrice
	}
	if err := validateSellableQuantity(cmd.SellableQuantity, cmd.PredictedYield); err != nil {
		return err
	}
	return validateDuration(cmd.DurationMinutes)
}

// Service owns the auction lifecycle: creation policy and the state machine
// for acceptance, rejection, cancellation, deletion and expiry.
type Service struct {
	txManager  database.TransactionManager
	repo       Repository
	bidRepo    BidRepository
	outboxRepo OutboxRepository
	logger     *slog.Logger
}

// NewService creates a new auction service
func NewService(
	txManager database.TransactionManager,
	repo Repository,
	bidRepo BidRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager:  txManager,
		repo:       repo,
		bidRepo:    bidRepo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// CreateAuction lists a new crop lot. A farmer may hold at most one active
// auction; the check here is backed by a partial unique index so concurrent
// creates cannot both succeed.
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	if err := validateCreateAuction(cmd); err != nil {
		return nil, err
	}

	now := time.Now()
	auction := &Auction{
		ID:                   uuid.New(),
		FarmerID:             cmd.FarmerID,
		FarmerName:           cmd.FarmerName,
		CropName:             cmd.CropName,
		Location:             cmd.Location,
		TotalQuantity:        cmd.TotalQuantity,
		SellableQuantity:     cmd.SellableQuantity,
		StartingPricePerUnit: cmd.StartingPricePerUnit,
		TotalPrice:           cmd.SellableQuantity * cmd.StartingPricePerUnit,
		DurationMinutes:      cmd.DurationMinutes,
		Status:               StatusOpen,
		HighestBid:           0,
		PaymentStatus:        PaymentStatusUnpaid,
		EndsAt:               now.Add(time.Duration(cmd.DurationMinutes) * time.Minute),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if createErr := s.repo.CreateAuction(ctx, tx, auction); createErr != nil {
		return nil, createErr
	}

	if saveErr := s.saveEvent(ctx, tx, EventTypeAuctionCreated, EventPayload{
		AuctionID:  auction.ID,
		OccurredAt: now,
	}); saveErr != nil {
		return nil, saveErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	s.logger.Info("auction created", "auction_id", auction.ID, "farmer_id", auction.FarmerID, "crop", auction.CropName)
	return auction, nil
}

// GetAuction retrieves an auction by ID
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	return s.repo.GetAuction(ctx, auctionID)
}

// ListOpen retrieves open auctions with pagination
func (s *Service) ListOpen(ctx context.Context, limit, offset int) ([]*Auction, error) {
	return s.repo.ListOpen(ctx, limit, offset)
}

// ListByFarmer retrieves all auctions created by a farmer
func (s *Service) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*Auction, error) {
	return s.repo.ListByFarmer(ctx, farmerID)
}

// GetSnapshot retrieves the auction together with all its bids
func (s *Service) GetSnapshot(ctx context.Context, auctionID uuid.UUID) (*Snapshot, error) {
	return s.repo.GetSnapshot(ctx, auctionID)
}

// AcceptBid closes the auction on the farmer's chosen bid. The whole effect
// (bid accepted, winning bid recorded, auction closed) is one transaction, and
// the close itself is a conditional update on the status column so a second
// racing accept fails with ErrStateConflict instead of double-accepting.
func (s *Service) AcceptBid(ctx context.Context, cmd AcceptBidCommand) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	if !auction.IsOwnedBy(cmd.CallerID) {
		return nil, ErrNotAuctionOwner
	}
	if auction.Status != StatusOpen {
		return nil, ErrStateConflict
	}

	bid, err := s.bidRepo.GetBidForUpdate(ctx, tx, cmd.BidID)
	if err != nil {
		return nil, err
	}
	if bid.AuctionID != cmd.AuctionID {
		return nil, ErrBidNotFound
	}
	if bid.Status != BidStatusPending {
		return nil, ErrBidNotPending
	}

	if updateErr := s.bidRepo.UpdateBidStatus(ctx, tx, bid.ID, BidStatusAccepted); updateErr != nil {
		return nil, fmt.Errorf("failed to accept bid: %w", updateErr)
	}

	closed, err := s.repo.CloseAuction(ctx, tx, auction.ID, bid.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to close auction: %w", err)
	}
	if !closed {
		return nil, ErrStateConflict
	}

	now := time.Now()
	if saveErr := s.saveEvent(ctx, tx, EventTypeAuctionClosed, EventPayload{
		AuctionID:  auction.ID,
		BidID:      bid.ID,
		Amount:     bid.Amount,
		OccurredAt: now,
	}); saveErr != nil {
		return nil, saveErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	auction.Status = StatusClosed
	auction.WinningBidID = &bid.ID
	s.logger.Info("bid accepted", "auction_id", auction.ID, "bid_id", bid.ID, "amount", bid.Amount)
	return auction, nil
}

// RejectBid turns down a pending bid while the auction is still open. The
// stored highest bid is recomputed in the same transaction so the reported
// value stays the maximum over pending and accepted bids.
func (s *Service) RejectBid(ctx context.Context, cmd RejectBidCommand) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return err
	}

	if !auction.IsOwnedBy(cmd.CallerID) {
		return ErrNotAuctionOwner
	}
	if auction.Status != StatusOpen {
		return ErrStateConflict
	}

	bid, err := s.bidRepo.GetBidForUpdate(ctx, tx, cmd.BidID)
	if err != nil {
		return err
	}
	if bid.AuctionID != cmd.AuctionID {
		return ErrBidNotFound
	}
	if bid.Status != BidStatusPending {
		return ErrBidNotPending
	}

	if updateErr := s.bidRepo.UpdateBidStatus(ctx, tx, bid.ID, BidStatusRejected); updateErr != nil {
		return fmt.Errorf("failed to reject bid: %w", updateErr)
	}

	if _, recomputeErr := s.repo.RecomputeHighestBid(ctx, tx, auction.ID); recomputeErr != nil {
		return fmt.Errorf("failed to recompute highest bid: %w", recomputeErr)
	}

	if saveErr := s.saveEvent(ctx, tx, EventTypeBidRejected, EventPayload{
		AuctionID:  auction.ID,
		BidID:      bid.ID,
		Amount:     bid.Amount,
		OccurredAt: time.Now(),
	}); saveErr != nil {
		return saveErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", commitErr)
	}

	return nil
}

// CancelAuction withdraws an open auction that has attracted no bids
func (s *Service) CancelAuction(ctx context.Context, cmd CancelAuctionCommand) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return err
	}

	if !auction.IsOwnedBy(cmd.CallerID) {
		return ErrNotAuctionOwner
	}
	if auction.Status != StatusOpen {
		return ErrStateConflict
	}

	if err := s.cancelLocked(ctx, tx, auction.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteAuction removes an open auction that has attracted no bids. Completed
// auctions are never deleted; they are the trade history.
func (s *Service) DeleteAuction(ctx context.Context, cmd DeleteAuctionCommand) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return err
	}

	if !auction.IsOwnedBy(cmd.CallerID) {
		return ErrNotAuctionOwner
	}
	if auction.Status != StatusOpen {
		return ErrStateConflict
	}

	bidCount, err := s.bidRepo.CountBidsByAuctionTx(ctx, tx, auction.ID)
	if err != nil {
		return fmt.Errorf("failed to count bids: %w", err)
	}
	if bidCount > 0 {
		return ErrAuctionHasBids
	}

	deleted, err := s.repo.DeleteAuction(ctx, tx, auction.ID)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	if !deleted {
		return ErrStateConflict
	}

	return tx.Commit(ctx)
}

// CloseExpired sweeps open auctions whose bidding window has elapsed. Lots
// that attracted no bids are cancelled; lots with pending bids stay open so
// the farmer can still pick a winner (new bids are already refused past the
// end time). Returns the number of auctions cancelled.
func (s *Service) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListExpiredOpen(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	cancelled := 0
	for _, id := range ids {
		done, err := s.cancelExpired(ctx, id, now)
		if err != nil {
			s.logger.Error("failed to sweep expired auction", "auction_id", id, "error", err)
			continue
		}
		if done {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Service) cancelExpired(ctx context.Context, auctionID uuid.UUID, now time.Time) (bool, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionForUpdate(ctx, tx, auctionID)
	if err != nil {
		return false, err
	}
	// Re-check under the lock; the farmer may have accepted meanwhile.
	if auction.Status != StatusOpen || !auction.HasEnded(now) {
		return false, nil
	}

	bidCount, err := s.bidRepo.CountBidsByAuctionTx(ctx, tx, auction.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count bids: %w", err)
	}
	if bidCount > 0 {
		return false, nil
	}

	if err := s.cancelLocked(ctx, tx, auction.ID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) cancelLocked(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) error {
	bidCount, err := s.bidRepo.CountBidsByAuctionTx(ctx, tx, auctionID)
	if err != nil {
		return fmt.Errorf("failed to count bids: %w", err)
	}
	if bidCount > 0 {
		return ErrAuctionHasBids
	}

	ok, err := s.repo.CancelAuction(ctx, tx, auctionID)
	if err != nil {
		return fmt.Errorf("failed to cancel auction: %w", err)
	}
	if !ok {
		return ErrStateConflict
	}

	return s.saveEvent(ctx, tx, EventTypeAuctionCancelled, EventPayload{
		AuctionID:  auctionID,
		OccurredAt: time.Now(),
	})
}

func (s *Service) saveEvent(ctx context.Context, tx pgx.Tx, eventType EventType, payload EventPayload) error {
	body, err := MarshalEventPayload(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType.String(),
		Payload:   body,
		Status:    events.OutboxStatusPending,
		CreatedAt: time.Now(),
	}

	if saveErr := s.outboxRepo.SaveEvent(ctx, tx, event); saveErr != nil {
		return fmt.Errorf("failed to save outbox event: %w", saveErr)
	}
	return nil
}
