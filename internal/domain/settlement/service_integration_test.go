//go:build integration

package settlement_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infradb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/adapters/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/bids"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/settlement"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/testhelpers"
)

type testStack struct {
	Auctions    *auctions.Service
	Bids        *bids.Ledger
	Wallets     *wallets.Ledger
	Settlements *settlement.Engine
	AuctionRepo *infradb.PostgresAuctionRepository
}

func setupStack(pool *pgxpool.Pool) *testStack {
	txManager := database.NewPostgresTransactionManager(pool, 5*time.Second)
	auctionRepo := infradb.NewPostgresAuctionRepository(pool)
	bidRepo := infradb.NewPostgresBidRepository(pool)
	walletRepo := infradb.NewPostgresWalletRepository(pool)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	walletLedger := wallets.NewLedger(txManager, walletRepo)
	return &testStack{
		Auctions:    auctions.NewService(txManager, auctionRepo, bidRepo, outboxRepo, logger),
		Bids:        bids.NewLedger(txManager, auctionRepo, bidRepo, outboxRepo),
		Wallets:     walletLedger,
		Settlements: settlement.NewEngine(txManager, auctionRepo, bidRepo, walletLedger, outboxRepo, logger),
		AuctionRepo: auctionRepo,
	}
}

// closedAuction drives a fresh auction to the closed state: created by the
// farmer, bid on by the buyer, bid accepted.
func closedAuction(t *testing.T, stack *testStack, farmerID, buyerID uuid.UUID, amount int64) *auctions.Auction {
	t.Helper()
	ctx := context.Background()

	auction, err := stack.Auctions.CreateAuction(ctx, auctions.CreateAuctionCommand{
		FarmerID:             farmerID,
		FarmerName:           "Akbar",
		CropName:             "Wheat",
		Location:             "Okara",
		TotalQuantity:        100,
		SellableQuantity:     10,
		PredictedYield:       100,
		StartingPricePerUnit: 700,
		DurationMinutes:      5,
	})
	require.NoError(t, err)

	bid, err := stack.Bids.SubmitBid(ctx, bids.SubmitBidCommand{
		AuctionID:  auction.ID,
		BidderID:   buyerID,
		BidderName: "Salman Traders",
		Amount:     amount,
	})
	require.NoError(t, err)

	closed, err := stack.Auctions.AcceptBid(ctx, auctions.AcceptBidCommand{
		AuctionID: auction.ID,
		BidID:     bid.ID,
		CallerID:  farmerID,
	})
	require.NoError(t, err)
	return closed
}

func TestEngine_Settle(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	farmerID := uuid.New()
	buyerID := uuid.New()

	buyerAccount := wallets.Account{UserID: buyerID, Role: wallets.RoleBuyer}
	farmerAccount := wallets.Account{UserID: farmerID, Role: wallets.RoleFarmer}
	require.NoError(t, stack.Wallets.Credit(ctx, buyerAccount, 10000))

	auction := closedAuction(t, stack, farmerID, buyerID, 7500)

	receipt, err := stack.Settlements.Settle(ctx, settlement.SettleCommand{
		AuctionID: auction.ID,
		CallerID:  buyerID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), receipt.Amount)
	assert.Equal(t, buyerID, receipt.BuyerID)
	assert.Equal(t, farmerID, receipt.FarmerID)

	// Exactly the bid amount moved, and no coins were created or destroyed
	buyerBalance, err := stack.Wallets.GetBalance(ctx, buyerAccount)
	require.NoError(t, err)
	farmerBalance, err := stack.Wallets.GetBalance(ctx, farmerAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), buyerBalance)
	assert.Equal(t, int64(7500), farmerBalance)
	assert.Equal(t, int64(10000), buyerBalance+farmerBalance)

	stored, err := stack.AuctionRepo.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auctions.StatusCompleted, stored.Status)
	assert.Equal(t, auctions.PaymentStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentAt)
}

func TestEngine_Settle_InsufficientFundsThenRetry(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	farmerID := uuid.New()
	buyerID := uuid.New()

	buyerAccount := wallets.Account{UserID: buyerID, Role: wallets.RoleBuyer}
	require.NoError(t, stack.Wallets.Credit(ctx, buyerAccount, 5000))

	auction := closedAuction(t, stack, farmerID, buyerID, 7500)

	cmd := settlement.SettleCommand{AuctionID: auction.ID, CallerID: buyerID}
	_, err := stack.Settlements.Settle(ctx, cmd)
	assert.ErrorIs(t, err, wallets.ErrInsufficientFunds)

	// The failure left nothing half-done: still closed, still unpaid
	stored, err := stack.AuctionRepo.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, auctions.StatusClosed, stored.Status)
	assert.Equal(t, auctions.PaymentStatusUnpaid, stored.PaymentStatus)

	balance, err := stack.Wallets.GetBalance(ctx, buyerAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	// After topping up, the same settle succeeds
	require.NoError(t, stack.Wallets.Credit(ctx, buyerAccount, 5000))
	_, err = stack.Settlements.Settle(ctx, cmd)
	assert.NoError(t, err)
}

func TestEngine_Settle_Idempotent(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	farmerID := uuid.New()
	buyerID := uuid.New()

	buyerAccount := wallets.Account{UserID: buyerID, Role: wallets.RoleBuyer}
	require.NoError(t, stack.Wallets.Credit(ctx, buyerAccount, 20000))

	auction := closedAuction(t, stack, farmerID, buyerID, 7500)
	cmd := settlement.SettleCommand{AuctionID: auction.ID, CallerID: buyerID}

	_, err := stack.Settlements.Settle(ctx, cmd)
	require.NoError(t, err)

	// A second settle fails and moves nothing
	_, err = stack.Settlements.Settle(ctx, cmd)
	assert.ErrorIs(t, err, settlement.ErrAlreadySettled)

	balance, err := stack.Wallets.GetBalance(ctx, buyerAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), balance)
}

// TestEngine_Settle_ConcurrentDoublePay fires two settles at once; the row
// lock serializes them and exactly one transfer happens.
func TestEngine_Settle_ConcurrentDoublePay(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	farmerID := uuid.New()
	buyerID := uuid.New()

	buyerAccount := wallets.Account{UserID: buyerID, Role: wallets.RoleBuyer}
	require.NoError(t, stack.Wallets.Credit(ctx, buyerAccount, 20000))

	auction := closedAuction(t, stack, farmerID, buyerID, 7500)
	cmd := settlement.SettleCommand{AuctionID: auction.ID, CallerID: buyerID}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = stack.Settlements.Settle(ctx, cmd)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, settlement.ErrAlreadySettled)
		}
	}
	assert.Equal(t, 1, wins)

	balance, err := stack.Wallets.GetBalance(ctx, buyerAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), balance)
}

func TestEngine_Settle_OnlyWinningBidder(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	farmerID := uuid.New()
	buyerID := uuid.New()

	require.NoError(t, stack.Wallets.Credit(ctx, wallets.Account{UserID: buyerID, Role: wallets.RoleBuyer}, 10000))
	auction := closedAuction(t, stack, farmerID, buyerID, 7500)

	_, err := stack.Settlements.Settle(ctx, settlement.SettleCommand{
		AuctionID: auction.ID,
		CallerID:  uuid.New(),
	})
	assert.ErrorIs(t, err, settlement.ErrNotWinningBidder)
}

func TestEngine_Settle_OpenAuction(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	buyerID := uuid.New()

	auction, err := stack.Auctions.CreateAuction(ctx, auctions.CreateAuctionCommand{
		FarmerID:             uuid.New(),
		FarmerName:           "Akbar",
		CropName:             "Wheat",
		Location:             "Okara",
		TotalQuantity:        100,
		SellableQuantity:     10,
		PredictedYield:       100,
		StartingPricePerUnit: 700,
		DurationMinutes:      5,
	})
	require.NoError(t, err)

	_, err = stack.Settlements.Settle(ctx, settlement.SettleCommand{
		AuctionID: auction.ID,
		CallerID:  buyerID,
	})
	assert.ErrorIs(t, err, settlement.ErrAuctionNotClosed)
}

// Buyer and farmer wallets are independent even for the same user id
func TestWallets_RolesAreSeparate(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	stack := setupStack(testDB.Pool)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, stack.Wallets.Credit(ctx, wallets.Account{UserID: userID, Role: wallets.RoleBuyer}, 3000))

	farmerBalance, err := stack.Wallets.GetBalance(ctx, wallets.Account{UserID: userID, Role: wallets.RoleFarmer})
	require.NoError(t, err)
	assert.Equal(t, int64(0), farmerBalance)

	buyerBalance, err := stack.Wallets.GetBalance(ctx, wallets.Account{UserID: userID, Role: wallets.RoleBuyer})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), buyerBalance)
}
