//go:build integration

package bids_test

import (
	"context"
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
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/testhelpers"
)

// seedAuction inserts a test auction into the database
func seedAuction(t *testing.T, pool *pgxpool.Pool, auction *auctions.Auction) {
	t.Helper()
	ctx := context.Background()
	query := `
		INSERT INTO auctions (id, farmer_id, farmer_name, crop_name, location, total_quantity,
			sellable_quantity, starting_price_per_unit, total_price, duration_minutes,
			status, highest_bid, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := pool.Exec(ctx, query,
		auction.ID,
		auction.FarmerID,
		auction.FarmerName,
		auction.CropName,
		auction.Location,
		auction.TotalQuantity,
		auction.SellableQuantity,
		auction.StartingPricePerUnit,
		auction.TotalPrice,
		auction.DurationMinutes,
		auction.Status,
		auction.HighestBid,
		auction.EndsAt,
	)
	require.NoError(t, err, "failed to seed test auction")
}

func openAuction(farmerID uuid.UUID) *auctions.Auction {
	return &auctions.Auction{
		ID:                   uuid.New(),
		FarmerID:             farmerID,
		FarmerName:           "Akbar",
		CropName:             "Wheat",
		Location:             "Okara",
		TotalQuantity:        100,
		SellableQuantity:     10,
		StartingPricePerUnit: 700,
		TotalPrice:           7000,
		DurationMinutes:      5,
		Status:               auctions.StatusOpen,
		EndsAt:               time.Now().Add(5 * time.Minute),
	}
}

func setupBidLedger(pool *pgxpool.Pool) (*bids.Ledger, *infradb.PostgresAuctionRepository) {
	txManager := database.NewPostgresTransactionManager(pool, 5*time.Second)
	auctionRepo := infradb.NewPostgresAuctionRepository(pool)
	bidRepo := infradb.NewPostgresBidRepository(pool)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)
	return bids.NewLedger(txManager, auctionRepo, bidRepo, outboxRepo), auctionRepo
}

func TestLedger_SubmitBid_Success(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, auctionRepo := setupBidLedger(pool)

	auction := openAuction(uuid.New())
	seedAuction(t, pool, auction)

	bidderID := uuid.New()
	bid, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID:  auction.ID,
		BidderID:   bidderID,
		BidderName: "Salman Traders",
		Amount:     7500,
	})
	require.NoError(t, err)
	require.NotNil(t, bid)
	assert.Equal(t, auctions.BidStatusPending, bid.Status)

	// The stored highest bid reflects the new bid
	stored, err := auctionRepo.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), stored.HighestBid)

	// A bid.placed event sits in the outbox, committed with the bid
	var count int
	err = pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM outbox_events WHERE event_type = $1 AND status = 'pending'`,
		auctions.EventTypeBidPlaced.String(),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLedger_SubmitBid_BelowReserve(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, _ := setupBidLedger(pool)

	auction := openAuction(uuid.New())
	seedAuction(t, pool, auction)

	// Reserve is 700 * 10 = 7000; an equal bid is not enough
	_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    7000,
	})
	assert.ErrorIs(t, err, bids.ErrBidTooLow)
}

func TestLedger_SubmitBid_MustBeatHighest(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, _ := setupBidLedger(pool)

	auction := openAuction(uuid.New())
	seedAuction(t, pool, auction)

	_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    8000,
	})
	require.NoError(t, err)

	// Matching the highest bid is rejected; only strictly greater passes
	_, err = ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    8000,
	})
	assert.ErrorIs(t, err, bids.ErrBidTooLow)

	_, err = ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    8001,
	})
	assert.NoError(t, err)
}

func TestLedger_SubmitBid_FarmerCannotBid(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, _ := setupBidLedger(pool)

	farmerID := uuid.New()
	auction := openAuction(farmerID)
	seedAuction(t, pool, auction)

	_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  farmerID,
		Amount:    7500,
	})
	assert.ErrorIs(t, err, bids.ErrSelfBidNotAllowed)
}

func TestLedger_SubmitBid_AfterWindowEnds(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, _ := setupBidLedger(pool)

	auction := openAuction(uuid.New())
	auction.EndsAt = time.Now().Add(-time.Minute)
	seedAuction(t, pool, auction)

	_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: auction.ID,
		BidderID:  uuid.New(),
		Amount:    7500,
	})
	assert.ErrorIs(t, err, bids.ErrAuctionEnded)
}

func TestLedger_SubmitBid_AuctionNotFound(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()

	ledger, _ := setupBidLedger(testDB.Pool)

	_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
		AuctionID: uuid.New(),
		BidderID:  uuid.New(),
		Amount:    7500,
	})
	assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
}

// TestLedger_SubmitBid_Concurrent submits many bids at once, all above the
// threshold they observed. Every one must be recorded, and the stored highest
// bid must end up as the true maximum.
func TestLedger_SubmitBid_Concurrent(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../../migrations")
	defer testDB.Close()
	pool := testDB.Pool

	ledger, auctionRepo := setupBidLedger(pool)

	auction := openAuction(uuid.New())
	seedAuction(t, pool, auction)

	const bidders = 10
	amounts := make([]int64, bidders)
	for i := range amounts {
		amounts[i] = 7001 + int64(i)*10
	}

	var wg sync.WaitGroup
	succeeded := make([]bool, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ledger.SubmitBid(context.Background(), bids.SubmitBidCommand{
				AuctionID:  auction.ID,
				BidderID:   uuid.New(),
				BidderName: "Buyer",
				Amount:     amounts[i],
			})
			succeeded[i] = err == nil
		}(i)
	}
	wg.Wait()

	// All bids beat the threshold they observed at entry, so all are recorded
	recorded, err := ledger.ListBids(context.Background(), auction.ID)
	require.NoError(t, err)
	okCount := 0
	for _, ok := range succeeded {
		if ok {
			okCount++
		}
	}
	assert.Len(t, recorded, okCount)
	assert.GreaterOrEqual(t, okCount, 1)

	// The stored highest bid is the maximum of the recorded ones
	var max int64
	for _, b := range recorded {
		if b.Amount > max {
			max = b.Amount
		}
		assert.Equal(t, auctions.BidStatusPending, b.Status)
	}
	stored, err := auctionRepo.GetAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, max, stored.HighestBid)
}
