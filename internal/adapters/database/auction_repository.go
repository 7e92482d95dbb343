package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	pkgdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
)

const auctionColumns = `id, farmer_id, farmer_name, crop_name, location, total_quantity,
		sellable_quantity, starting_price_per_unit, total_price, duration_minutes,
		status, highest_bid, winning_bid_id, payment_status, payment_at, ends_at,
		created_at, updated_at`

// PostgresAuctionRepository implements the auction persistence ports using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

// CreateAuction inserts a new auction within a transaction
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, tx pgx.Tx, auction *auctions.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := tx.Exec(ctx, query,
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
		auction.WinningBidID,
		auction.PaymentStatus,
		auction.PaymentAt,
		auction.EndsAt,
		auction.CreatedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "auctions_one_active_per_farmer" {
			// The partial unique index on (farmer_id) covers active auctions.
			return auctions.ErrActiveAuctionExists
		}
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuction retrieves an auction by its ID (non-transactional read)
func (r *PostgresAuctionRepository) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuction(ctx, r.pool, auctionID, false)
}

// GetAuctionForUpdate retrieves an auction and locks its row for update.
// This serializes all state-changing operations against the same auction.
func (r *PostgresAuctionRepository) GetAuctionForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuction(ctx, tx, auctionID, true)
}

func (r *PostgresAuctionRepository) getAuction(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID, forUpdate bool) (*auctions.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	auction, err := scanAuction(db.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

// ListOpen retrieves open auctions with pagination, newest first
func (r *PostgresAuctionRepository) ListOpen(ctx context.Context, limit, offset int) ([]*auctions.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.queryAuctions(ctx, query, limit, offset)
}

// ListByFarmer retrieves all auctions created by a farmer, newest first
func (r *PostgresAuctionRepository) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]*auctions.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE farmer_id = $1
		ORDER BY created_at DESC
	`
	return r.queryAuctions(ctx, query, farmerID)
}

// ListExpiredOpen retrieves ids of open auctions whose bidding window elapsed
func (r *PostgresAuctionRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM auctions
		WHERE status = 'open' AND ends_at < $1
		ORDER BY ends_at
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return ids, nil
}

// CloseAuction transitions open -> closed and records the winning bid. The
// status predicate makes this a compare-and-set: it fails when another caller
// already closed the auction.
func (r *PostgresAuctionRepository) CloseAuction(ctx context.Context, tx pgx.Tx, auctionID, winningBidID uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'closed', winning_bid_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'open'
	`
	result, err := tx.Exec(ctx, query, winningBidID, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to close auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CancelAuction transitions open -> cancelled conditionally
func (r *PostgresAuctionRepository) CancelAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error) {
	query := `
		UPDATE auctions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'open'
	`
	result, err := tx.Exec(ctx, query, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkSettled transitions closed -> completed and flips the payment fields
func (r *PostgresAuctionRepository) MarkSettled(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, paidAt time.Time) error {
	query := `
		UPDATE auctions
		SET status = 'completed', payment_status = 'paid', payment_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'closed' AND payment_status = 'unpaid'
	`
	result, err := tx.Exec(ctx, query, paidAt, auctionID)
	if err != nil {
		return fmt.Errorf("failed to mark auction settled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("auction %s was not awaiting settlement", auctionID)
	}
	return nil
}

// DeleteAuction removes an open, bid-free auction
func (r *PostgresAuctionRepository) DeleteAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM auctions
		WHERE id = $1 AND status = 'open'
		  AND NOT EXISTS (SELECT 1 FROM bids WHERE bids.auction_id = auctions.id)
	`
	result, err := tx.Exec(ctx, query, auctionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete auction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// RaiseHighestBid lifts the stored highest bid to the given amount if higher
func (r *PostgresAuctionRepository) RaiseHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) error {
	query := `
		UPDATE auctions
		SET highest_bid = GREATEST(highest_bid, $1), updated_at = NOW()
		WHERE id = $2
	`
	result, err := tx.Exec(ctx, query, amount, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update highest bid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auctions.ErrAuctionNotFound
	}
	return nil
}

// RecomputeHighestBid resets the stored highest bid from the remaining
// pending bids, returning the new value
func (r *PostgresAuctionRepository) RecomputeHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int64, error) {
	query := `
		UPDATE auctions
		SET highest_bid = COALESCE(
			(SELECT MAX(amount) FROM bids WHERE auction_id = $1 AND status = 'pending'), 0
		), updated_at = NOW()
		WHERE id = $1
		RETURNING highest_bid
	`
	var highest int64
	if err := tx.QueryRow(ctx, query, auctionID).Scan(&highest); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, auctions.ErrAuctionNotFound
		}
		return 0, fmt.Errorf("failed to recompute highest bid: %w", err)
	}
	return highest, nil
}

// GetSnapshot retrieves the auction together with all its bids, bids newest first
func (r *PostgresAuctionRepository) GetSnapshot(ctx context.Context, auctionID uuid.UUID) (*auctions.Snapshot, error) {
	auction, err := r.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, auction_id, bidder_id, bidder_name, amount, status, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	snapshot := &auctions.Snapshot{Auction: *auction, Bids: []auctions.Bid{}}
	for rows.Next() {
		var bid auctions.Bid
		if err := rows.Scan(
			&bid.ID,
			&bid.AuctionID,
			&bid.BidderID,
			&bid.BidderName,
			&bid.Amount,
			&bid.Status,
			&bid.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		snapshot.Bids = append(snapshot.Bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return snapshot, nil
}

func (r *PostgresAuctionRepository) queryAuctions(ctx context.Context, query string, args ...any) ([]*auctions.Auction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var result []*auctions.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		result = append(result, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return result, nil
}

func scanAuction(row pgx.Row) (*auctions.Auction, error) {
	var auction auctions.Auction
	err := row.Scan(
		&auction.ID,
		&auction.FarmerID,
		&auction.FarmerName,
		&auction.CropName,
		&auction.Location,
		&auction.TotalQuantity,
		&auction.SellableQuantity,
		&auction.StartingPricePerUnit,
		&auction.TotalPrice,
		&auction.DurationMinutes,
		&auction.Status,
		&auction.HighestBid,
		&auction.WinningBidID,
		&auction.PaymentStatus,
		&auction.PaymentAt,
		&auction.EndsAt,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &auction, nil
}
