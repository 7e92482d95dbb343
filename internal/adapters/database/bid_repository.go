package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/auctions"
	pkgdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
)

const bidColumns = `id, auction_id, bidder_id, bidder_name, amount, status, created_at`

// PostgresBidRepository implements the bid persistence ports using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid appends a bid within a transaction
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *auctions.Bid) error {
	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.AuctionID,
		bid.BidderID,
		bid.BidderName,
		bid.Amount,
		bid.Status,
		bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetBid retrieves a bid by its ID
func (r *PostgresBidRepository) GetBid(ctx context.Context, bidID uuid.UUID) (*auctions.Bid, error) {
	return r.getBid(ctx, r.pool, bidID, false)
}

// GetBidForUpdate retrieves a bid and locks its row for update
func (r *PostgresBidRepository) GetBidForUpdate(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (*auctions.Bid, error) {
	return r.getBid(ctx, tx, bidID, true)
}

func (r *PostgresBidRepository) getBid(ctx context.Context, db pkgdb.DBTX, bidID uuid.UUID, forUpdate bool) (*auctions.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var bid auctions.Bid
	err := db.QueryRow(ctx, query, bidID).Scan(
		&bid.ID,
		&bid.AuctionID,
		&bid.BidderID,
		&bid.BidderName,
		&bid.Amount,
		&bid.Status,
		&bid.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return &bid, nil
}

// UpdateBidStatus sets a bid's status within a transaction
func (r *PostgresBidRepository) UpdateBidStatus(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, status auctions.BidStatus) error {
	query := `UPDATE bids SET status = $1 WHERE id = $2`
	result, err := tx.Exec(ctx, query, status, bidID)
	if err != nil {
		return fmt.Errorf("failed to update bid status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return auctions.ErrBidNotFound
	}
	return nil
}

// ListBidsByAuction retrieves all bids for an auction, newest first
func (r *PostgresBidRepository) ListBidsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*auctions.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*auctions.Bid
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
		result = append(result, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

// CountBidsByAuction returns the number of bids recorded for an auction
func (r *PostgresBidRepository) CountBidsByAuction(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	return r.countBids(ctx, r.pool, auctionID)
}

// CountBidsByAuctionTx is CountBidsByAuction inside an open transaction
func (r *PostgresBidRepository) CountBidsByAuctionTx(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (int64, error) {
	return r.countBids(ctx, tx, auctionID)
}

func (r *PostgresBidRepository) countBids(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID) (int64, error) {
	var count int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bids: %w", err)
	}
	return count, nil
}
