package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/internal/domain/wallets"
	pkgdb "github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
)

// PostgresWalletRepository implements the wallet persistence port using pgx
type PostgresWalletRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWalletRepository creates a new PostgreSQL wallet repository
func NewPostgresWalletRepository(pool *pgxpool.Pool) *PostgresWalletRepository {
	return &PostgresWalletRepository{pool: pool}
}

// GetWallet retrieves a wallet by account
func (r *PostgresWalletRepository) GetWallet(ctx context.Context, account wallets.Account) (*wallets.Wallet, error) {
	return r.getWallet(ctx, r.pool, account, false)
}

// GetWalletForUpdate retrieves a wallet and locks its row for update
func (r *PostgresWalletRepository) GetWalletForUpdate(ctx context.Context, tx pgx.Tx, account wallets.Account) (*wallets.Wallet, error) {
	return r.getWallet(ctx, tx, account, true)
}

func (r *PostgresWalletRepository) getWallet(ctx context.Context, db pkgdb.DBTX, account wallets.Account, forUpdate bool) (*wallets.Wallet, error) {
	query := `
		SELECT user_id, role, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1 AND role = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var wallet wallets.Wallet
	err := db.QueryRow(ctx, query, account.UserID, account.Role).Scan(
		&wallet.UserID,
		&wallet.Role,
		&wallet.Balance,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallets.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// SetBalance writes a wallet's balance within a transaction
func (r *PostgresWalletRepository) SetBalance(ctx context.Context, tx pgx.Tx, account wallets.Account, balance int64) error {
	query := `
		UPDATE wallets
		SET balance = $1, updated_at = NOW()
		WHERE user_id = $2 AND role = $3
	`
	result, err := tx.Exec(ctx, query, balance, account.UserID, account.Role)
	if err != nil {
		return fmt.Errorf("failed to set wallet balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return wallets.ErrWalletNotFound
	}
	return nil
}

// UpsertCredit adds to a wallet's balance, creating the wallet if needed
func (r *PostgresWalletRepository) UpsertCredit(ctx context.Context, tx pgx.Tx, account wallets.Account, amount int64) error {
	query := `
		INSERT INTO wallets (user_id, role, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, query, account.UserID, account.Role, amount); err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	return nil
}
