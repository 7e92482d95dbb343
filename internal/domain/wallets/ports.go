package wallets

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for wallet persistence
type Repository interface {
	// GetWallet retrieves a wallet by account
	GetWallet(ctx context.Context, account Account) (*Wallet, error)

	// GetWalletForUpdate retrieves a wallet and locks its row for update.
	// Must be called within a transaction.
	GetWalletForUpdate(ctx context.Context, tx pgx.Tx, account Account) (*Wallet, error)

	// SetBalance writes a wallet's balance within a transaction
	SetBalance(ctx context.Context, tx pgx.Tx, account Account, balance int64) error

	// UpsertCredit adds to a wallet's balance, creating the wallet if needed.
	// Must be called within a transaction.
	UpsertCredit(ctx context.Context, tx pgx.Tx, account Account, amount int64) error
}
