package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Abdurrehman-Afzal-Warraich/AgroBoost/pkg/database"
)

// Service errors
var (
	ErrWalletNotFound    = fmt.Errorf("wallet not found")
	ErrInsufficientFunds = fmt.Errorf("insufficient coin balance")
	ErrInvalidAmount     = fmt.Errorf("amount must be positive")
	ErrSameAccount       = fmt.Errorf("cannot transfer between the same account")
	ErrInvalidRole       = fmt.Errorf("unknown wallet role")
)

// Ledger holds per-user coin balances and is the only writer of them. The
// transfer is a single multi-row update inside one transaction: a debit
// without its matching credit is never observable.
type Ledger struct {
	txManager database.TransactionManager
	repo      Repository
}

// NewLedger creates a new wallet ledger
func NewLedger(txManager database.TransactionManager, repo Repository) *Ledger {
	return &Ledger{
		txManager: txManager,
		repo:      repo,
	}
}

// GetBalance returns the current coin balance for an account. A wallet that
// was never credited reads as zero.
func (l *Ledger) GetBalance(ctx context.Context, account Account) (int64, error) {
	if !account.Role.IsValid() {
		return 0, ErrInvalidRole
	}
	wallet, err := l.repo.GetWallet(ctx, account)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return wallet.Balance, nil
}

// Credit adds coins to an account, creating the wallet on first use. The
// payment capture that funds the credit happens outside this system; the
// ledger only records the coins.
func (l *Ledger) Credit(ctx context.Context, account Account, amount int64) error {
	if !account.Role.IsValid() {
		return ErrInvalidRole
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := l.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if creditErr := l.repo.UpsertCredit(ctx, tx, account, amount); creditErr != nil {
		return fmt.Errorf("failed to credit wallet: %w", creditErr)
	}

	return tx.Commit(ctx)
}

// AtomicTransfer moves coins between two accounts in its own transaction
func (l *Ledger) AtomicTransfer(ctx context.Context, from, to Account, amount int64) error {
	tx, err := l.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if transferErr := l.TransferTx(ctx, tx, from, to, amount); transferErr != nil {
		return transferErr
	}

	return tx.Commit(ctx)
}

// TransferTx moves coins between two accounts inside an already-open
// transaction, so a caller can make the transfer atomic with its own state
// change. Wallet rows are locked in deterministic key order.
func (l *Ledger) TransferTx(ctx context.Context, tx pgx.Tx, from, to Account, amount int64) error {
	if !from.Role.IsValid() || !to.Role.IsValid() {
		return ErrInvalidRole
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from.key() == to.key() {
		return ErrSameAccount
	}

	first, second := from, to
	if second.key() < first.key() {
		first, second = second, first
	}

	locked := map[string]*Wallet{}
	for _, account := range []Account{first, second} {
		wallet, err := l.repo.GetWalletForUpdate(ctx, tx, account)
		if err != nil {
			if errors.Is(err, ErrWalletNotFound) {
				// Missing wallets read as empty: the receiving side is
				// created below, the paying side fails the balance check.
				continue
			}
			return err
		}
		locked[account.key()] = wallet
	}

	source, ok := locked[from.key()]
	if !ok {
		return ErrInsufficientFunds
	}
	if source.Balance < amount {
		return ErrInsufficientFunds
	}

	if err := l.repo.SetBalance(ctx, tx, from, source.Balance-amount); err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	if dest, ok := locked[to.key()]; ok {
		if err := l.repo.SetBalance(ctx, tx, to, dest.Balance+amount); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}
	} else {
		if err := l.repo.UpsertCredit(ctx, tx, to, amount); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}
	}

	return nil
}
