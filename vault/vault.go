// Package vault is the token book behind the share pool. One account, the
// pool, holds everything waiting to be claimed; only the deployment
// authority may move tokens out of it.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

// Config fixes the vault's identity at construction.
type Config struct {
	Authority wallet.Address // the only authority allowed to transfer out of Pool
	Pool      wallet.Address // account holding the distributable balance
	Asset     ledger.Asset
	Fee       FeeSchedule
}

// Vault implements ledger.Vault over a Book.
type Vault struct {
	mu   sync.Mutex
	book Book
	cfg  Config
}

// Compile-time interface check.
var _ ledger.Vault = (*Vault)(nil)

// New creates a Vault.
func New(book Book, cfg Config) (*Vault, error) {
	if book == nil {
		return nil, fmt.Errorf("%w: book is required", ErrInvalidConfig)
	}
	if cfg.Authority.IsZero() || cfg.Pool.IsZero() {
		return nil, fmt.Errorf("%w: authority and pool are required", ErrInvalidConfig)
	}
	if err := cfg.Fee.Validate(); err != nil {
		return nil, err
	}
	return &Vault{book: book, cfg: cfg}, nil
}

// Pool returns the pool account address.
func (v *Vault) Pool() wallet.Address { return v.cfg.Pool }

// Asset returns the asset the vault holds.
func (v *Vault) Asset() ledger.Asset { return v.cfg.Asset }

// Balance returns the pool balance.
func (v *Vault) Balance(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return v.book.Get(KindBalance, v.cfg.Pool)
}

// AccountBalance returns the spendable balance of account.
func (v *Vault) AccountBalance(ctx context.Context, account wallet.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return v.book.Get(KindBalance, account)
}

// Withheld returns the fees withheld in account and not yet harvested.
func (v *Vault) Withheld(ctx context.Context, account wallet.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return v.book.Get(KindWithheld, account)
}

// Deposit credits the pool with amount from outside the book.
func (v *Vault) Deposit(ctx context.Context, amount uint64) error {
	return v.Mint(ctx, v.cfg.Pool, amount)
}

// Mint credits account with amount from outside the book.
func (v *Vault) Mint(ctx context.Context, account wallet.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book.Apply([]Move{{Account: account, Kind: KindBalance, Amount: amount}})
}

// Send moves amount between two ordinary accounts, withholding the transfer
// fee in the recipient's account.
func (v *Vault) Send(ctx context.Context, from, to wallet.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == v.cfg.Pool {
		return fmt.Errorf("%w: pool funds move only through Transfer", ErrUnauthorized)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book.Apply(v.transferMoves(from, to, amount))
}

// Transfer pays out of the pool. It is all-or-nothing: a rejected request
// leaves every balance untouched.
func (v *Vault) Transfer(ctx context.Context, req ledger.TransferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.Amount == 0 {
		return ErrZeroAmount
	}
	if req.Authority != v.cfg.Authority {
		return fmt.Errorf("%w: %s", ErrUnauthorized, req.Authority)
	}
	if req.Asset != v.cfg.Asset {
		return fmt.Errorf("%w: mint %s decimals %d", ErrAssetMismatch, req.Asset.Mint, req.Asset.Decimals)
	}
	if req.To == v.cfg.Pool {
		return fmt.Errorf("%w: payout into the pool account", ErrUnauthorized)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book.Apply(v.transferMoves(v.cfg.Pool, req.To, req.Amount))
}

func (v *Vault) transferMoves(from, to wallet.Address, amount uint64) []Move {
	fee := v.cfg.Fee.Fee(amount)
	moves := []Move{
		{Account: from, Kind: KindBalance, Amount: amount, Debit: true},
		{Account: to, Kind: KindBalance, Amount: amount - fee},
	}
	if fee > 0 {
		moves = append(moves, Move{Account: to, Kind: KindWithheld, Amount: fee})
	}
	return moves
}

// Harvest sweeps the fees withheld in accounts into the pool and returns the
// total moved.
func (v *Vault) Harvest(ctx context.Context, accounts ...wallet.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var (
		moves []Move
		total uint64
	)
	seen := make(map[wallet.Address]bool, len(accounts))
	for _, account := range accounts {
		if seen[account] {
			continue
		}
		seen[account] = true

		withheld, err := v.book.Get(KindWithheld, account)
		if err != nil {
			return 0, err
		}
		if withheld == 0 {
			continue
		}
		total += withheld
		moves = append(moves,
			Move{Account: account, Kind: KindWithheld, Amount: withheld, Debit: true},
			Move{Account: v.cfg.Pool, Kind: KindBalance, Amount: withheld},
		)
	}
	if len(moves) == 0 {
		return 0, nil
	}
	if err := v.book.Apply(moves); err != nil {
		return 0, err
	}
	return total, nil
}
