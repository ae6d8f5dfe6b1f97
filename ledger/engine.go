// Package ledger implements pro-rata, pull-based distribution of a token pool.
//
// Every beneficiary owns share weight out of TotalShares. Nothing is pushed
// when the pool receives tokens; instead a claim recomputes the caller's
// lifetime entitlement from everything the pool has ever received (vault
// balance plus ledger.TotalReleased) and pays the difference to what the
// caller already withdrew.
//
// Two beneficiaries (marketing and liquidity) are fixed at initialization.
// The remaining weight is handed out, HolderShares at a time, to holders of a
// collection-verified credential. Their records are keyed by the account the
// credential is held in, not by the credential mint, so a credential that
// changes hands must be registered again by its new holder.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Engine runs initialize, register and claim against a Store, a Vault and a
// Verifier. Every mutating operation holds a single lock from the first read
// until the store transaction commits, so read-compute-write-transfer is one
// critical section.
type Engine struct {
	mu sync.Mutex

	store    Store
	vault    Vault
	verifier Verifier
	logger   *slog.Logger

	authority     wallet.Address
	asset         Asset
	enforceBudget bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuthority sets the authority presented to the vault on transfers.
func WithAuthority(authority wallet.Address) Option {
	return func(e *Engine) { e.authority = authority }
}

// WithAsset sets the token the vault pays out.
func WithAsset(asset Asset) Option {
	return func(e *Engine) { e.asset = asset }
}

// WithShareBudget turns the admission share budget check on or off. It is on
// by default; turning it off lets admissions push total shares past
// TotalShares, which starves later claimants.
func WithShareBudget(enforce bool) Option {
	return func(e *Engine) { e.enforceBudget = enforce }
}

// NewEngine creates an Engine. verifier may be nil if no credential
// operations will be run.
func NewEngine(store Store, vault Vault, verifier Verifier, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("ledger: store is required")
	}
	if vault == nil {
		return nil, errors.New("ledger: vault is required")
	}
	e := &Engine{
		store:         store,
		vault:         vault,
		verifier:      verifier,
		logger:        slog.New(slog.DiscardHandler),
		enforceBudget: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Initialize creates the ledger and the two fixed claim records. It can run
// once per store; a second call fails with ErrAlreadyInitialized and writes
// nothing.
func (e *Engine) Initialize(ctx context.Context, marketing, liquidity, collection wallet.Address) (*Ledger, *ClaimAccount, *ClaimAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	if marketing.IsZero() || liquidity.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: zero address", ErrInvalidBeneficiary)
	}
	if marketing == liquidity {
		return nil, nil, nil, fmt.Errorf("%w: marketing and liquidity must differ", ErrInvalidBeneficiary)
	}
	if collection.IsZero() {
		return nil, nil, nil, fmt.Errorf("%w: zero collection address", ErrInvalidCollection)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l := &Ledger{
		Marketing:       marketing,
		Liquidity:       liquidity,
		Collection:      collection,
		AllocatedShares: MarketingShares + LiquidityShares,
	}
	marketingClaim := NewClaimAccount(MarketingShares)
	liquidityClaim := NewClaimAccount(LiquidityShares)

	err := e.store.Update(func(tx Tx) error {
		if err := tx.CreateLedger(l); err != nil {
			return err
		}
		for _, rec := range []struct {
			key  wallet.Address
			acct *ClaimAccount
		}{{marketing, marketingClaim}, {liquidity, liquidityClaim}} {
			if err := tx.CreateClaim(rec.key, rec.acct); err != nil {
				if errors.Is(err, ErrClaimExists) {
					return fmt.Errorf("%w: claim %s", ErrAlreadyInitialized, rec.key)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.logFailure("initialize", err)
		return nil, nil, nil, err
	}

	e.logger.Info("ledger initialized",
		"marketing", marketing.String(),
		"liquidity", liquidity.String(),
		"collection", collection.String())
	return l, marketingClaim, liquidityClaim, nil
}

// logFailure logs err at a level matching its class.
func (e *Engine) logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "error", err)
	switch {
	case IsFatal(err):
		e.logger.Error("ledger operation aborted", attrs...)
	case IsValidation(err):
		e.logger.Debug("ledger operation rejected", attrs...)
	default:
		e.logger.Warn("ledger operation failed", attrs...)
	}
}
