package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Register admits the holder of cred with HolderShares of weight. The new
// record is keyed by the caller's holding account for the credential mint,
// so each holding account can be admitted once; a repeat fails with
// ErrAlreadyRegistered.
func (e *Engine) Register(ctx context.Context, cred Credential, caller wallet.Address) (*ClaimAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acct := NewClaimAccount(HolderShares)
	var holding wallet.Address

	err := e.store.Update(func(tx Tx) error {
		l, err := tx.Ledger()
		if err != nil {
			return err
		}

		holding, err = e.verifyCredential(ctx, l, cred, caller)
		if err != nil {
			return err
		}

		if _, err := tx.Claim(holding); err == nil {
			return fmt.Errorf("%w: holding account %s", ErrAlreadyRegistered, holding)
		} else if !errors.Is(err, ErrClaimNotFound) {
			return err
		}

		allocated, carry := bits.Add64(l.AllocatedShares, acct.Shares, 0)
		if carry != 0 {
			return fmt.Errorf("%w: allocated shares %d + %d", ErrArithmeticOverflow, l.AllocatedShares, acct.Shares)
		}
		if e.enforceBudget && allocated > TotalShares {
			return fmt.Errorf("%w: %d of %d allocated", ErrShareBudgetExceeded, l.AllocatedShares, TotalShares)
		}

		if err := tx.CreateClaim(holding, acct); err != nil {
			if errors.Is(err, ErrClaimExists) {
				return fmt.Errorf("%w: holding account %s", ErrAlreadyRegistered, holding)
			}
			return err
		}

		next := *l
		next.AllocatedShares = allocated
		return tx.PutLedger(&next)
	})
	if err != nil {
		e.logFailure("register", err, "mint", cred.Mint.String(), "caller", caller.String())
		return nil, err
	}

	e.logger.Info("holder registered",
		"mint", cred.Mint.String(),
		"caller", caller.String(),
		"holding_account", holding.String(),
		"shares", acct.Shares)
	return acct, nil
}

// verifyCredential runs the admission checks and returns the holding account
// that keys the holder's record. The checks run in a fixed order so the
// first failing one is the one reported.
func (e *Engine) verifyCredential(ctx context.Context, l *Ledger, cred Credential, caller wallet.Address) (wallet.Address, error) {
	if e.verifier == nil {
		return wallet.ZeroAddress, errors.New("ledger: no credential verifier configured")
	}

	sole, err := e.verifier.IsSoleSupply(ctx, cred.Mint)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("ledger: check supply: %w", err)
	}
	if !sole {
		return wallet.ZeroAddress, fmt.Errorf("%w: mint %s", ErrTokenNotNFT, cred.Mint)
	}

	holding := cred.HoldingAccount(caller)
	held, err := e.verifier.HolderBalance(ctx, cred.Mint, holding)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("ledger: check holder balance: %w", err)
	}
	if held != 1 {
		return wallet.ZeroAddress, fmt.Errorf("%w: account %s holds %d", ErrTokenAccountEmpty, holding, held)
	}

	att, err := e.verifier.CollectionAttestation(ctx, cred.Mint)
	if err != nil {
		return wallet.ZeroAddress, fmt.Errorf("ledger: read attestation: %w", err)
	}
	if !att.Verified {
		return wallet.ZeroAddress, fmt.Errorf("%w: mint %s", ErrCollectionNotVerified, cred.Mint)
	}
	if att.Collection != l.Collection {
		return wallet.ZeroAddress, fmt.Errorf("%w: got %s, want %s", ErrInvalidCollection, att.Collection, l.Collection)
	}
	return holding, nil
}
