package ledger

import (
	"context"
	"fmt"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Claim pays a fixed beneficiary (marketing or liquidity) what it is owed.
func (e *Engine) Claim(ctx context.Context, caller wallet.Address) (uint64, error) {
	return e.claim(ctx, "claim", caller, func(l *Ledger) (wallet.Address, error) {
		if !l.IsFixedBeneficiary(caller) {
			return wallet.ZeroAddress, fmt.Errorf("%w: %s", ErrNotFixedBeneficiary, caller)
		}
		return caller, nil
	})
}

// ClaimWithCredential pays a registered credential holder. The credential
// checks run again so a holder who gave the credential away cannot claim.
func (e *Engine) ClaimWithCredential(ctx context.Context, cred Credential, caller wallet.Address) (uint64, error) {
	return e.claim(ctx, "claim_with_credential", caller, func(l *Ledger) (wallet.Address, error) {
		return e.verifyCredential(ctx, l, cred, caller)
	})
}

// claim settles the record that resolve picks and pays caller. Counters are
// written inside the store transaction and the vault transfer is its last
// step; a failed transfer aborts the transaction so no counter moves.
func (e *Engine) claim(ctx context.Context, op string, caller wallet.Address, resolve func(*Ledger) (wallet.Address, error)) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		owed     uint64
		key      wallet.Address
		released uint64
	)
	err := e.store.Update(func(tx Tx) error {
		l, err := tx.Ledger()
		if err != nil {
			return err
		}
		key, err = resolve(l)
		if err != nil {
			return err
		}
		acct, err := tx.Claim(key)
		if err != nil {
			return err
		}

		balance, err := e.vault.Balance(ctx)
		if err != nil {
			return fmt.Errorf("ledger: read vault balance: %w", err)
		}

		amount, nextLedger, nextAcct, err := settle(l, acct, balance)
		if err != nil {
			return err
		}
		if err := tx.PutLedger(nextLedger); err != nil {
			return err
		}
		if err := tx.PutClaim(key, nextAcct); err != nil {
			return err
		}

		req := TransferRequest{
			Authority: e.authority,
			To:        wallet.AssociatedAccount(caller, e.asset.Mint),
			Amount:    amount,
			Asset:     e.asset,
		}
		if err := e.vault.Transfer(ctx, req); err != nil {
			return fmt.Errorf("ledger: transfer %d to %s: %w", amount, req.To, err)
		}

		owed = amount
		released = nextLedger.TotalReleased
		return nil
	})
	if err != nil {
		e.logFailure(op, err, "caller", caller.String())
		return 0, err
	}

	e.logger.Info("claim settled",
		"op", op,
		"beneficiary", key.String(),
		"owed", owed,
		"total_released", released)
	return owed, nil
}
