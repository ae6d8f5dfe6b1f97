package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Ledger returns the stored ledger.
func (e *Engine) Ledger(ctx context.Context) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var l *Ledger
	err := e.store.View(func(tx Tx) error {
		var err error
		l, err = tx.Ledger()
		return err
	})
	return l, err
}

// Account returns the claim record stored under key.
func (e *Engine) Account(ctx context.Context, key wallet.Address) (*ClaimAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *ClaimAccount
	err := e.store.View(func(tx Tx) error {
		var err error
		c, err = tx.Claim(key)
		return err
	})
	return c, err
}

// Pending returns what the record under key could claim right now, without
// claiming it. Zero means nothing has accrued.
func (e *Engine) Pending(ctx context.Context, key wallet.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var owed uint64
	err := e.store.View(func(tx Tx) error {
		l, err := tx.Ledger()
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
		owed, err = ComputeOwed(l.TotalReleased, balance, acct.Shares, acct.TotalReleased)
		if errors.Is(err, ErrEmptyValue) {
			owed = 0
			return nil
		}
		return err
	})
	return owed, err
}

// Audit walks every record and checks the ledger totals against them.
func (e *Engine) Audit(ctx context.Context) (*AuditReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	report := &AuditReport{}
	err := e.store.View(func(tx Tx) error {
		l, err := tx.Ledger()
		if err != nil {
			return err
		}
		report.LedgerReleased = l.TotalReleased
		report.AllocatedShares = l.AllocatedShares

		return tx.ForEachClaim(func(_ wallet.Address, c *ClaimAccount) error {
			var carry uint64
			report.Accounts++
			report.TotalShares, carry = bits.Add64(report.TotalShares, c.Shares, 0)
			if carry != 0 {
				return fmt.Errorf("%w: share sum", ErrArithmeticOverflow)
			}
			report.TotalReleased, carry = bits.Add64(report.TotalReleased, c.TotalReleased, 0)
			if carry != 0 {
				return fmt.Errorf("%w: released sum", ErrArithmeticOverflow)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	switch {
	case report.TotalReleased != report.LedgerReleased:
		err = fmt.Errorf("%w: records released %d, ledger released %d", ErrInvariantViolated, report.TotalReleased, report.LedgerReleased)
	case report.TotalShares != report.AllocatedShares:
		err = fmt.Errorf("%w: records hold %d shares, ledger allocated %d", ErrInvariantViolated, report.TotalShares, report.AllocatedShares)
	case report.TotalShares > TotalShares && e.enforceBudget:
		err = fmt.Errorf("%w: %d shares exceed %d", ErrInvariantViolated, report.TotalShares, TotalShares)
	}
	if err != nil {
		e.logFailure("audit", err)
		return report, err
	}
	return report, nil
}
