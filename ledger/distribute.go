package ledger

import (
	"fmt"
	"math/bits"
)

// Entitlement returns floor(totalEver * shares / TotalShares), the lifetime
// amount a beneficiary with shares is owed once the pool has received
// totalEver. A product that does not fit in 64 bits is an overflow.
func Entitlement(totalEver, shares uint64) (uint64, error) {
	hi, lo := bits.Mul64(totalEver, shares)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d shares", ErrArithmeticOverflow, totalEver, shares)
	}
	return lo / TotalShares, nil
}

// ComputeOwed returns what a beneficiary can withdraw right now.
//
//	total_ever  = totalReleased + vaultBalance
//	entitlement = floor(total_ever * shares / 10000)
//	owed        = entitlement - released
//
// The vault balance plus everything already released equals every deposit
// ever made, so the result does not depend on the order other beneficiaries
// claimed in. Returns ErrEmptyValue when owed is zero.
func ComputeOwed(totalReleased, vaultBalance, shares, released uint64) (uint64, error) {
	totalEver, carry := bits.Add64(totalReleased, vaultBalance, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: released %d + balance %d", ErrArithmeticOverflow, totalReleased, vaultBalance)
	}

	entitlement, err := Entitlement(totalEver, shares)
	if err != nil {
		return 0, err
	}

	owed, borrow := bits.Sub64(entitlement, released, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: entitlement %d below released %d", ErrArithmeticOverflow, entitlement, released)
	}
	if owed == 0 {
		return 0, ErrEmptyValue
	}
	return owed, nil
}

// settle computes the owed amount and the post-claim ledger and account.
// The inputs are not modified; callers commit the returned copies.
func settle(l *Ledger, acct *ClaimAccount, vaultBalance uint64) (uint64, *Ledger, *ClaimAccount, error) {
	owed, err := ComputeOwed(l.TotalReleased, vaultBalance, acct.Shares, acct.TotalReleased)
	if err != nil {
		return 0, nil, nil, err
	}

	ledgerReleased, carry := bits.Add64(l.TotalReleased, owed, 0)
	if carry != 0 {
		return 0, nil, nil, fmt.Errorf("%w: ledger released %d + %d", ErrArithmeticOverflow, l.TotalReleased, owed)
	}
	acctReleased, carry := bits.Add64(acct.TotalReleased, owed, 0)
	if carry != 0 {
		return 0, nil, nil, fmt.Errorf("%w: account released %d + %d", ErrArithmeticOverflow, acct.TotalReleased, owed)
	}

	nextLedger := *l
	nextLedger.TotalReleased = ledgerReleased
	nextAcct := *acct
	nextAcct.TotalReleased = acctReleased
	return owed, &nextLedger, &nextAcct, nil
}
