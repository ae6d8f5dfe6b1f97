package vault

import (
	"fmt"
	"math/bits"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10_000

// FeeSchedule is a transfer fee withheld in the recipient's account, the way
// a transfer-fee token charges every movement. Withheld fees are later
// harvested into the pool, which is where the pool's income comes from.
type FeeSchedule struct {
	BasisPoints uint16 // fee rate in 1/100 of a percent
	MaximumFee  uint64 // cap per transfer; 0 means uncapped
}

// Validate checks the rate is at most 100%.
func (f FeeSchedule) Validate() error {
	if f.BasisPoints > MaxBasisPoints {
		return fmt.Errorf("%w: %d basis points", ErrInvalidFee, f.BasisPoints)
	}
	return nil
}

// Fee returns ceil(amount * bps / 10000), capped at MaximumFee.
func (f FeeSchedule) Fee(amount uint64) uint64 {
	if f.BasisPoints == 0 || amount == 0 {
		return 0
	}
	// hi < BasisPoints <= 10000, so the division cannot overflow.
	hi, lo := bits.Mul64(amount, uint64(f.BasisPoints))
	fee, rem := bits.Div64(hi, lo, MaxBasisPoints)
	if rem != 0 {
		fee++
	}
	if f.MaximumFee != 0 && fee > f.MaximumFee {
		fee = f.MaximumFee
	}
	return fee
}
