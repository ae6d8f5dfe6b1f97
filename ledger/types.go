package ledger

import "github.com/bitfsorg/sharepool-go/wallet"

const (
	// TotalShares is the fixed share-weight denominator.
	TotalShares uint64 = 10_000

	// MarketingShares is the preset weight of the marketing beneficiary.
	MarketingShares uint64 = 3_500

	// LiquidityShares is the preset weight of the liquidity beneficiary.
	LiquidityShares uint64 = 5_000

	// HolderShares is the weight granted to each admitted credential holder.
	HolderShares uint64 = 3

	// HolderShareBudget is the weight reserved for credential holders (500 holders).
	HolderShareBudget = TotalShares - MarketingShares - LiquidityShares
)

// Ledger is the pool-wide record. There is exactly one per deployment and it
// is always loaded from the Store; the package keeps no ambient copy.
type Ledger struct {
	Marketing  wallet.Address // fixed marketing beneficiary
	Liquidity  wallet.Address // fixed liquidity beneficiary
	Collection wallet.Address // collection gating holder admission

	// TotalReleased is the cumulative amount paid to every beneficiary.
	TotalReleased uint64

	// AllocatedShares is the sum of the shares of every ClaimAccount created.
	AllocatedShares uint64
}

// IsFixedBeneficiary reports whether addr is the marketing or liquidity beneficiary.
func (l *Ledger) IsFixedBeneficiary(addr wallet.Address) bool {
	return addr == l.Marketing || addr == l.Liquidity
}

// ClaimAccount is one beneficiary's record.
type ClaimAccount struct {
	TotalReleased uint64 // cumulative amount this beneficiary has withdrawn
	Shares        uint64 // weight out of TotalShares, fixed at creation
}

// NewClaimAccount returns a record with the given weight and nothing released.
func NewClaimAccount(shares uint64) *ClaimAccount {
	return &ClaimAccount{Shares: shares}
}

// Credential names the non-fungible token presented for admission.
type Credential struct {
	Mint wallet.Address
}

// HoldingAccount is the account caller must hold the credential in; it also
// keys the holder's ClaimAccount.
func (c Credential) HoldingAccount(caller wallet.Address) wallet.Address {
	return wallet.AssociatedAccount(caller, c.Mint)
}

// Attestation is the collection-membership claim recorded for a mint.
type Attestation struct {
	Verified   bool
	Collection wallet.Address
}

// Asset describes the token the vault pays out.
type Asset struct {
	Mint     wallet.Address
	Decimals uint8
}

// TransferRequest asks the vault to move Amount of Asset to To.
type TransferRequest struct {
	Authority wallet.Address
	To        wallet.Address
	Amount    uint64
	Asset     Asset
}

// AuditReport summarises a full walk over the stored records.
type AuditReport struct {
	Accounts        int
	TotalShares     uint64
	TotalReleased   uint64
	LedgerReleased  uint64
	AllocatedShares uint64
}
