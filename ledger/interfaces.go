package ledger

import (
	"context"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Vault holds the pool's token balance.
type Vault interface {
	// Balance returns the pool's current balance.
	Balance(ctx context.Context) (uint64, error)

	// Transfer moves tokens out of the pool. It either applies in full or
	// not at all.
	Transfer(ctx context.Context, req TransferRequest) error
}

// Verifier answers questions about credential mints and holdings.
type Verifier interface {
	// IsSoleSupply reports whether the mint has zero decimals and a total
	// supply of exactly one.
	IsSoleSupply(ctx context.Context, mint wallet.Address) (bool, error)

	// HolderBalance returns how many units of mint account holds.
	HolderBalance(ctx context.Context, mint, account wallet.Address) (uint64, error)

	// CollectionAttestation returns the collection claim recorded for mint.
	CollectionAttestation(ctx context.Context, mint wallet.Address) (Attestation, error)
}

// Store allocates and persists the ledger and claim records.
type Store interface {
	// View runs fn against a read-only snapshot.
	View(fn func(Tx) error) error

	// Update runs fn in a read-write transaction. Nothing fn wrote is kept
	// unless fn returns nil.
	Update(fn func(Tx) error) error
}

// Tx is a store transaction.
type Tx interface {
	// Ledger returns the stored ledger or ErrNotInitialized.
	Ledger() (*Ledger, error)

	// CreateLedger stores the ledger or fails with ErrAlreadyInitialized.
	CreateLedger(l *Ledger) error

	// PutLedger overwrites the stored ledger.
	PutLedger(l *Ledger) error

	// Claim returns the record for key or ErrClaimNotFound.
	Claim(key wallet.Address) (*ClaimAccount, error)

	// CreateClaim stores a new record or fails with ErrClaimExists.
	CreateClaim(key wallet.Address, c *ClaimAccount) error

	// PutClaim overwrites an existing record.
	PutClaim(key wallet.Address, c *ClaimAccount) error

	// ForEachClaim visits every record in key order.
	ForEachClaim(fn func(key wallet.Address, c *ClaimAccount) error) error
}
