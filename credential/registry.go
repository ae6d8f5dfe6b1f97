// Package credential keeps the non-fungible credentials that gate holder
// admission: collections, mint lines, who holds which unit, and the
// collection authority's signature over each member.
package credential

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"

	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

var mintPrefix = []byte("sharepool-mint")

type mintLine struct {
	collection wallet.Address
	supply     uint64
	decimals   uint8
	signature  []byte // DER signature over attestationHash, nil until verified
}

type holdingKey struct {
	mint    wallet.Address
	account wallet.Address
}

// Registry is an in-memory credential issuer and ledger.Verifier.
type Registry struct {
	mu          sync.RWMutex
	seq         uint64
	collections map[wallet.Address]*ec.PublicKey
	mints       map[wallet.Address]*mintLine
	holdings    map[holdingKey]uint64
}

// Compile-time interface check.
var _ ledger.Verifier = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[wallet.Address]*ec.PublicKey),
		mints:       make(map[wallet.Address]*mintLine),
		holdings:    make(map[holdingKey]uint64),
	}
}

// CreateCollection registers a collection controlled by authority. The
// collection address is the authority's key hash, so creating it twice is a
// no-op.
func (r *Registry) CreateCollection(authority *ec.PublicKey) (wallet.Address, error) {
	if authority == nil {
		return wallet.ZeroAddress, fmt.Errorf("%w: authority", ErrNilParam)
	}
	addr := wallet.AddressFromPubKey(authority)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[addr] = authority
	return addr, nil
}

// MintCredential issues a supply-one, zero-decimal token in collection and places the
// unit in owner's associated account. The attestation starts unverified.
func (r *Registry) MintCredential(collection, owner wallet.Address) (wallet.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[collection]; !ok {
		return wallet.ZeroAddress, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	r.seq++
	mint := mintAddress(collection, r.seq)
	r.mints[mint] = &mintLine{collection: collection, supply: 1}
	r.holdings[holdingKey{mint, wallet.AssociatedAccount(owner, mint)}] = 1
	return mint, nil
}

func mintAddress(collection wallet.Address, seq uint64) wallet.Address {
	buf := make([]byte, 0, len(mintPrefix)+wallet.AddressLen+8)
	buf = append(buf, mintPrefix...)
	buf = append(buf, collection[:]...)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	var a wallet.Address
	copy(a[:], bsvhash.Hash160(buf))
	return a
}

func attestationHash(mint, collection wallet.Address) []byte {
	msg := make([]byte, 0, 2*wallet.AddressLen)
	msg = append(msg, mint[:]...)
	msg = append(msg, collection[:]...)
	return bsvhash.Sha256(msg)
}

// VerifyCollection signs mint's collection membership with the collection
// authority's private key.
func (r *Registry) VerifyCollection(mint wallet.Address, authority *ec.PrivateKey) error {
	if authority == nil {
		return fmt.Errorf("%w: authority", ErrNilParam)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	if wallet.AddressFromPubKey(authority.PubKey()) != line.collection {
		return fmt.Errorf("%w: collection %s", ErrWrongAuthority, line.collection)
	}

	sig, err := authority.Sign(attestationHash(mint, line.collection))
	if err != nil {
		return fmt.Errorf("credential: sign attestation: %w", err)
	}
	line.signature = sig.Serialize()
	return nil
}

// TransferCredential moves the unit of mint from from's associated account
// to to's.
func (r *Registry) TransferCredential(mint, from, to wallet.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mints[mint]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	src := holdingKey{mint, wallet.AssociatedAccount(from, mint)}
	if r.holdings[src] == 0 {
		return fmt.Errorf("%w: %s", ErrNotHolder, from)
	}
	dst := holdingKey{mint, wallet.AssociatedAccount(to, mint)}
	if src == dst {
		return nil
	}

	r.holdings[src]--
	if r.holdings[src] == 0 {
		delete(r.holdings, src)
	}
	r.holdings[dst]++
	return nil
}

// SetSupply overrides the recorded supply of mint. Holdings are unchanged.
func (r *Registry) SetSupply(mint wallet.Address, supply uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	line.supply = supply
	return nil
}

// SetDecimals overrides the recorded decimals of mint.
func (r *Registry) SetDecimals(mint wallet.Address, decimals uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	line.decimals = decimals
	return nil
}

// IsSoleSupply reports whether mint is indivisible with a supply of exactly
// one.
func (r *Registry) IsSoleSupply(ctx context.Context, mint wallet.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	line, ok := r.mints[mint]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	return line.supply == 1 && line.decimals == 0, nil
}

// HolderBalance returns the units of mint held in account.
func (r *Registry) HolderBalance(ctx context.Context, mint, account wallet.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holdings[holdingKey{mint, account}], nil
}

// CollectionAttestation returns mint's collection and whether the stored
// signature verifies against the collection authority.
func (r *Registry) CollectionAttestation(ctx context.Context, mint wallet.Address) (ledger.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Attestation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	line, ok := r.mints[mint]
	if !ok {
		return ledger.Attestation{}, fmt.Errorf("%w: %s", ErrUnknownMint, mint)
	}
	att := ledger.Attestation{Collection: line.collection}
	if line.signature == nil {
		return att, nil
	}

	pub, ok := r.collections[line.collection]
	if !ok {
		return att, nil
	}
	sig, err := ec.ParseDERSignature(line.signature)
	if err != nil {
		return att, nil
	}
	att.Verified = sig.Verify(attestationHash(mint, line.collection), pub)
	return att, nil
}
