package wallet

import (
	"encoding/hex"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// AddressLen is the size of an Address in bytes.
const AddressLen = 20

// associatedPrefix domain-separates associated holding accounts from key hashes.
var associatedPrefix = []byte("sharepool-associated")

// Address identifies a beneficiary, a token account, a mint or a collection.
// For key-controlled identities it is HASH160 of the compressed public key.
type Address [AddressLen]byte

// ZeroAddress is the all-zero address; it never identifies a real account.
var ZeroAddress Address

// AddressFromPubKey returns HASH160(pubkey) of the compressed public key.
func AddressFromPubKey(pub *ec.PublicKey) Address {
	var a Address
	copy(a[:], bsvhash.Hash160(pub.Compressed()))
	return a
}

// AddressFromBytes copies a 20-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLen {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLen, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes a 40-character hex string.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return AddressFromBytes(b)
}

// AssociatedAccount derives the deterministic token account that owner uses
// to hold units of mint.
//
//	account = HASH160("sharepool-associated" || owner || mint)
func AssociatedAccount(owner, mint Address) Address {
	buf := make([]byte, 0, len(associatedPrefix)+2*AddressLen)
	buf = append(buf, associatedPrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, mint[:]...)
	var a Address
	copy(a[:], bsvhash.Hash160(buf))
	return a
}

// String returns the lowercase hex encoding.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLen)
	copy(b, a[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
