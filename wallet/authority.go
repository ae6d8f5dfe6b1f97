package wallet

import (
	"crypto/sha256"
	"fmt"
	"io"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"golang.org/x/crypto/hkdf"
)

// AuthorityInfo is the HKDF info prefix for deployment authorities.
const AuthorityInfo = "sharepool-authority"

// TokenAuthorityLabel names the authority that signs vault transfers.
const TokenAuthorityLabel = "token-authority"

// DeriveAuthorityKey derives the secp256k1 key for a deployment authority.
//
//	key = HKDF-SHA256(ikm=seed, salt=nil, info="sharepool-authority/" || label)
//
// The same seed and label always produce the same key, so the authority can
// be re-derived for every transfer without storing a per-transfer secret.
func DeriveAuthorityKey(seed []byte, label string) (*ec.PrivateKey, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	if label == "" {
		return nil, fmt.Errorf("%w: empty authority label", ErrDerivationFailed)
	}

	reader := hkdf.New(sha256.New, seed, nil, []byte(AuthorityInfo+"/"+label))
	raw := make([]byte, 32)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	priv, _ := ec.PrivateKeyFromBytes(raw)
	if priv == nil {
		return nil, fmt.Errorf("%w: invalid scalar", ErrDerivationFailed)
	}
	return priv, nil
}

// DeriveAuthority returns the address of the authority for seed and label.
func DeriveAuthority(seed []byte, label string) (Address, error) {
	priv, err := DeriveAuthorityKey(seed, label)
	if err != nil {
		return ZeroAddress, err
	}
	return AddressFromPubKey(priv.PubKey()), nil
}
