package wallet

import (
	"fmt"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
)

const (
	// BIP44 path constants.
	PurposeBIP44      = 44
	CoinTypeSharePool = 236

	// ExternalChain is the only chain used for beneficiary keys.
	ExternalChain = 0

	// MaxKeyIndex is the BIP32 non-hardened maximum.
	MaxKeyIndex = 1<<31 - 1

	// BIP32 hardened offset.
	Hardened = 0x80000000
)

// Role selects the BIP44 account a key is derived under.
type Role uint32

const (
	RoleMarketing Role = iota
	RoleLiquidity
	RoleHolder
	RoleCollection
)

func (r Role) String() string {
	switch r {
	case RoleMarketing:
		return "marketing"
	case RoleLiquidity:
		return "liquidity"
	case RoleHolder:
		return "holder"
	case RoleCollection:
		return "collection"
	default:
		return fmt.Sprintf("role(%d)", uint32(r))
	}
}

// Wallet is an HD wallet that hands out beneficiary and collection keys.
type Wallet struct {
	masterKey *bip32.ExtendedKey
}

// KeyPair holds a derived public/private key pair.
type KeyPair struct {
	PrivateKey *ec.PrivateKey `json:"-"`
	PublicKey  *ec.PublicKey  `json:"public_key"`
	Path       string         `json:"path"`
}

// Address returns HASH160 of the key pair's public key.
func (kp *KeyPair) Address() Address {
	return AddressFromPubKey(kp.PublicKey)
}

// NewWallet creates a new Wallet from a BIP39 seed.
func NewWallet(seed []byte) (*Wallet, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}

	masterKey, err := bip32.NewMaster(seed, &chaincfg.MainNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}

	return &Wallet{masterKey: masterKey}, nil
}

// DeriveBeneficiaryKey derives the key pair for role at index.
//
//	Path: m/44'/236'/role'/0/index
func (w *Wallet) DeriveBeneficiaryKey(role Role, index uint32) (*KeyPair, error) {
	if index > MaxKeyIndex {
		return nil, ErrKeyIndexOutOfRange
	}
	if uint32(role) >= Hardened {
		return nil, fmt.Errorf("%w: role %d exceeds BIP32 hardened boundary", ErrKeyIndexOutOfRange, role)
	}

	// m/44'
	purpose, err := w.masterKey.Child(PurposeBIP44 + Hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: purpose derivation: %w", ErrDerivationFailed, err)
	}

	// m/44'/236'
	coinType, err := purpose.Child(CoinTypeSharePool + Hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: coin type derivation: %w", ErrDerivationFailed, err)
	}

	// m/44'/236'/role'
	accountKey, err := coinType.Child(uint32(role) + Hardened)
	if err != nil {
		return nil, fmt.Errorf("%w: account derivation: %w", ErrDerivationFailed, err)
	}

	chainKey, err := accountKey.Child(ExternalChain)
	if err != nil {
		return nil, fmt.Errorf("%w: chain derivation: %w", ErrDerivationFailed, err)
	}

	childKey, err := chainKey.Child(index)
	if err != nil {
		return nil, fmt.Errorf("%w: index derivation: %w", ErrDerivationFailed, err)
	}

	return extKeyToKeyPair(childKey, fmt.Sprintf("m/44'/%d'/%d'/%d/%d", CoinTypeSharePool, uint32(role), ExternalChain, index))
}

// extKeyToKeyPair converts a BIP32 extended key to a KeyPair.
func extKeyToKeyPair(extKey *bip32.ExtendedKey, path string) (*KeyPair, error) {
	privKey, err := extKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract EC private key: %w", ErrDerivationFailed, err)
	}

	pubKey := privKey.PubKey()
	if pubKey == nil {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrDerivationFailed)
	}

	return &KeyPair{
		PrivateKey: privKey,
		PublicKey:  pubKey,
		Path:       path,
	}, nil
}
