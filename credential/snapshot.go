package credential

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/fxamacker/cbor/v2"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// encMode uses Core Deterministic Encoding so the same registry always
// saves to identical bytes. Addresses go out as hex text strings.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("credential: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("credential: CBOR decoder initialization failed: " + err.Error())
	}
}

type snapshot struct {
	Seq         uint64               `cbor:"1,keyasint"`
	Collections []collectionSnapshot `cbor:"2,keyasint"`
	Mints       []mintSnapshot       `cbor:"3,keyasint"`
	Holdings    []holdingSnapshot    `cbor:"4,keyasint"`
}

type collectionSnapshot struct {
	Address   wallet.Address `cbor:"1,keyasint"`
	Authority []byte         `cbor:"2,keyasint"` // compressed public key
}

type mintSnapshot struct {
	Mint       wallet.Address `cbor:"1,keyasint"`
	Collection wallet.Address `cbor:"2,keyasint"`
	Supply     uint64         `cbor:"3,keyasint"`
	Signature  []byte         `cbor:"4,keyasint,omitempty"`
	Decimals   uint8          `cbor:"5,keyasint,omitempty"`
}

type holdingSnapshot struct {
	Mint    wallet.Address `cbor:"1,keyasint"`
	Account wallet.Address `cbor:"2,keyasint"`
	Amount  uint64         `cbor:"3,keyasint"`
}

// MarshalCBOR encodes the registry. Map contents are emitted sorted by
// address so the output is stable.
func (r *Registry) MarshalCBOR() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := snapshot{Seq: r.seq}
	for addr, pub := range r.collections {
		snap.Collections = append(snap.Collections, collectionSnapshot{Address: addr, Authority: pub.Compressed()})
	}
	slices.SortFunc(snap.Collections, func(a, b collectionSnapshot) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})

	for mint, line := range r.mints {
		snap.Mints = append(snap.Mints, mintSnapshot{
			Mint:       mint,
			Collection: line.collection,
			Supply:     line.supply,
			Signature:  line.signature,
			Decimals:   line.decimals,
		})
	}
	slices.SortFunc(snap.Mints, func(a, b mintSnapshot) int {
		return bytes.Compare(a.Mint[:], b.Mint[:])
	})

	for k, amount := range r.holdings {
		snap.Holdings = append(snap.Holdings, holdingSnapshot{Mint: k.mint, Account: k.account, Amount: amount})
	}
	slices.SortFunc(snap.Holdings, func(a, b holdingSnapshot) int {
		if c := bytes.Compare(a.Mint[:], b.Mint[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.Account[:], b.Account[:])
	})

	return encMode.Marshal(snap)
}

// UnmarshalRegistry decodes a registry written by MarshalCBOR.
func UnmarshalRegistry(data []byte) (*Registry, error) {
	var snap snapshot
	if err := decMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	r := NewRegistry()
	r.seq = snap.Seq
	for _, c := range snap.Collections {
		pub, err := ec.PublicKeyFromBytes(c.Authority)
		if err != nil {
			return nil, fmt.Errorf("%w: collection %s key: %w", ErrInvalidSnapshot, c.Address, err)
		}
		if wallet.AddressFromPubKey(pub) != c.Address {
			return nil, fmt.Errorf("%w: collection %s key mismatch", ErrInvalidSnapshot, c.Address)
		}
		r.collections[c.Address] = pub
	}
	for _, m := range snap.Mints {
		if _, ok := r.collections[m.Collection]; !ok {
			return nil, fmt.Errorf("%w: mint %s references %s", ErrInvalidSnapshot, m.Mint, m.Collection)
		}
		r.mints[m.Mint] = &mintLine{collection: m.Collection, supply: m.Supply, decimals: m.Decimals, signature: m.Signature}
	}
	for _, h := range snap.Holdings {
		if h.Amount == 0 {
			continue
		}
		r.holdings[holdingKey{h.Mint, h.Account}] = h.Amount
	}
	return r, nil
}

// Save writes the registry to path, replacing any previous file in one
// rename.
func (r *Registry) Save(path string) error {
	data, err := r.MarshalCBOR()
	if err != nil {
		return fmt.Errorf("credential: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("credential: create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("credential: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("credential: replace: %w", err)
	}
	return nil
}

// LoadRegistry reads a registry saved with Save. A missing file is reported
// with an error matching fs.ErrNotExist.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: read: %w", err)
	}
	return UnmarshalRegistry(data)
}
