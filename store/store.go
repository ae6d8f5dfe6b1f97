// Package store allocates and persists the share ledger and its claim
// records. Both implementations give create-if-absent semantics keyed by
// beneficiary or holding-account address, and transactional updates that
// keep nothing unless the whole transaction succeeds.
package store

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

// MemStore is an in-memory ledger.Store for tests and simulations.
type MemStore struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	claims map[wallet.Address]ledger.ClaimAccount
}

// Compile-time interface check.
var _ ledger.Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{claims: make(map[wallet.Address]ledger.ClaimAccount)}
}

// View runs fn against the current state. Writes fail with ErrReadOnly.
func (s *MemStore) View(fn func(ledger.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{store: s, readOnly: true})
}

// Update runs fn with writes staged in an overlay that is applied only when
// fn returns nil.
func (s *MemStore) Update(fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[wallet.Address]ledger.ClaimAccount)}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.stagedLedger != nil {
		l := *tx.stagedLedger
		s.ledger = &l
	}
	for k, c := range tx.staged {
		s.claims[k] = c
	}
	return nil
}

// memTx reads through its overlay to the committed state.
type memTx struct {
	store    *MemStore
	readOnly bool

	stagedLedger *ledger.Ledger
	staged       map[wallet.Address]ledger.ClaimAccount
}

func (tx *memTx) Ledger() (*ledger.Ledger, error) {
	src := tx.stagedLedger
	if src == nil {
		src = tx.store.ledger
	}
	if src == nil {
		return nil, ledger.ErrNotInitialized
	}
	l := *src
	return &l, nil
}

func (tx *memTx) CreateLedger(l *ledger.Ledger) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("%w: ledger", ErrNilParam)
	}
	if tx.stagedLedger != nil || tx.store.ledger != nil {
		return ledger.ErrAlreadyInitialized
	}
	cp := *l
	tx.stagedLedger = &cp
	return nil
}

func (tx *memTx) PutLedger(l *ledger.Ledger) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("%w: ledger", ErrNilParam)
	}
	if tx.stagedLedger == nil && tx.store.ledger == nil {
		return ledger.ErrNotInitialized
	}
	cp := *l
	tx.stagedLedger = &cp
	return nil
}

func (tx *memTx) lookup(key wallet.Address) (ledger.ClaimAccount, bool) {
	if c, ok := tx.staged[key]; ok {
		return c, true
	}
	c, ok := tx.store.claims[key]
	return c, ok
}

func (tx *memTx) Claim(key wallet.Address) (*ledger.ClaimAccount, error) {
	c, ok := tx.lookup(key)
	if !ok {
		return nil, ledger.ErrClaimNotFound
	}
	return &c, nil
}

func (tx *memTx) CreateClaim(key wallet.Address, c *ledger.ClaimAccount) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if err := validateClaim(c); err != nil {
		return err
	}
	if _, ok := tx.lookup(key); ok {
		return ledger.ErrClaimExists
	}
	tx.staged[key] = *c
	return nil
}

func (tx *memTx) PutClaim(key wallet.Address, c *ledger.ClaimAccount) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if err := validateClaim(c); err != nil {
		return err
	}
	if _, ok := tx.lookup(key); !ok {
		return ledger.ErrClaimNotFound
	}
	tx.staged[key] = *c
	return nil
}

func (tx *memTx) ForEachClaim(fn func(wallet.Address, *ledger.ClaimAccount) error) error {
	keys := make([]wallet.Address, 0, len(tx.store.claims)+len(tx.staged))
	for k := range tx.store.claims {
		keys = append(keys, k)
	}
	for k := range tx.staged {
		if _, ok := tx.store.claims[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b wallet.Address) int { return bytes.Compare(a[:], b[:]) })

	for _, k := range keys {
		c, _ := tx.lookup(k)
		if err := fn(k, &c); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}

// validateClaim rejects records a codec round trip would reject.
func validateClaim(c *ledger.ClaimAccount) error {
	if c == nil {
		return fmt.Errorf("%w: claim account", ErrNilParam)
	}
	if c.Shares == 0 || c.Shares > ledger.TotalShares {
		return fmt.Errorf("%w: shares %d out of range", ledger.ErrInvalidClaimData, c.Shares)
	}
	return nil
}
