package vault

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// Kind separates spendable balances from withheld transfer fees.
type Kind uint8

const (
	KindBalance Kind = iota
	KindWithheld
)

func (k Kind) String() string {
	if k == KindWithheld {
		return "withheld"
	}
	return "balance"
}

// Move is one credit or debit in an atomic batch.
type Move struct {
	Account wallet.Address
	Kind    Kind
	Amount  uint64
	Debit   bool
}

// Book stores token balances.
type Book interface {
	// Get returns the amount of kind held by account; unknown accounts hold 0.
	Get(kind Kind, account wallet.Address) (uint64, error)

	// Apply performs every move or none of them.
	Apply(moves []Move) error
}

// applyMoves runs moves against get/set, stopping at the first failure.
// Callers discard set's effects on error.
func applyMoves(moves []Move, get func(Kind, wallet.Address) (uint64, error), set func(Kind, wallet.Address, uint64) error) error {
	for _, m := range moves {
		cur, err := get(m.Kind, m.Account)
		if err != nil {
			return err
		}
		var next uint64
		if m.Debit {
			var borrow uint64
			next, borrow = bits.Sub64(cur, m.Amount, 0)
			if borrow != 0 {
				return fmt.Errorf("%w: %s %s has %d, needs %d", ErrInsufficientFunds, m.Account, m.Kind, cur, m.Amount)
			}
		} else {
			var carry uint64
			next, carry = bits.Add64(cur, m.Amount, 0)
			if carry != 0 {
				return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, m.Account, m.Kind)
			}
		}
		if err := set(m.Kind, m.Account, next); err != nil {
			return err
		}
	}
	return nil
}

type bookKey struct {
	kind    Kind
	account wallet.Address
}

// MemBook is an in-memory Book.
type MemBook struct {
	mu       sync.RWMutex
	balances map[bookKey]uint64
}

// Compile-time interface check.
var _ Book = (*MemBook)(nil)

// NewMemBook creates an empty in-memory book.
func NewMemBook() *MemBook {
	return &MemBook{balances: make(map[bookKey]uint64)}
}

// Get returns the amount of kind held by account.
func (b *MemBook) Get(kind Kind, account wallet.Address) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[bookKey{kind, account}], nil
}

// Apply stages every move and commits only if all of them succeed.
func (b *MemBook) Apply(moves []Move) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[bookKey]uint64, len(moves))
	get := func(kind Kind, account wallet.Address) (uint64, error) {
		k := bookKey{kind, account}
		if v, ok := staged[k]; ok {
			return v, nil
		}
		return b.balances[k], nil
	}
	set := func(kind Kind, account wallet.Address, v uint64) error {
		staged[bookKey{kind, account}] = v
		return nil
	}
	if err := applyMoves(moves, get, set); err != nil {
		return err
	}

	for k, v := range staged {
		if v == 0 {
			delete(b.balances, k)
			continue
		}
		b.balances[k] = v
	}
	return nil
}
