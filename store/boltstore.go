package store

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

var (
	bucketLedger = []byte("ledger")
	bucketClaims = []byte("claims")

	ledgerKey = []byte("global")
)

// BoltStore persists the ledger and claim records in bbolt using the ledger
// package's fixed binary layouts.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ ledger.Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketLedger, bucketClaims} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// View runs fn in a read-only bbolt transaction.
func (s *BoltStore) View(fn func(ledger.Tx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// Update runs fn in a read-write bbolt transaction; bbolt rolls it back if
// fn returns an error.
func (s *BoltStore) Update(fn func(ledger.Tx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// boltTx implements ledger.Tx over a bbolt transaction.
type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) writable() error {
	if !t.tx.Writable() {
		return ErrReadOnly
	}
	return nil
}

func (t *boltTx) Ledger() (*ledger.Ledger, error) {
	data := t.tx.Bucket(bucketLedger).Get(ledgerKey)
	if data == nil {
		return nil, ledger.ErrNotInitialized
	}
	l, err := ledger.DeserializeLedger(data)
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode ledger: %w", err)
	}
	return l, nil
}

func (t *boltTx) CreateLedger(l *ledger.Ledger) error {
	if err := t.writable(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("%w: ledger", ErrNilParam)
	}
	b := t.tx.Bucket(bucketLedger)
	if b.Get(ledgerKey) != nil {
		return ledger.ErrAlreadyInitialized
	}
	if err := b.Put(ledgerKey, ledger.SerializeLedger(l)); err != nil {
		return fmt.Errorf("boltstore: put ledger: %w", err)
	}
	return nil
}

func (t *boltTx) PutLedger(l *ledger.Ledger) error {
	if err := t.writable(); err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("%w: ledger", ErrNilParam)
	}
	b := t.tx.Bucket(bucketLedger)
	if b.Get(ledgerKey) == nil {
		return ledger.ErrNotInitialized
	}
	if err := b.Put(ledgerKey, ledger.SerializeLedger(l)); err != nil {
		return fmt.Errorf("boltstore: update ledger: %w", err)
	}
	return nil
}

func (t *boltTx) Claim(key wallet.Address) (*ledger.ClaimAccount, error) {
	data := t.tx.Bucket(bucketClaims).Get(key[:])
	if data == nil {
		return nil, ledger.ErrClaimNotFound
	}
	c, err := ledger.DeserializeClaimAccount(data)
	if err != nil {
		return nil, fmt.Errorf("boltstore: decode claim %s: %w", key, err)
	}
	return c, nil
}

func (t *boltTx) CreateClaim(key wallet.Address, c *ledger.ClaimAccount) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := validateClaim(c); err != nil {
		return err
	}
	b := t.tx.Bucket(bucketClaims)
	if b.Get(key[:]) != nil {
		return ledger.ErrClaimExists
	}
	if err := b.Put(key.Bytes(), ledger.SerializeClaimAccount(c)); err != nil {
		return fmt.Errorf("boltstore: put claim: %w", err)
	}
	return nil
}

func (t *boltTx) PutClaim(key wallet.Address, c *ledger.ClaimAccount) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := validateClaim(c); err != nil {
		return err
	}
	b := t.tx.Bucket(bucketClaims)
	if b.Get(key[:]) == nil {
		return ledger.ErrClaimNotFound
	}
	if err := b.Put(key.Bytes(), ledger.SerializeClaimAccount(c)); err != nil {
		return fmt.Errorf("boltstore: update claim: %w", err)
	}
	return nil
}

func (t *boltTx) ForEachClaim(fn func(wallet.Address, *ledger.ClaimAccount) error) error {
	return t.tx.Bucket(bucketClaims).ForEach(func(k, v []byte) error {
		key, err := wallet.AddressFromBytes(k)
		if err != nil {
			return fmt.Errorf("boltstore: claim key: %w", err)
		}
		c, err := ledger.DeserializeClaimAccount(v)
		if err != nil {
			return fmt.Errorf("boltstore: decode claim %s: %w", key, err)
		}
		return fn(key, c)
	})
}
