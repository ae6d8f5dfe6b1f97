package vault

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/sharepool-go/wallet"
)

var (
	bucketBalances = []byte("balances")
	bucketWithheld = []byte("withheld")
)

// BoltBook persists balances in bbolt, one bucket per Kind, values as
// 8-byte big-endian amounts.
type BoltBook struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Book = (*BoltBook)(nil)

// OpenBoltBook opens or creates the bbolt database at dbPath.
func OpenBoltBook(dbPath string) (*BoltBook, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("vault: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBalances, bucketWithheld} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltbook: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vault: create buckets: %w", err)
	}
	return &BoltBook{db: db}, nil
}

// Close closes the underlying database.
func (b *BoltBook) Close() error { return b.db.Close() }

func bucketFor(kind Kind) []byte {
	if kind == KindWithheld {
		return bucketWithheld
	}
	return bucketBalances
}

func readAmount(tx *bbolt.Tx, kind Kind, account wallet.Address) (uint64, error) {
	v := tx.Bucket(bucketFor(kind)).Get(account[:])
	if v == nil {
		return 0, nil
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("boltbook: corrupt %s entry for %s", kind, account)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Get returns the amount of kind held by account.
func (b *BoltBook) Get(kind Kind, account wallet.Address) (uint64, error) {
	var amount uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		amount, err = readAmount(tx, kind, account)
		return err
	})
	return amount, err
}

// Apply runs every move in one bbolt transaction.
func (b *BoltBook) Apply(moves []Move) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		get := func(kind Kind, account wallet.Address) (uint64, error) {
			return readAmount(tx, kind, account)
		}
		set := func(kind Kind, account wallet.Address, v uint64) error {
			bucket := tx.Bucket(bucketFor(kind))
			if v == 0 {
				return bucket.Delete(account.Bytes())
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, v)
			if err := bucket.Put(account.Bytes(), buf); err != nil {
				return fmt.Errorf("boltbook: put %s: %w", kind, err)
			}
			return nil
		}
		return applyMoves(moves, get, set)
	})
}
