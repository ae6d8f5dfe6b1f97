package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

func makeAddr(seed byte) wallet.Address {
	var a wallet.Address
	for i := range a {
		a[i] = seed
	}
	return a
}

func tempBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "nested", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// stores returns a fresh instance of every implementation.
func stores(t *testing.T) map[string]ledger.Store {
	return map[string]ledger.Store{
		"mem":  NewMemStore(),
		"bolt": tempBoltStore(t),
	}
}

func testLedger() *ledger.Ledger {
	return &ledger.Ledger{
		Marketing:       makeAddr(0x01),
		Liquidity:       makeAddr(0x02),
		Collection:      makeAddr(0x03),
		AllocatedShares: ledger.MarketingShares + ledger.LiquidityShares,
	}
}

func TestStore_LedgerLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.View(func(tx ledger.Tx) error {
				_, err := tx.Ledger()
				return err
			})
			assert.ErrorIs(t, err, ledger.ErrNotInitialized)

			require.NoError(t, s.Update(func(tx ledger.Tx) error {
				return tx.CreateLedger(testLedger())
			}))

			err = s.Update(func(tx ledger.Tx) error {
				return tx.CreateLedger(testLedger())
			})
			assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)

			require.NoError(t, s.Update(func(tx ledger.Tx) error {
				l, err := tx.Ledger()
				if err != nil {
					return err
				}
				l.TotalReleased = 42
				return tx.PutLedger(l)
			}))

			require.NoError(t, s.View(func(tx ledger.Tx) error {
				l, err := tx.Ledger()
				require.NoError(t, err)
				assert.Equal(t, uint64(42), l.TotalReleased)
				assert.Equal(t, makeAddr(0x03), l.Collection)
				return nil
			}))
		})
	}
}

func TestStore_PutLedgerBeforeCreate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(func(tx ledger.Tx) error {
				return tx.PutLedger(testLedger())
			})
			assert.ErrorIs(t, err, ledger.ErrNotInitialized)
		})
	}
}

func TestStore_ClaimCreateIfAbsent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			key := makeAddr(0xAA)
			require.NoError(t, s.Update(func(tx ledger.Tx) error {
				return tx.CreateClaim(key, ledger.NewClaimAccount(3))
			}))

			err := s.Update(func(tx ledger.Tx) error {
				return tx.CreateClaim(key, ledger.NewClaimAccount(3))
			})
			assert.ErrorIs(t, err, ledger.ErrClaimExists)

			err = s.Update(func(tx ledger.Tx) error {
				return tx.PutClaim(makeAddr(0xBB), ledger.NewClaimAccount(3))
			})
			assert.ErrorIs(t, err, ledger.ErrClaimNotFound)

			require.NoError(t, s.View(func(tx ledger.Tx) error {
				c, err := tx.Claim(key)
				require.NoError(t, err)
				assert.Equal(t, uint64(3), c.Shares)
				assert.Zero(t, c.TotalReleased)

				_, err = tx.Claim(makeAddr(0xBB))
				assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
				return nil
			}))
		})
	}
}

func TestStore_RejectsInvalidShares(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, shares := range []uint64{0, ledger.TotalShares + 1} {
				err := s.Update(func(tx ledger.Tx) error {
					return tx.CreateClaim(makeAddr(0x01), ledger.NewClaimAccount(shares))
				})
				assert.ErrorIs(t, err, ledger.ErrInvalidClaimData)
			}
		})
	}
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	errBoom := errors.New("boom")

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update(func(tx ledger.Tx) error {
				if err := tx.CreateLedger(testLedger()); err != nil {
					return err
				}
				return tx.CreateClaim(makeAddr(0x01), ledger.NewClaimAccount(ledger.MarketingShares))
			}))

			err := s.Update(func(tx ledger.Tx) error {
				l, _ := tx.Ledger()
				l.TotalReleased = 100
				if err := tx.PutLedger(l); err != nil {
					return err
				}
				c, _ := tx.Claim(makeAddr(0x01))
				c.TotalReleased = 100
				if err := tx.PutClaim(makeAddr(0x01), c); err != nil {
					return err
				}
				if err := tx.CreateClaim(makeAddr(0x05), ledger.NewClaimAccount(3)); err != nil {
					return err
				}

				// Writes are visible inside the transaction.
				l2, err := tx.Ledger()
				require.NoError(t, err)
				assert.Equal(t, uint64(100), l2.TotalReleased)
				return errBoom
			})
			assert.ErrorIs(t, err, errBoom)

			require.NoError(t, s.View(func(tx ledger.Tx) error {
				l, err := tx.Ledger()
				require.NoError(t, err)
				assert.Zero(t, l.TotalReleased)

				c, err := tx.Claim(makeAddr(0x01))
				require.NoError(t, err)
				assert.Zero(t, c.TotalReleased)

				_, err = tx.Claim(makeAddr(0x05))
				assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
				return nil
			}))
		})
	}
}

func TestStore_ForEachClaimOrdered(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Update(func(tx ledger.Tx) error {
				for _, seed := range []byte{0x30, 0x10, 0x20} {
					if err := tx.CreateClaim(makeAddr(seed), ledger.NewClaimAccount(uint64(seed))); err != nil {
						return err
					}
				}
				return nil
			}))

			var keys []wallet.Address
			var total uint64
			require.NoError(t, s.View(func(tx ledger.Tx) error {
				return tx.ForEachClaim(func(k wallet.Address, c *ledger.ClaimAccount) error {
					keys = append(keys, k)
					total += c.Shares
					return nil
				})
			}))
			assert.Equal(t, []wallet.Address{makeAddr(0x10), makeAddr(0x20), makeAddr(0x30)}, keys)
			assert.Equal(t, uint64(0x60), total)
		})
	}
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.View(func(tx ledger.Tx) error {
				return tx.CreateLedger(testLedger())
			})
			assert.ErrorIs(t, err, ErrReadOnly)

			err = s.View(func(tx ledger.Tx) error {
				return tx.CreateClaim(makeAddr(1), ledger.NewClaimAccount(1))
			})
			assert.ErrorIs(t, err, ErrReadOnly)
		})
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(func(tx ledger.Tx) error {
		if err := tx.CreateLedger(testLedger()); err != nil {
			return err
		}
		return tx.CreateClaim(makeAddr(0x01), &ledger.ClaimAccount{Shares: 3500, TotalReleased: 77})
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.View(func(tx ledger.Tx) error {
		l, err := tx.Ledger()
		require.NoError(t, err)
		assert.Equal(t, testLedger(), l)

		c, err := tx.Claim(makeAddr(0x01))
		require.NoError(t, err)
		assert.Equal(t, uint64(77), c.TotalReleased)
		return nil
	}))
}
