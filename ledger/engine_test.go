package ledger_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/sharepool-go/credential"
	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/store"
	"github.com/bitfsorg/sharepool-go/vault"
	"github.com/bitfsorg/sharepool-go/wallet"
)

func makeAddr(seed byte) wallet.Address {
	var addr wallet.Address
	for i := range addr {
		addr[i] = seed
	}
	return addr
}

var (
	marketing = makeAddr(0x4D)
	liquidity = makeAddr(0x4C)
	authority = makeAddr(0xA0)
	poolAcct  = makeAddr(0xB0)
	asset     = ledger.Asset{Mint: makeAddr(0xC0), Decimals: 6}
)

type harness struct {
	engine     *ledger.Engine
	vault      *vault.Vault
	registry   *credential.Registry
	collection wallet.Address
	collKey    *ec.PrivateKey
}

func newHarness(t *testing.T, st ledger.Store, opts ...ledger.Option) *harness {
	t.Helper()

	v, err := vault.New(vault.NewMemBook(), vault.Config{Authority: authority, Pool: poolAcct, Asset: asset})
	require.NoError(t, err)

	reg := credential.NewRegistry()
	collKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	collection, err := reg.CreateCollection(collKey.PubKey())
	require.NoError(t, err)

	opts = append([]ledger.Option{ledger.WithAuthority(authority), ledger.WithAsset(asset)}, opts...)
	e, err := ledger.NewEngine(st, v, reg, opts...)
	require.NoError(t, err)

	_, _, _, err = e.Initialize(context.Background(), marketing, liquidity, collection)
	require.NoError(t, err)

	return &harness{engine: e, vault: v, registry: reg, collection: collection, collKey: collKey}
}

// verifiedCredential mints a credential for owner and signs it into the
// harness collection.
func (h *harness) verifiedCredential(t *testing.T, owner wallet.Address) ledger.Credential {
	t.Helper()
	mint, err := h.registry.MintCredential(h.collection, owner)
	require.NoError(t, err)
	require.NoError(t, h.registry.VerifyCollection(mint, h.collKey))
	return ledger.Credential{Mint: mint}
}

func (h *harness) payoutBalance(t *testing.T, caller wallet.Address) uint64 {
	t.Helper()
	got, err := h.vault.AccountBalance(context.Background(), wallet.AssociatedAccount(caller, asset.Mint))
	require.NoError(t, err)
	return got
}

func (h *harness) audit(t *testing.T) *ledger.AuditReport {
	t.Helper()
	report, err := h.engine.Audit(context.Background())
	require.NoError(t, err)
	return report
}

func stores(t *testing.T) map[string]ledger.Store {
	bolt, err := store.OpenBoltStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })
	return map[string]ledger.Store{
		"mem":  store.NewMemStore(),
		"bolt": bolt,
	}
}

// --- Initialize ---

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())

	l, err := h.engine.Ledger(ctx)
	require.NoError(t, err)
	assert.Equal(t, marketing, l.Marketing)
	assert.Equal(t, liquidity, l.Liquidity)
	assert.Equal(t, h.collection, l.Collection)
	assert.Zero(t, l.TotalReleased)
	assert.Equal(t, uint64(8_500), l.AllocatedShares)

	m, err := h.engine.Account(ctx, marketing)
	require.NoError(t, err)
	assert.Equal(t, ledger.MarketingShares, m.Shares)

	_, _, _, err = h.engine.Initialize(ctx, marketing, liquidity, h.collection)
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)
}

func TestInitialize_Rejections(t *testing.T) {
	ctx := context.Background()
	e, err := ledger.NewEngine(store.NewMemStore(), &fakeVault{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name                 string
		mkt, liq, collection wallet.Address
		wantErr              error
	}{
		{"zero marketing", wallet.ZeroAddress, liquidity, makeAddr(1), ledger.ErrInvalidBeneficiary},
		{"zero liquidity", marketing, wallet.ZeroAddress, makeAddr(1), ledger.ErrInvalidBeneficiary},
		{"same beneficiary", marketing, marketing, makeAddr(1), ledger.ErrInvalidBeneficiary},
		{"zero collection", marketing, liquidity, wallet.ZeroAddress, ledger.ErrInvalidCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := e.Initialize(ctx, tt.mkt, tt.liq, tt.collection)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = e.Ledger(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized, "rejected initialization must write nothing")
}

func TestInitialize_ExistingClaimWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	require.NoError(t, st.Update(func(tx ledger.Tx) error {
		return tx.CreateClaim(liquidity, ledger.NewClaimAccount(ledger.HolderShares))
	}))

	e, err := ledger.NewEngine(st, &fakeVault{}, nil)
	require.NoError(t, err)
	_, _, _, err = e.Initialize(ctx, marketing, liquidity, makeAddr(1))
	assert.ErrorIs(t, err, ledger.ErrAlreadyInitialized)

	_, err = e.Ledger(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
	_, err = e.Account(ctx, marketing)
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := ledger.NewEngine(nil, &fakeVault{}, nil)
	assert.Error(t, err)
	_, err = ledger.NewEngine(store.NewMemStore(), nil, nil)
	assert.Error(t, err)
}

// --- Claim ---

func TestClaim_EndToEnd(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, st)
			require.NoError(t, h.vault.Deposit(ctx, 10_000))

			owed, err := h.engine.Claim(ctx, marketing)
			require.NoError(t, err)
			assert.Equal(t, uint64(3_500), owed)

			l, err := h.engine.Ledger(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(3_500), l.TotalReleased)

			bal, err := h.vault.Balance(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(6_500), bal)

			owed, err = h.engine.Claim(ctx, liquidity)
			require.NoError(t, err)
			assert.Equal(t, uint64(5_000), owed)

			l, err = h.engine.Ledger(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(8_500), l.TotalReleased)

			assert.Equal(t, uint64(3_500), h.payoutBalance(t, marketing))
			assert.Equal(t, uint64(5_000), h.payoutBalance(t, liquidity))

			report := h.audit(t)
			assert.Equal(t, 2, report.Accounts)
			assert.Equal(t, uint64(8_500), report.TotalReleased)
		})
	}
}

func TestClaim_OrderIndependent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	require.NoError(t, h.vault.Deposit(ctx, 10_000))

	owed, err := h.engine.Claim(ctx, liquidity)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), owed)

	owed, err = h.engine.Claim(ctx, marketing)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_500), owed)
}

func TestClaim_DoubleClaimIsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	require.NoError(t, h.vault.Deposit(ctx, 10_000))

	_, err := h.engine.Claim(ctx, marketing)
	require.NoError(t, err)

	_, err = h.engine.Claim(ctx, marketing)
	assert.ErrorIs(t, err, ledger.ErrEmptyValue)
	assert.Equal(t, uint64(3_500), h.payoutBalance(t, marketing))

	// A later deposit accrues again.
	require.NoError(t, h.vault.Deposit(ctx, 2_000))
	owed, err := h.engine.Claim(ctx, marketing)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), owed)
}

func TestClaim_NotFixedBeneficiary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	require.NoError(t, h.vault.Deposit(ctx, 10_000))

	_, err := h.engine.Claim(ctx, makeAddr(0x99))
	assert.ErrorIs(t, err, ledger.ErrNotFixedBeneficiary)
}

func TestClaim_NotInitialized(t *testing.T) {
	e, err := ledger.NewEngine(store.NewMemStore(), &fakeVault{balance: 10}, nil)
	require.NoError(t, err)
	_, err = e.Claim(context.Background(), marketing)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
}

func TestClaim_CanceledContext(t *testing.T) {
	h := newHarness(t, store.NewMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.Claim(ctx, marketing)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeVault is a ledger.Vault with a settable balance and transfer failure.
type fakeVault struct {
	mu          sync.Mutex
	balance     uint64
	transferErr error
	transfers   []ledger.TransferRequest
}

func (v *fakeVault) Balance(context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

func (v *fakeVault) Transfer(_ context.Context, req ledger.TransferRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.transferErr != nil {
		return v.transferErr
	}
	v.balance -= req.Amount
	v.transfers = append(v.transfers, req)
	return nil
}

func initFake(t *testing.T, st ledger.Store, fv *fakeVault, opts ...ledger.Option) *ledger.Engine {
	t.Helper()
	e, err := ledger.NewEngine(st, fv, allowAll{collection: makeAddr(0xCC)}, opts...)
	require.NoError(t, err)
	_, _, _, err = e.Initialize(context.Background(), marketing, liquidity, makeAddr(0xCC))
	require.NoError(t, err)
	return e
}

func TestClaim_TransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("vault offline")
			fv := &fakeVault{balance: 10_000, transferErr: boom}
			e := initFake(t, st, fv)

			_, err := e.Claim(ctx, marketing)
			require.ErrorIs(t, err, boom)

			l, err := e.Ledger(ctx)
			require.NoError(t, err)
			assert.Zero(t, l.TotalReleased)
			m, err := e.Account(ctx, marketing)
			require.NoError(t, err)
			assert.Zero(t, m.TotalReleased)

			fv.transferErr = nil
			owed, err := e.Claim(ctx, marketing)
			require.NoError(t, err)
			assert.Equal(t, uint64(3_500), owed)
		})
	}
}

func TestClaim_TransferRequest(t *testing.T) {
	ctx := context.Background()
	fv := &fakeVault{balance: 10_000}
	e := initFake(t, store.NewMemStore(), fv, ledger.WithAuthority(authority), ledger.WithAsset(asset))

	_, err := e.Claim(ctx, liquidity)
	require.NoError(t, err)
	require.Len(t, fv.transfers, 1)
	assert.Equal(t, ledger.TransferRequest{
		Authority: authority,
		To:        wallet.AssociatedAccount(liquidity, asset.Mint),
		Amount:    5_000,
		Asset:     asset,
	}, fv.transfers[0])
}

func TestClaim_OverflowIsFatal(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fv := &fakeVault{balance: ^uint64(0)}
	e := initFake(t, store.NewMemStore(), fv, ledger.WithLogger(logger))

	_, err := e.Claim(ctx, marketing)
	require.ErrorIs(t, err, ledger.ErrArithmeticOverflow)
	assert.True(t, ledger.IsFatal(err))
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Empty(t, fv.transfers)

	l, err := e.Ledger(ctx)
	require.NoError(t, err)
	assert.Zero(t, l.TotalReleased)
}

func TestClaim_Concurrent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	require.NoError(t, h.vault.Deposit(ctx, 10_000))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		paid   uint64
		claims = 20
	)
	for i := range claims {
		wg.Add(1)
		go func(caller wallet.Address) {
			defer wg.Done()
			owed, err := h.engine.Claim(ctx, caller)
			if err != nil {
				assert.ErrorIs(t, err, ledger.ErrEmptyValue)
				return
			}
			mu.Lock()
			paid += owed
			mu.Unlock()
		}([]wallet.Address{marketing, liquidity}[i%2])
	}
	wg.Wait()

	assert.Equal(t, uint64(8_500), paid)
	assert.Equal(t, uint64(8_500), h.audit(t).TotalReleased)
}

// --- Register ---

func TestRegister_AndClaimWithCredential(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, st)
			holder := makeAddr(0x11)
			cred := h.verifiedCredential(t, holder)

			acct, err := h.engine.Register(ctx, cred, holder)
			require.NoError(t, err)
			assert.Equal(t, ledger.HolderShares, acct.Shares)

			stored, err := h.engine.Account(ctx, cred.HoldingAccount(holder))
			require.NoError(t, err)
			assert.Equal(t, ledger.HolderShares, stored.Shares)

			l, err := h.engine.Ledger(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(8_503), l.AllocatedShares)

			require.NoError(t, h.vault.Deposit(ctx, 10_000))
			pending, err := h.engine.Pending(ctx, cred.HoldingAccount(holder))
			require.NoError(t, err)
			assert.Equal(t, uint64(3), pending)

			owed, err := h.engine.ClaimWithCredential(ctx, cred, holder)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), owed)
			assert.Equal(t, uint64(3), h.payoutBalance(t, holder))

			_, err = h.engine.ClaimWithCredential(ctx, cred, holder)
			assert.ErrorIs(t, err, ledger.ErrEmptyValue)

			report := h.audit(t)
			assert.Equal(t, 3, report.Accounts)
			assert.Equal(t, uint64(8_503), report.TotalShares)
		})
	}
}

func TestRegister_RoundingScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	holder := makeAddr(0x12)
	cred := h.verifiedCredential(t, holder)
	_, err := h.engine.Register(ctx, cred, holder)
	require.NoError(t, err)

	require.NoError(t, h.vault.Deposit(ctx, 1))
	_, err = h.engine.ClaimWithCredential(ctx, cred, holder)
	assert.ErrorIs(t, err, ledger.ErrEmptyValue)

	pending, err := h.engine.Pending(ctx, cred.HoldingAccount(holder))
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	holder := makeAddr(0x13)
	cred := h.verifiedCredential(t, holder)

	_, err := h.engine.Register(ctx, cred, holder)
	require.NoError(t, err)
	_, err = h.engine.Register(ctx, cred, holder)
	assert.ErrorIs(t, err, ledger.ErrAlreadyRegistered)

	l, err := h.engine.Ledger(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8_503), l.AllocatedShares)
}

func TestRegister_Gating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	holder := makeAddr(0x14)

	otherKey, err := ec.NewPrivateKey()
	require.NoError(t, err)
	otherCollection, err := h.registry.CreateCollection(otherKey.PubKey())
	require.NoError(t, err)

	tests := []struct {
		name    string
		setup   func(t *testing.T) (ledger.Credential, wallet.Address)
		wantErr error
	}{
		{"supply of two", func(t *testing.T) (ledger.Credential, wallet.Address) {
			cred := h.verifiedCredential(t, holder)
			require.NoError(t, h.registry.SetSupply(cred.Mint, 2))
			return cred, holder
		}, ledger.ErrTokenNotNFT},
		{"divisible mint", func(t *testing.T) (ledger.Credential, wallet.Address) {
			cred := h.verifiedCredential(t, holder)
			require.NoError(t, h.registry.SetDecimals(cred.Mint, 6))
			return cred, holder
		}, ledger.ErrTokenNotNFT},
		{"caller does not hold it", func(t *testing.T) (ledger.Credential, wallet.Address) {
			return h.verifiedCredential(t, holder), makeAddr(0x15)
		}, ledger.ErrTokenAccountEmpty},
		{"unverified collection", func(t *testing.T) (ledger.Credential, wallet.Address) {
			mint, err := h.registry.MintCredential(h.collection, holder)
			require.NoError(t, err)
			return ledger.Credential{Mint: mint}, holder
		}, ledger.ErrCollectionNotVerified},
		{"other collection", func(t *testing.T) (ledger.Credential, wallet.Address) {
			mint, err := h.registry.MintCredential(otherCollection, holder)
			require.NoError(t, err)
			require.NoError(t, h.registry.VerifyCollection(mint, otherKey))
			return ledger.Credential{Mint: mint}, holder
		}, ledger.ErrInvalidCollection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, caller := tt.setup(t)
			_, err := h.engine.Register(ctx, cred, caller)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, ledger.IsValidation(err))

			_, err = h.engine.Account(ctx, cred.HoldingAccount(caller))
			assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
		})
	}

	report := h.audit(t)
	assert.Equal(t, 2, report.Accounts)
}

func TestRegister_TransferredCredentialNeedsNewRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	alice, bob := makeAddr(0x21), makeAddr(0x22)
	cred := h.verifiedCredential(t, alice)

	_, err := h.engine.Register(ctx, cred, alice)
	require.NoError(t, err)
	require.NoError(t, h.vault.Deposit(ctx, 10_000))
	require.NoError(t, h.registry.TransferCredential(cred.Mint, alice, bob))

	_, err = h.engine.ClaimWithCredential(ctx, cred, alice)
	assert.ErrorIs(t, err, ledger.ErrTokenAccountEmpty)

	_, err = h.engine.ClaimWithCredential(ctx, cred, bob)
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)

	_, err = h.engine.Register(ctx, cred, bob)
	require.NoError(t, err)
	owed, err := h.engine.ClaimWithCredential(ctx, cred, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), owed)

	l, err := h.engine.Ledger(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8_506), l.AllocatedShares, "re-registration consumes fresh shares")
}

// allowAll admits every caller into collection.
type allowAll struct {
	collection wallet.Address
}

func (allowAll) IsSoleSupply(context.Context, wallet.Address) (bool, error) { return true, nil }

func (allowAll) HolderBalance(context.Context, wallet.Address, wallet.Address) (uint64, error) {
	return 1, nil
}

func (a allowAll) CollectionAttestation(context.Context, wallet.Address) (ledger.Attestation, error) {
	return ledger.Attestation{Verified: true, Collection: a.collection}, nil
}

func holderAddr(i int) wallet.Address {
	var a wallet.Address
	a[0] = 0xF0
	a[1] = byte(i >> 8)
	a[2] = byte(i)
	return a
}

func TestRegister_ShareBudget(t *testing.T) {
	ctx := context.Background()
	cred := ledger.Credential{Mint: makeAddr(0xDD)}

	e := initFake(t, store.NewMemStore(), &fakeVault{})
	for i := range 500 {
		_, err := e.Register(ctx, cred, holderAddr(i))
		require.NoError(t, err, "holder %d", i)
	}

	_, err := e.Register(ctx, cred, holderAddr(500))
	assert.ErrorIs(t, err, ledger.ErrShareBudgetExceeded)

	report, err := e.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 502, report.Accounts)
	assert.Equal(t, ledger.TotalShares, report.TotalShares)
}

func TestRegister_ShareBudgetDisabled(t *testing.T) {
	ctx := context.Background()
	cred := ledger.Credential{Mint: makeAddr(0xDD)}

	e := initFake(t, store.NewMemStore(), &fakeVault{}, ledger.WithShareBudget(false))
	for i := range 501 {
		_, err := e.Register(ctx, cred, holderAddr(i))
		require.NoError(t, err, "holder %d", i)
	}

	l, err := e.Ledger(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.TotalShares+ledger.HolderShares, l.AllocatedShares)
}

// --- Audit ---

func TestAudit_DetectsTamperedTotals(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	e := initFake(t, st, &fakeVault{balance: 10_000})

	_, err := e.Claim(ctx, marketing)
	require.NoError(t, err)

	require.NoError(t, st.Update(func(tx ledger.Tx) error {
		l, err := tx.Ledger()
		if err != nil {
			return err
		}
		l.TotalReleased++
		return tx.PutLedger(l)
	}))

	_, err = e.Audit(ctx)
	assert.ErrorIs(t, err, ledger.ErrInvariantViolated)
	assert.True(t, ledger.IsFatal(err))
}

func TestPending_NoMutation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemStore())
	require.NoError(t, h.vault.Deposit(ctx, 10_000))

	for range 3 {
		pending, err := h.engine.Pending(ctx, liquidity)
		require.NoError(t, err)
		assert.Equal(t, uint64(5_000), pending)
	}

	_, err := h.engine.Pending(ctx, makeAddr(0x77))
	assert.ErrorIs(t, err, ledger.ErrClaimNotFound)
}
