package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/sharepool-go/config"
	"github.com/bitfsorg/sharepool-go/credential"
	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/store"
	"github.com/bitfsorg/sharepool-go/vault"
	"github.com/bitfsorg/sharepool-go/wallet"
)

// errForeignCollection indicates a configured collection that the
// deployment seed cannot sign for.
var errForeignCollection = errors.New("collection is not controlled by the deployment seed")

const (
	seedFile       = "seed.sealed"
	lockFile       = "sharepool.lock"
	ledgerFile     = "ledger.db"
	vaultFile      = "vault.db"
	credentialFile = "credentials.cbor"

	// poolMintLabel derives the pool token mint when none is configured.
	poolMintLabel = "pool-mint"
)

// deployment is everything one command needs, opened from the data
// directory under its lock.
type deployment struct {
	cfg    config.Config
	logger *slog.Logger

	authority     wallet.Address
	asset         ledger.Asset
	pool          wallet.Address
	marketing     wallet.Address
	liquidity     wallet.Address
	collection    wallet.Address
	collectionKey *ec.PrivateKey

	ledgerStore *store.BoltStore
	book        *vault.BoltBook
	vault       *vault.Vault
	registry    *credential.Registry
	engine      *ledger.Engine

	lock *os.File
}

func (d *deployment) path(name string) string {
	return filepath.Join(d.cfg.DataDir, name)
}

// readSeed opens the sealed seed in dataDir.
func readSeed(dataDir, password string) ([]byte, error) {
	sealed, err := os.ReadFile(filepath.Join(dataDir, seedFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no deployment in %s (run init first)", dataDir)
		}
		return nil, fmt.Errorf("read seed: %w", err)
	}
	seed, err := wallet.OpenSeed(sealed, password)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	return seed, nil
}

// writeSeed seals seed with password into dataDir. The sealed bytes are
// written to a temporary file and linked into place, so a seed file is
// either complete or absent, and an existing seed is never replaced.
func writeSeed(dataDir string, seed []byte, password string) error {
	sealed, err := wallet.SealSeed(seed, password)
	if err != nil {
		return fmt.Errorf("seal seed: %w", err)
	}
	path := filepath.Join(dataDir, seedFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("write seed: %w", err)
	}
	defer os.Remove(tmp)
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("deployment already exists in %s", dataDir)
		}
		return fmt.Errorf("write seed: %w", err)
	}
	return nil
}

// seedExists reports whether dataDir already holds a sealed seed.
func seedExists(dataDir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dataDir, seedFile))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat seed: %w", err)
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// resolveAddress parses configured, or returns derived when it is empty.
func resolveAddress(configured string, derived wallet.Address) (wallet.Address, error) {
	if configured == "" {
		return derived, nil
	}
	return wallet.ParseAddress(configured)
}

// lockDeployment creates the data directory and takes its lock. The
// returned deployment has no stores open yet.
func lockDeployment(cfg config.Config, logger *slog.Logger) (*deployment, error) {
	if err := ensureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	d := &deployment{cfg: cfg, logger: logger}
	var err error
	d.lock, err = acquireLock(d.path(lockFile))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// openDeployment locks the data directory, unseals the seed and opens every
// store. Callers must call close.
func openDeployment(cfg config.Config, password string, logger *slog.Logger) (*deployment, error) {
	d, err := lockDeployment(cfg, logger)
	if err != nil {
		return nil, err
	}
	seed, err := readSeed(cfg.DataDir, password)
	if err != nil {
		d.close()
		return nil, err
	}
	if err := d.open(seed); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// open derives the identities from seed and opens the stores, the vault,
// the credential registry and the engine.
func (d *deployment) open(seed []byte) error {
	if err := d.deriveIdentities(seed); err != nil {
		return err
	}

	var err error
	d.ledgerStore, err = store.OpenBoltStore(d.path(ledgerFile))
	if err != nil {
		return err
	}
	d.book, err = vault.OpenBoltBook(d.path(vaultFile))
	if err != nil {
		return err
	}
	d.vault, err = vault.New(d.book, vault.Config{
		Authority: d.authority,
		Pool:      d.pool,
		Asset:     d.asset,
		Fee:       vault.FeeSchedule{BasisPoints: d.cfg.FeeBasisPoints, MaximumFee: d.cfg.MaximumFee},
	})
	if err != nil {
		return err
	}

	d.registry, err = credential.LoadRegistry(d.path(credentialFile))
	if errors.Is(err, fs.ErrNotExist) {
		d.registry, err = credential.NewRegistry(), nil
	}
	if err != nil {
		return err
	}
	if _, err := d.registry.CreateCollection(d.collectionKey.PubKey()); err != nil {
		return err
	}

	d.engine, err = ledger.NewEngine(d.ledgerStore, d.vault, d.registry,
		ledger.WithLogger(d.logger),
		ledger.WithAuthority(d.authority),
		ledger.WithAsset(d.asset),
		ledger.WithShareBudget(d.cfg.EnforceShareBudget),
	)
	return err
}

// deriveIdentities fills in the authority, pool, beneficiaries and
// collection from the seed, letting configured addresses take precedence.
func (d *deployment) deriveIdentities(seed []byte) error {
	var err error
	d.authority, err = wallet.DeriveAuthority(seed, wallet.TokenAuthorityLabel)
	if err != nil {
		return err
	}

	derivedMint, err := wallet.DeriveAuthority(seed, poolMintLabel)
	if err != nil {
		return err
	}
	mint, err := resolveAddress(d.cfg.PoolMint, derivedMint)
	if err != nil {
		return fmt.Errorf("pool mint: %w", err)
	}
	d.asset = ledger.Asset{Mint: mint, Decimals: d.cfg.Decimals}
	d.pool = wallet.AssociatedAccount(d.authority, mint)

	w, err := wallet.NewWallet(seed)
	if err != nil {
		return err
	}
	keys := make(map[wallet.Role]*wallet.KeyPair)
	for _, role := range []wallet.Role{wallet.RoleMarketing, wallet.RoleLiquidity, wallet.RoleCollection} {
		keys[role], err = w.DeriveBeneficiaryKey(role, 0)
		if err != nil {
			return fmt.Errorf("derive %s key: %w", role, err)
		}
	}

	if d.marketing, err = resolveAddress(d.cfg.Marketing, keys[wallet.RoleMarketing].Address()); err != nil {
		return fmt.Errorf("marketing: %w", err)
	}
	if d.liquidity, err = resolveAddress(d.cfg.Liquidity, keys[wallet.RoleLiquidity].Address()); err != nil {
		return fmt.Errorf("liquidity: %w", err)
	}
	// Credentials are minted and signed with the derived collection key, so
	// a configured collection must be that key's address.
	d.collectionKey = keys[wallet.RoleCollection].PrivateKey
	derived := keys[wallet.RoleCollection].Address()
	if d.collection, err = resolveAddress(d.cfg.Collection, derived); err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	if d.collection != derived {
		return fmt.Errorf("%w: configured %s, seed controls %s", errForeignCollection, d.collection, derived)
	}
	return nil
}

// saveRegistry persists the credential registry.
func (d *deployment) saveRegistry() error {
	return d.registry.Save(d.path(credentialFile))
}

// closeStores closes the bolt files and leaves the lock held.
func (d *deployment) closeStores() {
	if d.ledgerStore != nil {
		if err := d.ledgerStore.Close(); err != nil {
			d.logger.Warn("close ledger store", "error", err)
		}
		d.ledgerStore = nil
	}
	if d.book != nil {
		if err := d.book.Close(); err != nil {
			d.logger.Warn("close vault book", "error", err)
		}
		d.book = nil
	}
}

// discard closes the stores and removes every file a failed init may have
// created. The lock stays held.
func (d *deployment) discard() {
	d.closeStores()
	for _, name := range []string{seedFile, ledgerFile, vaultFile, credentialFile} {
		if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("remove partial deployment file", "file", name, "error", err)
		}
	}
}

func (d *deployment) close() {
	d.closeStores()
	releaseLock(d.lock)
	d.lock = nil
}
