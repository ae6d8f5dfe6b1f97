package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/bitfsorg/sharepool-go/config"
	"github.com/bitfsorg/sharepool-go/ledger"
	"github.com/bitfsorg/sharepool-go/wallet"
)

type cli struct {
	cfg    config.Config
	opts   options
	logger *slog.Logger
	out    io.Writer
}

func wantArgs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func parseAddressArg(name, s string) (wallet.Address, error) {
	addr, err := wallet.ParseAddress(s)
	if err != nil {
		return addr, fmt.Errorf("%s: %w", name, err)
	}
	return addr, nil
}

// withDeployment opens the deployment, runs fn and closes it.
func (c *cli) withDeployment(fn func(d *deployment) error) error {
	d, err := openDeployment(c.cfg, c.opts.password, c.logger)
	if err != nil {
		return err
	}
	defer d.close()
	return fn(d)
}

func (c *cli) runInit(ctx context.Context, args []string) error {
	if err := wantArgs("init", args, 0); err != nil {
		return err
	}
	if c.opts.password == "" {
		return errors.New("init: a password is required (--password or SHAREPOOL_PASSWORD)")
	}

	mnemonic := c.opts.mnemonic
	generated := mnemonic == ""
	if generated {
		var err error
		mnemonic, err = wallet.GenerateMnemonic(wallet.Mnemonic24Words)
		if err != nil {
			return err
		}
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}

	d, err := lockDeployment(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer d.close()

	exists, err := seedExists(c.cfg.DataDir)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("deployment already exists in %s", c.cfg.DataDir)
	}

	// Until the config is saved, any failure removes what init created so
	// that init can be retried.
	committed := false
	defer func() {
		if !committed {
			d.discard()
		}
	}()

	if err := d.open(seed); err != nil {
		return err
	}
	l, _, _, err := d.engine.Initialize(ctx, d.marketing, d.liquidity, d.collection)
	if err != nil {
		return err
	}
	if err := d.saveRegistry(); err != nil {
		return err
	}
	if err := writeSeed(c.cfg.DataDir, seed, c.opts.password); err != nil {
		return err
	}

	cfg := d.cfg
	cfg.Marketing = l.Marketing.String()
	cfg.Liquidity = l.Liquidity.String()
	cfg.Collection = l.Collection.String()
	cfg.PoolMint = d.asset.Mint.String()
	if err := config.SaveConfig(config.ConfigPath(cfg.DataDir), cfg); err != nil {
		return err
	}
	committed = true

	if generated {
		fmt.Fprintf(c.out, "mnemonic:   %s\n", mnemonic)
	}
	fmt.Fprintf(c.out, "marketing:  %s\n", l.Marketing)
	fmt.Fprintf(c.out, "liquidity:  %s\n", l.Liquidity)
	fmt.Fprintf(c.out, "collection: %s\n", l.Collection)
	fmt.Fprintf(c.out, "pool mint:  %s\n", d.asset.Mint)
	fmt.Fprintf(c.out, "pool:       %s\n", d.pool)
	return nil
}

func (c *cli) runDeposit(ctx context.Context, args []string) error {
	if err := wantArgs("deposit", args, 1); err != nil {
		return err
	}
	amount, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("deposit: amount: %w", err)
	}
	return c.withDeployment(func(d *deployment) error {
		if err := d.vault.Deposit(ctx, amount); err != nil {
			return err
		}
		balance, err := d.vault.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "pool balance: %d\n", balance)
		return nil
	})
}

func (c *cli) runMintCredential(_ context.Context, args []string) error {
	if err := wantArgs("mint-credential", args, 1); err != nil {
		return err
	}
	owner, err := parseAddressArg("owner", args[0])
	if err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		collection := wallet.AddressFromPubKey(d.collectionKey.PubKey())
		mint, err := d.registry.MintCredential(collection, owner)
		if err != nil {
			return err
		}
		if !c.opts.unverified {
			if err := d.registry.VerifyCollection(mint, d.collectionKey); err != nil {
				return err
			}
		}
		if err := d.saveRegistry(); err != nil {
			return err
		}
		c.logger.Info("credential minted", "mint", mint.String(), "owner", owner.String(), "verified", !c.opts.unverified)
		fmt.Fprintf(c.out, "%s\n", mint)
		return nil
	})
}

func (c *cli) runTransferCredential(_ context.Context, args []string) error {
	if err := wantArgs("transfer-credential", args, 3); err != nil {
		return err
	}
	mint, err := parseAddressArg("mint", args[0])
	if err != nil {
		return err
	}
	from, err := parseAddressArg("from", args[1])
	if err != nil {
		return err
	}
	to, err := parseAddressArg("to", args[2])
	if err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		if err := d.registry.TransferCredential(mint, from, to); err != nil {
			return err
		}
		return d.saveRegistry()
	})
}

func (c *cli) runRegister(ctx context.Context, args []string) error {
	if err := wantArgs("register", args, 2); err != nil {
		return err
	}
	mint, err := parseAddressArg("mint", args[0])
	if err != nil {
		return err
	}
	caller, err := parseAddressArg("caller", args[1])
	if err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		cred := ledger.Credential{Mint: mint}
		acct, err := d.engine.Register(ctx, cred, caller)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "registered %s with %d shares\n", cred.HoldingAccount(caller), acct.Shares)
		return nil
	})
}

func (c *cli) runClaim(ctx context.Context, args []string) error {
	if err := wantArgs("claim", args, 1); err != nil {
		return err
	}
	caller, err := parseAddressArg("caller", args[0])
	if err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		owed, err := d.engine.Claim(ctx, caller)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "paid %d to %s\n", owed, wallet.AssociatedAccount(caller, d.asset.Mint))
		return nil
	})
}

func (c *cli) runClaimCredential(ctx context.Context, args []string) error {
	if err := wantArgs("claim-credential", args, 2); err != nil {
		return err
	}
	mint, err := parseAddressArg("mint", args[0])
	if err != nil {
		return err
	}
	caller, err := parseAddressArg("caller", args[1])
	if err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		owed, err := d.engine.ClaimWithCredential(ctx, ledger.Credential{Mint: mint}, caller)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "paid %d to %s\n", owed, wallet.AssociatedAccount(caller, d.asset.Mint))
		return nil
	})
}

func (c *cli) runHarvest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("harvest: at least one account is required")
	}
	accounts := make([]wallet.Address, 0, len(args))
	for _, a := range args {
		addr, err := parseAddressArg("account", a)
		if err != nil {
			return err
		}
		accounts = append(accounts, addr)
	}
	return c.withDeployment(func(d *deployment) error {
		total, err := d.vault.Harvest(ctx, accounts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "harvested %d\n", total)
		return nil
	})
}

func (c *cli) runStatus(ctx context.Context, args []string) error {
	if err := wantArgs("status", args, 0); err != nil {
		return err
	}
	return c.withDeployment(func(d *deployment) error {
		l, err := d.engine.Ledger(ctx)
		if err != nil {
			return err
		}
		balance, err := d.vault.Balance(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "pool balance:     %d\n", balance)
		fmt.Fprintf(c.out, "total released:   %d\n", l.TotalReleased)
		fmt.Fprintf(c.out, "allocated shares: %d / %d\n", l.AllocatedShares, ledger.TotalShares)
		for _, b := range []struct {
			name string
			addr wallet.Address
		}{{"marketing", l.Marketing}, {"liquidity", l.Liquidity}} {
			pending, err := d.engine.Pending(ctx, b.addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%-10s %s pending %d\n", b.name+":", b.addr, pending)
		}

		report, err := d.engine.Audit(ctx)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		fmt.Fprintf(c.out, "audit:            ok (%d accounts)\n", report.Accounts)
		return nil
	})
}
