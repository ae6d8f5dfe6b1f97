// sharepool runs a pro-rata token pool out of a local data directory.
//
// The directory holds the sealed deployment seed, the share ledger
// (ledger.db), the token book (vault.db) and the credential registry
// (credentials.cbor). Every command takes an exclusive lock on the directory
// for its whole run.
//
// Usage:
//
//	sharepool [flags] init [--mnemonic "..."]
//	sharepool [flags] deposit <amount>
//	sharepool [flags] mint-credential <owner> [--unverified]
//	sharepool [flags] transfer-credential <mint> <from> <to>
//	sharepool [flags] register <mint> <caller>
//	sharepool [flags] claim <caller>
//	sharepool [flags] claim-credential <mint> <caller>
//	sharepool [flags] harvest <account>...
//	sharepool [flags] status
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/bitfsorg/sharepool-go/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the global flags shared by every command.
type options struct {
	dataDir    string
	logLevel   string
	password   string
	mnemonic   string
	unverified bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("sharepool", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.dataDir, "datadir", "", "data directory (default ~/.sharepool)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&opts.password, "password", "", "password sealing the deployment seed (or SHAREPOOL_PASSWORD)")
	flagSet.StringVar(&opts.mnemonic, "mnemonic", "", "init: restore the deployment seed from this mnemonic")
	flagSet.BoolVar(&opts.unverified, "unverified", false, "mint-credential: skip the collection signature")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errors.New("no command given")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.password == "" {
		secrets, err := config.LoadSecrets()
		if err != nil {
			return err
		}
		opts.password = secrets.Password
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	cmd, cmdArgs := rest[0], rest[1:]
	c := &cli{cfg: cfg, opts: opts, logger: logger, out: stdout}
	switch cmd {
	case "init":
		return c.runInit(ctx, cmdArgs)
	case "deposit":
		return c.runDeposit(ctx, cmdArgs)
	case "mint-credential":
		return c.runMintCredential(ctx, cmdArgs)
	case "transfer-credential":
		return c.runTransferCredential(ctx, cmdArgs)
	case "register":
		return c.runRegister(ctx, cmdArgs)
	case "claim":
		return c.runClaim(ctx, cmdArgs)
	case "claim-credential":
		return c.runClaimCredential(ctx, cmdArgs)
	case "harvest":
		return c.runHarvest(ctx, cmdArgs)
	case "status":
		return c.runStatus(ctx, cmdArgs)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads the config file in the data directory (if any), then
// applies environment and flag overrides.
func loadConfig(opts options) (config.Config, error) {
	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = os.Getenv(config.EnvPrefix + "DATA_DIR")
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	cfg, err := config.LoadConfig(config.ConfigPath(dataDir))
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.DataDir = dataDir
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `sharepool: pro-rata token pool with credential-gated holder shares.

Usage: sharepool [flags] <command> [args]

Commands:
  init                               create the deployment (seed, ledger, collection)
  deposit <amount>                   add tokens to the pool
  mint-credential <owner>            mint a collection credential to owner
  transfer-credential <mint> <from> <to>
  register <mint> <caller>           admit a credential holder (3 shares)
  claim <caller>                     pay the marketing or liquidity beneficiary
  claim-credential <mint> <caller>   pay a registered credential holder
  harvest <account>...               sweep withheld transfer fees into the pool
  status                             print ledger totals and audit result

Flags:
%s`, flagSet.FlagUsages())
}
