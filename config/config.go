// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads the sharepool deployment settings from a key = value
// file in the data directory, with SHAREPOOL_* environment overrides.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "SHAREPOOL_"

// Config holds the deployment settings. Empty beneficiary, collection and
// mint addresses are derived from the deployment seed at init time.
type Config struct {
	DataDir  string `env:"DATA_DIR"`
	LogLevel string `env:"LOG_LEVEL"`

	Marketing  string `env:"MARKETING"`
	Liquidity  string `env:"LIQUIDITY"`
	Collection string `env:"COLLECTION"`
	PoolMint   string `env:"POOL_MINT"`
	Decimals   uint8  `env:"DECIMALS"`

	FeeBasisPoints     uint16 `env:"FEE_BASIS_POINTS"`
	MaximumFee         uint64 `env:"MAXIMUM_FEE"`
	EnforceShareBudget bool   `env:"ENFORCE_SHARE_BUDGET"`
}

// Secrets are read from the environment only and never written to disk.
type Secrets struct {
	// Password unlocks the sealed deployment seed. The variable is unset
	// once read.
	Password string `env:"PASSWORD,unset"`
}

// DefaultDataDir returns ~/.sharepool, or .sharepool in the working
// directory when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharepool"
	}
	return filepath.Join(home, ".sharepool")
}

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() Config {
	return Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           "info",
		Decimals:           6,
		EnforceShareBudget: true,
	}
}

// ConfigPath returns the config file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(filepath.Clean(dataDir), "config")
}

// LoadConfig reads path on top of DefaultConfig. Blank lines and lines
// starting with # are skipped; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	return cfg, nil
}

// parseKeyValue splits on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "datadir":
		c.DataDir = value
	case "loglevel":
		c.LogLevel = value
	case "marketing":
		c.Marketing = value
	case "liquidity":
		c.Liquidity = value
	case "collection":
		c.Collection = value
	case "poolmint":
		c.PoolMint = value
	case "decimals":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("decimals: %w", err)
		}
		c.Decimals = uint8(n)
	case "feebasispoints":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("feebasispoints: %w", err)
		}
		c.FeeBasisPoints = uint16(n)
	case "maximumfee":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("maximumfee: %w", err)
		}
		c.MaximumFee = n
	case "enforcesharebudget":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("enforcesharebudget: %w", err)
		}
		c.EnforceShareBudget = b
	}
	return nil
}

// SaveConfig writes cfg to path, creating the parent directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Sharepool Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	b.WriteString("\n# Beneficiaries\n")
	fmt.Fprintf(&b, "marketing = %s\n", cfg.Marketing)
	fmt.Fprintf(&b, "liquidity = %s\n", cfg.Liquidity)
	fmt.Fprintf(&b, "collection = %s\n", cfg.Collection)
	b.WriteString("\n# Pool token\n")
	fmt.Fprintf(&b, "poolmint = %s\n", cfg.PoolMint)
	fmt.Fprintf(&b, "decimals = %d\n", cfg.Decimals)
	fmt.Fprintf(&b, "feebasispoints = %d\n", cfg.FeeBasisPoints)
	fmt.Fprintf(&b, "maximumfee = %d\n", cfg.MaximumFee)
	fmt.Fprintf(&b, "enforcesharebudget = %t\n", cfg.EnforceShareBudget)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// ApplyEnv overlays SHAREPOOL_* environment variables onto cfg. Unset
// variables leave the corresponding field alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// LoadSecrets reads the SHAREPOOL_* secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return s, fmt.Errorf("config: parse env: %w", err)
	}
	return s, nil
}
