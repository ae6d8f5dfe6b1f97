// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bitfsorg/sharepool-go/wallet"
)

// maxFeeBasisPoints is 100%.
const maxFeeBasisPoints = 10_000

// validLogLevels maps the accepted log level strings to slog levels.
var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if _, ok := validLogLevels[strings.ToLower(cfg.LogLevel)]; !ok {
		return ErrInvalidLogLevel
	}

	for _, field := range []struct{ name, value string }{
		{"marketing", cfg.Marketing},
		{"liquidity", cfg.Liquidity},
		{"collection", cfg.Collection},
		{"poolmint", cfg.PoolMint},
	} {
		if err := validateAddress(field.value); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidAddress, field.name, err)
		}
	}

	if cfg.FeeBasisPoints > maxFeeBasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidFee, cfg.FeeBasisPoints)
	}
	return nil
}

// validateAddress accepts an empty string (derive later) or a non-zero address.
func validateAddress(s string) error {
	if s == "" {
		return nil
	}
	addr, err := wallet.ParseAddress(s)
	if err != nil {
		return err
	}
	if addr.IsZero() {
		return errors.New("zero address")
	}
	return nil
}

// Level returns the slog level for cfg.LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	if lvl, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
