package vault

import "errors"

var (
	// ErrUnauthorized indicates the transfer authority is not the vault's authority.
	ErrUnauthorized = errors.New("vault: unauthorized transfer authority")

	// ErrAssetMismatch indicates the transfer names a different mint or decimals.
	ErrAssetMismatch = errors.New("vault: asset mismatch")

	// ErrInsufficientFunds indicates a debit larger than the balance.
	ErrInsufficientFunds = errors.New("vault: insufficient funds")

	// ErrBalanceOverflow indicates a credit would overflow a 64-bit balance.
	ErrBalanceOverflow = errors.New("vault: balance overflow")

	// ErrZeroAmount indicates a transfer or deposit of zero.
	ErrZeroAmount = errors.New("vault: zero amount")

	// ErrInvalidFee indicates a fee schedule above 10000 basis points.
	ErrInvalidFee = errors.New("vault: invalid fee schedule")

	// ErrInvalidConfig indicates a missing authority or pool address.
	ErrInvalidConfig = errors.New("vault: invalid configuration")
)
