package credential

import "errors"

var (
	// ErrUnknownCollection indicates the collection was never created.
	ErrUnknownCollection = errors.New("credential: unknown collection")

	// ErrUnknownMint indicates the mint was never issued by this registry.
	ErrUnknownMint = errors.New("credential: unknown mint")

	// ErrWrongAuthority indicates the signing key is not the collection's authority.
	ErrWrongAuthority = errors.New("credential: key is not the collection authority")

	// ErrNotHolder indicates the sender holds no unit of the mint.
	ErrNotHolder = errors.New("credential: sender does not hold the credential")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("credential: required parameter is nil")

	// ErrInvalidSnapshot indicates a saved registry could not be decoded.
	ErrInvalidSnapshot = errors.New("credential: invalid snapshot")
)
