package ledger

import "errors"

// Validation errors. These are detected before any state is touched.
var (
	// ErrTokenNotNFT indicates the credential's mint is divisible or its
	// supply is not exactly one.
	ErrTokenNotNFT = errors.New("ledger: token is not an NFT")

	// ErrTokenAccountEmpty indicates the caller does not hold the credential.
	ErrTokenAccountEmpty = errors.New("ledger: token account empty")

	// ErrCollectionNotVerified indicates the collection attestation is unverified.
	ErrCollectionNotVerified = errors.New("ledger: collection not verified")

	// ErrInvalidCollection indicates the credential belongs to another collection.
	ErrInvalidCollection = errors.New("ledger: invalid collection")

	// ErrEmptyValue indicates nothing new has accrued since the last claim.
	ErrEmptyValue = errors.New("ledger: empty value")

	// ErrInvalidBeneficiary indicates a zero or duplicated fixed beneficiary.
	ErrInvalidBeneficiary = errors.New("ledger: invalid beneficiary")

	// ErrNotFixedBeneficiary indicates the caller is neither marketing nor liquidity.
	ErrNotFixedBeneficiary = errors.New("ledger: caller is not a fixed beneficiary")

	// ErrShareBudgetExceeded indicates admission would push total shares past TotalShares.
	ErrShareBudgetExceeded = errors.New("ledger: share budget exceeded")
)

// Storage errors, reported by Store implementations.
var (
	// ErrAlreadyInitialized indicates the ledger or a fixed record already exists.
	ErrAlreadyInitialized = errors.New("ledger: already initialized")

	// ErrAlreadyRegistered indicates a record already exists for the holding account.
	ErrAlreadyRegistered = errors.New("ledger: already registered")

	// ErrNotInitialized indicates no ledger has been stored yet.
	ErrNotInitialized = errors.New("ledger: not initialized")

	// ErrClaimNotFound indicates no record exists for the key.
	ErrClaimNotFound = errors.New("ledger: claim account not found")

	// ErrClaimExists indicates CreateClaim was called for an existing key.
	ErrClaimExists = errors.New("ledger: claim account exists")

	// ErrInvalidLedgerData indicates a stored ledger record is malformed.
	ErrInvalidLedgerData = errors.New("ledger: invalid ledger data")

	// ErrInvalidClaimData indicates a stored claim record is malformed.
	ErrInvalidClaimData = errors.New("ledger: invalid claim data")
)

// Fatal errors. They mean the share budget or total value assumptions were
// broken; the operation is aborted and nothing is committed.
var (
	// ErrArithmeticOverflow indicates a 64-bit overflow or underflow in settlement.
	ErrArithmeticOverflow = errors.New("ledger: arithmetic overflow")

	// ErrInvariantViolated indicates stored totals disagree with each other.
	ErrInvariantViolated = errors.New("ledger: invariant violated")
)

// IsFatal reports whether err is an invariant or overflow failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow) || errors.Is(err, ErrInvariantViolated)
}

// IsValidation reports whether err is a caller-correctable validation failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrTokenNotNFT, ErrTokenAccountEmpty, ErrCollectionNotVerified,
		ErrInvalidCollection, ErrEmptyValue, ErrInvalidBeneficiary,
		ErrNotFixedBeneficiary, ErrShareBudgetExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
