package wire

import "errors"

// Sentinel errors for every stable, distinguishable error kind the core
// surfaces. Callers should use errors.Is against these values rather than
// matching on message text.
var (
	ErrInsufficientBalance        = errors.New("wire: insufficient balance for requested amount")
	ErrConsolidateBalanceRequired = errors.New("wire: balance is fragmented across too many UTXOs, consolidate first")
	ErrDuplicateUnshield          = errors.New("wire: batch already has an unshield for this token")
	ErrTokenMismatch              = errors.New("wire: token hash mismatch")
	ErrRootValidationFailed       = errors.New("wire: merkle root rejected by on-chain validator")
	ErrConflictingLeaf            = errors.New("wire: queued leaf conflicts with a different leaf already queued at that index")
	ErrLeafNotPresent             = errors.New("wire: leaf index not yet committed")
	ErrAddressDecode              = errors.New("wire: malformed shielded address")
	ErrDecryptionFailed           = errors.New("wire: note envelope did not decrypt (not addressed to this key)")
	ErrWalletLocked               = errors.New("wire: wallet is locked")
	ErrArtifactUnavailable        = errors.New("wire: proving artifacts unavailable for requested arity")
	ErrProverFailed               = errors.New("wire: prover returned an error")
	ErrStoreIO                    = errors.New("wire: key-value store I/O error")
	ErrChainNotLoaded             = errors.New("wire: chain is not loaded in the engine")

	// ErrMemoTooLarge and ErrInvalidCommitment are lower-level validation
	// kinds kept distinct from the engine-facing kinds above; no function
	// in this module returns them.
	ErrMemoTooLarge      = errors.New("wire: memo exceeds maximum length")
	ErrInvalidCommitment = errors.New("wire: commitment is zero or malformed")
	ErrZeroCommitment    = errors.New("wire: a zero-value commitment cannot be queued")
)
