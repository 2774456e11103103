package ledgercore

import "errors"

// Sentinel errors for the ledger core. Named per the conceptual error
// kinds the service surfaces; callers should compare with errors.Is.
var (
	// ErrValidation means the payload failed its event_type schema.
	ErrValidation = errors.New("ledgercore: validation error")

	// ErrIllegalTransition means the claim lifecycle graph was violated.
	ErrIllegalTransition = errors.New("ledgercore: illegal lifecycle transition")

	// ErrUnknownEntity means a referenced claim_id or editor_id does not exist.
	ErrUnknownEntity = errors.New("ledgercore: unknown entity")

	// ErrUnauthorized means the editor is deactivated or unknown.
	ErrUnauthorized = errors.New("ledgercore: unauthorized editor")

	// ErrHashChainBroken means the tail moved between read and append;
	// the ledger service retries internally on this error.
	ErrHashChainBroken = errors.New("ledgercore: hash chain broken")

	// ErrDuplicateEventID means an event_id collision occurred on append.
	ErrDuplicateEventID = errors.New("ledgercore: duplicate event id")

	// ErrStorageUnavailable means the backing store could not be reached.
	ErrStorageUnavailable = errors.New("ledgercore: storage unavailable")

	// ErrLedgerCorruption means chain verification failed; the ledger
	// refuses further writes until an operator marks it recovered.
	ErrLedgerCorruption = errors.New("ledgercore: ledger corruption detected")

	// ErrSignatureInvalid means a signature failed verification on read
	// or during bundle verification.
	ErrSignatureInvalid = errors.New("ledgercore: signature invalid")

	// ErrNotFound is the generic not-found sentinel returned by store and
	// projection lookups; callers get an explicit error rather than a
	// bare nil.
	ErrNotFound = errors.New("ledgercore: not found")
)
