package bounce

import "errors"

// Sentinel errors for the bounce service layer.
var (
	ErrCredentialNotFound = errors.New("bounce credential not found")
	// ErrDefaultConflict covers every violation of the default-credential
	// invariants: a second account-wide default, a domain-scoped default,
	// or deleting the sole default.
	ErrDefaultConflict = errors.New("bounce credential default conflict")
)
