package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates an approval transition from a non-pending
	// state, including lazily detected expiry.
	ErrInvalidState = errors.New("invalid state")

	// ErrProviderUnavailable indicates a network or auth failure talking to
	// the DNS provider after retries were exhausted.
	ErrProviderUnavailable = errors.New("dns provider unavailable")

	// ErrPolicyMalformed indicates a policy rule body that cannot be compiled.
	// Such policies are skipped for the run, never fatal to it.
	ErrPolicyMalformed = errors.New("policy malformed")

	// ErrPersistenceFailure indicates the audit or change log could not be
	// written; fatal to the affected run.
	ErrPersistenceFailure = errors.New("persistence failure")
)
