package harvest

import (
	"context"
	"errors"
	"fmt"
)

// Class buckets every external call outcome into exactly one reaction.
type Class int

// Classification of a call outcome, in the order workers react to them.
const (
	ClassSuccess Class = iota
	ClassNotFound
	ClassTransient
	ClassQuotaExhausted
	ClassFatalAuth
	ClassPersistence
)

// String returns the log label for the class.
func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	case ClassQuotaExhausted:
		return "quota_exhausted"
	case ClassFatalAuth:
		return "fatal_auth"
	case ClassPersistence:
		return "persistence"
	}
	return "unknown"
}

// ErrNotFound signals that the target does not exist or has no fetchable
// content. It is an expected condition, not a failure.
var ErrNotFound = errors.New("not found")

// ErrCredentialsExhausted is the run-stopping condition: every credential in
// the pool has hit its quota. The task in flight is left uncommitted for the
// next run.
var ErrCredentialsExhausted = errors.New("all credentials exhausted")

// QuotaError marks a call rejected because the credential's usage allowance
// is spent for the current period.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exhausted: %s", e.Reason)
}

// AuthError marks a credential as permanently unusable (revoked or invalid).
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential rejected: %s", e.Reason)
}

// TransientError wraps network, 5xx and malformed-response failures that are
// worth retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed (and rolled back) batch write. The task is
// retryable; the checkpoint must not advance.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Classify resolves an error to its classification. Unknown errors are
// treated as transient so a single odd response cannot wedge the run.
func Classify(err error) Class {
	if err == nil {
		return ClassSuccess
	}
	var (
		quota   *QuotaError
		auth    *AuthError
		persist *PersistenceError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.As(err, &quota):
		return ClassQuotaExhausted
	case errors.As(err, &auth):
		return ClassFatalAuth
	case errors.As(err, &persist):
		return ClassPersistence
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassTransient
	}
}
