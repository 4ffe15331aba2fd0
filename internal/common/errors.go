// Package common defines the shared error taxonomy used across the
// storage core. Callers should match these with errors.Is; they are
// kinds, not types, so a single sentinel covers every backend.
package common

import "errors"

var (
	// ErrUnauthorized: caller lacks a valid session or token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden: caller is authenticated but not the owner.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound: target node, session, or provider object is absent.
	ErrNotFound = errors.New("not found")
	// ErrNameConflict: sibling with same name exists.
	ErrNameConflict = errors.New("name conflict")
	// ErrQuotaExceeded: reservation would exceed tier limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrSizeMismatch: claimed vs actual bytes diverge beyond tolerance.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrBadChunkSet: missing, duplicated, or etag-invalid parts at completion.
	ErrBadChunkSet = errors.New("bad chunk set")
	// ErrOversizeStream: chunk or body exceeds declared maximum.
	ErrOversizeStream = errors.New("oversize stream")
	// ErrConflict: duplicate completion, or an operation forbidden by current state.
	ErrConflict = errors.New("conflict")
	// ErrProviderTransient: retryable provider error.
	ErrProviderTransient = errors.New("provider transient error")
	// ErrProviderFatal: non-retryable provider error.
	ErrProviderFatal = errors.New("provider fatal error")
	// ErrInternal: invariant violation.
	ErrInternal = errors.New("internal error")

	// ErrInvalidToken: the upload token's signature or shape is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired: the upload token has passed its expiry claim.
	ErrTokenExpired = errors.New("token expired")
)

// Kind returns the stable error-kind string used for logging and for the
// HTTP layer's status-code mapping. It returns "internal" for any error
// that does not match one of the sentinels above.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNameConflict):
		return "name_conflict"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(err, ErrBadChunkSet):
		return "bad_chunk_set"
	case errors.Is(err, ErrOversizeStream):
		return "oversize_stream"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrProviderTransient):
		return "provider_transient"
	case errors.Is(err, ErrProviderFatal):
		return "provider_fatal"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	default:
		return "internal"
	}
}
