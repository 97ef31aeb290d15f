package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrTransient marks network or 5xx-class failures that may succeed on retry.
	ErrTransient = errors.New("transient failure")
	// ErrAuthCorruption marks a local session that can no longer be trusted,
	// e.g. a malformed or revoked refresh token.
	ErrAuthCorruption = errors.New("auth session corrupted")
	// ErrProviderFault marks an internal failure reported by the identity provider.
	ErrProviderFault = errors.New("identity provider fault")
	// ErrPermissionDenied is returned when the store refuses a read or write.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStructuralQuery marks failures that retrying can never fix, such as a
	// row-level policy that references itself.
	ErrStructuralQuery = errors.New("structural query failure")
	// ErrUnauthorized indicates the provider no longer recognises the session.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsRetryable reports whether err belongs to the transient class.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsSessionCorruption reports whether err is one of the failure signatures
// that invalidate locally stored session artifacts.
func IsSessionCorruption(err error) bool {
	return errors.Is(err, ErrAuthCorruption) || errors.Is(err, ErrTransient) || errors.Is(err, ErrProviderFault)
}
