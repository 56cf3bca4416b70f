// Package jwterror defines the tagged error taxonomy shared by every
// component of the verification stack.
//
// Each failure carries a Kind identifying the failing check or subsystem,
// an optional wrapped cause, and retryability metadata. Callers classify
// failures with errors.As / IsKind rather than string matching:
//
//	_, err := verifier.Verify(ctx, token)
//	if jwterror.IsKind(err, jwterror.KindJwtExpired) {
//	    // ask the client to refresh its token
//	}
package jwterror

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class.
type Kind string

const (
	// KindInvalidJwt indicates the token could not be parsed: wrong segment
	// count, invalid base64url, or a non-object JSON header/payload.
	KindInvalidJwt Kind = "InvalidJwt"

	// KindJwkInvalid indicates a single JWK violated its invariants.
	KindJwkInvalid Kind = "JwkInvalid"

	// KindJwksValidation indicates the JWKS document as a whole was malformed.
	KindJwksValidation Kind = "JwksValidationError"

	// KindKidNotFound indicates no key with the requested kid exists in the
	// JWKS, even after a refresh. The penalty box suppresses further
	// refreshes for the same kid, so this is not retryable.
	KindKidNotFound Kind = "KidNotFoundInJwks"

	// KindMultipleKeysFound indicates the requested kid is ambiguous: more
	// than one key matched.
	KindMultipleKeysFound Kind = "JwksMultipleKeysFound"

	// KindInvalidSignatureAlgorithm indicates the effective algorithm is
	// unknown, or incompatible with the selected key.
	KindInvalidSignatureAlgorithm Kind = "JwtInvalidSignatureAlgorithm"

	// KindInvalidSignature indicates the signature is structurally malformed
	// for its algorithm, or failed cryptographic verification.
	KindInvalidSignature Kind = "InvalidSignature"

	// KindNotSupported indicates the platform lacks the cryptographic
	// primitive required by the token.
	KindNotSupported Kind = "NotSupported"

	// Claim assertion failures, in pipeline order.
	KindJwtIssuerNotAllowed   Kind = "JwtIssuerNotAllowed"
	KindJwtAudienceNotAllowed Kind = "JwtAudienceNotAllowed"
	KindJwtExpired            Kind = "JwtExpired"
	KindJwtNotBefore          Kind = "JwtNotBefore"
	KindJwtScopeNotAllowed    Kind = "JwtScopeNotAllowed"
	KindJwtCustomCheckFailed  Kind = "JwtCustomCheckFailed"

	// KindFetchError indicates a network-level JWKS fetch failure (including
	// timeouts). The last good JWKS is retained; the next verification
	// attempt may retry the fetch.
	KindFetchError Kind = "FetchError"

	// KindNonRetryableFetchError indicates the JWKS endpoint answered with a
	// non-200 status. Retrying without operator intervention is pointless.
	KindNonRetryableFetchError Kind = "NonRetryableFetchError"
)

// Error is the tagged error returned by every component in this module.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Message is a human-readable description of the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// RawJWT carries the offending token for diagnostics. It is populated
	// only when the verifier is configured with WithRawJWTInErrors.
	RawJWT string
}

// New creates a tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a tagged error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two tagged errors by Kind, so sentinel comparisons like
// errors.Is(err, jwterror.New(jwterror.KindJwtExpired, "")) work.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// Retryable reports whether retrying the same operation can succeed
// without external intervention. Only transient fetch failures qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindFetchError
}

// KindOf extracts the Kind from err. It returns the empty Kind when err is
// nil or not a tagged error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a tagged error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is a retryable tagged error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
