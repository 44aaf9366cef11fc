package authn

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a presented token was rejected.
type ErrorKind string

const (
	// ErrorKindConfig means the provider client could not be initialized
	// (malformed credentials, missing file, no ambient credentials).
	ErrorKindConfig ErrorKind = "config_error"

	// ErrorKindVerification means the token itself is invalid, expired,
	// revoked or carries a bad signature.
	ErrorKindVerification ErrorKind = "verification_error"

	// ErrorKindTransport means the provider could not be reached.
	ErrorKindTransport ErrorKind = "transport_error"
)

var (
	// ErrMissingSubject is returned when a provider verifies a token without a subject
	ErrMissingSubject = errors.New("token has no subject")

	// ErrTokenRevoked is returned when a token was issued before the subject's revocation time
	ErrTokenRevoked = errors.New("token has been revoked")

	// ErrNoVerifier is returned when a verifier source yields nothing
	ErrNoVerifier = errors.New("identity provider not configured")
)

// Error is a classified authentication failure. Callers only ever see it as
// an opaque rejection; the kind is kept for logging and metrics.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Kind sentinels for errors.Is checks
var (
	ErrConfig       = &Error{Kind: ErrorKindConfig}
	ErrVerification = &Error{Kind: ErrorKindVerification}
	ErrTransport    = &Error{Kind: ErrorKindTransport}
)

// NewConfigError classifies err as a configuration failure
func NewConfigError(err error) error {
	return classify(ErrorKindConfig, err)
}

// NewVerificationError classifies err as a verification failure
func NewVerificationError(err error) error {
	return classify(ErrorKindVerification, err)
}

// NewTransportError classifies err as a transport failure
func NewTransportError(err error) error {
	return classify(ErrorKindTransport, err)
}

// classify wraps err with kind unless it is already classified.
func classify(kind ErrorKind, err error) error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// cause returns the innermost message carrier below a classification wrapper.
func cause(err error) error {
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Err != nil {
		return authErr.Err
	}
	return err
}
