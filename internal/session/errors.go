package session

import "errors"

var (
	// ErrEmptyCredentials is reported when email or password is blank.
	ErrEmptyCredentials = errors.New("email and password must not be empty")
	// ErrAlreadySignedIn is reported by SignUp/LogIn while a user is signed in.
	ErrAlreadySignedIn = errors.New("already signed in")
	// ErrAuthInProgress is reported by SignUp/LogIn while another attempt is pending.
	ErrAuthInProgress = errors.New("sign in already in progress")
)

// AuthErrorKind classifies provider failures.
type AuthErrorKind string

const (
	InvalidCredentials AuthErrorKind = "invalid_credentials"
	MalformedEmail     AuthErrorKind = "malformed_email"
	WeakPassword       AuthErrorKind = "weak_password"
	EmailInUse         AuthErrorKind = "email_in_use"
	Unavailable        AuthErrorKind = "unavailable"
)

// AuthError is the error identity providers return for credential
// operations. Message is shown to the user as is.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

// NewAuthError builds an AuthError.
func NewAuthError(kind AuthErrorKind, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: cause}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Message returns the user facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *AuthError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "authentication failed"
}

// IsKind reports whether err is an AuthError of kind.
func IsKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}
