// Package session turns an identity provider into a small closed set of
// session states and exposes the credential operations.
package session

import "fmt"

// Kind enumerates the session variants.
type Kind int

const (
	KindSignedOut Kind = iota
	KindAuthenticating
	KindSignedIn
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSignedOut:
		return "signed-out"
	case KindAuthenticating:
		return "authenticating"
	case KindSignedIn:
		return "signed-in"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Session is the current authentication status. Only a SignedIn session
// carries a UserID; only an Error session carries a Message.
type Session struct {
	Kind    Kind
	UserID  string
	Message string
}

// SignedOut is the session with no identity.
func SignedOut() Session { return Session{Kind: KindSignedOut} }

// Authenticating is the transient state while the provider works.
func Authenticating() Session { return Session{Kind: KindAuthenticating} }

// SignedIn is an authenticated session for userID.
func SignedIn(userID string) Session { return Session{Kind: KindSignedIn, UserID: userID} }

// Failed is an Error session with a human readable message.
func Failed(message string) Session { return Session{Kind: KindError, Message: message} }

// IsSignedIn reports whether s carries a usable identity.
func (s Session) IsSignedIn() bool {
	return s.Kind == KindSignedIn && s.UserID != ""
}

func (s Session) String() string {
	switch s.Kind {
	case KindSignedIn:
		return fmt.Sprintf("%s(%s)", s.Kind, s.UserID)
	case KindError:
		return fmt.Sprintf("%s(%q)", s.Kind, s.Message)
	default:
		return s.Kind.String()
	}
}
