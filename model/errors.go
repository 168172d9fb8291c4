package model

import "errors"

// ErrNotAuthenticated marks actions attempted without a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Kind classifies a user-facing failure.
type Kind int

const (
	// KindAuthentication covers bad credentials and duplicate registration.
	KindAuthentication Kind = iota + 1
	// KindAuthorization covers actions that need a session.
	KindAuthorization
	// KindRead covers failed fetches.
	KindRead
	// KindWrite covers failed mutations.
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Notice is an error whose message is fit for display. The underlying cause
// stays reachable through Unwrap.
type Notice struct {
	Kind    Kind
	Message string
	Err     error
}

func (n *Notice) Error() string {
	return n.Message
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// NewNotice builds a Notice.
func NewNotice(kind Kind, message string, err error) *Notice {
	return &Notice{Kind: kind, Message: message, Err: err}
}

// LoginRequired returns an authorization Notice wrapping ErrNotAuthenticated.
func LoginRequired(message string) *Notice {
	return NewNotice(KindAuthorization, message, ErrNotAuthenticated)
}

// KindOf returns the Kind of the first Notice in err's chain, or 0.
func KindOf(err error) Kind {
	var n *Notice
	if errors.As(err, &n) {
		return n.Kind
	}
	return 0
}
