package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrNoClientsConnected means an account has no open connection.
	ErrNoClientsConnected = errors.New("no clients connected")

	// ErrNotMyClient is returned for destinations outside the assigned prefix.
	ErrNotMyClient = errors.New("not meant for one of my clients")

	// ErrNoDestination is returned for prepares whose destination has no
	// account segment.
	ErrNoDestination = errors.New("cannot route packet with no destination")

	// ErrNoDataHandler means no upstream request handler is registered.
	ErrNoDataHandler = errors.New("no request handler registered")

	// ErrNoPayload means an inbound frame carried no usable protocol entry.
	ErrNoPayload = errors.New("invalid packet, no payload")

	// ErrMissingToken is returned when the auth message has no token.
	ErrMissingToken = errors.New("missing auth_token")

	// ErrIncorrectToken is returned when a token does not match the one
	// stored for the account.
	ErrIncorrectToken = errors.New("incorrect token for account")

	// ErrTokenExists is returned when saving a token over an existing one.
	ErrTokenExists = errors.New("token already stored for account")

	// ErrNotConnected means the plugin has not completed Connect.
	ErrNotConnected = errors.New("plugin not connected")

	// ErrRateLimitExceeded is returned when a client exceeds the allowed
	// handshake rate.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AccountError wraps an underlying error with account context.
type AccountError struct {
	Account string
	Op      string
	Err     error
}

func (e *AccountError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("account %s: %s: %v", e.Account, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// RemoteError carries a BTP error frame returned by a peer.
type RemoteError struct {
	Code string
	Name string
	Data string
}

func (e *RemoteError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("remote error %s %s", e.Code, e.Name)
	}
	return fmt.Sprintf("remote error %s %s: %s", e.Code, e.Name, e.Data)
}
