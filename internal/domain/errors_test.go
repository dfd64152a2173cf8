package domain

import (
	"errors"
	"testing"
)

func TestAccountErrorMessage(t *testing.T) {
	t.Parallel()

	err := &AccountError{Account: "abc", Op: "send", Err: ErrNoClientsConnected}
	want := "account abc: send: no clients connected"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAccountErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &AccountError{Account: "abc", Op: "auth", Err: ErrIncorrectToken}
	if !errors.Is(err, ErrIncorrectToken) {
		t.Fatal("expected errors.Is to match ErrIncorrectToken")
	}
}

func TestAccountErrorWithoutAccount(t *testing.T) {
	t.Parallel()

	err := &AccountError{Op: "route", Err: ErrNoDestination}
	want := "route: cannot route packet with no destination"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	t.Parallel()

	err := &RemoteError{Code: "F00", Name: "NotAcceptedError", Data: "bad"}
	if got := err.Error(); got != "remote error F00 NotAcceptedError: bad" {
		t.Fatalf("unexpected message %q", got)
	}
	err.Data = ""
	if got := err.Error(); got != "remote error F00 NotAcceptedError" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not_my_client", ErrNotMyClient, "not meant for one of my clients"},
		{"no_destination", ErrNoDestination, "cannot route packet with no destination"},
		{"no_handler", ErrNoDataHandler, "no request handler registered"},
		{"no_payload", ErrNoPayload, "invalid packet, no payload"},
		{"rate_limit", ErrRateLimitExceeded, "rate limit exceeded"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
