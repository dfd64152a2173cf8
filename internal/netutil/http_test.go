package netutil

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Example.COM:443":      "example.com",
		" example.com. ":       "example.com",
		"[2001:db8::1]:8443":   "2001:db8::1",
		"2001:db8::1":          "2001:db8::1",
		"localhost:10443":      "localhost",
		"sub.test.EXAMPLE.com": "sub.test.example.com",
	}

	for in, want := range tests {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestRemoteIP(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"192.0.2.1:1234":     "192.0.2.1",
		"[2001:db8::1]:8443": "2001:db8::1",
		"pipe":               "pipe",
	}
	for in, want := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = in
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		if got := RemoteIP(r); got != want {
			t.Fatalf("RemoteIP(%q): got %q, want %q", in, got, want)
		}
	}
}
