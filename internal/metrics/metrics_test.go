package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.SetConnections(1, 1)
	m.Handshake(HandshakeAccepted)
	m.PacketIn("MESSAGE")
	m.PacketOut("fulfill")
	m.Reject("F02")
	m.ObserveCall(0.1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rr.Code)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Handshake(HandshakeAccepted)
	m.Handshake(HandshakeAccepted)
	m.Handshake(HandshakeRejected)
	m.Reject("F05")
	m.SetConnections(3, 2)

	if got := testutil.ToFloat64(m.handshakes.WithLabelValues(HandshakeAccepted)); got != 2 {
		t.Fatalf("expected 2 accepted handshakes, got %v", got)
	}
	if got := testutil.ToFloat64(m.rejects.WithLabelValues("F05")); got != 1 {
		t.Fatalf("expected 1 F05 reject, got %v", got)
	}
	if got := testutil.ToFloat64(m.connections); got != 3 {
		t.Fatalf("expected 3 connections, got %v", got)
	}
	if got := testutil.ToFloat64(m.accounts); got != 2 {
		t.Fatalf("expected 2 accounts, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.PacketIn("MESSAGE")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `miniaccounts_packets_in_total{type="MESSAGE"} 1`) {
		t.Fatalf("expected packets_in counter in output")
	}
}
