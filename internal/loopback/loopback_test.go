package loopback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/koltyakov/miniaccounts/internal/ildcp"
	"github.com/koltyakov/miniaccounts/internal/ilp"
)

var nodeInfo = ildcp.Response{ClientAddress: "private.moneyd", AssetScale: 9, AssetCode: "XRP"}

func newTestNode(forward Forwarder) *Node {
	return New(nodeInfo, forward, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func prepareTo(t *testing.T, destination string, expiresAt time.Time) []byte {
	t.Helper()
	b, err := (&ilp.Prepare{
		Amount:             10,
		ExpiresAt:          expiresAt,
		ExecutionCondition: make([]byte, ilp.ConditionSize),
		Destination:        destination,
	}).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func expectReject(t *testing.T, reply []byte, code string) *ilp.Reject {
	t.Helper()
	rej, err := ilp.ParseReject(reply)
	if err != nil {
		t.Fatalf("expected reject: %v", err)
	}
	if rej.Code != code || rej.TriggeredBy != nodeInfo.ClientAddress {
		t.Fatalf("expected %s reject by %s, got %+v", code, nodeInfo.ClientAddress, rej)
	}
	return rej
}

func TestHandleDataAnswersNodeIdentity(t *testing.T) {
	t.Parallel()

	n := newTestNode(nil)
	reply, err := n.HandleData(context.Background(), "", ildcp.Request(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	info, err := ildcp.ParseResponse(reply)
	if err != nil {
		t.Fatal(err)
	}
	if info != nodeInfo {
		t.Fatalf("expected %+v, got %+v", nodeInfo, info)
	}

	if _, err := n.HandleData(context.Background(), "private.moneyd.abc", ildcp.Request(time.Now())); err == nil {
		t.Fatal("expected client ildcp requests to be refused")
	}
}

func TestHandleDataForwardsLocalPrepares(t *testing.T) {
	t.Parallel()

	var forwarded []byte
	n := newTestNode(func(_ context.Context, packet []byte) ([]byte, error) {
		forwarded = packet
		return []byte("fulfill"), nil
	})
	packet := prepareTo(t, "private.moneyd.bob.wallet", time.Now().Add(time.Minute))

	reply, err := n.HandleData(context.Background(), "private.moneyd.alice", packet)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "fulfill" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !bytes.Equal(forwarded, packet) {
		t.Fatal("expected prepare to be forwarded unchanged")
	}
}

func TestHandleDataRejects(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("no clients connected for account bob")
	}
	tests := []struct {
		name     string
		forward  Forwarder
		packet   []byte
		code     string
		contains string
	}{
		{
			name:     "foreign destination",
			forward:  failing,
			packet:   prepareTo(t, "g.elsewhere.bob", time.Now().Add(time.Minute)),
			code:     ilp.CodeUnreachable,
			contains: "no route to g.elsewhere.bob",
		},
		{
			name:     "forward failure",
			forward:  failing,
			packet:   prepareTo(t, "private.moneyd.bob", time.Now().Add(time.Minute)),
			code:     ilp.CodeUnreachable,
			contains: "no clients connected",
		},
		{
			name:     "no forwarder",
			packet:   prepareTo(t, "private.moneyd.bob", time.Now().Add(time.Minute)),
			code:     ilp.CodeUnreachable,
			contains: "no forwarder",
		},
		{
			name:     "expired",
			forward:  failing,
			packet:   prepareTo(t, "private.moneyd.bob", time.Now().Add(-time.Second)),
			code:     ilp.CodeExpired,
			contains: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reply, err := newTestNode(tt.forward).HandleData(context.Background(), "private.moneyd.alice", tt.packet)
			if err != nil {
				t.Fatal(err)
			}
			rej := expectReject(t, reply, tt.code)
			if !strings.Contains(rej.Message, tt.contains) {
				t.Fatalf("expected message to contain %q, got %q", tt.contains, rej.Message)
			}
		})
	}
}

func TestHandleDataRefusesNonPrepare(t *testing.T) {
	t.Parallel()

	fulfill, err := (&ilp.Fulfill{Fulfillment: make([]byte, ilp.ConditionSize)}).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newTestNode(nil).HandleData(context.Background(), "private.moneyd.alice", fulfill); !errors.Is(err, ilp.ErrWrongType) {
		t.Fatalf("expected wrong type error, got %v", err)
	}
}
