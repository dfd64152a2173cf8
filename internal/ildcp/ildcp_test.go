package ildcp

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/koltyakov/miniaccounts/internal/ilp"
)

func TestServeScopesClientAddress(t *testing.T) {
	t.Parallel()

	host := Response{ClientAddress: "g.node", AssetScale: 9, AssetCode: "XRP"}
	reply, err := Serve(Request(time.Now()), host, "g.node.abc123")
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseResponse(reply)
	if err != nil {
		t.Fatal(err)
	}
	want := Response{ClientAddress: "g.node.abc123", AssetScale: 9, AssetCode: "XRP"}
	if got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestResponseFulfillsPeerCondition(t *testing.T) {
	t.Parallel()

	f, err := ilp.ParseFulfill(SerializeResponse(Response{ClientAddress: "g.x"}))
	if err != nil {
		t.Fatal(err)
	}
	req, err := ilp.ParsePrepare(Request(time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(f.Fulfillment)
	if string(sum[:]) != string(req.ExecutionCondition) {
		t.Fatal("expected response fulfillment to satisfy request condition")
	}
}

func TestIsRequest(t *testing.T) {
	t.Parallel()

	if !IsRequest(Request(time.Now())) {
		t.Fatal("expected peer.config prepare to be detected")
	}
	other, _ := (&ilp.Prepare{ExecutionCondition: make([]byte, 32), Destination: "g.node.a"}).Serialize()
	if IsRequest(other) {
		t.Fatal("expected other destination to be ignored")
	}
	if IsRequest(nil) {
		t.Fatal("expected empty packet to be ignored")
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	info, err := Fetch(context.Background(), func(_ context.Context, packet []byte) ([]byte, error) {
		return Serve(packet, Response{AssetScale: 6, AssetCode: "USD"}, "test.parent.child")
	})
	if err != nil {
		t.Fatal(err)
	}
	if info.ClientAddress != "test.parent.child" || info.AssetCode != "USD" || info.AssetScale != 6 {
		t.Fatalf("unexpected info %#v", info)
	}
}

func TestFetchRejected(t *testing.T) {
	t.Parallel()

	_, err := Fetch(context.Background(), func(context.Context, []byte) ([]byte, error) {
		return ilp.ErrorToReject("test.parent", ilp.CodeUnreachable, "nope"), nil
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
