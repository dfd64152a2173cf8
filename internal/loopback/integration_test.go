package loopback_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/miniaccounts/internal/auth"
	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/config"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
	"github.com/koltyakov/miniaccounts/internal/ilp"
	"github.com/koltyakov/miniaccounts/internal/loopback"
	"github.com/koltyakov/miniaccounts/internal/server"
)

func dialAuthenticated(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	writePacket(t, ws, btp.NewMessage(1, []btp.ProtocolData{
		{Name: btp.ProtocolAuth},
		{Name: btp.ProtocolAuthToken, ContentType: btp.ContentText, Data: []byte(token)},
	}))
	if reply := readPacket(t, ws); reply.Type != btp.TypeResponse {
		t.Fatalf("auth failed: %s %+v", reply.Type, reply.Error)
	}
	return ws
}

func writePacket(t *testing.T, ws *websocket.Conn, p *btp.Packet) {
	t.Helper()
	frame, err := btp.Serialize(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatal(err)
	}
}

func readPacket(t *testing.T, ws *websocket.Conn) *btp.Packet {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p, err := btp.Deserialize(frame)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStandaloneNodeRoutesBetweenClients(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := server.New(config.ServerConfig{
		ResponseTimeout: 2 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageBytes: 1 << 20,
	}, nil, logger, server.Options{})
	node := loopback.New(ildcp.Response{ClientAddress: "private.moneyd", AssetScale: 9, AssetCode: "XRP"}, srv.SendData, logger)
	srv.RegisterDataHandler(node.HandleData)
	if err := srv.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if srv.Prefix() != "private.moneyd." {
		t.Fatalf("unexpected prefix %q", srv.Prefix())
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Disconnect()
		ts.Close()
	})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	alice := dialAuthenticated(t, url, "alice-secret")
	bob := dialAuthenticated(t, url, "bob-secret")

	fulfillment := bytes.Repeat([]byte{7}, ilp.ConditionSize)
	condition := sha256.Sum256(fulfillment)
	prepare, err := (&ilp.Prepare{
		Amount:             42,
		ExpiresAt:          time.Now().Add(30 * time.Second),
		ExecutionCondition: condition[:],
		Destination:        "private.moneyd." + auth.AccountFromToken("bob-secret") + ".invoice",
	}).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	writePacket(t, alice, btp.NewMessage(100, btp.ILP(prepare)))

	incoming := readPacket(t, bob)
	entry, ok := incoming.Get(btp.ProtocolILP)
	if incoming.Type != btp.TypeMessage || !ok || !bytes.Equal(entry.Data, prepare) {
		t.Fatalf("expected bob to receive the prepare, got %s", incoming.Type)
	}
	fulfill, err := (&ilp.Fulfill{Fulfillment: fulfillment}).Serialize()
	if err != nil {
		t.Fatal(err)
	}
	writePacket(t, bob, btp.NewResponse(incoming.RequestID, btp.ILP(fulfill)))

	reply := readPacket(t, alice)
	if reply.Type != btp.TypeResponse || reply.RequestID != 100 {
		t.Fatalf("unexpected reply %s id=%d", reply.Type, reply.RequestID)
	}
	entry, _ = reply.Get(btp.ProtocolILP)
	if !bytes.Equal(entry.Data, fulfill) {
		t.Fatal("expected alice to receive bob's fulfill")
	}

	// A destination with no connected client becomes an F02 reject.
	prepare, _ = (&ilp.Prepare{
		Amount:             1,
		ExpiresAt:          time.Now().Add(30 * time.Second),
		ExecutionCondition: condition[:],
		Destination:        "private.moneyd.nobody",
	}).Serialize()
	writePacket(t, alice, btp.NewMessage(101, btp.ILP(prepare)))
	reply = readPacket(t, alice)
	entry, _ = reply.Get(btp.ProtocolILP)
	rej, err := ilp.ParseReject(entry.Data)
	if err != nil {
		t.Fatalf("expected reject: %v", err)
	}
	if rej.Code != ilp.CodeUnreachable || !strings.Contains(rej.Message, "no clients connected for account nobody") {
		t.Fatalf("unexpected reject %+v", rej)
	}
}
