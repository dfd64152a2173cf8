// Package loopback is the upstream used when miniaccounts runs standalone.
// It plays the parent connector: it answers the node's own ILDCP request and
// routes prepares between clients of the same node.
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koltyakov/miniaccounts/internal/ildcp"
	"github.com/koltyakov/miniaccounts/internal/ilp"
)

// Forwarder delivers a packet to a client of the node, usually
// server.(*Server).SendData.
type Forwarder func(ctx context.Context, packet []byte) ([]byte, error)

// Node routes packets for a standalone server.
type Node struct {
	info    ildcp.Response
	prefix  string
	forward Forwarder
	log     *slog.Logger
	now     func() time.Time
}

// New builds a Node advertising info as the node identity.
func New(info ildcp.Response, forward Forwarder, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		info:    info,
		prefix:  info.ClientAddress + ".",
		forward: forward,
		log:     logger,
		now:     time.Now,
	}
}

// HandleData has the signature of a server data handler. from is the full
// address of the sending client, or "" for the node itself.
func (n *Node) HandleData(ctx context.Context, from string, packet []byte) ([]byte, error) {
	if ildcp.IsRequest(packet) {
		if from != "" {
			return nil, fmt.Errorf("unexpected ildcp request from %s", from)
		}
		return ildcp.SerializeResponse(n.info), nil
	}
	prepare, err := ilp.ParsePrepare(packet)
	if err != nil {
		return nil, fmt.Errorf("loopback accepts only prepares: %w", err)
	}
	if !prepare.ExpiresAt.IsZero() && !prepare.ExpiresAt.After(n.now()) {
		return n.reject(ilp.CodeExpired, "prepare expired before it could be forwarded"), nil
	}
	if !strings.HasPrefix(prepare.Destination, n.prefix) {
		n.log.Debug("no route for prepare", "from", from, "destination", prepare.Destination)
		return n.reject(ilp.CodeUnreachable, "no route to "+prepare.Destination), nil
	}
	if n.forward == nil {
		return n.reject(ilp.CodeUnreachable, "no forwarder configured"), nil
	}
	reply, err := n.forward(ctx, packet)
	if err != nil {
		n.log.Debug("forwarding prepare failed", "from", from, "destination", prepare.Destination, "err", err)
		return n.reject(ilp.CodeUnreachable, err.Error()), nil
	}
	return reply, nil
}

func (n *Node) reject(code, message string) []byte {
	return ilp.ErrorToReject(n.info.ClientAddress, code, message)
}
