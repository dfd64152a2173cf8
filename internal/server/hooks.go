package server

import (
	"context"
	"net/http"

	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/ilp"
)

// Hooks are optional extension points. Nil fields fall back to no-ops,
// except HandleCustomData and HandlePrepareResponse, whose absence changes
// routing.
type Hooks struct {
	// PreConnect runs once during Connect after the node identity is known.
	PreConnect func(ctx context.Context) error
	// Connect runs for every authenticated connection. An error rejects it.
	Connect func(ctx context.Context, address string, auth *btp.Packet, req *http.Request) error
	// Close runs after a connection is gone. address is "" when the
	// connection never authenticated.
	Close func(address string, code int)
	// HandleCustomData takes over every client MESSAGE except ILDCP requests.
	HandleCustomData func(ctx context.Context, from string, packet *btp.Packet) ([]btp.ProtocolData, error)
	// HandlePrepareResponse inspects the client's reply to a forwarded
	// prepare. An error turns the reply into an F00 reject.
	HandlePrepareResponse func(destination string, reply ilp.Packet, prepare *ilp.Prepare) error
	// SendPrepare observes prepares just before they go to a client.
	SendPrepare func(destination string, prepare *ilp.Prepare)
}

func (h Hooks) preConnect(ctx context.Context) error {
	if h.PreConnect == nil {
		return nil
	}
	return h.PreConnect(ctx)
}

func (h Hooks) connect(ctx context.Context, address string, auth *btp.Packet, req *http.Request) error {
	if h.Connect == nil {
		return nil
	}
	return h.Connect(ctx, address, auth, req)
}

func (h Hooks) close(address string, code int) {
	if h.Close != nil {
		h.Close(address, code)
	}
}

func (h Hooks) sendPrepare(destination string, prepare *ilp.Prepare) {
	if h.SendPrepare != nil {
		h.SendPrepare(destination, prepare)
	}
}
