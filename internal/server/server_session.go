package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/metrics"
	"github.com/koltyakov/miniaccounts/internal/netutil"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remote := netutil.RemoteIP(r)
	if !s.origins.checkRequest(r) {
		s.metrics.Handshake(metrics.HandshakeOrigin)
		s.log.Info("rejected connection from disallowed origin", "origin", r.Header.Get("Origin"), "remote", remote)
		writeJSON(w, http.StatusForbidden, domain.ErrorResponse{Error: "origin not allowed", ErrorCode: "origin_not_allowed"})
		return
	}
	if !s.limiter.allow(remote) {
		s.metrics.Handshake(metrics.HandshakeRateLimited)
		writeJSON(w, http.StatusTooManyRequests, domain.ErrorResponse{Error: domain.ErrRateLimitExceeded.Error(), ErrorCode: "rate_limited"})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "remote", remote, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		req:    r,
		remote: remote,
		ctx:    ctx,
		cancel: cancel,
	}
	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	s.log.Debug("client connected", "conn_id", c.id, "remote", remote)

	s.track(c)
	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		defer s.untrack(c)
		s.readLoop(c)
	}()
}

// track records every upgraded socket, authenticated or not, so Disconnect
// can close sockets the registry does not know about yet.
func (s *Server) track(c *conn) {
	s.liveMu.Lock()
	s.live[c] = struct{}{}
	s.liveMu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.liveMu.Lock()
	delete(s.live, c)
	s.liveMu.Unlock()
}

func (s *Server) liveConns() []*conn {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	out := make([]*conn, 0, len(s.live))
	for c := range s.live {
		out = append(out, c)
	}
	return out
}

func (s *Server) readLoop(c *conn) {
	code := websocket.CloseAbnormalClosure
	stopPing := s.startKeepalive(c)
	defer func() {
		stopPing()
		c.closed.Store(true)
		_ = c.ws.Close()
		account := c.account
		address := ""
		if account != "" {
			s.registry.remove(account, c)
			s.updateConnectionGauges()
			address = s.address(account)
		}
		s.hooks.close(address, code)
		go func() {
			c.tasks.Wait()
			c.cancel()
		}()
		s.log.Info("client disconnected", "account", account, "conn_id", c.id, "code", code)
	}()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("client read error", "account", c.account, "conn_id", c.id, "err", err)
			}
			return
		}
		if s.cfg.PingInterval > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
		}

		if c.state == stateAwaitingAuth {
			if err := s.authenticate(c, frame); err != nil {
				s.log.Info("client authentication failed", "conn_id", c.id, "remote", c.remote, "err", err)
				code = websocket.ClosePolicyViolation
				c.close(code, "authentication failed")
				return
			}
			continue
		}

		pkt, err := btp.Deserialize(frame)
		if err != nil {
			s.log.Warn("closing connection after malformed frame", "account", c.account, "conn_id", c.id, "err", err)
			code = websocket.CloseUnsupportedData
			c.close(code, "malformed frame")
			return
		}
		s.dispatch(c, pkt)
	}
}

// startKeepalive pings c on the configured interval and expects a pong
// within two intervals. The returned func stops the pinger.
func (s *Server) startKeepalive(c *conn) func() {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		return func() {}
	}
	deadline := 2 * interval
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					s.log.Debug("keepalive ping failed", "conn_id", c.id, "err", err)
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
