package server

import (
	"context"
	"time"

	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
)

// dispatch routes a decoded frame from an authenticated connection.
// Replies are resolved inline; requests run on their own goroutine so an
// upstream call that loops back to this connection cannot block its reader.
func (s *Server) dispatch(c *conn, pkt *btp.Packet) {
	s.metrics.PacketIn(pkt.Type.String())
	switch pkt.Type {
	case btp.TypeResponse, btp.TypeError:
		if !s.calls.resolve(pkt) {
			s.log.Debug("dropping reply with no pending call", "conn_id", c.id, "request_id", pkt.RequestID)
		}
	case btp.TypeMessage:
		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			s.handleMessage(c, pkt)
		}()
	case btp.TypeTransfer:
		c.tasks.Add(1)
		go func() {
			defer c.tasks.Done()
			s.handleTransfer(c, pkt)
		}()
	}
}

func (s *Server) handleMessage(c *conn, pkt *btp.Packet) {
	reply, err := s.handleData(c.ctx, s.address(c.account), pkt)
	if err != nil {
		s.replyError(c, pkt.RequestID, err)
		return
	}
	if err := c.writePacket(btp.NewResponse(pkt.RequestID, reply)); err != nil {
		s.log.Warn("failed to send response", "account", c.account, "conn_id", c.id, "request_id", pkt.RequestID, "err", err)
	}
}

func (s *Server) handleTransfer(c *conn, pkt *btp.Packet) {
	if h := s.getMoneyHandler(); h != nil {
		if err := h(c.ctx, s.address(c.account), pkt.Amount); err != nil {
			s.replyError(c, pkt.RequestID, err)
			return
		}
	}
	if err := c.writePacket(btp.NewResponse(pkt.RequestID, nil)); err != nil {
		s.log.Warn("failed to send transfer response", "account", c.account, "conn_id", c.id, "err", err)
	}
}

func (s *Server) replyError(c *conn, requestID uint32, cause error) {
	s.log.Debug("rejecting client request", "account", c.account, "conn_id", c.id, "request_id", requestID, "err", cause)
	if err := c.writePacket(btp.NewNotAccepted(requestID, cause, time.Now())); err != nil {
		s.log.Warn("failed to send error reply", "account", c.account, "conn_id", c.id, "err", err)
	}
}

// handleData produces the protocol data answering a client MESSAGE.
func (s *Server) handleData(ctx context.Context, from string, pkt *btp.Packet) ([]btp.ProtocolData, error) {
	entry, hasILP := pkt.Get(btp.ProtocolILP)
	if hasILP && ildcp.IsRequest(entry.Data) {
		info, ok := s.HostInfo()
		if !ok {
			return nil, domain.ErrNotConnected
		}
		resp, err := ildcp.Serve(entry.Data, info, from)
		if err != nil {
			return nil, err
		}
		return btp.ILP(resp), nil
	}
	if s.hooks.HandleCustomData != nil {
		return s.hooks.HandleCustomData(ctx, from, pkt)
	}
	if !hasILP {
		return nil, domain.ErrNoPayload
	}
	handler := s.getDataHandler()
	if handler == nil {
		return nil, domain.ErrNoDataHandler
	}
	resp, err := handler(ctx, from, entry.Data)
	if err != nil {
		return nil, err
	}
	return btp.ILP(resp), nil
}
