package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/koltyakov/miniaccounts/internal/btp"
	"github.com/koltyakov/miniaccounts/internal/domain"
	"github.com/koltyakov/miniaccounts/internal/ildcp"
	"github.com/koltyakov/miniaccounts/internal/ilp"
)

// SendData forwards an ILP packet to the client account it is addressed to
// and returns the client's reply. A fulfill whose fulfillment does not hash
// to the sent packet's condition is replaced by an F05 reject.
func (s *Server) SendData(ctx context.Context, packet []byte) ([]byte, error) {
	host := s.host.Load()
	if host == nil {
		return nil, domain.ErrNotConnected
	}
	destination, prepare, err := destinationOf(packet)
	if err != nil {
		return nil, err
	}
	if destination == ildcp.Destination {
		return ildcp.SerializeResponse(host.info), nil
	}
	if !strings.HasPrefix(destination, host.prefix) {
		return nil, fmt.Errorf("%w: destination=%s prefix=%s", domain.ErrNotMyClient, destination, host.prefix)
	}
	account, _, _ := strings.Cut(destination[len(host.prefix):], ".")

	if prepare != nil {
		s.hooks.sendPrepare(destination, prepare)
	}

	requestID, ch := s.calls.register()
	defer s.calls.cancel(requestID)
	frame, err := btp.Serialize(btp.NewMessage(requestID, btp.ILP(packet)))
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.broadcast(account, frame); err != nil {
		s.metrics.PacketOut("unroutable")
		return nil, err
	}
	reply, err := waitReply(ctx, ch, s.cfg.ResponseTimeout)
	if err != nil {
		s.metrics.PacketOut("timeout")
		return nil, &domain.AccountError{Account: account, Op: "send", Err: err}
	}
	s.metrics.ObserveCall(time.Since(start).Seconds())

	if reply.Type == btp.TypeError {
		s.metrics.PacketOut("error")
		e := reply.Error
		return nil, &domain.RemoteError{Code: e.Code, Name: e.Name, Data: e.Data}
	}
	entry, ok := reply.Get(btp.ProtocolILP)
	if !ok {
		s.metrics.PacketOut("empty")
		return []byte{}, nil
	}
	return s.checkReply(host, destination, prepare, entry.Data)
}

// checkReply verifies a client fulfill against the condition of the packet
// that was sent. Packets other than prepares carry no condition, so any
// fulfill answering them is rejected.
func (s *Server) checkReply(host *hostIdentity, destination string, prepare *ilp.Prepare, reply []byte) ([]byte, error) {
	parsed, err := ilp.Parse(reply)
	if err != nil {
		return nil, fmt.Errorf("decode client reply: %w", err)
	}
	var condition []byte
	if prepare != nil {
		condition = prepare.ExecutionCondition
	}
	if parsed.Type == ilp.TypeFulfill {
		fulfill, err := ilp.ParseFulfill(reply)
		if err != nil {
			return nil, fmt.Errorf("decode client fulfill: %w", err)
		}
		sum := sha256.Sum256(fulfill.Fulfillment)
		if !bytes.Equal(sum[:], condition) {
			s.metrics.Reject(ilp.CodeWrongCondition)
			s.log.Warn("client fulfillment does not match condition", "destination", destination)
			msg := fmt.Sprintf("fulfillment did not match expected value. fulfillment=%x condition=%x", fulfill.Fulfillment, condition)
			return ilp.ErrorToReject(host.info.ClientAddress, ilp.CodeWrongCondition, msg), nil
		}
	}
	if prepare != nil && s.hooks.HandlePrepareResponse != nil {
		if err := s.hooks.HandlePrepareResponse(destination, parsed, prepare); err != nil {
			s.metrics.Reject(ilp.CodeBadRequest)
			return ilp.ErrorToReject(host.info.ClientAddress, ilp.CodeBadRequest, err.Error()), nil
		}
	}
	switch parsed.Type {
	case ilp.TypeFulfill:
		s.metrics.PacketOut("fulfill")
	case ilp.TypeReject:
		s.metrics.PacketOut("reject")
	default:
		s.metrics.PacketOut("ok")
	}
	return reply, nil
}

// destinationOf returns the ILP address packet is routed to, and the parsed
// prepare when packet is one.
func destinationOf(packet []byte) (string, *ilp.Prepare, error) {
	p, err := ilp.Parse(packet)
	if err != nil {
		return "", nil, err
	}
	switch p.Type {
	case ilp.TypePayment:
		payment, err := ilp.ParsePayment(packet)
		if err != nil {
			return "", nil, err
		}
		return payment.Account, nil, nil
	case ilp.TypeForwardedPayment:
		fwd, err := ilp.ParseForwardedPayment(packet)
		if err != nil {
			return "", nil, err
		}
		return fwd.Account, nil, nil
	case ilp.TypePrepare:
		prepare, err := ilp.ParsePrepare(packet)
		if err != nil {
			return "", nil, err
		}
		return prepare.Destination, prepare, nil
	case ilp.TypeQuoteLiquidityRequest, ilp.TypeQuoteBySourceRequest, ilp.TypeQuoteByDestinationRequest:
		quote, err := ilp.ParseQuoteRequest(packet)
		if err != nil {
			return "", nil, err
		}
		return quote.DestinationAccount, nil, nil
	default:
		return "", nil, fmt.Errorf("%w (type %d)", domain.ErrNoDestination, p.Type)
	}
}
