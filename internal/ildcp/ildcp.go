// Package ildcp implements the request/response contract of the Interledger
// Dynamic Configuration Protocol, which tells a freshly connected account the
// address assigned to it and the asset it is denominated in.
package ildcp

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/koltyakov/miniaccounts/internal/ilp"
	"github.com/koltyakov/miniaccounts/internal/oer"
)

// Destination is the well-known address of the configuration service.
const Destination = "peer.config"

const requestExpiry = 60 * time.Second

var (
	// peerFulfillment is the all-zero preimage of peerCondition.
	peerFulfillment = make([]byte, ilp.ConditionSize)
	peerCondition   = func() []byte {
		sum := sha256.Sum256(peerFulfillment)
		return sum[:]
	}()
)

// ErrRejected is returned by [Fetch] when the upstream refused the request.
var ErrRejected = errors.New("ildcp: request rejected")

// Response is the configuration handed to a client.
type Response struct {
	ClientAddress string
	AssetScale    uint8
	AssetCode     string
}

// SendFunc delivers a serialized ILP packet and returns the serialized reply.
type SendFunc func(ctx context.Context, packet []byte) ([]byte, error)

// Request builds a serialized configuration request.
func Request(now time.Time) []byte {
	b, _ := (&ilp.Prepare{
		ExpiresAt:          now.Add(requestExpiry),
		ExecutionCondition: peerCondition,
		Destination:        Destination,
	}).Serialize()
	return b
}

// IsRequest reports whether packet is a prepare addressed to [Destination].
func IsRequest(packet []byte) bool {
	if len(packet) == 0 || ilp.Type(packet[0]) != ilp.TypePrepare {
		return false
	}
	p, err := ilp.ParsePrepare(packet)
	return err == nil && p.Destination == Destination
}

// SerializeResponse encodes info as the fulfill that answers a request.
func SerializeResponse(info Response) []byte {
	w := oer.NewWriter(16 + len(info.ClientAddress) + len(info.AssetCode))
	w.WriteVarOctetString([]byte(info.ClientAddress))
	w.WriteUInt8(info.AssetScale)
	w.WriteVarOctetString([]byte(info.AssetCode))
	b, _ := (&ilp.Fulfill{Fulfillment: peerFulfillment, Data: w.Bytes()}).Serialize()
	return b
}

// ParseResponse decodes a configuration fulfill.
func ParseResponse(packet []byte) (Response, error) {
	f, err := ilp.ParseFulfill(packet)
	if err != nil {
		return Response{}, err
	}
	r := oer.NewReader(f.Data)
	addr, err := r.ReadVarOctetString()
	if err != nil {
		return Response{}, fmt.Errorf("ildcp: client address: %w", err)
	}
	scale, err := r.ReadUInt8()
	if err != nil {
		return Response{}, fmt.Errorf("ildcp: asset scale: %w", err)
	}
	code, err := r.ReadVarOctetString()
	if err != nil {
		return Response{}, fmt.Errorf("ildcp: asset code: %w", err)
	}
	return Response{ClientAddress: string(addr), AssetScale: scale, AssetCode: string(code)}, nil
}

// Serve answers request on behalf of clientAddress using the host's asset.
func Serve(request []byte, host Response, clientAddress string) ([]byte, error) {
	p, err := ilp.ParsePrepare(request)
	if err != nil {
		return nil, err
	}
	if p.Destination != Destination {
		return nil, fmt.Errorf("ildcp: unexpected destination %q", p.Destination)
	}
	host.ClientAddress = clientAddress
	return SerializeResponse(host), nil
}

// Fetch asks the upstream behind send for this node's configuration.
func Fetch(ctx context.Context, send SendFunc) (Response, error) {
	reply, err := send(ctx, Request(time.Now()))
	if err != nil {
		return Response{}, fmt.Errorf("ildcp: fetch: %w", err)
	}
	pkt, err := ilp.Parse(reply)
	if err != nil {
		return Response{}, fmt.Errorf("ildcp: fetch: %w", err)
	}
	if pkt.Type == ilp.TypeReject {
		rej, err := ilp.ParseReject(reply)
		if err != nil {
			return Response{}, fmt.Errorf("ildcp: fetch: %w", err)
		}
		return Response{}, fmt.Errorf("%w: %s %s", ErrRejected, rej.Code, rej.Message)
	}
	info, err := ParseResponse(reply)
	if err != nil {
		return Response{}, err
	}
	if info.ClientAddress == "" {
		return Response{}, errors.New("ildcp: empty client address")
	}
	return info, nil
}
