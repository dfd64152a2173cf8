// Package ilp encodes and decodes the Interledger packets carried inside the
// "ilp" sub-protocol of a BTP frame.
package ilp

import (
	"errors"
	"fmt"
	"time"

	"github.com/koltyakov/miniaccounts/internal/oer"
)

// Type identifies the kind of an ILP packet envelope.
type Type uint8

const (
	TypePayment                    Type = 1
	TypeQuoteLiquidityRequest      Type = 2
	TypeQuoteLiquidityResponse     Type = 3
	TypeQuoteBySourceRequest       Type = 4
	TypeQuoteBySourceResponse      Type = 5
	TypeQuoteByDestinationRequest  Type = 6
	TypeQuoteByDestinationResponse Type = 7
	TypeError                      Type = 8
	TypeFulfillment                Type = 9
	TypeForwardedPayment           Type = 10
	TypeRejection                  Type = 11
	TypePrepare                    Type = 12
	TypeFulfill                    Type = 13
	TypeReject                     Type = 14
)

// Reject codes used by this node.
const (
	CodeBadRequest     = "F00"
	CodeUnreachable    = "F02"
	CodeWrongCondition = "F05"
	CodeInternalError  = "T00"
	CodeExpired        = "R00"
)

// ConditionSize is the length of an execution condition and of a fulfillment.
const ConditionSize = 32

const timestampSize = 17

var (
	ErrEmptyPacket  = errors.New("ilp: empty packet")
	ErrWrongType    = errors.New("ilp: unexpected packet type")
	ErrBadCondition = errors.New("ilp: condition must be 32 bytes")
)

// Packet is an undecoded ILP envelope: a type octet and its contents.
type Packet struct {
	Type Type
	Data []byte
}

// Parse splits b into its envelope type and contents.
func Parse(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	r := oer.NewReader(b)
	typ, _ := r.ReadUInt8()
	data, err := r.ReadVarOctetString()
	if err != nil {
		return Packet{}, fmt.Errorf("ilp: read contents: %w", err)
	}
	return Packet{Type: Type(typ), Data: data}, nil
}

// Serialize encodes the envelope.
func (p Packet) Serialize() []byte {
	w := oer.NewWriter(len(p.Data) + 6)
	w.WriteUInt8(uint8(p.Type))
	w.WriteVarOctetString(p.Data)
	return w.Bytes()
}

func envelope(t Type, body *oer.Writer) []byte {
	return Packet{Type: t, Data: body.Bytes()}.Serialize()
}

func open(b []byte, want Type) (*oer.Reader, error) {
	p, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if p.Type != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongType, p.Type, want)
	}
	return oer.NewReader(p.Data), nil
}

// Prepare is a conditional transfer toward Destination.
type Prepare struct {
	Amount             uint64
	ExpiresAt          time.Time
	ExecutionCondition []byte
	Destination        string
	Data               []byte
}

func (p *Prepare) Serialize() ([]byte, error) {
	if len(p.ExecutionCondition) != ConditionSize {
		return nil, ErrBadCondition
	}
	w := oer.NewWriter(64 + len(p.Destination) + len(p.Data))
	w.WriteUInt64(p.Amount)
	w.WriteOctets(formatTimestamp(p.ExpiresAt))
	w.WriteOctets(p.ExecutionCondition)
	w.WriteVarOctetString([]byte(p.Destination))
	w.WriteVarOctetString(p.Data)
	return envelope(TypePrepare, w), nil
}

func ParsePrepare(b []byte) (*Prepare, error) {
	r, err := open(b, TypePrepare)
	if err != nil {
		return nil, err
	}
	p := &Prepare{}
	if p.Amount, err = r.ReadUInt64(); err != nil {
		return nil, fmt.Errorf("ilp: prepare amount: %w", err)
	}
	rawTime, err := r.ReadOctets(timestampSize)
	if err != nil {
		return nil, fmt.Errorf("ilp: prepare expiry: %w", err)
	}
	if p.ExpiresAt, err = parseTimestamp(rawTime); err != nil {
		return nil, err
	}
	if p.ExecutionCondition, err = r.ReadOctets(ConditionSize); err != nil {
		return nil, fmt.Errorf("ilp: prepare condition: %w", err)
	}
	dest, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: prepare destination: %w", err)
	}
	p.Destination = string(dest)
	if p.Data, err = r.ReadVarOctetString(); err != nil {
		return nil, fmt.Errorf("ilp: prepare data: %w", err)
	}
	return p, nil
}

// Fulfill answers a Prepare with the preimage of its condition.
type Fulfill struct {
	Fulfillment []byte
	Data        []byte
}

func (f *Fulfill) Serialize() ([]byte, error) {
	if len(f.Fulfillment) != ConditionSize {
		return nil, ErrBadCondition
	}
	w := oer.NewWriter(40 + len(f.Data))
	w.WriteOctets(f.Fulfillment)
	w.WriteVarOctetString(f.Data)
	return envelope(TypeFulfill, w), nil
}

func ParseFulfill(b []byte) (*Fulfill, error) {
	r, err := open(b, TypeFulfill)
	if err != nil {
		return nil, err
	}
	f := &Fulfill{}
	if f.Fulfillment, err = r.ReadOctets(ConditionSize); err != nil {
		return nil, fmt.Errorf("ilp: fulfillment: %w", err)
	}
	if f.Data, err = r.ReadVarOctetString(); err != nil {
		return nil, fmt.Errorf("ilp: fulfill data: %w", err)
	}
	return f, nil
}

// Reject refuses a Prepare.
type Reject struct {
	Code        string
	TriggeredBy string
	Message     string
	Data        []byte
}

func (r *Reject) Serialize() []byte {
	code := []byte(r.Code)
	if len(code) != 3 {
		code = []byte(CodeInternalError)
	}
	w := oer.NewWriter(16 + len(r.TriggeredBy) + len(r.Message) + len(r.Data))
	w.WriteOctets(code)
	w.WriteVarOctetString([]byte(r.TriggeredBy))
	w.WriteVarOctetString([]byte(r.Message))
	w.WriteVarOctetString(r.Data)
	return envelope(TypeReject, w)
}

func ParseReject(b []byte) (*Reject, error) {
	rd, err := open(b, TypeReject)
	if err != nil {
		return nil, err
	}
	code, err := rd.ReadOctets(3)
	if err != nil {
		return nil, fmt.Errorf("ilp: reject code: %w", err)
	}
	by, err := rd.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: reject triggered by: %w", err)
	}
	msg, err := rd.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: reject message: %w", err)
	}
	data, err := rd.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: reject data: %w", err)
	}
	return &Reject{Code: string(code), TriggeredBy: string(by), Message: string(msg), Data: data}, nil
}

// ErrorToReject builds a serialized reject triggered by the given address.
func ErrorToReject(triggeredBy, code, message string) []byte {
	return (&Reject{Code: code, TriggeredBy: triggeredBy, Message: message}).Serialize()
}

func formatTimestamp(t time.Time) []byte {
	t = t.UTC()
	return []byte(t.Format("20060102150405") + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)))
}

func parseTimestamp(b []byte) (time.Time, error) {
	s := string(b)
	t, err := time.Parse("20060102150405.000", s[:14]+"."+s[14:])
	if err != nil {
		return time.Time{}, fmt.Errorf("ilp: parse timestamp %q: %w", s, err)
	}
	return t, nil
}
