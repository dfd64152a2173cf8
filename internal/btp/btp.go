// Package btp defines the Bilateral Transfer Protocol envelope exchanged with
// downstream clients over a WebSocket connection, and its OER wire encoding.
package btp

import (
	"errors"
	"fmt"
	"time"

	"github.com/koltyakov/miniaccounts/internal/oer"
)

// Type identifies the kind of a BTP [Packet].
type Type uint8

// Packet types understood by this implementation.
const (
	TypeResponse Type = 1
	TypeError    Type = 2
	TypeMessage  Type = 6
	TypeTransfer Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeError:
		return "error"
	case TypeMessage:
		return "message"
	case TypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ContentType tags the payload of a [ProtocolData] entry.
type ContentType uint8

const (
	ContentOctetStream ContentType = 0
	ContentText        ContentType = 1
	ContentJSON        ContentType = 2
)

// Well-known sub-protocol names.
const (
	ProtocolAuth         = "auth"
	ProtocolAuthToken    = "auth_token"
	ProtocolAuthUsername = "auth_username"
	ProtocolILP          = "ilp"
)

// Error code and name sent when a frame is refused.
const (
	CodeNotAccepted = "F00"
	NameNotAccepted = "NotAcceptedError"
)

// generalizedTimeLayout is the wire format of [Error.TriggeredAt]. Parsing
// drops the fraction from the layout; time.Parse accepts it implicitly.
const (
	generalizedTimeLayout      = "20060102150405.000Z"
	generalizedTimeParseLayout = "20060102150405Z"
)

var (
	ErrUnsupportedType = errors.New("btp: unsupported packet type")
	ErrInvalidCode     = errors.New("btp: error code must be 3 characters")
)

// ProtocolData is one named sub-protocol payload.
type ProtocolData struct {
	Name        string
	ContentType ContentType
	Data        []byte
}

// Error is the body of a [TypeError] packet.
type Error struct {
	Code        string
	Name        string
	TriggeredAt time.Time
	Data        string
}

// Packet is a decoded BTP frame. Amount is only meaningful for transfers and
// Error only for error packets.
type Packet struct {
	Type         Type
	RequestID    uint32
	Amount       uint64
	Error        *Error
	ProtocolData []ProtocolData
}

// Get returns the first entry named name.
func (p *Packet) Get(name string) (ProtocolData, bool) {
	for _, pd := range p.ProtocolData {
		if pd.Name == name {
			return pd, true
		}
	}
	return ProtocolData{}, false
}

// NewMessage builds a MESSAGE packet.
func NewMessage(requestID uint32, data []ProtocolData) *Packet {
	return &Packet{Type: TypeMessage, RequestID: requestID, ProtocolData: data}
}

// NewResponse builds a RESPONSE packet.
func NewResponse(requestID uint32, data []ProtocolData) *Packet {
	return &Packet{Type: TypeResponse, RequestID: requestID, ProtocolData: data}
}

// NewNotAccepted builds the F00 NotAcceptedError reply for a refused frame.
func NewNotAccepted(requestID uint32, cause error, now time.Time) *Packet {
	return &Packet{
		Type:      TypeError,
		RequestID: requestID,
		Error: &Error{
			Code:        CodeNotAccepted,
			Name:        NameNotAccepted,
			TriggeredAt: now,
			Data:        cause.Error(),
		},
	}
}

// ILP wraps an ILP packet as the single "ilp" protocol data entry.
func ILP(packet []byte) []ProtocolData {
	return []ProtocolData{{Name: ProtocolILP, ContentType: ContentOctetStream, Data: packet}}
}

// Serialize encodes p in OER.
func Serialize(p *Packet) ([]byte, error) {
	body := oer.NewWriter(64)
	switch p.Type {
	case TypeResponse, TypeMessage:
	case TypeTransfer:
		body.WriteUInt64(p.Amount)
	case TypeError:
		if p.Error == nil || len(p.Error.Code) != 3 {
			return nil, ErrInvalidCode
		}
		body.WriteOctets([]byte(p.Error.Code))
		body.WriteVarOctetString([]byte(p.Error.Name))
		body.WriteVarOctetString([]byte(p.Error.TriggeredAt.UTC().Format(generalizedTimeLayout)))
		body.WriteVarOctetString([]byte(p.Error.Data))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, p.Type)
	}
	writeProtocolData(body, p.ProtocolData)

	w := oer.NewWriter(len(body.Bytes()) + 8)
	w.WriteUInt8(uint8(p.Type))
	w.WriteUInt32(p.RequestID)
	w.WriteVarOctetString(body.Bytes())
	return w.Bytes(), nil
}

// Deserialize decodes an OER-encoded BTP frame.
func Deserialize(b []byte) (*Packet, error) {
	r := oer.NewReader(b)
	typ, err := r.ReadUInt8()
	if err != nil {
		return nil, fmt.Errorf("btp: read type: %w", err)
	}
	requestID, err := r.ReadUInt32()
	if err != nil {
		return nil, fmt.Errorf("btp: read request id: %w", err)
	}
	contents, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("btp: read contents: %w", err)
	}

	p := &Packet{Type: Type(typ), RequestID: requestID}
	body := oer.NewReader(contents)
	switch p.Type {
	case TypeResponse, TypeMessage:
	case TypeTransfer:
		if p.Amount, err = body.ReadUInt64(); err != nil {
			return nil, fmt.Errorf("btp: read amount: %w", err)
		}
	case TypeError:
		if p.Error, err = readError(body); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, typ)
	}
	if p.ProtocolData, err = readProtocolData(body); err != nil {
		return nil, err
	}
	return p, nil
}

func readError(r *oer.Reader) (*Error, error) {
	code, err := r.ReadOctets(3)
	if err != nil {
		return nil, fmt.Errorf("btp: read error code: %w", err)
	}
	name, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("btp: read error name: %w", err)
	}
	rawTime, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("btp: read triggered at: %w", err)
	}
	triggeredAt, err := time.Parse(generalizedTimeParseLayout, string(rawTime))
	if err != nil {
		return nil, fmt.Errorf("btp: parse triggered at: %w", err)
	}
	data, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("btp: read error data: %w", err)
	}
	return &Error{
		Code:        string(code),
		Name:        string(name),
		TriggeredAt: triggeredAt,
		Data:        string(data),
	}, nil
}

func writeProtocolData(w *oer.Writer, entries []ProtocolData) {
	w.WriteVarUInt(uint64(len(entries)))
	for _, pd := range entries {
		w.WriteVarOctetString([]byte(pd.Name))
		w.WriteUInt8(uint8(pd.ContentType))
		w.WriteVarOctetString(pd.Data)
	}
}

func readProtocolData(r *oer.Reader) ([]ProtocolData, error) {
	n, err := r.ReadVarUInt()
	if err != nil {
		return nil, fmt.Errorf("btp: read protocol data count: %w", err)
	}
	// Each entry needs at least three octets; reject counts the frame cannot hold.
	if n > uint64(r.Len()/3) {
		return nil, fmt.Errorf("btp: protocol data count %d exceeds frame", n)
	}
	entries := make([]ProtocolData, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := r.ReadVarOctetString()
		if err != nil {
			return nil, fmt.Errorf("btp: read protocol name: %w", err)
		}
		ct, err := r.ReadUInt8()
		if err != nil {
			return nil, fmt.Errorf("btp: read content type: %w", err)
		}
		data, err := r.ReadVarOctetString()
		if err != nil {
			return nil, fmt.Errorf("btp: read protocol data: %w", err)
		}
		entries = append(entries, ProtocolData{Name: string(name), ContentType: ContentType(ct), Data: data})
	}
	return entries, nil
}
