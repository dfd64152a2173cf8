package ilp

import (
	"fmt"

	"github.com/koltyakov/miniaccounts/internal/oer"
)

// Payment is an unconditional payment to Account.
type Payment struct {
	Amount  uint64
	Account string
	Data    []byte
}

func (p *Payment) Serialize() []byte {
	w := oer.NewWriter(16 + len(p.Account) + len(p.Data))
	w.WriteUInt64(p.Amount)
	w.WriteVarOctetString([]byte(p.Account))
	w.WriteVarOctetString(p.Data)
	return envelope(TypePayment, w)
}

func ParsePayment(b []byte) (*Payment, error) {
	r, err := open(b, TypePayment)
	if err != nil {
		return nil, err
	}
	p := &Payment{}
	if p.Amount, err = r.ReadUInt64(); err != nil {
		return nil, fmt.Errorf("ilp: payment amount: %w", err)
	}
	account, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: payment account: %w", err)
	}
	p.Account = string(account)
	if p.Data, err = r.ReadVarOctetString(); err != nil {
		return nil, fmt.Errorf("ilp: payment data: %w", err)
	}
	return p, nil
}

// ForwardedPayment is a payment whose amount travels in the enclosing transfer.
type ForwardedPayment struct {
	Account string
	Data    []byte
}

func (p *ForwardedPayment) Serialize() []byte {
	w := oer.NewWriter(8 + len(p.Account) + len(p.Data))
	w.WriteVarOctetString([]byte(p.Account))
	w.WriteVarOctetString(p.Data)
	return envelope(TypeForwardedPayment, w)
}

func ParseForwardedPayment(b []byte) (*ForwardedPayment, error) {
	r, err := open(b, TypeForwardedPayment)
	if err != nil {
		return nil, err
	}
	account, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: forwarded payment account: %w", err)
	}
	data, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: forwarded payment data: %w", err)
	}
	return &ForwardedPayment{Account: string(account), Data: data}, nil
}

// QuoteRequest covers the three ILQP request kinds. SourceAmount is only
// encoded for by-source quotes and DestinationAmount for by-destination ones.
type QuoteRequest struct {
	Type                    Type
	DestinationAccount      string
	SourceAmount            uint64
	DestinationAmount       uint64
	DestinationHoldDuration uint32
}

func (q *QuoteRequest) Serialize() ([]byte, error) {
	w := oer.NewWriter(24 + len(q.DestinationAccount))
	w.WriteVarOctetString([]byte(q.DestinationAccount))
	switch q.Type {
	case TypeQuoteLiquidityRequest:
	case TypeQuoteBySourceRequest:
		w.WriteUInt64(q.SourceAmount)
	case TypeQuoteByDestinationRequest:
		w.WriteUInt64(q.DestinationAmount)
	default:
		return nil, fmt.Errorf("%w: %d is not a quote request", ErrWrongType, q.Type)
	}
	w.WriteUInt32(q.DestinationHoldDuration)
	return envelope(q.Type, w), nil
}

func ParseQuoteRequest(b []byte) (*QuoteRequest, error) {
	p, err := Parse(b)
	if err != nil {
		return nil, err
	}
	r := oer.NewReader(p.Data)
	q := &QuoteRequest{Type: p.Type}
	account, err := r.ReadVarOctetString()
	if err != nil {
		return nil, fmt.Errorf("ilp: quote destination: %w", err)
	}
	q.DestinationAccount = string(account)
	switch p.Type {
	case TypeQuoteLiquidityRequest:
	case TypeQuoteBySourceRequest:
		if q.SourceAmount, err = r.ReadUInt64(); err != nil {
			return nil, fmt.Errorf("ilp: quote source amount: %w", err)
		}
	case TypeQuoteByDestinationRequest:
		if q.DestinationAmount, err = r.ReadUInt64(); err != nil {
			return nil, fmt.Errorf("ilp: quote destination amount: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %d is not a quote request", ErrWrongType, p.Type)
	}
	if q.DestinationHoldDuration, err = r.ReadUInt32(); err != nil {
		return nil, fmt.Errorf("ilp: quote hold duration: %w", err)
	}
	return q, nil
}
