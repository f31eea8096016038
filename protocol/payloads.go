package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Payload interface {
	Type() PayloadType
	Decode([]byte) error
	Encode() []byte
	Header() *PayloadHeader
	NextPayloadType() PayloadType
}

type PayloadHeader struct {
	NextPayload   PayloadType
	PayloadLength uint16
}

func (h *PayloadHeader) NextPayloadType() PayloadType {
	return h.NextPayload
}

func (h *PayloadHeader) Header() *PayloadHeader {
	return h
}

func (h PayloadHeader) Encode() (b []byte) {
	b = make([]byte, PAYLOAD_HEADER_LENGTH)
	packets.WriteB8(b, 0, uint8(h.NextPayload))
	packets.WriteB16(b, 2, h.PayloadLength+PAYLOAD_HEADER_LENGTH)
	return
}

func (h *PayloadHeader) DecodeHeader(b []byte) error {
	if len(b) < PAYLOAD_HEADER_LENGTH {
		return errors.Wrapf(ErrInvalidSyntax, "payload header too short: %d", len(b))
	}
	pt, _ := packets.ReadB8(b, 0)
	h.NextPayload = PayloadType(pt)
	h.PayloadLength, _ = packets.ReadB16(b, 2)
	if h.PayloadLength < PAYLOAD_HEADER_LENGTH {
		return errors.Wrapf(ErrInvalidSyntax, "bogus payload length %d", h.PayloadLength)
	}
	h.PayloadLength -= PAYLOAD_HEADER_LENGTH
	return nil
}

// MakePayload builds the empty payload for a wire type. The ID payload
// has two shapes; phase1 selects between them (§ RFC 2407 4.6.2 vs
// RFC 2408 3.8).
func MakePayload(t PayloadType, phase1 bool) Payload {
	ph := &PayloadHeader{}
	switch t {
	case PayloadTypeSA:
		return &SaPayload{PayloadHeader: ph}
	case PayloadTypeKE:
		return &KePayload{PayloadHeader: ph}
	case PayloadTypeID:
		if phase1 {
			return &IdPayload{PayloadHeader: ph}
		}
		return &IpsecIdPayload{PayloadHeader: ph}
	case PayloadTypeCERT:
		return &CertPayload{PayloadHeader: ph}
	case PayloadTypeCR:
		return &CertReqPayload{PayloadHeader: ph}
	case PayloadTypeHASH:
		return &HashPayload{PayloadHeader: ph}
	case PayloadTypeSIG:
		return &SigPayload{PayloadHeader: ph}
	case PayloadTypeNonce:
		return &NoncePayload{PayloadHeader: ph}
	case PayloadTypeN:
		return &NotifyPayload{PayloadHeader: ph}
	case PayloadTypeD:
		return &DeletePayload{PayloadHeader: ph}
	case PayloadTypeVID:
		return &VendorIdPayload{PayloadHeader: ph}
	case PayloadTypeATTR:
		return &ModeCfgPayload{PayloadHeader: ph}
	case PayloadTypeNATD, PayloadTypeNATDDrafts:
		return &NatDPayload{PayloadHeader: ph}
	case PayloadTypeNATOA, PayloadTypeNATOADrafts:
		return &NatOaPayload{PayloadHeader: ph}
	case PayloadTypeFragment:
		return &FragmentPayload{PayloadHeader: ph}
	}
	return nil
}

// Payloads preserves arrival order; per type chains are views over it
type Payloads struct {
	Array []Payload
}

func MakePayloads() *Payloads {
	return &Payloads{}
}

func (p *Payloads) Add(t Payload) {
	p.Array = append(p.Array, t)
}

func (p *Payloads) Get(t PayloadType) Payload {
	for _, pl := range p.Array {
		if pl.Type() == t {
			return pl
		}
	}
	return nil
}

// Chain returns all payloads of one type in arrival order
func (p *Payloads) Chain(t PayloadType) (chain []Payload) {
	for _, pl := range p.Array {
		if pl.Type() == t {
			chain = append(chain, pl)
		}
	}
	return
}

// Index returns the position of pl within the message, 0 based
func (p *Payloads) Index(pl Payload) int {
	for i, x := range p.Array {
		if x == pl {
			return i
		}
	}
	return -1
}

// EncodePayloads fixes up the next-payload chain and emits the payloads
// in order. The caller sets the header's NextPayload to the first
// payload's type.
func EncodePayloads(payloads *Payloads, log *logrus.Logger) (b []byte) {
	for idx, pl := range payloads.Array {
		body := pl.Encode()
		hdr := pl.Header()
		hdr.PayloadLength = uint16(len(body))
		hdr.NextPayload = PayloadTypeNone
		if idx < len(payloads.Array)-1 {
			hdr.NextPayload = payloads.Array[idx+1].Type()
		}
		b = append(b, hdr.Encode()...)
		b = append(b, body...)
	}
	return
}

// FirstPayloadType of an encoded set, for the isakmp header
func (p *Payloads) FirstPayloadType() PayloadType {
	if len(p.Array) == 0 {
		return PayloadTypeNone
	}
	return p.Array[0].Type()
}
