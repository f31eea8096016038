package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// Attribute in TV or TLV form, RFC 2408 3.3
type Attribute struct {
	Type   uint16
	Value  uint32 // TV form, or numeric TLV up to 4 bytes
	Bytes  []byte // TLV form
	IsTlv  bool
}

func decodeAttributes(b []byte) (attrs []*Attribute, err error) {
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, errors.Wrapf(ErrInvalidSyntax, "attribute too short: %d", len(b))
		}
		at, _ := packets.ReadB16(b, 0)
		lv, _ := packets.ReadB16(b, 2)
		attr := &Attribute{Type: at & 0x7fff}
		if at&0x8000 != 0 {
			// TV
			attr.Value = uint32(lv)
			b = b[4:]
		} else {
			attr.IsTlv = true
			if len(b) < 4+int(lv) {
				return nil, errors.Wrapf(ErrInvalidSyntax, "attribute value truncated: %d < %d", len(b)-4, lv)
			}
			attr.Bytes = append([]byte{}, b[4:4+lv]...)
			// numeric shortcut for small TLVs (lifetimes mostly)
			if lv <= 4 {
				for _, c := range attr.Bytes {
					attr.Value = attr.Value<<8 | uint32(c)
				}
			}
			b = b[4+lv:]
		}
		attrs = append(attrs, attr)
	}
	return
}

func encodeAttributes(attrs []*Attribute) (b []byte) {
	for _, attr := range attrs {
		ab := make([]byte, 4)
		if attr.IsTlv {
			packets.WriteB16(ab, 0, attr.Type)
			packets.WriteB16(ab, 2, uint16(len(attr.Bytes)))
			ab = append(ab, attr.Bytes...)
		} else {
			packets.WriteB16(ab, 0, attr.Type|0x8000)
			packets.WriteB16(ab, 2, uint16(attr.Value))
		}
		b = append(b, ab...)
	}
	return
}

// Transform, RFC 2408 3.6
type Transform struct {
	Number      uint8
	TransformId uint8
	Attributes  []*Attribute
}

// GetAttr returns the first attribute of the given type
func (t *Transform) GetAttr(at uint16) (*Attribute, bool) {
	for _, attr := range t.Attributes {
		if attr.Type == at {
			return attr, true
		}
	}
	return nil, false
}

// Proposal, RFC 2408 3.5
type Proposal struct {
	Number     uint8
	ProtocolId ProtocolId
	Spi        []byte
	Transforms []*Transform
}

// SaPayload, RFC 2408 3.4. Proposals and transforms use the generic
// payload header internally with next payload values P and T.
type SaPayload struct {
	*PayloadHeader
	Doi       DoiType
	Situation uint32
	Proposals []*Proposal
}

func (s *SaPayload) Type() PayloadType {
	return PayloadTypeSA
}

func (s *SaPayload) Decode(b []byte) error {
	if len(b) < 8 {
		return errors.Wrapf(ErrInvalidSyntax, "sa payload too short: %d", len(b))
	}
	doi, _ := packets.ReadB32(b, 0)
	s.Doi = DoiType(doi)
	s.Situation, _ = packets.ReadB32(b, 4)
	b = b[8:]
	next := PayloadTypeP
	for next == PayloadTypeP {
		if len(b) == 0 {
			return errors.Wrap(ErrInvalidSyntax, "sa payload without proposal")
		}
		ph := &PayloadHeader{}
		if err := ph.DecodeHeader(b); err != nil {
			return err
		}
		if len(b) < PAYLOAD_HEADER_LENGTH+int(ph.PayloadLength) {
			return errors.Wrap(ErrInvalidSyntax, "proposal truncated")
		}
		prop, err := decodeProposal(b[PAYLOAD_HEADER_LENGTH : PAYLOAD_HEADER_LENGTH+ph.PayloadLength])
		if err != nil {
			return err
		}
		s.Proposals = append(s.Proposals, prop)
		b = b[PAYLOAD_HEADER_LENGTH+ph.PayloadLength:]
		next = ph.NextPayload
		if next != PayloadTypeP && next != PayloadTypeNone {
			return errors.Wrapf(ErrInvalidSyntax, "unexpected payload %s within SA", next)
		}
	}
	return nil
}

func decodeProposal(b []byte) (*Proposal, error) {
	if len(b) < 4 {
		return nil, errors.Wrapf(ErrInvalidSyntax, "proposal too short: %d", len(b))
	}
	prop := &Proposal{}
	num, _ := packets.ReadB8(b, 0)
	prop.Number = num
	pid, _ := packets.ReadB8(b, 1)
	prop.ProtocolId = ProtocolId(pid)
	spiSize, _ := packets.ReadB8(b, 2)
	numTransforms, _ := packets.ReadB8(b, 3)
	if len(b) < 4+int(spiSize) {
		return nil, errors.Wrap(ErrInvalidSyntax, "proposal spi truncated")
	}
	prop.Spi = append([]byte{}, b[4:4+spiSize]...)
	b = b[4+spiSize:]
	for i := 0; i < int(numTransforms); i++ {
		ph := &PayloadHeader{}
		if err := ph.DecodeHeader(b); err != nil {
			return nil, err
		}
		if len(b) < PAYLOAD_HEADER_LENGTH+int(ph.PayloadLength) {
			return nil, errors.Wrap(ErrInvalidSyntax, "transform truncated")
		}
		tb := b[PAYLOAD_HEADER_LENGTH : PAYLOAD_HEADER_LENGTH+ph.PayloadLength]
		if len(tb) < 4 {
			return nil, errors.Wrap(ErrInvalidSyntax, "transform header truncated")
		}
		tr := &Transform{}
		tr.Number, _ = packets.ReadB8(tb, 0)
		tr.TransformId, _ = packets.ReadB8(tb, 1)
		attrs, err := decodeAttributes(tb[4:])
		if err != nil {
			return nil, err
		}
		tr.Attributes = attrs
		prop.Transforms = append(prop.Transforms, tr)
		b = b[PAYLOAD_HEADER_LENGTH+ph.PayloadLength:]
		if i < int(numTransforms)-1 && ph.NextPayload != PayloadTypeT {
			return nil, errors.Wrap(ErrInvalidSyntax, "broken transform chain")
		}
	}
	return prop, nil
}

func (s *SaPayload) Encode() (b []byte) {
	b = make([]byte, 8)
	packets.WriteB32(b, 0, uint32(s.Doi))
	packets.WriteB32(b, 4, s.Situation)
	for pi, prop := range s.Proposals {
		pb := make([]byte, 4)
		packets.WriteB8(pb, 0, prop.Number)
		packets.WriteB8(pb, 1, uint8(prop.ProtocolId))
		packets.WriteB8(pb, 2, uint8(len(prop.Spi)))
		packets.WriteB8(pb, 3, uint8(len(prop.Transforms)))
		pb = append(pb, prop.Spi...)
		for ti, tr := range prop.Transforms {
			tb := make([]byte, 4)
			packets.WriteB8(tb, 0, tr.Number)
			packets.WriteB8(tb, 1, tr.TransformId)
			tb = append(tb, encodeAttributes(tr.Attributes)...)
			th := PayloadHeader{PayloadLength: uint16(len(tb))}
			if ti < len(prop.Transforms)-1 {
				th.NextPayload = PayloadTypeT
			}
			pb = append(pb, th.Encode()...)
			pb = append(pb, tb...)
		}
		ph := PayloadHeader{PayloadLength: uint16(len(pb))}
		if pi < len(s.Proposals)-1 {
			ph.NextPayload = PayloadTypeP
		}
		b = append(b, ph.Encode()...)
		b = append(b, pb...)
	}
	return
}
