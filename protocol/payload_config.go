package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// ModeCfgPayload carries Mode Config / XAUTH attributes,
// draft-ietf-ipsec-isakmp-mode-cfg-05 3.2
type ModeCfgPayload struct {
	*PayloadHeader
	CfgType    ModeCfgType
	Identifier uint16
	Attributes []*Attribute
}

func (s *ModeCfgPayload) Type() PayloadType { return PayloadTypeATTR }

func (s *ModeCfgPayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB8(b, 0, uint8(s.CfgType))
	packets.WriteB16(b, 2, s.Identifier)
	return append(b, encodeAttributes(s.Attributes)...)
}

func (s *ModeCfgPayload) Decode(b []byte) (err error) {
	if len(b) < 4 {
		return errors.Wrapf(ErrInvalidSyntax, "mode cfg too short: %d", len(b))
	}
	ct, _ := packets.ReadB8(b, 0)
	s.CfgType = ModeCfgType(ct)
	s.Identifier, _ = packets.ReadB16(b, 2)
	s.Attributes, err = decodeAttributes(b[4:])
	return
}

// GetAttr returns the first attribute of the given type
func (s *ModeCfgPayload) GetAttr(at ModeCfgAttrType) (*Attribute, bool) {
	for _, attr := range s.Attributes {
		if ModeCfgAttrType(attr.Type) == at {
			return attr, true
		}
	}
	return nil, false
}
