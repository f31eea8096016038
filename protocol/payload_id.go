package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// IdPayload is the Phase 1 ISAKMP identification shape. RFC 2407 4.6.2
// talks of Protocol ID and Port but they have no business in Phase 1;
// they are kept as the DOI specific bytes they really are.
type IdPayload struct {
	*PayloadHeader
	IdType        IdType
	DoiSpecificA  uint8  // protocol, should be 0 or UDP
	DoiSpecificB  uint16 // port, should be 0 or 500
	Data          []byte
}

func (s *IdPayload) Type() PayloadType { return PayloadTypeID }

func (s *IdPayload) Encode() (b []byte) {
	b = []byte{uint8(s.IdType), s.DoiSpecificA, 0, 0}
	packets.WriteB16(b, 2, s.DoiSpecificB)
	return append(b, s.Data...)
}

func (s *IdPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrapf(ErrInvalidSyntax, "id payload too short: %d", len(b))
	}
	idt, _ := packets.ReadB8(b, 0)
	s.IdType = IdType(idt)
	s.DoiSpecificA, _ = packets.ReadB8(b, 1)
	s.DoiSpecificB, _ = packets.ReadB16(b, 2)
	s.Data = append([]byte{}, b[4:]...)
	return nil
}

// IpsecIdPayload is the Phase 2 IPsec DOI identification shape,
// carrying a client selector with protocol and port. RFC 2407 4.6.2
type IpsecIdPayload struct {
	*PayloadHeader
	IdType   IdType
	Protocol uint8
	Port     uint16
	Data     []byte
}

func (s *IpsecIdPayload) Type() PayloadType { return PayloadTypeID }

func (s *IpsecIdPayload) Encode() (b []byte) {
	b = []byte{uint8(s.IdType), s.Protocol, 0, 0}
	packets.WriteB16(b, 2, s.Port)
	return append(b, s.Data...)
}

func (s *IpsecIdPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrapf(ErrInvalidSyntax, "ipsec id payload too short: %d", len(b))
	}
	idt, _ := packets.ReadB8(b, 0)
	s.IdType = IdType(idt)
	s.Protocol, _ = packets.ReadB8(b, 1)
	s.Port, _ = packets.ReadB16(b, 2)
	s.Data = append([]byte{}, b[4:]...)
	switch s.IdType {
	case ID_IPV4_ADDR:
		if len(s.Data) != 4 {
			return errors.Wrap(ErrInvalidSyntax, "bad ipv4 id")
		}
	case ID_IPV4_ADDR_SUBNET:
		if len(s.Data) != 8 {
			return errors.Wrap(ErrInvalidSyntax, "bad ipv4 subnet id")
		}
	case ID_IPV6_ADDR:
		if len(s.Data) != 16 {
			return errors.Wrap(ErrInvalidSyntax, "bad ipv6 id")
		}
	case ID_IPV6_ADDR_SUBNET:
		if len(s.Data) != 32 {
			return errors.Wrap(ErrInvalidSyntax, "bad ipv6 subnet id")
		}
	}
	return nil
}
