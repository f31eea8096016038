package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// NatDPayload carries HASH(CKY-I | CKY-R | IP | Port), RFC 3947 4
type NatDPayload struct {
	*PayloadHeader
	Hash []byte
}

func (s *NatDPayload) Type() PayloadType { return PayloadTypeNATD }

func (s *NatDPayload) Encode() []byte { return s.Hash }

func (s *NatDPayload) Decode(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(ErrInvalidSyntax, "empty nat-d payload")
	}
	s.Hash = append([]byte{}, b...)
	return nil
}

// NatOaPayload carries the original address of a NATed peer, RFC 3947 5.2
type NatOaPayload struct {
	*PayloadHeader
	IdType IdType
	Data   []byte
}

func (s *NatOaPayload) Type() PayloadType { return PayloadTypeNATOA }

func (s *NatOaPayload) Encode() (b []byte) {
	b = []byte{uint8(s.IdType), 0, 0, 0}
	return append(b, s.Data...)
}

func (s *NatOaPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrapf(ErrInvalidSyntax, "nat-oa too short: %d", len(b))
	}
	idt, _ := packets.ReadB8(b, 0)
	s.IdType = IdType(idt)
	s.Data = append([]byte{}, b[4:]...)
	switch s.IdType {
	case ID_IPV4_ADDR:
		if len(s.Data) != 4 {
			return errors.Wrap(ErrInvalidSyntax, "bad nat-oa ipv4 address")
		}
	case ID_IPV6_ADDR:
		if len(s.Data) != 16 {
			return errors.Wrap(ErrInvalidSyntax, "bad nat-oa ipv6 address")
		}
	default:
		return errors.Wrapf(ErrInvalidSyntax, "bad nat-oa id type %d", s.IdType)
	}
	return nil
}
