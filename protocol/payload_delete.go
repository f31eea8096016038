package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// DeletePayload, RFC 2408 3.15
type DeletePayload struct {
	*PayloadHeader
	Doi        DoiType
	ProtocolId ProtocolId
	Spis       []Spi
}

func (s *DeletePayload) Type() PayloadType { return PayloadTypeD }

func (s *DeletePayload) Encode() (b []byte) {
	spiSize := 0
	if len(s.Spis) > 0 {
		spiSize = len(s.Spis[0])
	}
	b = make([]byte, 8)
	packets.WriteB32(b, 0, uint32(s.Doi))
	packets.WriteB8(b, 4, uint8(s.ProtocolId))
	packets.WriteB8(b, 5, uint8(spiSize))
	packets.WriteB16(b, 6, uint16(len(s.Spis)))
	for _, spi := range s.Spis {
		b = append(b, spi...)
	}
	return
}

func (s *DeletePayload) Decode(b []byte) error {
	if len(b) < 8 {
		return errors.Wrapf(ErrInvalidSyntax, "delete too short: %d", len(b))
	}
	doi, _ := packets.ReadB32(b, 0)
	s.Doi = DoiType(doi)
	pid, _ := packets.ReadB8(b, 4)
	s.ProtocolId = ProtocolId(pid)
	spiSize, _ := packets.ReadB8(b, 5)
	numSpis, _ := packets.ReadB16(b, 6)
	b = b[8:]
	if len(b) < int(spiSize)*int(numSpis) {
		return errors.Wrap(ErrInvalidSyntax, "delete spis truncated")
	}
	// ISAKMP deletes use the 16 byte cookie pair as spi
	if s.ProtocolId == PROTO_ISAKMP && spiSize != 2*COOKIE_LEN {
		return errors.Wrapf(ErrInvalidSyntax, "isakmp delete with spi size %d", spiSize)
	}
	if s.ProtocolId != PROTO_ISAKMP && spiSize != 4 {
		return errors.Wrapf(ErrInvalidSyntax, "ipsec delete with spi size %d", spiSize)
	}
	for i := 0; i < int(numSpis); i++ {
		s.Spis = append(s.Spis, append(Spi{}, b[:spiSize]...))
		b = b[spiSize:]
	}
	return nil
}
