package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// NotifyPayload, RFC 2408 3.14. The v1 shape carries a DOI up front.
type NotifyPayload struct {
	*PayloadHeader
	Doi              DoiType
	ProtocolId       ProtocolId
	NotificationType NotificationType
	Spi              []byte
	Data             []byte
}

func (s *NotifyPayload) Type() PayloadType { return PayloadTypeN }

func (s *NotifyPayload) Encode() (b []byte) {
	b = make([]byte, 8)
	packets.WriteB32(b, 0, uint32(s.Doi))
	packets.WriteB8(b, 4, uint8(s.ProtocolId))
	packets.WriteB8(b, 5, uint8(len(s.Spi)))
	packets.WriteB16(b, 6, uint16(s.NotificationType))
	b = append(b, s.Spi...)
	b = append(b, s.Data...)
	return
}

func (s *NotifyPayload) Decode(b []byte) error {
	if len(b) < 8 {
		return errors.Wrapf(ErrInvalidSyntax, "notify too short: %d", len(b))
	}
	doi, _ := packets.ReadB32(b, 0)
	s.Doi = DoiType(doi)
	pid, _ := packets.ReadB8(b, 4)
	s.ProtocolId = ProtocolId(pid)
	spiLen, _ := packets.ReadB8(b, 5)
	nt, _ := packets.ReadB16(b, 6)
	s.NotificationType = NotificationType(nt)
	if len(b) < 8+int(spiLen) {
		return errors.Wrap(ErrInvalidSyntax, "notify spi truncated")
	}
	s.Spi = append([]byte{}, b[8:8+spiLen]...)
	s.Data = append([]byte{}, b[8+spiLen:]...)
	return nil
}

// Seq extracts the DPD sequence number carried in the notification data
func (s *NotifyPayload) Seq() (uint32, bool) {
	if len(s.Data) < 4 {
		return 0, false
	}
	seq, _ := packets.ReadB32(s.Data, 0)
	return seq, true
}
