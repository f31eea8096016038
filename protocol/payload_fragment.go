package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

const FragmentLastFlag uint8 = 1

// FragmentPayload is the proprietary IKE fragmentation payload used by
// racoon and Cisco. Index runs 1..16; the last fragment sets the flag.
type FragmentPayload struct {
	*PayloadHeader
	FragId uint16
	Index  uint8
	Flags  uint8
	Data   []byte
}

func (s *FragmentPayload) Type() PayloadType { return PayloadTypeFragment }

func (s *FragmentPayload) Last() bool {
	return s.Flags&FragmentLastFlag != 0
}

func (s *FragmentPayload) Encode() (b []byte) {
	b = make([]byte, 4)
	packets.WriteB16(b, 0, s.FragId)
	packets.WriteB8(b, 2, s.Index)
	packets.WriteB8(b, 3, s.Flags)
	return append(b, s.Data...)
}

func (s *FragmentPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return errors.Wrapf(ErrInvalidSyntax, "fragment too short: %d", len(b))
	}
	s.FragId, _ = packets.ReadB16(b, 0)
	s.Index, _ = packets.ReadB8(b, 2)
	s.Flags, _ = packets.ReadB8(b, 3)
	s.Data = append([]byte{}, b[4:]...)
	if s.Index == 0 || s.Index > 16 {
		return errors.Wrapf(ErrInvalidSyntax, "fragment index %d", s.Index)
	}
	return nil
}
