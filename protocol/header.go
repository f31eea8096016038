package protocol

import (
	"bytes"
	"encoding/hex"

	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// IsakmpHeader is the fixed 28 byte header, RFC 2408 3.1
type IsakmpHeader struct {
	SpiI, SpiR   Spi
	NextPayload  PayloadType
	MajorVersion uint8
	MinorVersion uint8
	ExchangeType IkeExchangeType
	Flags        IkeFlags
	MsgId        uint32
	MsgLength    uint32
}

func DecodeIsakmpHeader(b []byte, log *logrus.Logger) (*IsakmpHeader, error) {
	if len(b) < IKE_HEADER_LEN {
		return nil, errors.Wrapf(ErrInvalidSyntax, "packet too short: %d", len(b))
	}
	h := &IsakmpHeader{}
	h.SpiI = append([]byte{}, b[:8]...)
	h.SpiR = append([]byte{}, b[8:16]...)
	pt, _ := packets.ReadB8(b, 16)
	h.NextPayload = PayloadType(pt)
	ver, _ := packets.ReadB8(b, 17)
	h.MajorVersion = ver >> 4
	h.MinorVersion = ver & 0x0f
	et, _ := packets.ReadB8(b, 18)
	h.ExchangeType = IkeExchangeType(et)
	flags, _ := packets.ReadB8(b, 19)
	h.Flags = IkeFlags(flags)
	h.MsgId, _ = packets.ReadB32(b, 20)
	h.MsgLength, _ = packets.ReadB32(b, 24)
	if h.MajorVersion != ISAKMP_MAJOR_VERSION {
		return nil, errors.Wrapf(IkeError(INVALID_MAJOR_VERSION),
			"version %d.%d", h.MajorVersion, h.MinorVersion)
	}
	if h.MsgLength < IKE_HEADER_LEN {
		return nil, errors.Wrapf(ErrInvalidSyntax, "bogus length %d", h.MsgLength)
	}
	if log.Level == logrus.DebugLevel {
		log.Debugf("isakmp header: %+v from\n%s", *h, hex.Dump(b[:IKE_HEADER_LEN]))
	}
	return h, nil
}

func (h *IsakmpHeader) Encode(log *logrus.Logger) (b []byte) {
	b = make([]byte, IKE_HEADER_LEN)
	copy(b, h.SpiI[:])
	copy(b[8:], h.SpiR[:])
	packets.WriteB8(b, 16, uint8(h.NextPayload))
	packets.WriteB8(b, 17, h.MajorVersion<<4|h.MinorVersion)
	packets.WriteB8(b, 18, uint8(h.ExchangeType))
	packets.WriteB8(b, 19, uint8(h.Flags))
	packets.WriteB32(b, 20, h.MsgId)
	packets.WriteB32(b, 24, h.MsgLength)
	if log.Level == logrus.DebugLevel {
		log.Debugf("isakmp header: %+v to\n%s", *h, hex.Dump(b))
	}
	return
}

func (h *IsakmpHeader) IsZeroSpiI() bool {
	return bytes.Equal(h.SpiI, make([]byte, COOKIE_LEN)) || len(h.SpiI) == 0
}

func (h *IsakmpHeader) IsZeroSpiR() bool {
	return bytes.Equal(h.SpiR, make([]byte, COOKIE_LEN)) || len(h.SpiR) == 0
}
