package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// CertPayload, RFC 2408 3.9
type CertPayload struct {
	*PayloadHeader
	Encoding CertEncoding
	Data     []byte
}

func (s *CertPayload) Type() PayloadType { return PayloadTypeCERT }

func (s *CertPayload) Encode() (b []byte) {
	b = []byte{uint8(s.Encoding)}
	return append(b, s.Data...)
}

func (s *CertPayload) Decode(b []byte) error {
	if len(b) < 1 {
		return errors.Wrap(ErrInvalidSyntax, "empty cert payload")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.Data = append([]byte{}, b[1:]...)
	return nil
}

// CertReqPayload, RFC 2408 3.10
type CertReqPayload struct {
	*PayloadHeader
	Encoding  CertEncoding
	Authority []byte // DER DN of an acceptable CA, may be empty
}

func (s *CertReqPayload) Type() PayloadType { return PayloadTypeCR }

func (s *CertReqPayload) Encode() (b []byte) {
	b = []byte{uint8(s.Encoding)}
	return append(b, s.Authority...)
}

func (s *CertReqPayload) Decode(b []byte) error {
	if len(b) < 1 {
		return errors.Wrap(ErrInvalidSyntax, "empty cr payload")
	}
	enc, _ := packets.ReadB8(b, 0)
	s.Encoding = CertEncoding(enc)
	s.Authority = append([]byte{}, b[1:]...)
	return nil
}
