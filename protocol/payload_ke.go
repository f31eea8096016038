package protocol

import "github.com/pkg/errors"

// KePayload carries the raw DH public value, RFC 2408 3.7
type KePayload struct {
	*PayloadHeader
	Data []byte
}

func (s *KePayload) Type() PayloadType { return PayloadTypeKE }

func (s *KePayload) Encode() []byte { return s.Data }

func (s *KePayload) Decode(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(ErrInvalidSyntax, "empty ke payload")
	}
	s.Data = append([]byte{}, b...)
	return nil
}

// NoncePayload, RFC 2408 3.13; 8 to 256 bytes
type NoncePayload struct {
	*PayloadHeader
	Data []byte
}

func (s *NoncePayload) Type() PayloadType { return PayloadTypeNonce }

func (s *NoncePayload) Encode() []byte { return s.Data }

func (s *NoncePayload) Decode(b []byte) error {
	if len(b) < 8 || len(b) > 256 {
		return errors.Wrapf(ErrInvalidSyntax, "nonce length %d", len(b))
	}
	s.Data = append([]byte{}, b...)
	return nil
}

// HashPayload, RFC 2408 3.11
type HashPayload struct {
	*PayloadHeader
	Data []byte
}

func (s *HashPayload) Type() PayloadType { return PayloadTypeHASH }

func (s *HashPayload) Encode() []byte { return s.Data }

func (s *HashPayload) Decode(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(ErrInvalidSyntax, "empty hash payload")
	}
	s.Data = append([]byte{}, b...)
	return nil
}

// SigPayload, RFC 2408 3.12
type SigPayload struct {
	*PayloadHeader
	Data []byte
}

func (s *SigPayload) Type() PayloadType { return PayloadTypeSIG }

func (s *SigPayload) Encode() []byte { return s.Data }

func (s *SigPayload) Decode(b []byte) error {
	if len(b) == 0 {
		return errors.Wrap(ErrInvalidSyntax, "empty sig payload")
	}
	s.Data = append([]byte{}, b...)
	return nil
}

// VendorIdPayload, RFC 2408 3.16
type VendorIdPayload struct {
	*PayloadHeader
	Data []byte
}

func (s *VendorIdPayload) Type() PayloadType { return PayloadTypeVID }

func (s *VendorIdPayload) Encode() []byte { return s.Data }

func (s *VendorIdPayload) Decode(b []byte) error {
	s.Data = append([]byte{}, b...)
	return nil
}
