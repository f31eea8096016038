package ike

import (
	"encoding/hex"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// decryptBody decrypts the message body, maintaining the IV chain of
// RFC 2409 Appendix B. The IV is the working NewIV when the demux
// already seeded it (Phase 2 messages), else the committed IV of the
// previous exchange; the next working IV becomes the last ciphertext
// block of this message. The raw packet bytes stay untouched: they are
// what duplicate detection compares against.
func decryptBody(sa *Sa, md *Message, body []byte, log *logrus.Logger) ([]byte, error) {
	p1 := sa.Parent()
	if !p1.tkm.SkeyidCalculated() {
		return nil, errors.New("no negotiated keying material")
	}
	suite := p1.tkm.Suite()
	if len(body)%suite.BlockLen != 0 {
		return nil, errors.Errorf("malformed message: %d is not a multiple of encryption blocksize", len(body))
	}
	if len(body) == 0 {
		return nil, errors.New("malformed message: empty encrypted body")
	}

	if !md.NewIVSet {
		if len(sa.IV) == 0 {
			// phase 2 exchange without a seeded IV
			sa.NewIV = p1.tkm.Phase2IV(p1.Phase1IV, md.Header.MsgId)
		} else {
			sa.NewIV = append([]byte{}, sa.IV...)
		}
	}
	if len(sa.NewIV) < suite.BlockLen {
		return nil, errors.New("iv shorter than cipher block")
	}
	sa.NewIV = sa.NewIV[:suite.BlockLen] // truncate

	nextIV := append([]byte{}, body[len(body)-suite.BlockLen:]...)

	if log.Level == logrus.DebugLevel {
		log.Debugf("decrypting %d bytes, iv\n%s", len(body), hex.Dump(sa.NewIV))
	}
	dec := append([]byte{}, body...)
	if err := suite.Decrypt(dec, p1.tkm.EncKey(), sa.NewIV); err != nil {
		return nil, err
	}
	sa.NewIV = nextIV
	md.Encrypted = true
	return dec, nil
}

// checkV1Hash verifies the HASH(1/2/3) protection a transition
// declares. body is the decrypted message body; the hash payload is its
// first payload, everything after it is the covered "rest". A mismatch
// drops the packet with no notification and no state change.
func checkV1Hash(sa *Sa, md *Message, body []byte, log *logrus.Logger) bool {
	hashType := md.Transition.HashType
	if hashType == protocol.V1_HASH_NONE {
		return true
	}
	hp, ok := md.Get(protocol.PayloadTypeHASH).(*protocol.HashPayload)
	if !ok || hp == nil {
		log.Warnf("%s: missing HASH payload", md.Transition.Name)
		return false
	}
	hlen := protocol.PAYLOAD_HEADER_LENGTH + len(hp.Data)
	if md.parsedLen < hlen || md.parsedLen > len(body) {
		return false
	}
	// padding is not covered by the hash
	rest := body[hlen:md.parsedLen]

	var niB, nrB []byte
	if sa.phase2 != nil {
		niB = sa.phase2.NonceI
		nrB = sa.phase2.NonceR
	}
	p1 := sa.Parent()
	if !p1.tkm.CheckV1Hash(hashType, md.Header.MsgId, niB, nrB, rest, hp.Data) {
		log.WithFields(sa.Fields()).Warnf("received hash does not match computed value in %s", md.Transition.Name)
		return false
	}
	return true
}

// encryptOutgoing serializes an outgoing message with encryption,
// advancing the working IV past the emitted ciphertext.
func encryptOutgoing(sa *Sa, out *OutgoingMessage, log *logrus.Logger) ([]byte, error) {
	p1 := sa.Parent()
	if !p1.tkm.SkeyidCalculated() {
		return nil, errors.New("cannot encrypt, no keying material")
	}
	suite := p1.tkm.Suite()
	payload := protocol.EncodePayloads(out.Payloads, log)

	if len(sa.NewIV) < suite.BlockLen {
		if sa.MsgId != 0 {
			sa.NewIV = p1.tkm.Phase2IV(p1.Phase1IV, out.Header.MsgId)
		} else if len(sa.IV) >= suite.BlockLen {
			sa.NewIV = append([]byte{}, sa.IV[:suite.BlockLen]...)
		} else {
			return nil, errors.New("no iv for outgoing message")
		}
	}
	sa.NewIV = sa.NewIV[:suite.BlockLen]

	ciphertext, err := suite.Encrypt(payload, p1.tkm.EncKey(), sa.NewIV)
	if err != nil {
		return nil, err
	}
	sa.NewIV = append([]byte{}, ciphertext[len(ciphertext)-suite.BlockLen:]...)

	out.Header.NextPayload = out.Payloads.FirstPayloadType()
	out.Header.Flags |= protocol.FlagEncryption
	out.Header.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(ciphertext))
	return append(out.Header.Encode(log), ciphertext...), nil
}

// encodeOutgoing serializes a plaintext outgoing message
func encodeOutgoing(out *OutgoingMessage, log *logrus.Logger) []byte {
	payload := protocol.EncodePayloads(out.Payloads, log)
	out.Header.NextPayload = out.Payloads.FirstPayloadType()
	out.Header.MsgLength = uint32(protocol.IKE_HEADER_LEN + len(payload))
	return append(out.Header.Encode(log), payload...)
}
