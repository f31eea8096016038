package ike

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/msgboxio/ikev1/crypto"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
)

// Tkm owns the keying material of one Phase 1 SA: the DH exchange, the
// SKEYID family, and the prescribed hashes built from them. RFC 2409 §5
// and Appendix B.
type Tkm struct {
	suite *crypto.CipherSuite
	rand  io.Reader

	dhPrivate *big.Int
	DhPublic  []byte
	dhShared  []byte

	// both public values, by role, for hashes and IV derivation
	GxI, GxR []byte

	NiB, NrB []byte

	// the initiator's SA payload body, needed by the main mode hash
	SaiB []byte

	skeyid  []byte
	SkeyidD []byte
	SkeyidA []byte
	SkeyidE []byte
	encKey  []byte
}

func NewTkm(suite *crypto.CipherSuite, randSource io.Reader) *Tkm {
	if randSource == nil {
		randSource = rand.Reader
	}
	return &Tkm{suite: suite, rand: randSource}
}

func (t *Tkm) Suite() *crypto.CipherSuite { return t.suite }

// Nonce produces a fresh nonce of conventional size
func (t *Tkm) Nonce() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(t.rand, b); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	return b, nil
}

// DhGenerate computes our keypair; heavyweight, run on a helper
func (t *Tkm) DhGenerate() error {
	private, public, err := t.suite.DhGroup.Generate(t.rand)
	if err != nil {
		return errors.Wrap(err, "dh generate")
	}
	t.dhPrivate = private
	t.DhPublic = t.suite.DhGroup.PublicBytes(public)
	return nil
}

// DhCompute derives the shared secret from the peer's KE payload;
// heavyweight, run on a helper
func (t *Tkm) DhCompute(peerPublic []byte) error {
	if t.dhPrivate == nil {
		return errors.New("no dh private key")
	}
	shared, err := t.suite.DhGroup.DiffieHellman(new(big.Int).SetBytes(peerPublic), t.dhPrivate)
	if err != nil {
		return err
	}
	t.dhShared = shared
	return nil
}

// Skeyid computes SKEYID for the negotiated auth method, RFC 2409 §5:
//
//	signatures:    SKEYID = prf(Ni_b | Nr_b, g^xy)
//	preshared key: SKEYID = prf(pre-shared-key, Ni_b | Nr_b)
func (t *Tkm) Skeyid(auth protocol.AuthMethod, psk []byte) error {
	prf := t.suite.Prf
	switch auth.BaseAuth() {
	case protocol.OAKLEY_PRESHARED_KEY:
		if len(psk) == 0 {
			return errors.New("no preshared key configured")
		}
		t.skeyid = prf.Apply(psk, append(append([]byte{}, t.NiB...), t.NrB...))
	case protocol.OAKLEY_RSA_SIG, protocol.OAKLEY_DSS_SIG:
		t.skeyid = prf.Apply(append(append([]byte{}, t.NiB...), t.NrB...), t.dhShared)
	default:
		return errors.Errorf("cannot compute skeyid for auth method %s", auth)
	}
	return nil
}

// DeriveKeys fills in the SKEYID family and the encryption key:
//
//	SKEYID_d = prf(SKEYID, g^xy | CKY-I | CKY-R | 0)
//	SKEYID_a = prf(SKEYID, SKEYID_d | g^xy | CKY-I | CKY-R | 1)
//	SKEYID_e = prf(SKEYID, SKEYID_a | g^xy | CKY-I | CKY-R | 2)
//
// If SKEYID_e is too short for the cipher, it is expanded per
// Appendix B: K = K1 | K2 | ... where K1 = prf(SKEYID_e, 0).
func (t *Tkm) DeriveKeys(spiI, spiR protocol.Spi) error {
	if t.skeyid == nil {
		return errors.New("skeyid not computed")
	}
	prf := t.suite.Prf
	cky := append(append([]byte{}, spiI...), spiR...)

	seed := append(append([]byte{}, t.dhShared...), cky...)
	t.SkeyidD = prf.Apply(t.skeyid, append(seed, 0))

	seed = append(append(append([]byte{}, t.SkeyidD...), t.dhShared...), cky...)
	t.SkeyidA = prf.Apply(t.skeyid, append(seed, 1))

	seed = append(append(append([]byte{}, t.SkeyidA...), t.dhShared...), cky...)
	t.SkeyidE = prf.Apply(t.skeyid, append(seed, 2))

	if len(t.SkeyidE) >= t.suite.KeyLen {
		t.encKey = t.SkeyidE[:t.suite.KeyLen]
	} else {
		var expanded, k []byte
		k = prf.Apply(t.SkeyidE, []byte{0})
		for len(expanded) < t.suite.KeyLen {
			expanded = append(expanded, k...)
			k = prf.Apply(t.SkeyidE, k)
		}
		t.encKey = expanded[:t.suite.KeyLen]
	}
	return nil
}

func (t *Tkm) EncKey() []byte { return t.encKey }

// Phase1IV is hash(g^xi | g^xr) truncated to a cipher block
func (t *Tkm) Phase1IV(gxI, gxR []byte) []byte {
	iv := t.suite.Prf.Hash(gxI, gxR)
	return iv[:t.suite.BlockLen]
}

// Phase2IV seeds the IV of a Phase 2 / 1.5 exchange from the last
// Phase 1 block and the message id
func (t *Tkm) Phase2IV(phase1IV []byte, msgid uint32) []byte {
	mb := make([]byte, 4)
	binary.BigEndian.PutUint32(mb, msgid)
	iv := t.suite.Prf.Hash(phase1IV, mb)
	return iv[:t.suite.BlockLen]
}

// MainModeHash computes HASH_I or HASH_R:
//
//	HASH_I = prf(SKEYID, g^xi | g^xr | CKY-I | CKY-R | SAi_b | IDii_b)
//	HASH_R = prf(SKEYID, g^xr | g^xi | CKY-R | CKY-I | SAi_b | IDir_b)
func (t *Tkm) MainModeHash(forInitiator bool, gxI, gxR []byte, spiI, spiR protocol.Spi, idB []byte) []byte {
	var data []byte
	if forInitiator {
		data = append(data, gxI...)
		data = append(data, gxR...)
		data = append(data, spiI...)
		data = append(data, spiR...)
	} else {
		data = append(data, gxR...)
		data = append(data, gxI...)
		data = append(data, spiR...)
		data = append(data, spiI...)
	}
	data = append(data, t.SaiB...)
	data = append(data, idB...)
	return t.suite.Prf.Apply(t.skeyid, data)
}

// V1Hash computes the prescribed integrity hash over an exchange body:
//
//	HASH(1) = prf(SKEYID_a, M-ID | rest)
//	HASH(2) = prf(SKEYID_a, M-ID | Ni_b | rest)
//	HASH(3) = prf(SKEYID_a, 0 | M-ID | Ni_b | Nr_b)
//
// rest is the message body after the HASH payload.
func (t *Tkm) V1Hash(hashType protocol.V1HashType, msgid uint32, niB, nrB, rest []byte) []byte {
	mb := make([]byte, 4)
	binary.BigEndian.PutUint32(mb, msgid)
	var data []byte
	switch hashType {
	case protocol.V1_HASH_1:
		data = append(mb, rest...)
	case protocol.V1_HASH_2:
		data = append(mb, niB...)
		data = append(data, rest...)
	case protocol.V1_HASH_3:
		data = append([]byte{0}, mb...)
		data = append(data, niB...)
		data = append(data, nrB...)
	default:
		return nil
	}
	return t.suite.Prf.Apply(t.SkeyidA, data)
}

// CheckV1Hash compares in constant time
func (t *Tkm) CheckV1Hash(hashType protocol.V1HashType, msgid uint32, niB, nrB, rest, received []byte) bool {
	expected := t.V1Hash(hashType, msgid, niB, nrB, rest)
	return expected != nil && hmac.Equal(expected, received)
}

// SkeyidCalculated reports whether encrypted traffic can be handled
func (t *Tkm) SkeyidCalculated() bool {
	return t != nil && t.encKey != nil
}

// IpsecKeyMaterial derives Phase 2 KEYMAT, RFC 2409 5.5:
//
//	KEYMAT = prf(SKEYID_d, protocol | SPI | Ni_b | Nr_b)
//
// expanded as needed by iterating K = prf(SKEYID_d, K | ...).
func (t *Tkm) IpsecKeyMaterial(proto protocol.ProtocolId, spi uint32, niB, nrB []byte, length int) []byte {
	prf := t.suite.Prf
	spiB := make([]byte, 4)
	binary.BigEndian.PutUint32(spiB, spi)
	seed := append([]byte{uint8(proto)}, spiB...)
	seed = append(seed, niB...)
	seed = append(seed, nrB...)

	var keymat, k []byte
	k = prf.Apply(t.SkeyidD, seed)
	for {
		keymat = append(keymat, k...)
		if len(keymat) >= length {
			return keymat[:length]
		}
		k = prf.Apply(t.SkeyidD, append(append([]byte{}, k...), seed...))
	}
}
