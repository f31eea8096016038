package ike

import (
	"bytes"
	mathrand "math/rand"
	"testing"

	"github.com/msgboxio/ikev1/crypto"
	"github.com/msgboxio/ikev1/protocol"
)

func testSuite(t *testing.T) *crypto.CipherSuite {
	t.Helper()
	suite, err := crypto.NewCipherSuite(&protocol.Transform{
		Number:      1,
		TransformId: protocol.KEY_IKE,
		Attributes: []*protocol.Attribute{
			{Type: uint16(protocol.OAKLEY_ENCRYPTION_ALGORITHM), Value: uint32(protocol.OAKLEY_AES_CBC)},
			{Type: uint16(protocol.OAKLEY_KEY_LENGTH), Value: 128},
			{Type: uint16(protocol.OAKLEY_HASH_ALGORITHM), Value: uint32(protocol.OAKLEY_SHA1)},
			{Type: uint16(protocol.OAKLEY_AUTHENTICATION_METHOD), Value: uint32(protocol.OAKLEY_PRESHARED_KEY)},
			{Type: uint16(protocol.OAKLEY_GROUP_DESCRIPTION), Value: uint32(protocol.MODP_1024)},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return suite
}

func pairedTkms(t *testing.T) (ti, tr *Tkm) {
	t.Helper()
	suite := testSuite(t)
	ti = NewTkm(suite, mathrand.New(mathrand.NewSource(11)))
	tr = NewTkm(suite, mathrand.New(mathrand.NewSource(12)))
	for _, tkm := range []*Tkm{ti, tr} {
		if err := tkm.DhGenerate(); err != nil {
			t.Fatal(err)
		}
	}
	ti.GxI, ti.GxR = ti.DhPublic, tr.DhPublic
	tr.GxI, tr.GxR = ti.DhPublic, tr.DhPublic
	if err := ti.DhCompute(tr.DhPublic); err != nil {
		t.Fatal(err)
	}
	if err := tr.DhCompute(ti.DhPublic); err != nil {
		t.Fatal(err)
	}
	ni, _ := ti.Nonce()
	nr, _ := tr.Nonce()
	ti.NiB, ti.NrB = ni, nr
	tr.NiB, tr.NrB = ni, nr
	ti.SaiB = []byte("sa-body")
	tr.SaiB = []byte("sa-body")
	return
}

func TestDhAgreement(t *testing.T) {
	ti, tr := pairedTkms(t)
	if !bytes.Equal(ti.dhShared, tr.dhShared) {
		t.Fatal("DH shared secrets differ")
	}
}

func TestSkeyidAndDerivedKeys(t *testing.T) {
	spiI := protocol.Spi{1, 1, 1, 1, 1, 1, 1, 1}
	spiR := protocol.Spi{2, 2, 2, 2, 2, 2, 2, 2}
	ti, tr := pairedTkms(t)
	psk := []byte("swordfish")
	for _, tkm := range []*Tkm{ti, tr} {
		if err := tkm.Skeyid(protocol.OAKLEY_PRESHARED_KEY, psk); err != nil {
			t.Fatal(err)
		}
		if err := tkm.DeriveKeys(spiI, spiR); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(ti.skeyid, tr.skeyid) {
		t.Error("skeyid differs across peers")
	}
	if !bytes.Equal(ti.EncKey(), tr.EncKey()) {
		t.Error("encryption keys differ across peers")
	}
	if len(ti.EncKey()) != ti.Suite().KeyLen {
		t.Errorf("enc key is %d bytes, want %d", len(ti.EncKey()), ti.Suite().KeyLen)
	}
	if bytes.Equal(ti.SkeyidA, ti.SkeyidE) || bytes.Equal(ti.SkeyidA, ti.SkeyidD) {
		t.Error("derived keys are not distinct")
	}

	// main mode hashes agree and distinguish the roles
	id := []byte{2, 0, 0, 0, 'x'}
	hi := ti.MainModeHash(true, ti.GxI, ti.GxR, spiI, spiR, id)
	hi2 := tr.MainModeHash(true, tr.GxI, tr.GxR, spiI, spiR, id)
	hr := ti.MainModeHash(false, ti.GxI, ti.GxR, spiI, spiR, id)
	if !bytes.Equal(hi, hi2) {
		t.Error("HASH_I differs across peers")
	}
	if bytes.Equal(hi, hr) {
		t.Error("HASH_I equals HASH_R")
	}
}

func TestSkeyidSignatureVariant(t *testing.T) {
	ti, tr := pairedTkms(t)
	for _, tkm := range []*Tkm{ti, tr} {
		if err := tkm.Skeyid(protocol.OAKLEY_RSA_SIG, nil); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(ti.skeyid, tr.skeyid) {
		t.Error("signature skeyid differs across peers")
	}
	if err := ti.Skeyid(protocol.OAKLEY_RSA_ENC, nil); err == nil {
		t.Error("public key encryption skeyid should be unsupported")
	}
}

func TestV1HashVariants(t *testing.T) {
	ti, _ := pairedTkms(t)
	if err := ti.Skeyid(protocol.OAKLEY_PRESHARED_KEY, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := ti.DeriveKeys(make(protocol.Spi, 8), make(protocol.Spi, 8)); err != nil {
		t.Fatal(err)
	}
	rest := []byte("payloads")
	h1 := ti.V1Hash(protocol.V1_HASH_1, 42, ti.NiB, ti.NrB, rest)
	h2 := ti.V1Hash(protocol.V1_HASH_2, 42, ti.NiB, ti.NrB, rest)
	h3 := ti.V1Hash(protocol.V1_HASH_3, 42, ti.NiB, ti.NrB, rest)
	if bytes.Equal(h1, h2) || bytes.Equal(h2, h3) || bytes.Equal(h1, h3) {
		t.Error("hash variants collide")
	}
	if !ti.CheckV1Hash(protocol.V1_HASH_1, 42, ti.NiB, ti.NrB, rest, h1) {
		t.Error("hash verification failed for the correct value")
	}
	h1[0] ^= 1
	if ti.CheckV1Hash(protocol.V1_HASH_1, 42, ti.NiB, ti.NrB, rest, h1) {
		t.Error("hash verification passed for a corrupted value")
	}
	if ti.V1Hash(protocol.V1_HASH_NONE, 42, nil, nil, nil) != nil {
		t.Error("V1_HASH_NONE should produce no hash")
	}
}

func TestPhaseIVs(t *testing.T) {
	ti, _ := pairedTkms(t)
	iv := ti.Phase1IV(ti.GxI, ti.GxR)
	if len(iv) != ti.Suite().BlockLen {
		t.Errorf("phase 1 iv is %d bytes, want %d", len(iv), ti.Suite().BlockLen)
	}
	iv2 := ti.Phase2IV(iv, 0xaabbccdd)
	iv3 := ti.Phase2IV(iv, 0xaabbccde)
	if len(iv2) != ti.Suite().BlockLen {
		t.Errorf("phase 2 iv is %d bytes", len(iv2))
	}
	if bytes.Equal(iv2, iv3) {
		t.Error("phase 2 ivs for distinct msgids collide")
	}
}

func TestIpsecKeyMaterial(t *testing.T) {
	ti, tr := pairedTkms(t)
	for _, tkm := range []*Tkm{ti, tr} {
		if err := tkm.Skeyid(protocol.OAKLEY_PRESHARED_KEY, []byte("k")); err != nil {
			t.Fatal(err)
		}
		if err := tkm.DeriveKeys(make(protocol.Spi, 8), make(protocol.Spi, 8)); err != nil {
			t.Fatal(err)
		}
	}
	ki := ti.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, 0x1234, []byte("ni"), []byte("nr"), 36)
	kr := tr.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, 0x1234, []byte("ni"), []byte("nr"), 36)
	if !bytes.Equal(ki, kr) {
		t.Error("keymat differs across peers")
	}
	if len(ki) != 36 {
		t.Errorf("keymat is %d bytes, want 36", len(ki))
	}
	other := ti.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, 0x1235, []byte("ni"), []byte("nr"), 36)
	if bytes.Equal(ki, other) {
		t.Error("keymat for distinct spis collide")
	}
}
