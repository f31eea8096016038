package crypto

import (
	"bytes"
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/msgboxio/ikev1/protocol"
)

func oakley(encr protocol.OakleyEncrId, keyBits uint32, hash protocol.OakleyHashId) *protocol.Transform {
	attrs := []*protocol.Attribute{
		{Type: uint16(protocol.OAKLEY_ENCRYPTION_ALGORITHM), Value: uint32(encr)},
		{Type: uint16(protocol.OAKLEY_HASH_ALGORITHM), Value: uint32(hash)},
		{Type: uint16(protocol.OAKLEY_AUTHENTICATION_METHOD), Value: uint32(protocol.OAKLEY_PRESHARED_KEY)},
		{Type: uint16(protocol.OAKLEY_GROUP_DESCRIPTION), Value: uint32(protocol.MODP_1024)},
		{Type: uint16(protocol.OAKLEY_LIFE_TYPE), Value: uint32(protocol.OAKLEY_LIFE_SECONDS)},
		{Type: uint16(protocol.OAKLEY_LIFE_DURATION), IsTlv: true, Bytes: []byte{0, 0, 0x0e, 0x10}, Value: 3600},
	}
	if keyBits > 0 {
		attrs = append(attrs, &protocol.Attribute{Type: uint16(protocol.OAKLEY_KEY_LENGTH), Value: keyBits})
	}
	return &protocol.Transform{Number: 1, TransformId: protocol.KEY_IKE, Attributes: attrs}
}

func TestNewCipherSuite(t *testing.T) {
	cs, err := NewCipherSuite(oakley(protocol.OAKLEY_AES_CBC, 256, protocol.OAKLEY_SHA1))
	if err != nil {
		t.Fatal(err)
	}
	if cs.BlockLen != 16 || cs.KeyLen != 32 {
		t.Errorf("block %d key %d", cs.BlockLen, cs.KeyLen)
	}
	if cs.Prf.Length != 20 {
		t.Errorf("prf length %d", cs.Prf.Length)
	}
	if cs.Life != time.Hour {
		t.Errorf("life %s", cs.Life)
	}
	if cs.DhGroup == nil || cs.DhGroup.Id != protocol.MODP_1024 {
		t.Errorf("group %+v", cs.DhGroup)
	}
}

func TestCipherSuiteVariants(t *testing.T) {
	for _, encr := range []protocol.OakleyEncrId{
		protocol.OAKLEY_3DES_CBC,
		protocol.OAKLEY_AES_CBC,
		protocol.OAKLEY_CAMELLIA_CBC,
	} {
		if _, err := NewCipherSuite(oakley(encr, 0, protocol.OAKLEY_SHA2_256)); err != nil {
			t.Errorf("%d: %s", encr, err)
		}
	}
	if _, err := NewCipherSuite(oakley(protocol.OAKLEY_RC5_CBC, 0, protocol.OAKLEY_SHA1)); err == nil {
		t.Error("rc5 accepted")
	}
	// incomplete transforms are rejected
	if _, err := NewCipherSuite(&protocol.Transform{TransformId: protocol.KEY_IKE}); err == nil {
		t.Error("empty transform accepted")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cs, err := NewCipherSuite(oakley(protocol.OAKLEY_AES_CBC, 128, protocol.OAKLEY_SHA1))
	if err != nil {
		t.Fatal(err)
	}
	key := bytes.Repeat([]byte{0x42}, cs.KeyLen)
	iv := bytes.Repeat([]byte{0x13}, cs.BlockLen)
	clear := []byte("attack at dawn")

	enc, err := cs.Encrypt(append([]byte{}, clear...), key, iv)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc)%cs.BlockLen != 0 {
		t.Errorf("ciphertext length %d", len(enc))
	}
	if err := cs.Decrypt(enc, key, iv); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc[:len(clear)], clear) {
		t.Error("round trip mismatch")
	}
	// decrypting a partial block is an error
	if err := cs.Decrypt(enc[:cs.BlockLen-1], key, iv); err == nil {
		t.Error("partial block accepted")
	}
}

func TestDhGroups(t *testing.T) {
	for _, id := range []protocol.DhGroupId{
		protocol.MODP_768, protocol.MODP_1024, protocol.MODP_1536, protocol.MODP_2048,
	} {
		grp, ok := Group(id)
		if !ok {
			t.Fatalf("group %d missing", id)
		}
		r1 := mathrand.New(mathrand.NewSource(1))
		r2 := mathrand.New(mathrand.NewSource(2))
		privA, pubA, err := grp.Generate(r1)
		if err != nil {
			t.Fatal(err)
		}
		privB, pubB, err := grp.Generate(r2)
		if err != nil {
			t.Fatal(err)
		}
		sharedA, err := grp.DiffieHellman(pubB, privA)
		if err != nil {
			t.Fatal(err)
		}
		sharedB, err := grp.DiffieHellman(pubA, privB)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(sharedA, sharedB) {
			t.Errorf("group %d: shared secrets differ", id)
		}
		if len(grp.PublicBytes(pubA)) != len(sharedA) {
			t.Errorf("group %d: public/shared length mismatch", id)
		}
	}
	if _, ok := Group(protocol.DhGroupId(99)); ok {
		t.Error("unknown group found")
	}
}
