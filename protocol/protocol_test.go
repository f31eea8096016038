package protocol

import (
	"bytes"
	"testing"

	"github.com/google/gopacket/bytediff"
	"github.com/sirupsen/logrus"
)

var testLog = logrus.New()

func init() {
	testLog.SetLevel(logrus.PanicLevel)
}

func TestIsakmpHeaderRoundTrip(t *testing.T) {
	h := &IsakmpHeader{
		SpiI:         Spi{1, 2, 3, 4, 5, 6, 7, 8},
		SpiR:         Spi{9, 10, 11, 12, 13, 14, 15, 16},
		NextPayload:  PayloadTypeSA,
		MajorVersion: ISAKMP_MAJOR_VERSION,
		MinorVersion: ISAKMP_MINOR_VERSION,
		ExchangeType: ISAKMP_XCHG_IDPROT,
		Flags:        FlagEncryption,
		MsgId:        0xaabbccdd,
		MsgLength:    100,
	}
	b := h.Encode(testLog)
	if len(b) != IKE_HEADER_LEN {
		t.Fatalf("encoded header is %d bytes", len(b))
	}
	got, err := DecodeIsakmpHeader(b, testLog)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Encode(testLog), b) {
		t.Errorf("round trip mismatch:\n%s", bytediff.BashOutput.String(bytediff.Diff(b, got.Encode(testLog))))
	}
	if got.MsgId != h.MsgId || got.ExchangeType != h.ExchangeType || !got.Flags.IsEncrypted() {
		t.Errorf("decoded header %+v", got)
	}
}

func TestIsakmpHeaderErrors(t *testing.T) {
	if _, err := DecodeIsakmpHeader(make([]byte, 10), testLog); err == nil {
		t.Error("short header accepted")
	}
	h := &IsakmpHeader{
		SpiI: make(Spi, 8), SpiR: make(Spi, 8),
		MajorVersion: 2, // IKEv2 packet hitting a v1 port
		ExchangeType: ISAKMP_XCHG_IDPROT,
		MsgLength:    IKE_HEADER_LEN,
	}
	if _, err := DecodeIsakmpHeader(h.Encode(testLog), testLog); err == nil {
		t.Error("wrong major version accepted")
	}
}

func oakleyTransform() *Transform {
	return &Transform{
		Number:      1,
		TransformId: KEY_IKE,
		Attributes: []*Attribute{
			{Type: uint16(OAKLEY_ENCRYPTION_ALGORITHM), Value: uint32(OAKLEY_AES_CBC)},
			{Type: uint16(OAKLEY_HASH_ALGORITHM), Value: uint32(OAKLEY_SHA1)},
			{Type: uint16(OAKLEY_AUTHENTICATION_METHOD), Value: uint32(OAKLEY_PRESHARED_KEY)},
			{Type: uint16(OAKLEY_GROUP_DESCRIPTION), Value: uint32(MODP_2048)},
			{Type: uint16(OAKLEY_LIFE_TYPE), Value: uint32(OAKLEY_LIFE_SECONDS)},
			{Type: uint16(OAKLEY_LIFE_DURATION), IsTlv: true, Bytes: []byte{0, 0, 0x70, 0x80}, Value: 28800},
		},
	}
}

func TestSaPayloadRoundTrip(t *testing.T) {
	sa := &SaPayload{
		PayloadHeader: &PayloadHeader{},
		Doi:           ISAKMP_DOI_IPSEC,
		Situation:     SIT_IDENTITY_ONLY,
		Proposals: []*Proposal{{
			Number:     1,
			ProtocolId: PROTO_ISAKMP,
			Transforms: []*Transform{oakleyTransform()},
		}},
	}
	b := sa.Encode()
	got := &SaPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(b); err != nil {
		t.Fatal(err)
	}
	if got.Doi != ISAKMP_DOI_IPSEC || got.Situation != SIT_IDENTITY_ONLY {
		t.Errorf("doi/situation: %v/%v", got.Doi, got.Situation)
	}
	if len(got.Proposals) != 1 || len(got.Proposals[0].Transforms) != 1 {
		t.Fatalf("proposals: %+v", got.Proposals)
	}
	tr := got.Proposals[0].Transforms[0]
	if len(tr.Attributes) != 6 {
		t.Fatalf("attributes: %+v", tr.Attributes)
	}
	if attr, ok := tr.GetAttr(uint16(OAKLEY_LIFE_DURATION)); !ok || attr.Value != 28800 {
		t.Errorf("life duration attribute: %+v", attr)
	}
	again := got.Encode()
	if !bytes.Equal(again, b) {
		t.Errorf("re-encode mismatch:\n%s", bytediff.BashOutput.String(bytediff.Diff(b, again)))
	}
}

func TestSaPayloadMultiProposal(t *testing.T) {
	sa := &SaPayload{
		PayloadHeader: &PayloadHeader{},
		Doi:           ISAKMP_DOI_IPSEC,
		Situation:     SIT_IDENTITY_ONLY,
		Proposals: []*Proposal{
			{Number: 1, ProtocolId: PROTO_IPSEC_ESP, Spi: []byte{1, 2, 3, 4},
				Transforms: []*Transform{{Number: 1, TransformId: uint8(ESP_AES)}}},
			{Number: 2, ProtocolId: PROTO_IPSEC_ESP, Spi: []byte{5, 6, 7, 8},
				Transforms: []*Transform{
					{Number: 1, TransformId: uint8(ESP_3DES)},
					{Number: 2, TransformId: uint8(ESP_AES)},
				}},
		},
	}
	got := &SaPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(sa.Encode()); err != nil {
		t.Fatal(err)
	}
	if len(got.Proposals) != 2 {
		t.Fatalf("got %d proposals", len(got.Proposals))
	}
	if len(got.Proposals[1].Transforms) != 2 {
		t.Errorf("second proposal has %d transforms", len(got.Proposals[1].Transforms))
	}
	if !bytes.Equal(got.Proposals[1].Spi, []byte{5, 6, 7, 8}) {
		t.Errorf("spi %x", got.Proposals[1].Spi)
	}
}

func TestNotifyPayloadRoundTrip(t *testing.T) {
	n := &NotifyPayload{
		PayloadHeader:    &PayloadHeader{},
		Doi:              ISAKMP_DOI_IPSEC,
		ProtocolId:       PROTO_ISAKMP,
		NotificationType: R_U_THERE,
		Spi:              bytes.Repeat([]byte{7}, 16),
		Data:             []byte{0, 0, 0, 9},
	}
	got := &NotifyPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(n.Encode()); err != nil {
		t.Fatal(err)
	}
	if got.NotificationType != R_U_THERE {
		t.Errorf("type %s", got.NotificationType)
	}
	if seq, ok := got.Seq(); !ok || seq != 9 {
		t.Errorf("seq %d %v", seq, ok)
	}
}

func TestDeletePayloadValidation(t *testing.T) {
	d := &DeletePayload{
		PayloadHeader: &PayloadHeader{},
		Doi:           ISAKMP_DOI_IPSEC,
		ProtocolId:    PROTO_IPSEC_ESP,
		Spis:          []Spi{{1, 2, 3, 4}},
	}
	got := &DeletePayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(d.Encode()); err != nil {
		t.Fatal(err)
	}
	if len(got.Spis) != 1 || !bytes.Equal(got.Spis[0], Spi{1, 2, 3, 4}) {
		t.Errorf("spis %v", got.Spis)
	}
	// an ISAKMP delete must carry the 16 byte cookie pair
	bad := &DeletePayload{
		PayloadHeader: &PayloadHeader{},
		ProtocolId:    PROTO_ISAKMP,
		Spis:          []Spi{{1, 2, 3, 4}},
	}
	if err := got.Decode(bad.Encode()); err == nil {
		t.Error("isakmp delete with 4 byte spi accepted")
	}
}

func TestFragmentPayloadValidation(t *testing.T) {
	f := &FragmentPayload{
		PayloadHeader: &PayloadHeader{},
		FragId:        3,
		Index:         2,
		Flags:         FragmentLastFlag,
		Data:          []byte("hello"),
	}
	got := &FragmentPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(f.Encode()); err != nil {
		t.Fatal(err)
	}
	if !got.Last() || got.Index != 2 || got.FragId != 3 {
		t.Errorf("fragment %+v", got)
	}
	for _, idx := range []uint8{0, 17} {
		bad := &FragmentPayload{PayloadHeader: &PayloadHeader{}, Index: idx}
		if err := got.Decode(bad.Encode()); err == nil {
			t.Errorf("fragment index %d accepted", idx)
		}
	}
}

func TestModeCfgPayloadRoundTrip(t *testing.T) {
	m := &ModeCfgPayload{
		PayloadHeader: &PayloadHeader{},
		CfgType:       ISAKMP_CFG_REPLY,
		Identifier:    5,
		Attributes: []*Attribute{
			{Type: uint16(XAUTH_USER_NAME), IsTlv: true, Bytes: []byte("jdoe")},
			{Type: uint16(XAUTH_STATUS), Value: 1},
		},
	}
	got := &ModeCfgPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(m.Encode()); err != nil {
		t.Fatal(err)
	}
	if got.CfgType != ISAKMP_CFG_REPLY || got.Identifier != 5 {
		t.Errorf("cfg %+v", got)
	}
	if attr, ok := got.GetAttr(XAUTH_USER_NAME); !ok || string(attr.Bytes) != "jdoe" {
		t.Errorf("user attr %+v", attr)
	}
	if attr, ok := got.GetAttr(XAUTH_STATUS); !ok || attr.Value != 1 {
		t.Errorf("status attr %+v", attr)
	}
}

func TestEncodePayloadsChainsNextPayload(t *testing.T) {
	pls := MakePayloads()
	pls.Add(&KePayload{PayloadHeader: &PayloadHeader{}, Data: bytes.Repeat([]byte{1}, 16)})
	pls.Add(&NoncePayload{PayloadHeader: &PayloadHeader{}, Data: bytes.Repeat([]byte{2}, 16)})
	b := EncodePayloads(pls, testLog)
	// first payload header points at the nonce
	if PayloadType(b[0]) != PayloadTypeNonce {
		t.Errorf("first next-payload = %d", b[0])
	}
	// second payload terminates the chain
	second := b[PAYLOAD_HEADER_LENGTH+16:]
	if PayloadType(second[0]) != PayloadTypeNone {
		t.Errorf("second next-payload = %d", second[0])
	}
}

func TestIdPayloadShapes(t *testing.T) {
	p1 := &IdPayload{PayloadHeader: &PayloadHeader{}, IdType: ID_FQDN, Data: []byte("gw.example.org")}
	got := &IdPayload{PayloadHeader: &PayloadHeader{}}
	if err := got.Decode(p1.Encode()); err != nil {
		t.Fatal(err)
	}
	if got.IdType != ID_FQDN || string(got.Data) != "gw.example.org" {
		t.Errorf("phase 1 id %+v", got)
	}

	p2 := &IpsecIdPayload{
		PayloadHeader: &PayloadHeader{},
		IdType:        ID_IPV4_ADDR_SUBNET,
		Protocol:      17,
		Port:          500,
		Data:          []byte{192, 0, 2, 0, 255, 255, 255, 0},
	}
	got2 := &IpsecIdPayload{PayloadHeader: &PayloadHeader{}}
	if err := got2.Decode(p2.Encode()); err != nil {
		t.Fatal(err)
	}
	if got2.Port != 500 || got2.Protocol != 17 {
		t.Errorf("phase 2 id %+v", got2)
	}
	// length mismatch is rejected
	bad := &IpsecIdPayload{PayloadHeader: &PayloadHeader{}, IdType: ID_IPV4_ADDR, Data: []byte{1, 2}}
	if err := got2.Decode(bad.Encode()); err == nil {
		t.Error("bad ipv4 id accepted")
	}
}

func TestBaseAuth(t *testing.T) {
	cases := map[AuthMethod]AuthMethod{
		OAKLEY_PRESHARED_KEY: OAKLEY_PRESHARED_KEY,
		XAUTHInitPreShared:   OAKLEY_PRESHARED_KEY,
		XAUTHRespRSA:         OAKLEY_RSA_SIG,
		XAUTHInitDSS:         OAKLEY_DSS_SIG,
		OAKLEY_RSA_ENC:       OAKLEY_RSA_ENC,
		XAUTHRespRSARev:      OAKLEY_RSA_REVISED_MODE,
	}
	for in, want := range cases {
		if got := in.BaseAuth(); got != want {
			t.Errorf("BaseAuth(%d) = %d, want %d", in, got, want)
		}
	}
	if !XAUTHInitPreShared.IsXAuth() || OAKLEY_PRESHARED_KEY.IsXAuth() {
		t.Error("IsXAuth misclassifies")
	}
}
