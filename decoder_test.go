package ike

import (
	"testing"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func quickTrans(t *testing.T) *state.Transition {
	tr, ok := state.Lookup(state.QUICK_R0, protocol.AUTH_NONE)
	if !ok {
		t.Fatal("no QUICK_R0 transition")
	}
	return tr
}

func hashPl() protocol.Payload {
	return &protocol.HashPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: make([]byte, 20)}
}
func saPl() protocol.Payload {
	return &protocol.SaPayload{PayloadHeader: &protocol.PayloadHeader{}, Doi: protocol.ISAKMP_DOI_IPSEC}
}
func noncePl() protocol.Payload {
	return &protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: make([]byte, 16)}
}
func idPl() protocol.Payload {
	return &protocol.IpsecIdPayload{PayloadHeader: &protocol.PayloadHeader{},
		IdType: protocol.ID_IPV4_ADDR, Data: []byte{192, 0, 2, 1}}
}

func quickMd(first protocol.PayloadType, pls ...protocol.Payload) *Message {
	md := &Message{
		Header:   &protocol.IsakmpHeader{NextPayload: first},
		Payloads: protocol.MakePayloads(),
	}
	for _, pl := range pls {
		md.Payloads.Add(pl)
	}
	return md
}

func TestQuickModeOrderingRules(t *testing.T) {
	trans := quickTrans(t)

	// well formed: HASH, SA, Nonce, IDci, IDcr
	md := quickMd(protocol.PayloadTypeHASH, hashPl(), saPl(), noncePl(), idPl(), idPl())
	md.Transition = trans
	if err := checkOrdering(md, trans); err != nil {
		t.Errorf("well formed quick message rejected: %s", err)
	}

	// does not start with HASH
	md = quickMd(protocol.PayloadTypeSA, saPl(), hashPl(), noncePl())
	if err := checkOrdering(md, trans); err == nil {
		t.Error("quick message without leading HASH accepted")
	}

	// SA not immediately after HASH
	md = quickMd(protocol.PayloadTypeHASH, hashPl(), noncePl(), saPl())
	if err := checkOrdering(md, trans); err == nil {
		t.Error("SA payload in wrong position accepted")
	}

	// a single ID payload
	md = quickMd(protocol.PayloadTypeHASH, hashPl(), saPl(), noncePl(), idPl())
	if err := checkOrdering(md, trans); err == nil {
		t.Error("single ID payload accepted")
	}

	// IDs not adjacent
	md = quickMd(protocol.PayloadTypeHASH, hashPl(), saPl(), idPl(), noncePl(), idPl())
	if err := checkOrdering(md, trans); err == nil {
		t.Error("non-adjacent ID payloads accepted")
	}
}

func TestPhase1OrderingRule(t *testing.T) {
	trans, ok := state.Lookup(state.MAIN_R0, protocol.AUTH_NONE)
	if !ok {
		t.Fatal("no MAIN_R0 transition")
	}
	// SA present but the message starts with something else
	md := quickMd(protocol.PayloadTypeVID,
		&protocol.VendorIdPayload{PayloadHeader: &protocol.PayloadHeader{}}, saPl())
	if err := checkOrdering(md, trans); err == nil {
		t.Error("phase 1 message not starting with SA accepted")
	}
	md = quickMd(protocol.PayloadTypeSA, saPl())
	if err := checkOrdering(md, trans); err != nil {
		t.Errorf("well formed phase 1 message rejected: %s", err)
	}
}

func TestParsePayloadsRequiredMask(t *testing.T) {
	log := quietLog()
	trans, _ := state.Lookup(state.MAIN_R0, protocol.AUTH_NONE)

	// a VID alone misses the required SA payload
	pls := protocol.MakePayloads()
	pls.Add(&protocol.VendorIdPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: []byte("v")})
	body := protocol.EncodePayloads(pls, log)
	md := &Message{Header: &protocol.IsakmpHeader{NextPayload: protocol.PayloadTypeVID}}
	if err := parsePayloads(md, body, trans, nil, log); err == nil {
		t.Error("message missing required payloads accepted")
	} else if noteOf(err) != protocol.PAYLOAD_MALFORMED {
		t.Errorf("note = %s, want PAYLOAD_MALFORMED", noteOf(err))
	}

	// an unexpected payload type for the state
	pls = protocol.MakePayloads()
	pls.Add(saPl())
	pls.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: []byte("ke")})
	body = protocol.EncodePayloads(pls, log)
	md = &Message{Header: &protocol.IsakmpHeader{NextPayload: protocol.PayloadTypeSA}}
	if err := parsePayloads(md, body, trans, nil, log); err == nil {
		t.Error("unexpected KE at MAIN_R0 accepted")
	} else if noteOf(err) != protocol.INVALID_PAYLOAD_TYPE {
		t.Errorf("note = %s, want INVALID_PAYLOAD_TYPE", noteOf(err))
	}
}

func TestParsePayloadsRejectsNatWithoutNegotiation(t *testing.T) {
	log := quietLog()
	trans, _ := state.Lookup(state.MAIN_R1, protocol.OAKLEY_PRESHARED_KEY)

	pls := protocol.MakePayloads()
	pls.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: []byte("ke")})
	pls.Add(noncePl())
	pls.Add(&protocol.NatDPayload{PayloadHeader: &protocol.PayloadHeader{}, Hash: make([]byte, 20)})
	body := protocol.EncodePayloads(pls, log)
	md := &Message{Header: &protocol.IsakmpHeader{NextPayload: protocol.PayloadTypeKE}}

	sa := &Sa{Connection: testConn(respAddr, initAddr)}
	if err := parsePayloads(md, body, trans, sa, log); err == nil {
		t.Error("NAT-D accepted without negotiated RFC NAT-T")
	}
	sa.hidden.NatTraversalRFC = true
	md = &Message{Header: &protocol.IsakmpHeader{NextPayload: protocol.PayloadTypeKE}}
	if err := parsePayloads(md, body, trans, sa, log); err != nil {
		t.Errorf("NAT-D rejected despite negotiated RFC NAT-T: %s", err)
	}
}

func TestParsePayloadsChainsInArrivalOrder(t *testing.T) {
	log := quietLog()
	trans, _ := state.Lookup(state.MAIN_R0, protocol.AUTH_NONE)

	pls := protocol.MakePayloads()
	pls.Add(saPl())
	pls.Add(&protocol.VendorIdPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: []byte("first")})
	pls.Add(&protocol.VendorIdPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: []byte("second")})
	body := protocol.EncodePayloads(pls, log)
	md := &Message{Header: &protocol.IsakmpHeader{NextPayload: protocol.PayloadTypeSA}}
	if err := parsePayloads(md, body, trans, nil, log); err != nil {
		t.Fatal(err)
	}
	vids := md.Chain(protocol.PayloadTypeVID)
	if len(vids) != 2 {
		t.Fatalf("got %d VIDs", len(vids))
	}
	if string(vids[0].(*protocol.VendorIdPayload).Data) != "first" ||
		string(vids[1].(*protocol.VendorIdPayload).Data) != "second" {
		t.Error("VID chain is not in arrival order")
	}
}
