package ike

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

func TestMainModePskHappyPath(t *testing.T) {
	_, _, _, _, fromInit, fromResp := establishMainMode(t)
	if len(fromInit) != 3 {
		t.Errorf("initiator sent %d packets, want 3", len(fromInit))
	}
	if len(fromResp) != 3 {
		t.Errorf("responder sent %d packets, want 3", len(fromResp))
	}
	// no notifications emitted: every packet is part of the IDPROT
	// exchange
	for _, b := range append(fromInit, fromResp...) {
		if protocol.IkeExchangeType(b[18]) != protocol.ISAKMP_XCHG_IDPROT {
			t.Errorf("unexpected exchange type %d", b[18])
		}
	}
}

func TestMainModeBadPskFailsAuth(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	rconn.PSK = []byte("not-swordfish")
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)
	if rsa := findSa(resp, true); rsa != nil && rsa.State == state.MAIN_R3 {
		t.Error("responder established despite mismatched preshared key")
	}
	if isa := findSa(init, true); isa != nil && isa.State == state.MAIN_I4 {
		t.Error("initiator established despite mismatched preshared key")
	}
}

func TestQuickModeSaInstall(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	iconn := findSa(init, true).Connection
	if err := init.InitiateChild(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)

	ichild := findSa(init, false)
	rchild := findSa(resp, false)
	if ichild == nil || rchild == nil {
		t.Fatal("phase 2 SAs missing")
	}
	if ichild.State != state.QUICK_I2 {
		t.Errorf("initiator child state = %s, want QUICK_I2", ichild.State)
	}
	if rchild.State != state.QUICK_R2 {
		t.Errorf("responder child state = %s, want QUICK_R2", rchild.State)
	}
	// inbound and outbound IPsec SAs installed on each side
	icap := init.cb.(*capture)
	rcap := resp.cb.(*capture)
	if len(icap.added) != 2 {
		t.Errorf("initiator installed %d SAs, want 2", len(icap.added))
	}
	if len(rcap.added) != 2 {
		t.Errorf("responder installed %d SAs, want 2", len(rcap.added))
	}
	// key material is symmetric: A's inbound keys are B's outbound keys
	keysByDir := func(c *capture) (in, out []byte) {
		for _, p := range c.added {
			if p.Direction == "in" {
				in = p.Keymat
			} else {
				out = p.Keymat
			}
		}
		return
	}
	iIn, iOut := keysByDir(icap)
	rIn, rOut := keysByDir(rcap)
	if !bytes.Equal(iIn, rOut) || !bytes.Equal(iOut, rIn) {
		t.Error("phase 2 key material does not match across peers")
	}
}

func TestDuplicateRetransmit(t *testing.T) {
	init, _, resp, cr, fromInit, fromResp := establishMainMode(t)
	_ = init
	lastIn := fromInit[len(fromInit)-1]  // the encrypted HDR*, IDi, HASH_I
	lastOut := fromResp[len(fromResp)-1] // the stored HDR*, IDr, HASH_R

	rsa := findSa(resp, true)
	limit := rsa.Connection.Config.MaximumAcceptedDuplicates
	for i := 0; i < limit; i++ {
		resp.InjectPacket(lastIn, initAddr, respAddr)
		replies := cr.drain()
		if len(replies) != 1 {
			t.Fatalf("duplicate %d: got %d replies, want 1", i, len(replies))
		}
		if !bytes.Equal(replies[0], lastOut) {
			t.Fatalf("duplicate %d: retransmit is not the stored reply", i)
		}
		if rsa.State != state.MAIN_R3 {
			t.Fatalf("duplicate %d: state moved to %s", i, rsa.State)
		}
	}
	// beyond the cap: logged and dropped
	resp.InjectPacket(lastIn, initAddr, respAddr)
	if extra := cr.drain(); len(extra) != 0 {
		t.Errorf("got %d replies beyond the duplicate cap, want 0", len(extra))
	}
	if rsa.State != state.MAIN_R3 {
		t.Errorf("state = %s after exhausted duplicates, want MAIN_R3", rsa.State)
	}
}

func TestUnknownPayloadTypeInPlaintext(t *testing.T) {
	rconn := testConn(respAddr, initAddr)
	resp, cr := testPeer(t, rconn, 2)

	body := []byte{0, 0, 0, 8, 0xde, 0xad, 0xbe, 0xef}
	hdr := &protocol.IsakmpHeader{
		SpiI:         protocol.Spi{1, 2, 3, 4, 5, 6, 7, 8},
		SpiR:         make(protocol.Spi, 8),
		NextPayload:  protocol.PayloadType(250),
		MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
		ExchangeType: protocol.ISAKMP_XCHG_IDPROT,
		MsgLength:    uint32(protocol.IKE_HEADER_LEN + len(body)),
	}
	pkt := append(hdr.Encode(resp.log), body...)
	resp.InjectPacket(pkt, initAddr, respAddr)

	replies := cr.drain()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1 notification", len(replies))
	}
	md := &Message{}
	if err := md.DecodeHeader(replies[0], resp.log); err != nil {
		t.Fatal(err)
	}
	if md.Header.ExchangeType != protocol.ISAKMP_XCHG_INFO {
		t.Errorf("reply exchange = %s, want INFO", md.Header.ExchangeType)
	}
	n := &protocol.NotifyPayload{PayloadHeader: &protocol.PayloadHeader{}}
	if err := n.Decode(replies[0][protocol.IKE_HEADER_LEN+protocol.PAYLOAD_HEADER_LENGTH:]); err != nil {
		t.Fatal(err)
	}
	if n.NotificationType != protocol.INVALID_PAYLOAD_TYPE {
		t.Errorf("notification = %s, want INVALID_PAYLOAD_TYPE", n.NotificationType)
	}
	if resp.sessions.Len() != 0 {
		t.Error("an SA was created for a malformed initial message")
	}
}

// fragment the initiator's KE message and deliver it out of order
func TestFragmentReassembly(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	// I1 -> R1 by hand so we can intercept I2
	i1 := ci.drain()[0]
	resp.InjectPacket(i1, initAddr, respAddr)
	r1 := cr.drain()[0]
	init.InjectPacket(r1, respAddr, initAddr)
	i2 := ci.drain()[0]

	rsa := findSa(resp, true)
	if rsa == nil {
		t.Fatal("responder SA missing")
	}
	// record the peer's fragmentation VID; whether the fragments are
	// accepted depends only on the local FragAllow policy
	rsa.hidden.SeenFragVid = true

	// split the whole I2 packet, header included, into 4 fragments,
	// delivered as {2,4,1,3}
	body := i2
	n := (len(body) + 3) / 4
	var parts [][]byte
	for len(body) > 0 {
		k := n
		if k > len(body) {
			k = len(body)
		}
		parts = append(parts, body[:k])
		body = body[k:]
	}
	if len(parts) != 4 {
		t.Fatalf("got %d parts, want 4", len(parts))
	}
	frag := func(index int) []byte {
		fp := &protocol.FragmentPayload{
			PayloadHeader: &protocol.PayloadHeader{},
			FragId:        7,
			Index:         uint8(index),
			Data:          parts[index-1],
		}
		if index == 4 {
			fp.Flags = protocol.FragmentLastFlag
		}
		pls := protocol.MakePayloads()
		pls.Add(fp)
		hdr := &protocol.IsakmpHeader{
			SpiI:         rsa.SpiI,
			SpiR:         rsa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_IDPROT,
			NextPayload:  protocol.PayloadTypeFragment,
		}
		return encodeOutgoing(&OutgoingMessage{Header: hdr, Payloads: pls}, resp.log)
	}
	for _, idx := range []int{2, 4, 1, 3} {
		resp.InjectPacket(frag(idx), initAddr, respAddr)
	}
	// the reassembled message must have been processed as one packet
	if rsa.State != state.MAIN_R2 {
		t.Fatalf("responder state = %s after reassembly, want MAIN_R2", rsa.State)
	}
	if got := cr.drain(); len(got) != 1 {
		t.Errorf("responder sent %d packets for the reassembled message, want 1", len(got))
	}
}

func TestReassembleOrdering(t *testing.T) {
	frags := []*fragEntry{
		{index: 1, data: []byte("aa")},
		{index: 2, data: []byte("bb")},
		{index: 3, last: true, data: []byte("cc")},
	}
	if got := reassemble(frags); !bytes.Equal(got, []byte("aabbcc")) {
		t.Errorf("reassemble = %q", got)
	}
	// hole at 2
	if got := reassemble([]*fragEntry{frags[0], frags[2]}); got != nil {
		t.Errorf("reassemble with hole = %q, want nil", got)
	}
	// no last flag
	if got := reassemble(frags[:2]); got != nil {
		t.Errorf("reassemble without last = %q, want nil", got)
	}
}

func TestDpdProbeAndAck(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	isa := findSa(init, true)
	rsa := findSa(resp, true)

	// peer sends R_U_THERE seq=7; engine replies with the matching ACK
	// and the state does not move
	init.sendDpdNotify(isa, protocol.R_U_THERE, 7)
	probe := ci.drain()[0]
	resp.InjectPacket(probe, initAddr, respAddr)
	if rsa.State != state.MAIN_R3 {
		t.Errorf("responder state = %s after DPD probe, want MAIN_R3", rsa.State)
	}
	acks := cr.drain()
	if len(acks) != 1 {
		t.Fatalf("responder sent %d packets, want 1 ack", len(acks))
	}
	isa.dpd.pending = 7
	init.InjectPacket(acks[0], respAddr, initAddr)
	if isa.dpd.pending != 0 {
		t.Error("initiator did not match the R_U_THERE_ACK sequence")
	}
	if isa.State != state.MAIN_I4 {
		t.Errorf("initiator state = %s after DPD ack, want MAIN_I4", isa.State)
	}
}

func TestProtectedReplayIsRejectedByMsgid(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	isa := findSa(init, true)
	init.sendDpdNotify(isa, protocol.R_U_THERE, 9)
	probe := ci.drain()[0]
	resp.InjectPacket(probe, initAddr, respAddr)
	if got := len(cr.drain()); got != 1 {
		t.Fatalf("first delivery: %d replies, want 1", got)
	}
	// byte-identical replay: its message id has been seen, so it is
	// dropped before any state is touched
	resp.InjectPacket(probe, initAddr, respAddr)
	if got := len(cr.drain()); got != 0 {
		t.Errorf("replay produced %d replies, want 0", got)
	}
}

func TestCorruptedProtectedPacketIsDropped(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	isa := findSa(init, true)
	init.sendDpdNotify(isa, protocol.R_U_THERE, 11)
	probe := ci.drain()[0]
	probe[len(probe)-1] ^= 0xff
	resp.InjectPacket(probe, initAddr, respAddr)
	if got := len(cr.drain()); got != 0 {
		t.Errorf("corrupted packet produced %d replies, want 0", got)
	}
	if rsa := findSa(resp, true); rsa.State != state.MAIN_R3 {
		t.Errorf("responder state = %s, want MAIN_R3", rsa.State)
	}
}

func TestQuickModeRejectsReusedMsgid(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	iconn := findSa(init, true).Connection
	if err := init.InitiateChild(iconn); err != nil {
		t.Fatal(err)
	}
	quickI1 := ci.drain()[0]
	resp.InjectPacket(quickI1, initAddr, respAddr)
	cr.drain()

	// the accepted quick mode msgid is now burnt in the parent's msgid
	// book, so any later packet reusing it fails the demux uniqueness
	// check
	rsa := findSa(resp, true)
	msgid := binary.BigEndian.Uint32(quickI1[20:24])
	if rsa.msgids.Unique(msgid) {
		t.Error("quick mode message id was not recorded as used")
	}
}

func TestEnginePhase2LifetimeDictatedByPeer(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	// the responder's local IPsec lifetime is shorter than the offer; it
	// accepts the offered transform unchanged and quick mode completes
	rconn := findSa(resp, true).Connection
	rconn.Config.SaIpsecLife = DefaultConnConfig().SaIpsecLife / 2

	iconn := findSa(init, true).Connection
	if err := init.InitiateChild(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)
	if child := findSa(init, false); child == nil || child.State != state.QUICK_I2 {
		t.Fatal("quick mode did not complete")
	}
}
