package ike

import (
	"net"
	"testing"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

func TestAggressiveModePsk(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	iconn.Config.Aggressive = true
	rconn.Config.Aggressive = true
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	fromInit, fromResp := pump(t, init, ci, resp, cr)

	isa := findSa(init, true)
	rsa := findSa(resp, true)
	if isa == nil || rsa == nil {
		t.Fatal("phase 1 SAs missing")
	}
	if isa.State != state.AGGR_I2 {
		t.Errorf("initiator state = %s, want AGGR_I2", isa.State)
	}
	if rsa.State != state.AGGR_R2 {
		t.Errorf("responder state = %s, want AGGR_R2", rsa.State)
	}
	// three messages total: I1, R1, I2
	if len(fromInit) != 2 || len(fromResp) != 1 {
		t.Errorf("aggressive mode took %d+%d messages, want 2+1", len(fromInit), len(fromResp))
	}
}

func TestXauthExchange(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	iconn.XauthClient = true
	iconn.XauthUser = "jdoe"
	iconn.XauthPass = "sesame"
	rconn.XauthServer = true
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)

	isa := findSa(init, true)
	rsa := findSa(resp, true)
	if isa == nil || rsa == nil {
		t.Fatal("phase 1 SAs missing")
	}
	if !isa.hidden.XauthClientDone {
		t.Error("client did not complete XAUTH")
	}
	if rsa.Oakley.DoingXauth {
		t.Error("server still marked as doing XAUTH")
	}
	if isa.State != state.MAIN_I4 {
		t.Errorf("client state = %s, want MAIN_I4", isa.State)
	}
	if rsa.State != state.MAIN_R3 {
		t.Errorf("server state = %s, want MAIN_R3", rsa.State)
	}
}

func TestXauthBadCredentials(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	iconn.XauthClient = true
	iconn.XauthUser = "jdoe"
	iconn.XauthPass = "wrong"
	rconn.XauthServer = true
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)

	// the server tears the SA down on a failed login
	if rsa := findSa(resp, true); rsa != nil {
		t.Errorf("server kept the SA after failed XAUTH, state %s", rsa.State)
	}
	if isa := findSa(init, true); isa != nil && isa.hidden.XauthClientDone {
		t.Error("client believes XAUTH succeeded")
	}
}

func TestModeCfgPull(t *testing.T) {
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	iconn.ModeCfgClient = true
	iconn.Config.ModeCfgPull = true
	rconn.ModeCfgServer = true
	rconn.ModeCfgIP = net.IPv4(10, 99, 0, 5)
	rconn.ModeCfgNetmask = net.IPv4(255, 255, 255, 0)
	rconn.ModeCfgDNS = []net.IP{net.IPv4(10, 99, 0, 1)}
	init, ci := testPeer(t, iconn, 1)
	resp, cr := testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	pump(t, init, ci, resp, cr)

	isa := findSa(init, true)
	if isa == nil {
		t.Fatal("client SA missing")
	}
	if !isa.hidden.ModeCfgVarsSet {
		t.Fatal("client did not receive mode config variables")
	}
	if got := isa.modeCfg.IP.String(); got != "10.99.0.5" {
		t.Errorf("assigned address = %s, want 10.99.0.5", got)
	}
	if isa.State != state.MAIN_I4 {
		t.Errorf("client state = %s, want MAIN_I4", isa.State)
	}
}

func TestCiscoLoadBalanceRedirect(t *testing.T) {
	init, ci, resp, cr, _, _ := establishMainMode(t)
	rsa := findSa(resp, true)
	isa := findSa(init, true)
	conn := isa.Connection
	oldRemote := conn.RemoteAddr.String()

	// the gateway redirects us: the last 4 octets of the notification
	// carry the new peer address
	msgid, err := resp.freshMsgid(rsa)
	if err != nil {
		t.Fatal(err)
	}
	out := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         rsa.SpiI,
			SpiR:         rsa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_INFO,
			MsgId:        msgid,
		},
		Payloads: protocol.MakePayloads(),
		Encrypt:  true,
	}
	out.Payloads.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		Doi:              protocol.ISAKMP_DOI_IPSEC,
		ProtocolId:       protocol.PROTO_ISAKMP,
		NotificationType: protocol.ISAKMP_N_CISCO_LOAD_BALANCE,
		Data:             []byte{192, 0, 2, 99},
	})
	resp.sendProtectedInfo(rsa, out)
	redirect := cr.drain()
	if len(redirect) != 1 {
		t.Fatalf("built %d redirect packets", len(redirect))
	}
	init.InjectPacket(redirect[0], respAddr, initAddr)

	// the old SA is gone, the connection points at the new gateway, and
	// a fresh initiation went out
	if init.sessions.Find(isa.SpiI, isa.SpiR, 0) != nil {
		t.Error("initiator kept the old SA after a load balance redirect")
	}
	if conn.RemoteAddr.String() == oldRemote {
		t.Errorf("connection still points at %s", oldRemote)
	}
	if addrIP(conn.RemoteAddr).String() != "192.0.2.99" {
		t.Errorf("connection points at %s, want 192.0.2.99", addrIP(conn.RemoteAddr))
	}
	if len(ci.drain()) == 0 {
		t.Error("no re-initiation after redirect")
	}
}
