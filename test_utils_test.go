package ike

import (
	mathrand "math/rand"
	"net"
	"testing"
	"time"

	"github.com/msgboxio/ikev1/platform"
	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

var (
	initAddr = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 500}
	respAddr = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 2), Port: 500}
)

// capture records everything an engine tried to emit or install
type capture struct {
	packets []*OutgoingPacket
	added   []*platform.SaParams
	removed []*platform.SaParams
}

func (c *capture) SendMessage(p *OutgoingPacket) error {
	c.packets = append(c.packets, p)
	return nil
}

func (c *capture) AddSa(sa *Sa, params *platform.SaParams) error {
	c.added = append(c.added, params)
	return nil
}

func (c *capture) RemoveSa(sa *Sa, params *platform.SaParams) error {
	c.removed = append(c.removed, params)
	return nil
}

func (c *capture) drain() [][]byte {
	var out [][]byte
	for _, p := range c.packets {
		out = append(out, p.Data)
	}
	c.packets = nil
	return out
}

type allowAllXauth struct{}

func (allowAllXauth) Check(user, pass string) bool { return user == "jdoe" && pass == "sesame" }

func testConn(local, remote *net.UDPAddr) *Connection {
	conn := &Connection{
		Name:           "test",
		LocalAddr:      local,
		RemoteAddr:     remote,
		PSK:            []byte("swordfish"),
		Auth:           PolicyAuthPSK,
		PeerIdWildcard: true,
		Config:         DefaultConnConfig(),
	}
	_, localNet, _ := net.ParseCIDR("192.0.1.0/24")
	_, remoteNet, _ := net.ParseCIDR("192.0.2.0/24")
	conn.Selectors.Local = Selector{Net: localNet}
	conn.Selectors.Remote = Selector{Net: remoteNet}
	if local == respAddr {
		conn.Selectors.Local, conn.Selectors.Remote =
			conn.Selectors.Remote, conn.Selectors.Local
	}
	return conn
}

func testPeer(t *testing.T, conn *Connection, seed int64) (*Engine, *capture) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	cap := &capture{}
	e := NewEngine(EngineConfig{
		Conns:    SingleConn{Conn: conn},
		Callback: cap,
		Xauth:    allowAllXauth{},
		Log:      log,
		Rand:     mathrand.New(mathrand.NewSource(seed)),
	})
	e.helperSync = true
	e.clock = func() time.Time { return time.Unix(1600000000, 0) }
	return e, cap
}

// pump shuttles packets between the two peers until the exchange goes
// quiet; it returns the packets each side sent, in order
func pump(t *testing.T, init *Engine, ci *capture, resp *Engine, cr *capture) (fromInit, fromResp [][]byte) {
	t.Helper()
	for rounds := 0; rounds < 32; rounds++ {
		moved := false
		for _, b := range ci.drain() {
			fromInit = append(fromInit, b)
			resp.InjectPacket(b, initAddr, respAddr)
			moved = true
		}
		for _, b := range cr.drain() {
			fromResp = append(fromResp, b)
			init.InjectPacket(b, respAddr, initAddr)
			moved = true
		}
		if !moved {
			return
		}
	}
	t.Fatal("exchange did not converge")
	return
}

func findSa(e *Engine, phase1 bool) *Sa {
	var found *Sa
	e.sessions.ForEach(func(sa *Sa) {
		if sa.IsPhase1() == phase1 {
			found = sa
		}
	})
	return found
}

func establishMainMode(t *testing.T) (init *Engine, ci *capture, resp *Engine, cr *capture, fromInit, fromResp [][]byte) {
	t.Helper()
	iconn := testConn(initAddr, respAddr)
	rconn := testConn(respAddr, initAddr)
	init, ci = testPeer(t, iconn, 1)
	resp, cr = testPeer(t, rconn, 2)
	if err := init.Initiate(iconn); err != nil {
		t.Fatal(err)
	}
	fromInit, fromResp = pump(t, init, ci, resp, cr)
	isa := findSa(init, true)
	rsa := findSa(resp, true)
	if isa == nil || rsa == nil {
		t.Fatal("phase 1 SAs missing")
	}
	if isa.State != state.MAIN_I4 {
		t.Fatalf("initiator state = %s, want MAIN_I4", isa.State)
	}
	if rsa.State != state.MAIN_R3 {
		t.Fatalf("responder state = %s, want MAIN_R3", rsa.State)
	}
	return
}
