package ike

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// XauthChecker validates extended authentication credentials; the
// backend (PAM, RADIUS, a file) lives outside the core.
type XauthChecker interface {
	Check(user, pass string) bool
}

type rejectAllXauth struct{}

func (rejectAllXauth) Check(string, string) bool { return false }

// Signer produces and verifies the signatures of signature based auth;
// key and certificate handling live outside the core.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	Verify(peer PeerId, hash, sig []byte) error
}

type nullSigner struct{}

func (nullSigner) Sign([]byte) ([]byte, error) {
	return nil, errors.New("no signing key configured")
}
func (nullSigner) Verify(PeerId, []byte, []byte) error {
	return errors.New("no signature verification configured")
}

type rawPacket struct {
	b             []byte
	remote, local net.Addr
}

// EngineConfig wires the engine to its collaborators
type EngineConfig struct {
	Conns        ConnectionStore
	Callback     Callback
	CertVerifier CertVerifier
	Xauth        XauthChecker
	Signer       Signer
	Log          *logrus.Logger
	Rand         io.Reader
	Workers      int
}

// Engine is the IKEv1 protocol core. One goroutine (Run) owns the SA
// table, the connection table, the pending Phase 2 queue and the timer
// state; packets, timer firings, helper completions and admin commands
// are multiplexed onto it over channels.
type Engine struct {
	sessions *Sessions
	conns    ConnectionStore
	cb       Callback

	certVerifier CertVerifier
	xauth        XauthChecker
	signer       Signer

	log        *logrus.Logger
	randReader io.Reader
	clock      func() time.Time

	conn Conn

	packets       chan *rawPacket
	timers        chan timerEvent
	helperResults chan helperResult
	dpdTicks      chan dpdTick
	cmds          chan func()
	done          chan struct{}

	helperPool *HelperPool
	helperSync bool
	pending    map[uint64][]*PendingP2
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.CertVerifier == nil {
		cfg.CertVerifier = nullCertVerifier{}
	}
	if cfg.Xauth == nil {
		cfg.Xauth = rejectAllXauth{}
	}
	if cfg.Callback == nil {
		cfg.Callback = nullCallback{}
	}
	if cfg.Signer == nil {
		cfg.Signer = nullSigner{}
	}
	e := &Engine{
		sessions:      NewSessions(),
		conns:         cfg.Conns,
		cb:            cfg.Callback,
		certVerifier:  cfg.CertVerifier,
		xauth:         cfg.Xauth,
		signer:        cfg.Signer,
		log:           cfg.Log,
		randReader:    cfg.Rand,
		clock:         time.Now,
		packets:       make(chan *rawPacket, 64),
		timers:        make(chan timerEvent, 64),
		helperResults: make(chan helperResult, 16),
		dpdTicks:      make(chan dpdTick, 16),
		cmds:          make(chan func(), 16),
		done:          make(chan struct{}),
		pending:       make(map[uint64][]*PendingP2),
	}
	e.helperPool = NewHelperPool(e.helperResults, cfg.Workers)
	return e
}

// Run serves the event loop until the context is cancelled. When a
// Conn is attached, its read pump feeds the packet channel.
func (e *Engine) Run(ctx context.Context, conn Conn) error {
	e.conn = conn
	if conn != nil {
		go e.readPump(conn)
	}
	defer e.helperPool.Close()
	for {
		select {
		case pkt := <-e.packets:
			e.processPacket(pkt.b, pkt.remote, pkt.local)
		case ev := <-e.timers:
			e.handleTimer(ev)
		case res := <-e.helperResults:
			e.handleHelperResult(res)
		case tick := <-e.dpdTicks:
			e.handleDpdTick(tick)
		case cmd := <-e.cmds:
			cmd()
		case <-ctx.Done():
			close(e.done)
			return ctx.Err()
		}
	}
}

func (e *Engine) readPump(conn Conn) {
	for {
		b, remote, localIP, err := conn.ReadPacket()
		if err != nil {
			e.log.Infof("read pump finished: %s", err)
			return
		}
		select {
		case e.packets <- &rawPacket{b: b, remote: remote, local: &net.IPAddr{IP: localIP}}:
		case <-e.done:
			return
		}
	}
}

// Post runs fn on the event loop; the admin surface uses this
func (e *Engine) Post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// InjectPacket feeds a datagram into the engine, for callers that own
// their own sockets (and for the test harness).
func (e *Engine) InjectPacket(b []byte, remote, local net.Addr) {
	e.processPacket(b, remote, local)
}

func (e *Engine) now() time.Time { return e.clock() }

func (e *Engine) readRand(b []byte) {
	if _, err := io.ReadFull(e.randReader, b); err != nil {
		panic(err) // rng failure is not survivable
	}
}

func (e *Engine) newCookie() protocol.Spi {
	spi := make(protocol.Spi, protocol.COOKIE_LEN)
	for allZero(spi) {
		e.readRand(spi)
	}
	return spi
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// freshMsgid reserves a random unused Phase 2 message id on the SA's
// Phase 1 parent
func (e *Engine) freshMsgid(sa *Sa) (uint32, error) {
	book := sa.Parent().msgids
	b := make([]byte, 4)
	for i := 0; i < 100; i++ {
		e.readRand(b)
		id := binary.BigEndian.Uint32(b)
		if book.Unique(id) {
			return id, nil
		}
	}
	return 0, errors.New("could not find a fresh message id")
}

// send transmits raw bytes to the SA's peer
func (e *Engine) send(sa *Sa, b []byte) {
	e.sendTo(b, sa.Remote)
}

func (e *Engine) sendTo(b []byte, remote net.Addr) {
	if remote == nil {
		return
	}
	if e.conn != nil {
		if err := e.conn.WritePacket(b, remote); err != nil {
			e.log.Warnf("write to %s failed: %s", remote, err)
		}
		return
	}
	if err := e.cb.SendMessage(&OutgoingPacket{Data: b, Addr: remote}); err != nil {
		e.log.Warnf("send to %s failed: %s", remote, err)
	}
}

// sendReply serializes the handler's reply, records it for duplicate
// driven retransmission, and transmits it, fragmented when the peer
// asked for fragments and the reply is large.
func (e *Engine) sendReply(sa *Sa, out *OutgoingMessage) error {
	if e.log.Level == logrus.DebugLevel {
		e.log.Debug("Tx:\n" + spew.Sdump(out.Header, out.Payloads))
	}
	var b []byte
	var err error
	if out.Encrypt {
		b, err = encryptOutgoing(sa, out, e.log)
		if err != nil {
			return err
		}
	} else {
		b = encodeOutgoing(out, e.log)
	}
	sa.TPacket = b

	cfg := sa.Connection.Config
	if sa.hidden.SeenFragVid && sa.hidden.SeenFragments &&
		cfg.FragAllow && len(b) > cfg.FragThreshold {
		return e.sendFragmented(sa, b)
	}
	e.send(sa, b)
	return nil
}

// sendFragmented splits an encoded message into IKE_FRAGMENTATION
// datagrams carrying the original exchange type
func (e *Engine) sendFragmented(sa *Sa, b []byte) error {
	exchange := protocol.IkeExchangeType(b[18])
	body := b
	chunk := sa.Connection.Config.FragThreshold
	var chunks [][]byte
	for len(body) > 0 {
		n := chunk
		if n > len(body) {
			n = len(body)
		}
		chunks = append(chunks, body[:n])
		body = body[n:]
	}
	if len(chunks) > 16 {
		return errors.Errorf("message of %d bytes needs %d fragments, limit is 16", len(b), len(chunks))
	}
	fragId := make([]byte, 2)
	e.readRand(fragId)
	for i, data := range chunks {
		frag := &protocol.FragmentPayload{
			PayloadHeader: &protocol.PayloadHeader{},
			FragId:        binary.BigEndian.Uint16(fragId),
			Index:         uint8(i + 1),
			Data:          data,
		}
		if i == len(chunks)-1 {
			frag.Flags = protocol.FragmentLastFlag
		}
		pls := protocol.MakePayloads()
		pls.Add(frag)
		hdr := &protocol.IsakmpHeader{
			SpiI:         sa.SpiI,
			SpiR:         sa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
			ExchangeType: exchange,
			NextPayload:  protocol.PayloadTypeFragment,
		}
		fb := encodeOutgoing(&OutgoingMessage{Header: hdr, Payloads: pls}, e.log)
		e.send(sa, fb)
	}
	return nil
}

// deleteSa tears an SA down: in-flight helper cancelled, timers
// removed, suspended digest freed, installed IPsec SAs withdrawn,
// pending initiations dropped.
func (e *Engine) deleteSa(sa *Sa) {
	log := e.log
	log.WithFields(sa.Fields()).Info("deleting SA")
	e.cancelHelper(sa, log)
	e.disarmTimer(sa)
	if sa.dpd.timer != nil {
		sa.dpd.timer.Stop()
		sa.dpd.gen++
	}
	sa.suspended = nil
	releaseFragments(sa)
	if sa.phase2 != nil {
		e.uninstallIpsec(sa)
	}
	if sa.IsPhase1() {
		e.dropPending(sa)
		// children die with the keying channel
		var children []*Sa
		e.sessions.ForEach(func(other *Sa) {
			if other.parent == sa {
				children = append(children, other)
			}
		})
		for _, child := range children {
			e.deleteSa(child)
		}
	}
	e.sessions.Remove(sa)
}

// Terminate announces the deletion to the peer first
func (e *Engine) Terminate(sa *Sa) {
	e.sendDelete(sa)
	e.deleteSa(sa)
}

// Initiate starts Phase 1 toward the connection's peer. Main Mode
// sends HDR+SA immediately; Aggressive Mode needs key material first,
// so the first message waits for a helper.
func (e *Engine) Initiate(conn *Connection) error {
	sa := &Sa{
		SpiI:       e.newCookie(),
		SpiR:       make(protocol.Spi, protocol.COOKIE_LEN),
		Connection: conn,
		Remote:     conn.RemoteAddr,
		Local:      conn.LocalAddr,
		initiator:  true,
		msgids:     newMsgidBook(),
	}
	if conn.Config.Aggressive {
		return e.aggrOutI1(sa)
	}
	return e.mainOutI1(sa)
}

// InitiateChild queues or fires a Phase 2 negotiation on an existing
// keying channel
func (e *Engine) InitiateChild(conn *Connection) error {
	var parent *Sa
	e.sessions.ForEach(func(sa *Sa) {
		if sa.IsPhase1() && sa.Connection == conn && sa.State.IsIsakmpSaEstablished() {
			parent = sa
		}
	})
	if parent == nil {
		return errors.Errorf("no established ISAKMP SA for connection %q", conn.Name)
	}
	return e.initiateQuickMode(parent, &PendingP2{Connection: conn})
}

// newResponderSa builds the SA for an acceptable initial message
func (e *Engine) newResponderSa(md *Message, conn *Connection) *Sa {
	sa := &Sa{
		SpiI:       append(protocol.Spi{}, md.Header.SpiI...),
		SpiR:       e.newCookie(),
		Connection: conn,
		Remote:     md.RemoteAddr,
		Local:      md.LocalAddr,
		msgids:     newMsgidBook(),
	}
	e.sessions.Add(sa)
	return sa
}

// natUpdateEndpoint floats the peer endpoint when NAT-T negotiated a
// new source for the peer
func (e *Engine) natUpdateEndpoint(sa *Sa, md *Message) {
	if !sa.hidden.NatTraversalRFC || md.RemoteAddr == nil {
		return
	}
	if sa.Remote == nil || sa.Remote.String() != md.RemoteAddr.String() {
		e.log.WithFields(sa.Fields()).Infof("NAT-T: peer endpoint floated to %s", md.RemoteAddr)
		sa.Remote = md.RemoteAddr
	}
}

// Sessions exposes the table to the admin surface; access only from
// Post'ed commands.
func (e *Engine) Sessions() *Sessions { return e.sessions }

func remoteOf(md *Message, sa *Sa) net.Addr {
	if sa != nil && sa.Remote != nil {
		return sa.Remote
	}
	if md != nil {
		return md.RemoteAddr
	}
	return nil
}

func addrIP(a net.Addr) net.IP {
	if ua, ok := a.(*net.UDPAddr); ok {
		return ua.IP
	}
	return nil
}

func addrPort(a net.Addr) int {
	if ua, ok := a.(*net.UDPAddr); ok {
		return ua.Port
	}
	return protocol.IKE_PORT
}

// defaultOakleyProposal builds the Phase 1 SA payload offered by an
// initiator
func defaultOakleyProposal(conn *Connection) *protocol.SaPayload {
	auth := protocol.OAKLEY_PRESHARED_KEY
	if conn.Auth == PolicyAuthRSASig {
		auth = protocol.OAKLEY_RSA_SIG
	}
	life := uint32(conn.Config.SaIkeLife / time.Second)
	tr := &protocol.Transform{
		Number:      1,
		TransformId: protocol.KEY_IKE,
		Attributes: []*protocol.Attribute{
			{Type: uint16(protocol.OAKLEY_ENCRYPTION_ALGORITHM), Value: uint32(protocol.OAKLEY_AES_CBC)},
			{Type: uint16(protocol.OAKLEY_KEY_LENGTH), Value: 256},
			{Type: uint16(protocol.OAKLEY_HASH_ALGORITHM), Value: uint32(protocol.OAKLEY_SHA1)},
			{Type: uint16(protocol.OAKLEY_AUTHENTICATION_METHOD), Value: uint32(auth)},
			{Type: uint16(protocol.OAKLEY_GROUP_DESCRIPTION), Value: uint32(protocol.MODP_2048)},
			{Type: uint16(protocol.OAKLEY_LIFE_TYPE), Value: uint32(protocol.OAKLEY_LIFE_SECONDS)},
			{Type: uint16(protocol.OAKLEY_LIFE_DURATION), IsTlv: true,
				Bytes: lifeBytes(life), Value: life},
		},
	}
	return &protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Doi:           protocol.ISAKMP_DOI_IPSEC,
		Situation:     protocol.SIT_IDENTITY_ONLY,
		Proposals: []*protocol.Proposal{{
			Number:     1,
			ProtocolId: protocol.PROTO_ISAKMP,
			Transforms: []*protocol.Transform{tr},
		}},
	}
}

func lifeBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// uninstallIpsec withdraws the kernel SAs a Phase 2 SA installed
func (e *Engine) uninstallIpsec(sa *Sa) {
	if sa.phase2 == nil {
		return
	}
	if sa.phase2.installedIn || sa.phase2.installedOut {
		if err := e.cb.RemoveSa(sa, saParams(sa)); err != nil {
			e.log.Warnf("could not remove IPsec SA: %s", err)
		}
	}
}

func (e *Engine) removeIpsecSa(parent *Sa, proto protocol.ProtocolId, spi protocol.Spi) {
	var victim *Sa
	e.sessions.ForEach(func(sa *Sa) {
		if sa.parent == parent && sa.phase2 != nil &&
			len(spi) == 4 && sa.phase2.SpiOut == binary.BigEndian.Uint32(spi) {
			victim = sa
		}
	})
	if victim != nil {
		e.deleteSa(victim)
	}
}

// localIdPayload builds the Phase 1 ID payload for our side
func localIdPayload(conn *Connection) *protocol.IdPayload {
	id := conn.LocalId
	if id.IsZero() {
		ip := addrIP(conn.LocalAddr)
		id = PeerId{Kind: protocol.ID_IPV4_ADDR, Data: ip.To4()}
	}
	return &protocol.IdPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		IdType:        id.Kind,
		Data:          id.Data,
	}
}
