package ike

import (
	"net"
	"time"

	"github.com/msgboxio/ikev1/crypto"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

// Oakley holds the Phase 1 parameters as negotiated
type Oakley struct {
	Suite      *crypto.CipherSuite
	Auth       protocol.AuthMethod
	Life       time.Duration
	DoingXauth bool
}

type hiddenVariables struct {
	SkeyidCalculated bool
	XauthClientDone  bool
	ModeCfgStarted   bool
	ModeCfgVarsSet   bool

	MalformedSent     int
	MalformedReceived int

	PeerSupportsDPD bool
	SeenFragVid     bool
	SeenFragments   bool
	SeenNortelVid   bool

	// RFC NAT-T method negotiated; gates NAT-D/NAT-OA payloads
	NatTraversalRFC bool

	// quirk: peer acks XAUTH status under a fresh msgid
	XauthAckMsgid bool
	// quirk: peer wants to pull mode cfg
	ModeCfgPullMode bool
}

// Sa is one ISAKMP (Phase 1) or IPsec (Phase 2 child) security
// association in progress or established. All fields are owned by the
// engine goroutine.
type Sa struct {
	SpiI, SpiR protocol.Spi

	State          state.State
	LastTransition *state.Transition

	Connection *Connection
	Oakley     *Oakley
	tkm        *Tkm

	Remote, Local net.Addr

	initiator bool

	// IV chain, RFC 2409 Appendix B. IV is the committed value, NewIV
	// the working value for the packet in flight, Phase1IV the last
	// Phase 1 block that seeds Phase 2 IVs.
	IV, NewIV, Phase1IV []byte

	// last inbound packet accepted, and the reply we sent for it
	RPacket, TPacket []byte

	dupCount        int
	retransmitCount int

	fragments []*fragEntry

	hidden hiddenVariables

	// Phase 2 / 1.5 message id of this SA; zero on a Phase 1 SA
	MsgId uint32
	// msgid book lives on the Phase 1 SA
	msgids *msgidBook

	// Phase 2 child chaining
	parent *Sa

	// async helper bookkeeping: at most one in flight; bumping the
	// generation orphans its result
	helperBusy bool
	helperGen  int

	suspended *Message

	timer *saTimer

	// replace timer fires as expiry rather than rekey
	replaceIsExpire bool

	// quick mode working set
	phase2 *phase2State

	// xauth / modecfg msgid in use
	phase15MsgId uint32

	// identity as finally authenticated
	peerIdentity PeerId

	// dpd sequence bookkeeping
	dpd dpdState

	// variables a mode config exchange assigned to us
	modeCfg modeCfgVars
}

// phase2State is the working set of an in-progress Quick Mode exchange
type phase2State struct {
	SpiIn, SpiOut  uint32 // our inbound spi, peer's spi
	Transform      *protocol.Transform
	EncapTunnel    bool
	NonceI, NonceR []byte
	IdCi, IdCr     *protocol.IpsecIdPayload
	Life           time.Duration
	peerDictated   bool
	installedIn    bool
	installedOut   bool
}

func (o *Sa) Role() string {
	if o.initiator {
		return "initiator"
	}
	return "responder"
}

func (o *Sa) IsPhase1() bool {
	return o.MsgId == 0
}

// Parent returns the owning Phase 1 SA; a Phase 1 SA owns itself
func (o *Sa) Parent() *Sa {
	if o.parent != nil {
		return o.parent
	}
	return o
}

// BlockLen of the negotiated cipher; zero before negotiation
func (o *Sa) BlockLen() int {
	if o.Oakley == nil || o.Oakley.Suite == nil {
		return 0
	}
	return o.Oakley.Suite.BlockLen
}

func (o *Sa) AuthMethod() protocol.AuthMethod {
	if o.Oakley == nil {
		return protocol.AUTH_NONE
	}
	return o.Oakley.Auth
}

func (o *Sa) Fields() logrus.Fields {
	return logrus.Fields{
		"icookie": spiKey(o.SpiI),
		"rcookie": spiKey(o.SpiR),
		"state":   o.State.String(),
		"role":    o.Role(),
	}
}

// rememberPacket replaces our notion of the last received packet. This
// must stay idempotent: resumption after a crypto helper can pass the
// same digest through twice.
func (o *Sa) rememberPacket(m *Message) {
	o.RPacket = append([]byte{}, m.Data...)
}
