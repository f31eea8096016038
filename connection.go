package ike

import (
	"bytes"
	"net"
	"time"

	"github.com/msgboxio/ikev1/protocol"
)

// PeerId is an ISAKMP identity: kind plus raw bytes
type PeerId struct {
	Kind protocol.IdType
	Data []byte
}

func (id PeerId) Equal(other PeerId) bool {
	return id.Kind == other.Kind && bytes.Equal(id.Data, other.Data)
}

func (id PeerId) IsZero() bool {
	return id.Kind == 0 && len(id.Data) == 0
}

// Selector is one SPD entry: a client subnet with protocol and port
type Selector struct {
	Net      *net.IPNet
	Protocol uint8
	Port     uint16
}

// AuthPolicy limits which Oakley auth classes a connection accepts
type AuthPolicy int

const (
	PolicyAuthAny AuthPolicy = iota
	PolicyAuthPSK
	PolicyAuthRSASig
)

func (p AuthPolicy) Accepts(a protocol.AuthMethod) bool {
	switch p {
	case PolicyAuthPSK:
		return a.BaseAuth() == protocol.OAKLEY_PRESHARED_KEY
	case PolicyAuthRSASig:
		return a.BaseAuth() == protocol.OAKLEY_RSA_SIG || a.BaseAuth() == protocol.OAKLEY_DSS_SIG
	}
	return true
}

// ConnConfig carries the tunables the core needs; everything else about
// policy loading lives outside the engine.
type ConnConfig struct {
	SaIkeLife    time.Duration
	SaIpsecLife  time.Duration
	RekeyMargin  time.Duration
	RekeyFuzz    float64 // initiator margin gets up to this much more
	DontRekey    bool
	ResponseWait time.Duration // half open discard window

	RetransmitInterval time.Duration
	RetransmitLimit    int

	MaxMalformedNotify        int
	MaximumAcceptedDuplicates int

	FragAllow     bool
	FragThreshold int

	DPDEnabled  bool
	DPDInterval time.Duration
	DPDTimeout  time.Duration

	NatTraversal bool

	Aggressive bool

	// compat toggles
	SoftRemoteWorkaround bool
	ModeCfgPull          bool
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		SaIkeLife:                 time.Hour,
		SaIpsecLife:               8 * time.Hour,
		RekeyMargin:               9 * time.Minute,
		RekeyFuzz:                 1.0,
		ResponseWait:              20 * time.Second,
		RetransmitInterval:        500 * time.Millisecond,
		RetransmitLimit:           5,
		MaxMalformedNotify:        16,
		MaximumAcceptedDuplicates: 2,
		FragAllow:                 true,
		FragThreshold:             576,
		DPDInterval:               30 * time.Second,
		DPDTimeout:                120 * time.Second,
	}
}

// Connection is the policy record the engine consumes. It is read
// mostly; identity refinement and load balance redirects are the only
// writers.
type Connection struct {
	Name string

	LocalAddr  net.Addr
	RemoteAddr net.Addr
	NextHop    net.IP
	SourceIP   net.IP

	LocalId PeerId
	PeerId  PeerId
	// peer identity carries wildcards to be concretized on refinement
	PeerIdWildcard bool
	// accept whatever identity the peer's certificate carries
	PeerIdFromCert bool

	Auth      AuthPolicy
	PSK       []byte
	Selectors struct {
		Local, Remote Selector
	}

	XauthServer   bool
	XauthClient   bool
	ModeCfgServer bool
	ModeCfgClient bool

	XauthUser, XauthPass string

	// address material a mode config server hands out
	ModeCfgIP      net.IP
	ModeCfgNetmask net.IP
	ModeCfgDNS     []net.IP

	Config ConnConfig
}

// ConnectionStore is how the engine reaches the connection table.
// Refine implements the responder side connection switch of §identity:
// given the current connection and the peer's claimed identity, return
// a better matching connection or nil.
type ConnectionStore interface {
	// ForPeer selects the connection that should answer an initial
	// message from the given endpoint; nil rejects the peer.
	ForPeer(remote net.Addr) *Connection
	Refine(current *Connection, peer PeerId, auth protocol.AuthMethod) *Connection
	ByName(name string) *Connection
}

// SingleConn serves engines configured with one fixed connection
type SingleConn struct{ Conn *Connection }

func (s SingleConn) ForPeer(net.Addr) *Connection { return s.Conn }

func (s SingleConn) Refine(*Connection, PeerId, protocol.AuthMethod) *Connection {
	return nil
}

func (s SingleConn) ByName(name string) *Connection {
	if s.Conn != nil && s.Conn.Name == name {
		return s.Conn
	}
	return nil
}
