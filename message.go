package ike

import (
	"net"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

// maxPayloadsPerMessage caps the digest table; no sane message comes
// close
const maxPayloadsPerMessage = 40

// Message is the transient digest of one inbound packet: the raw bytes,
// the parsed header, the per type payload chains, and the routing that
// the demux resolved for it. It lives until the transition completes or
// is suspended on the SA.
type Message struct {
	Data      []byte // raw packet as received, ciphertext intact
	Header    *protocol.IsakmpHeader
	Payloads  *protocol.Payloads
	Encrypted bool

	LocalAddr, RemoteAddr net.Addr

	// routing resolved by the demux
	FromState  state.State
	Transition *state.Transition
	NewIVSet   bool

	// body bytes the payload walk consumed; the remainder is cipher
	// padding and is excluded from HASH coverage
	parsedLen int

	sa *Sa

	// vendor IDs recognized while scanning payloads
	fragVid   bool
	dpdVid    bool
	nortelVid bool
	nattVid   bool

	// reply produced by the handler; the dispatcher serializes it when
	// the transition carries the Reply flag
	reply *OutgoingMessage
}

// OutgoingMessage is a fully built response: payloads plus the header
// fields that mirror the request.
type OutgoingMessage struct {
	Header   *protocol.IsakmpHeader
	Payloads *protocol.Payloads
	// Encrypt the body with the SA's keying material before sending
	Encrypt bool
}

func (m *Message) DecodeHeader(b []byte, log *logrus.Logger) (err error) {
	m.Header, err = protocol.DecodeIsakmpHeader(b, log)
	return
}

// EchoReply starts a reply that mirrors the inbound header: same
// cookies, exchange and message id, flags reset.
func (m *Message) EchoReply(firstPayload protocol.PayloadType, encrypt bool) *OutgoingMessage {
	h := *m.Header
	h.Flags = 0
	if encrypt {
		h.Flags = protocol.FlagEncryption
	}
	h.NextPayload = firstPayload
	return &OutgoingMessage{
		Header:   &h,
		Payloads: protocol.MakePayloads(),
		Encrypt:  encrypt,
	}
}

// Chain returns the payloads of the given type in arrival order
func (m *Message) Chain(t protocol.PayloadType) []protocol.Payload {
	return m.Payloads.Chain(t)
}

func (m *Message) Get(t protocol.PayloadType) protocol.Payload {
	return m.Payloads.Get(t)
}
