package ike

import (
	"bytes"
	"net"

	"github.com/msgboxio/ikev1/protocol"
)

// informational processes HDR[*] N/D exchanges. RFC 2408 4.8. Note
// that notification payloads can arrive unencrypted once we are at
// least in R3/I4; the handlers treat them suspiciously.
func (e *Engine) informational(sa *Sa, md *Message) Result {
	log := e.log
	nChain := md.Chain(protocol.PayloadTypeN)
	if len(nChain) == 0 {
		// deletes were already processed during payload scanning
		if md.Get(protocol.PayloadTypeD) == nil {
			log.Warn("received and ignored empty informational notification payload")
		}
		return Ignore()
	}

	n := nChain[0].(*protocol.NotifyPayload)
	log.Infof("processing informational %s", n.NotificationType)

	switch n.NotificationType {
	// We answer DPD probes even if they claimed not to support DPD: we
	// would have to send some kind of reply anyway to prevent a
	// retransmit, so we might as well send a DPD reply.
	case protocol.R_U_THERE:
		if sa == nil {
			log.Warn("received bogus R_U_THERE informational message")
			return Ignore()
		}
		return e.dpdInOutAck(sa, md, n)

	case protocol.R_U_THERE_ACK:
		if sa == nil {
			log.Warn("received bogus R_U_THERE_ACK informational message")
			return Ignore()
		}
		return e.dpdInAck(sa, n)

	case protocol.PAYLOAD_MALFORMED:
		if sa != nil {
			sa.hidden.MalformedReceived++
			log.Infof("received %d malformed payload notifies", sa.hidden.MalformedReceived)
			limit := sa.Connection.Config.MaxMalformedNotify
			if sa.hidden.MalformedSent > limit/2 &&
				sa.hidden.MalformedSent+sa.hidden.MalformedReceived > limit {
				log.Warnf("too many malformed payloads (we sent %d and received %d)",
					sa.hidden.MalformedSent, sa.hidden.MalformedReceived)
				e.deleteSa(sa)
				md.sa = nil
			}
		}
		return Ignore()

	case protocol.ISAKMP_N_CISCO_LOAD_BALANCE:
		e.ciscoLoadBalance(sa, md, n)
		return Ignore()

	case protocol.IPSEC_RESPONDER_LIFETIME, protocol.INVALID_MESSAGE_ID:
		// quick mode consumes these inline; elsewhere logged and ignored
		log.Infof("received and ignored notification payload: %s", n.NotificationType)
		return Ignore()

	default:
		log.Infof("received and ignored notification payload: %s", n.NotificationType)
		return Ignore()
	}
}

// ciscoLoadBalance redirects the connection to a new gateway: the last
// 4 octets of the notification are the new peer IPv4 address. The
// current SA is deleted and the connection re-initiated.
func (e *Engine) ciscoLoadBalance(sa *Sa, md *Message, n *protocol.NotifyPayload) {
	log := e.log
	if sa == nil || !sa.State.IsIsakmpSaEstablished() {
		log.Warn("ignoring ISAKMP_N_CISCO_LOAD_BALANCE informational message for unestablished state")
		return
	}
	if len(n.Data) < 4 {
		log.Warn("ignoring ISAKMP_N_CISCO_LOAD_BALANCE informational message without IPv4 address")
		return
	}
	newPeer := net.IP(append([]byte{}, n.Data[len(n.Data)-4:]...))
	if newPeer.Equal(net.IPv4zero) {
		log.Warnf("ignoring ISAKMP_N_CISCO_LOAD_BALANCE informational message with invalid IPv4 address %s", newPeer)
		return
	}

	conn := sa.Connection
	oldAddr := addrIP(conn.RemoteAddr)
	oldPort := addrPort(conn.RemoteAddr)

	// deleting ISAKMP SA with the current remote peer
	e.deleteSa(sa)
	md.sa = nil

	log.Infof("redirecting connection %q to new peer address %s", conn.Name, newPeer)

	// rewrite every field that referred to the old peer; the port is
	// preserved, the redirect carries only an address
	conn.RemoteAddr = &net.UDPAddr{IP: newPeer, Port: oldPort}
	if conn.PeerId.Kind == protocol.ID_IPV4_ADDR && bytes.Equal(conn.PeerId.Data, oldAddr.To4()) {
		conn.PeerId.Data = append([]byte{}, newPeer.To4()...)
	}
	if conn.NextHop != nil && conn.NextHop.Equal(oldAddr) {
		conn.NextHop = newPeer
	}
	if conn.SourceIP != nil && conn.SourceIP.Equal(oldAddr) {
		conn.SourceIP = newPeer
	}

	// initiating connection to the redirected peer
	if err := e.Initiate(conn); err != nil {
		log.Warnf("re-initiation after load balance redirect failed: %s", err)
	}
}

// acceptDeletes processes delete payloads per SPI. Returns true when
// the packet deleted the SA it arrived on.
func (e *Engine) acceptDeletes(md *Message) bool {
	if len(md.Chain(protocol.PayloadTypeD)) == 0 {
		return false
	}
	// a delete is only meaningful under the protection of an
	// established, authenticated SA
	if md.sa == nil || !md.Encrypted ||
		!md.sa.Parent().State.IsIsakmpSaEstablished() {
		e.log.Info("ignoring Delete SA payload: not encrypted under an established SA")
		return false
	}
	selfDelete := false
	for _, pl := range md.Chain(protocol.PayloadTypeD) {
		d := pl.(*protocol.DeletePayload)
		switch d.ProtocolId {
		case protocol.PROTO_ISAKMP:
			for _, spi := range d.Spis {
				if len(spi) != 2*protocol.COOKIE_LEN {
					continue
				}
				dead := e.sessions.Find(spi[:protocol.COOKIE_LEN], spi[protocol.COOKIE_LEN:], 0)
				if dead == nil {
					e.log.Info("ignoring delete SA payload: ISAKMP SA not found")
					continue
				}
				if md.sa != nil && dead == md.sa.Parent() {
					selfDelete = true
					continue // deleting ourselves happens last
				}
				e.log.WithFields(dead.Fields()).Info("deleting ISAKMP SA at peer's request")
				e.deleteSa(dead)
			}
		case protocol.PROTO_IPSEC_ESP, protocol.PROTO_IPSEC_AH:
			for _, spi := range d.Spis {
				e.log.Infof("peer requested deletion of %s SA with SPI %#x", d.ProtocolId, spi)
				if md.sa != nil {
					e.removeIpsecSa(md.sa.Parent(), d.ProtocolId, spi)
				}
			}
		default:
			e.log.Infof("ignoring delete with unknown protocol %s", d.ProtocolId)
		}
	}
	if selfDelete && md.sa != nil {
		target := md.sa.Parent()
		e.log.WithFields(target.Fields()).Info("deleting ISAKMP SA at peer's request (self)")
		e.deleteSa(target)
	}
	return selfDelete
}
