package ike

import (
	"net"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

// processPacket classifies one datagram, locates or synthesizes the SA
// and from-state, and runs the common packet machinery. This is the
// single entry point for bytes from the wire and for reassembled
// fragment buffers.
func (e *Engine) processPacket(b []byte, remote, local net.Addr) {
	log := e.log
	md := &Message{Data: b, RemoteAddr: remote, LocalAddr: local}
	if err := md.DecodeHeader(b, log); err != nil {
		log.Warnf("dropping packet from %s: %s", remote, err)
		return
	}
	if int(md.Header.MsgLength) > len(b) {
		log.Warnf("dropping truncated packet from %s: header says %d, have %d",
			remote, md.Header.MsgLength, len(b))
		return
	}

	var sa *Sa
	fromState := state.Undefined
	newIVSet := false
	hdr := md.Header

	switch hdr.ExchangeType {
	case protocol.ISAKMP_XCHG_IDPROT, protocol.ISAKMP_XCHG_AGGR:
		if hdr.MsgId != 0 {
			log.Warnf("message id was 0x%08x but should be zero in phase 1", hdr.MsgId)
			e.sendNotificationFor(md, nil, protocol.INVALID_MESSAGE_ID)
			return
		}
		if hdr.IsZeroSpiI() {
			log.Warn("initiator cookie must not be zero in phase 1 message")
			e.sendNotificationFor(md, nil, protocol.INVALID_COOKIE)
			return
		}
		if hdr.IsZeroSpiR() {
			// initial message from initiator
			if hdr.Flags.IsEncrypted() {
				log.Warn("initial phase 1 message is invalid: its encrypted flag is on")
				e.sendNotificationFor(md, nil, protocol.INVALID_FLAGS)
				return
			}
			// an existing state with this icookie means some sort of
			// re-transmit
			if prior := e.sessions.FindInit(hdr.SpiI, 0); prior != nil {
				if !e.isDuplicate(prior, md, log) {
					log.Infof("discarding initial packet; already %s", prior.State)
				}
				return
			}
			// don't build a state until the message looks tasty
			if hdr.ExchangeType == protocol.ISAKMP_XCHG_IDPROT {
				fromState = state.MAIN_R0
			} else {
				fromState = state.AGGR_R0
			}
		} else {
			sa = e.sessions.Find(hdr.SpiI, hdr.SpiR, 0)
			if sa == nil {
				// perhaps the responder's first reply, carrying an
				// rcookie we have not recorded yet
				sa = e.sessions.FindInit(hdr.SpiI, 0)
				if sa == nil {
					log.Warn("phase 1 message is part of an unknown exchange")
					return
				}
			}
			fromState = sa.State
		}

	case protocol.ISAKMP_XCHG_INFO:
		sa = e.sessions.Find(hdr.SpiI, hdr.SpiR, 0)
		if sa == nil {
			sa = e.sessions.FindInit(hdr.SpiI, 0)
		}
		if hdr.Flags.IsEncrypted() {
			if sa == nil {
				log.Debugf("informational exchange is for an unknown (expired?) SA with msgid=0x%08x", hdr.MsgId)
				return
			}
			if !sa.State.IsIsakmpEncrypted() {
				log.Warn("encrypted informational exchange message is invalid because no key is known")
				return
			}
			if hdr.MsgId == 0 {
				log.Warn("informational exchange message is invalid because it has a message id of 0")
				return
			}
			if !sa.Parent().msgids.Unique(hdr.MsgId) {
				log.Warnf("informational exchange message is invalid because it has a previously used message id 0x%08x", hdr.MsgId)
				return
			}
			sa.NewIV = sa.Parent().tkm.Phase2IV(sa.Parent().Phase1IV, hdr.MsgId)
			newIVSet = true
			fromState = state.INFO_PROTECTED
		} else {
			if sa != nil && sa.State.IsIsakmpSaEstablished() {
				log.Warn("informational exchange message must be encrypted")
				return
			}
			fromState = state.INFO
		}

	case protocol.ISAKMP_XCHG_QUICK:
		if hdr.IsZeroSpiI() || hdr.IsZeroSpiR() {
			log.Debug("quick mode message is invalid because it has a cookie of 0")
			e.sendNotificationFor(md, nil, protocol.INVALID_COOKIE)
			return
		}
		if hdr.MsgId == 0 {
			log.Debug("quick mode message is invalid because it has a message id of 0")
			e.sendNotificationFor(md, nil, protocol.INVALID_MESSAGE_ID)
			return
		}
		sa = e.sessions.Find(hdr.SpiI, hdr.SpiR, hdr.MsgId)
		if sa == nil {
			// no quick mode state; look for the parent phase 1 SA
			parent := e.sessions.Find(hdr.SpiI, hdr.SpiR, 0)
			if parent == nil {
				log.Debug("quick mode message is for a non-existent (expired?) ISAKMP SA")
				return
			}
			if parent.Oakley != nil && parent.Oakley.DoingXauth {
				log.Debug("cannot do quick mode until XAUTH done")
				return
			}
			// have we just given an IP address to the peer?
			if parent.State == state.MODE_CFG_R2 {
				e.changeState(parent, state.MAIN_R3)
			}
			if parent.Connection.Config.SoftRemoteWorkaround &&
				parent.State == state.MODE_CFG_R1 {
				log.Info("SoftRemote workaround: cannot do quick mode until MODECFG done")
				return
			}
			if !parent.State.IsIsakmpSaEstablished() {
				log.Warn("quick mode message is unacceptable because it is for an incomplete ISAKMP SA")
				e.sendNotificationFor(md, parent, protocol.PAYLOAD_MALFORMED)
				return
			}
			if !parent.msgids.Unique(hdr.MsgId) {
				log.Warnf("quick mode I1 message is unacceptable because it uses a previously used message id 0x%08x (perhaps this is a duplicated packet)", hdr.MsgId)
				e.sendNotificationFor(md, parent, protocol.INVALID_MESSAGE_ID)
				return
			}
			// quick mode initial IV
			parent.NewIV = parent.tkm.Phase2IV(parent.Phase1IV, hdr.MsgId)
			newIVSet = true
			sa = parent
			fromState = state.QUICK_R0
		} else {
			if sa.Parent().Oakley != nil && sa.Parent().Oakley.DoingXauth {
				log.Info("cannot do quick mode until XAUTH done")
				return
			}
			fromState = sa.State
		}

	case protocol.ISAKMP_XCHG_MODE_CFG:
		if hdr.IsZeroSpiI() || hdr.IsZeroSpiR() {
			log.Debug("mode config message is invalid because it has a cookie of 0")
			return
		}
		if hdr.MsgId == 0 {
			log.Debug("mode config message is invalid because it has a message id of 0")
			return
		}
		sa = e.sessions.Find(hdr.SpiI, hdr.SpiR, hdr.MsgId)
		if sa == nil {
			// a continuation of the outstanding phase 1.5 conversation
			// arrives under the msgid we recorded for it
			if parent := e.sessions.Find(hdr.SpiI, hdr.SpiR, 0); parent != nil &&
				parent.phase15MsgId == hdr.MsgId {
				sa = parent
			}
		}
		if sa == nil {
			parent := e.sessions.Find(hdr.SpiI, hdr.SpiR, 0)
			if parent == nil {
				log.Debug("mode config message is for a non-existent (expired?) ISAKMP SA")
				return
			}
			if !parent.State.IsIsakmpSaEstablished() && !parent.State.IsPhase1() {
				log.Debugf("mode config message is unacceptable because it is for an incomplete ISAKMP SA (state=%s)", parent.State)
				return
			}
			parent.NewIV = parent.tkm.Phase2IV(parent.Phase1IV, hdr.MsgId)
			newIVSet = true

			conn := parent.Connection
			switch {
			case conn.XauthServer && parent.State == state.XAUTH_R1 &&
				parent.hidden.XauthAckMsgid:
				// bogus new message in an outstanding XAUTH server
				// conversation; some broken implementations ack the
				// status under a fresh msgid
				fromState = state.XAUTH_R1
			case conn.XauthClient && parent.State.IsPhase1():
				fromState = state.XAUTH_I0
			case conn.XauthClient && parent.State == state.XAUTH_I1:
				// new MODECFG message after I0; the server wants to
				// start over
				fromState = state.XAUTH_I0
			case conn.ModeCfgServer && parent.State.IsPhase1():
				fromState = state.MODE_CFG_R0
			case conn.ModeCfgClient && parent.State.IsPhase1():
				fromState = state.MODE_CFG_R1
			default:
				log.Warnf("mode config in state %s does not fit any role; reply with UNSUPPORTED_EXCHANGE_TYPE", parent.State)
				e.sendNotificationFor(md, parent, protocol.UNSUPPORTED_EXCHANGE_TYPE)
				return
			}
			parent.phase15MsgId = hdr.MsgId
			sa = parent
		} else {
			if sa.Connection.XauthServer && sa.State.IsPhase1() {
				// switch from phase 1 to mode config
				e.changeState(sa, state.XAUTH_R0)
			}
			fromState = sa.State
		}

	default:
		log.Warnf("unsupported exchange type %s in message", hdr.ExchangeType)
		e.sendNotificationFor(md, sa, protocol.UNSUPPORTED_EXCHANGE_TYPE)
		return
	}

	// We don't support the Commit Flag. It is such a bad feature: it
	// isn't protected -- neither encrypted nor authenticated. A man in
	// the middle turns it on, leading to DoS.
	if hdr.Flags.IsCommit() {
		log.Warn("message has the commit flag set but it is not implemented due to security concerns; ignoring flag")
	}

	// fragmentation runs before microcode selection
	if hdr.NextPayload == protocol.PayloadTypeFragment {
		e.handleFragment(sa, md, b[protocol.IKE_HEADER_LEN:hdr.MsgLength], log)
		return
	}

	trans, ok := state.Lookup(fromState, authOf(sa))
	if !ok {
		log.Warnf("no transition from state %s for auth %s", fromState, authOf(sa))
		return
	}

	// duplicates cannot be detected for the initial packet of an
	// exchange: there is no state to remember it
	if sa != nil && e.isDuplicate(sa, md, log) {
		return
	}

	md.sa = sa
	md.FromState = fromState
	md.Transition = trans
	md.NewIVSet = newIVSet

	// encrypted packets cannot be handled before skeyid is computed;
	// store the digest in the suspended slot, the calculation is likely
	// underway
	if hdr.Flags.IsEncrypted() && sa != nil && !sa.Parent().tkm.SkeyidCalculated() {
		log.Debugf("received encrypted packet from %s but exponentiation still in progress", remote)
		if sa.suspended != nil {
			log.Debug("releasing suspended packet before completion; newest wins")
		}
		sa.suspended = md
		return
	}

	e.processTail(md)
}

func authOf(sa *Sa) protocol.AuthMethod {
	if sa == nil {
		return protocol.AUTH_NONE
	}
	return sa.Parent().AuthMethod()
}
