package ike

import (
	"math/rand"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

type transitionFn func(*Sa, *Message) Result

func (e *Engine) handlerFor(id state.HandlerId) transitionFn {
	switch id {
	case state.HandlerUnexpected:
		return e.unexpected
	case state.HandlerInformational:
		return e.informational
	case state.HandlerMainInI1OutR1:
		return e.mainInI1OutR1
	case state.HandlerMainInR1OutI2:
		return e.mainInR1OutI2
	case state.HandlerMainInI2OutR2:
		return e.mainInI2OutR2
	case state.HandlerMainInR2OutI3:
		return e.mainInR2OutI3
	case state.HandlerMainInI3OutR3:
		return e.mainInI3OutR3
	case state.HandlerMainInR3:
		return e.mainInR3
	case state.HandlerAggrInI1OutR1:
		return e.aggrInI1OutR1
	case state.HandlerAggrInR1OutI2:
		return e.aggrInR1OutI2
	case state.HandlerAggrInI2:
		return e.aggrInI2
	case state.HandlerQuickInI1OutR1:
		return e.quickInI1OutR1
	case state.HandlerQuickInR1OutI2:
		return e.quickInR1OutI2
	case state.HandlerQuickInI2:
		return e.quickInI2
	case state.HandlerXauthInR0:
		return e.xauthInR0
	case state.HandlerXauthInR1:
		return e.xauthInR1
	case state.HandlerModeCfgInR0:
		return e.modeCfgInR0
	case state.HandlerModeCfgInR1:
		return e.modeCfgInR1
	case state.HandlerXauthInI0:
		return e.xauthInI0
	case state.HandlerXauthInI1:
		return e.xauthInI1
	}
	return e.unexpected
}

func (e *Engine) unexpected(sa *Sa, md *Message) Result {
	if sa != nil {
		e.log.WithFields(sa.Fields()).Warnf("unexpected message received in state %s", sa.State)
	} else {
		e.log.Warn("unexpected message received")
	}
	return Ignore()
}

// processTail runs the common packet machinery after the demux resolved
// routing: decryption, payload decoding against the microcode masks,
// HASH protection, ancillary payload scanning, then the handler.
func (e *Engine) processTail(md *Message) {
	log := e.log
	sa := md.sa
	trans := md.Transition
	body := md.Data[protocol.IKE_HEADER_LEN:md.Header.MsgLength]

	if md.Header.Flags.IsEncrypted() {
		if sa == nil {
			log.Warn("discarding encrypted message for an unknown ISAKMP SA")
			return
		}
		dec, err := decryptBody(sa, md, body, log)
		if err != nil {
			log.WithFields(sa.Fields()).Warnf("discarding encrypted message: %s", err)
			return
		}
		body = dec
	} else if trans.Flags.Has(state.InputEncrypted) {
		log.Warn("packet rejected: should have been encrypted")
		e.sendNotificationFor(md, sa, protocol.INVALID_FLAGS)
		return
	}

	if err := parsePayloads(md, body, trans, sa, log); err != nil {
		excuse := ""
		if trans.Flags.Has(state.AuthPSK | state.FirstEncryptedInput) {
			excuse = "probable authentication failure (mismatch of preshared secrets?): "
		}
		log.Warnf("%s%s", excuse, err)
		// a protocol violation inside an encrypted body is dropped
		// silently; the plaintext case gets a notification
		if !md.Encrypted {
			e.sendNotificationFor(md, sa, noteOf(err))
		}
		return
	}

	if log.Level == logrus.DebugLevel {
		log.Debug("Rx:\n" + spew.Sdump(md.Header, md.Payloads))
	}

	if sa != nil && !checkV1Hash(sa, md, body, log) {
		if trans.HashType != protocol.V1_HASH_NONE {
			sa.hidden.MalformedReceived++
		}
		return
	}

	scanVendorIds(md, log)
	e.warnStrayNotifications(md)

	if e.acceptDeletes(md) {
		// the packet deleted the very SA it arrived on
		md.sa = nil
		sa = nil
		if md.Header.ExchangeType != protocol.ISAKMP_XCHG_INFO {
			return
		}
	}

	result := e.handlerFor(trans.Handler)(sa, md)
	e.completeTransition(md, result)
}

// completeTransition applies the handler's result: the dispatcher owns
// every side effect, handlers never advance state or schedule timers.
func (e *Engine) completeTransition(md *Message, result Result) {
	log := e.log
	log.Debugf("complete v1 state transition with %s", result.Status)

	switch result.Status {
	case StfSuspend:
		// digest is retained by the in-flight helper; nothing to do
		return
	case StfIgnore:
		return
	}

	sa := md.sa
	if sa == nil {
		// a handler can reject before any SA exists (initial messages)
		if result.Status == StfFail && result.Notify != protocol.NothingWrong {
			e.sendNotificationFor(md, nil, result.Notify)
		}
		return
	}
	trans := md.Transition

	switch result.Status {
	case StfOk:
		// accept info from VIDs because we accept this message
		if md.fragVid {
			log.Debug("peer supports fragmentation")
			sa.hidden.SeenFragVid = true
		}
		if md.dpdVid {
			log.Debug("peer supports DPD")
			sa.hidden.PeerSupportsDPD = true
		}
		if md.nortelVid {
			log.Debug("peer requires Nortel Contivity workaround")
			sa.hidden.SeenNortelVid = true
		}
		if md.nattVid && !sa.Connection.Config.Aggressive {
			sa.hidden.NatTraversalRFC = true
		}

		// message id reservation on the parent for child exchanges
		if sa.MsgId != 0 && sa.parent != nil {
			sa.parent.msgids.Reserve(sa.MsgId)
		}

		log.WithFields(sa.Fields()).Infof("transition from state %s to state %s",
			md.FromState, trans.NextState)
		e.changeState(sa, trans.NextState)

		// XAUTH without ModeCFG cannot follow the regular state machine:
		// the CFG payload cannot distinguish "XAUTH OK, no ModeCFG" from
		// "XAUTH OK, expect ModeCFG". Jump to the established state so
		// the machine picks up Quick Mode.
		timeout := trans.Timeout
		if sa.Connection.XauthClient &&
			sa.hidden.XauthClientDone &&
			!sa.Connection.ModeCfgClient &&
			sa.State == state.XAUTH_I1 {
			log.Info("XAUTH completed; ModeCFG skipped as per configuration")
			if sa.Connection.Config.Aggressive {
				e.changeState(sa, state.AGGR_I2)
			} else {
				e.changeState(sa, state.MAIN_I4)
			}
			sa.phase15MsgId = 0
			timeout = state.EventSaReplace
		}
		// same fixup when the table already landed us in the
		// established state
		if sa.Connection.XauthClient &&
			sa.hidden.XauthClientDone &&
			!sa.Connection.ModeCfgClient &&
			(sa.State == state.MAIN_I4 || sa.State == state.AGGR_I2) &&
			timeout == state.EventRetransmit {
			timeout = state.EventSaReplace
		}

		releaseFragments(sa)
		sa.dupCount = 0
		sa.retransmitCount = 0

		// save the received packet and this transition: only when the
		// last transition was a reply should a duplicate trigger a
		// retransmit
		sa.rememberPacket(md)
		sa.LastTransition = trans

		if trans.Flags.Has(state.Reply) {
			if md.reply == nil {
				log.WithFields(sa.Fields()).Error("transition wants a reply but the handler built none")
			} else if err := e.sendReply(sa, md.reply); err != nil {
				log.WithFields(sa.Fields()).Warnf("could not send reply: %s", err)
			}
		}

		// commit the IV chain once the reply (if any) advanced it; the
		// last phase 1 block seeds every phase 2 IV. Plaintext
		// transitions leave the chain alone.
		if len(sa.NewIV) > 0 {
			sa.IV = append([]byte{}, sa.NewIV...)
			if sa.IsPhase1() && trans.State.IsPhase1() {
				sa.Phase1IV = append([]byte{}, sa.NewIV...)
			}
		}

		e.scheduleTimeout(sa, trans, timeout)
		e.logProgress(sa)

		// make sure a DPD exchange runs on a fresh ISAKMP SA
		if sa.State.IsIsakmpSaEstablished() {
			e.dpdInit(sa)
			e.natUpdateEndpoint(sa, md)
		}

		// XAUTH server sends its challenge once phase 1 is up
		if sa.Connection.XauthServer &&
			sa.Oakley.DoingXauth &&
			sa.State.IsIsakmpSaEstablished() {
			log.Debug("XAUTH: sending login/password request")
			e.sendXauthRequest(sa)
			return
		}

		// XAUTH client stays put and lets the server query us
		if !sa.State.IsQuick() &&
			sa.Connection.XauthClient &&
			!sa.hidden.XauthClientDone {
			log.Debug("XAUTH client is not yet authenticated")
			return
		}

		// mode config client pulls when policy or quirk says so
		if sa.Connection.ModeCfgClient &&
			sa.State.IsIsakmpSaEstablished() &&
			(sa.hidden.ModeCfgPullMode || sa.Connection.Config.ModeCfgPull) &&
			!sa.hidden.ModeCfgStarted {
			log.Debug("modecfg client is starting")
			e.sendModeCfgRequest(sa)
			return
		}

		// mode config server pushes the peer's address regardless
		if sa.Connection.ModeCfgServer &&
			sa.State.IsIsakmpSaEstablished() &&
			!sa.hidden.ModeCfgVarsSet &&
			!sa.Connection.Config.ModeCfgPull {
			e.changeState(sa, state.MODE_CFG_R1)
			log.Info("sending MODE CONFIG set")
			e.sendModeCfgSet(sa)
			return
		}

		// a responder talking to a Contivity client initiates Quick Mode
		// itself
		if !trans.Flags.Has(state.Initiator) &&
			sa.State.IsModeCfgEstablished() &&
			sa.hidden.SeenNortelVid {
			log.Info("Nortel 'Contivity Mode' detected, starting Quick Mode")
			e.changeState(sa, state.MAIN_R3)
			e.queuePending(sa, &PendingP2{Connection: sa.Connection})
			e.releasePending(sa)
			return
		}

		// wait for modecfg set
		if sa.Connection.ModeCfgClient &&
			sa.State.IsIsakmpSaEstablished() &&
			!sa.hidden.ModeCfgVarsSet {
			log.Debug("waiting for modecfg set from server")
			return
		}

		if trans.Flags.Has(state.ReleasePendingP2) {
			e.releasePending(sa.Parent())
		}

	case StfInternalError:
		sa.rememberPacket(md)
		log.WithFields(sa.Fields()).Errorf("state transition function for %s had internal error", sa.State)
		// keep the SA to avoid cascading on a transient bug

	case StfFatal:
		sa.rememberPacket(md)
		log.WithFields(sa.Fields()).Errorf("encountered fatal error in state %s", sa.State)
		e.deleteSa(sa)

	case StfFail:
		// act as if this message never happened: whatever retrying was
		// in place remains in place
		note := result.Notify
		log.WithFields(sa.Fields()).Warnf("state transition function for %s failed: %s", sa.State, note)
		if note != protocol.NothingWrong {
			e.sendNotificationFor(md, sa, note)
		}
		if sa.State.IsQuick() {
			e.deleteSa(sa)
			md.sa = nil
		}
	}
}

// scheduleTimeout arms the single post-transition timer
func (e *Engine) scheduleTimeout(sa *Sa, trans *state.Transition, kind state.EventType) {
	cfg := sa.Connection.Config
	switch kind {
	case state.EventRetransmit:
		e.armTimer(sa, kind, cfg.RetransmitInterval)
	case state.EventSoDiscard:
		e.armTimer(sa, kind, cfg.ResponseWait)
	case state.EventSaReplace:
		delay := e.replaceDelay(sa, trans)
		e.armTimer(sa, kind, delay)
	case state.EventNull:
		e.disarmTimer(sa)
	}
}

// replaceDelay computes the rekey delay. We will defer to the
// "negotiated" (dictated) lifetime under DontRekey; this allows the
// other side to dictate a time we would not otherwise accept but it
// prevents us from having to initiate rekeying.
func (e *Engine) replaceDelay(sa *Sa, trans *state.Transition) time.Duration {
	c := sa.Connection.Config
	var delay time.Duration
	agreed := false

	if sa.State.IsPhase1() || sa.State.IsPhase15() {
		delay = c.SaIkeLife
		if negotiated := sa.Oakley.Life; negotiated > 0 &&
			(c.DontRekey || delay >= negotiated) {
			agreed = true
			delay = negotiated
		}
	} else {
		delay = c.SaIpsecLife
		if sa.phase2 != nil && sa.phase2.Life > 0 && delay >= sa.phase2.Life {
			agreed = true
			delay = sa.phase2.Life
		}
	}

	sa.replaceIsExpire = false
	if agreed && c.DontRekey {
		// dictated by peer; expire rather than rekey
		sa.replaceIsExpire = true
	}
	if !sa.replaceIsExpire {
		// we favour the initiator over the responder by making the
		// initiator start rekeying sooner; fuzz only on its margin
		marg := c.RekeyMargin
		if trans.Flags.Has(state.Initiator) {
			marg += time.Duration(float64(marg) * c.RekeyFuzz * rand.Float64())
		} else {
			marg /= 2
		}
		if delay > marg {
			delay -= marg
		} else {
			sa.replaceIsExpire = true
		}
	}
	return delay
}

func (e *Engine) changeState(sa *Sa, next state.State) {
	sa.State = next
}

func (e *Engine) logProgress(sa *Sa) {
	switch {
	case sa.State.IsQuick() && (sa.State == state.QUICK_I2 || sa.State == state.QUICK_R2):
		e.log.WithFields(sa.Fields()).Info("IPsec SA established")
	case sa.State.IsIsakmpSaEstablished():
		e.log.WithFields(sa.Fields()).Info("ISAKMP SA established")
	default:
		e.log.WithFields(sa.Fields()).Infof("%s", sa.State)
	}
}

// warnStrayNotifications logs notification payloads that ride on
// non-informational exchanges; the handled set is processed later by
// the informational handler or quick mode.
func (e *Engine) warnStrayNotifications(md *Message) {
	for _, pl := range md.Chain(protocol.PayloadTypeN) {
		n := pl.(*protocol.NotifyPayload)
		switch n.NotificationType {
		case protocol.R_U_THERE, protocol.R_U_THERE_ACK,
			protocol.ISAKMP_N_CISCO_LOAD_BALANCE,
			protocol.PAYLOAD_MALFORMED:
			if md.Header.ExchangeType == protocol.ISAKMP_XCHG_INFO {
				continue // handled in informational()
			}
			fallthrough
		case protocol.INVALID_MESSAGE_ID, protocol.IPSEC_RESPONDER_LIFETIME:
			if md.Header.ExchangeType == protocol.ISAKMP_XCHG_INFO ||
				md.Header.ExchangeType == protocol.ISAKMP_XCHG_QUICK {
				continue // consumed by informational() or quick mode
			}
			fallthrough
		default:
			e.log.Infof("ignoring informational payload %s, msgid=%08x",
				n.NotificationType, md.Header.MsgId)
		}
	}
}
