package ike

import (
	"encoding/binary"
	"time"

	"github.com/msgboxio/ikev1/protocol"
)

// dpdState tracks the RFC 3706 liveness exchange on an established SA
type dpdState struct {
	ourSeq   uint32 // next sequence we will probe with
	pending  uint32 // outstanding unacked probe, 0 when idle
	peerSeq  uint32 // highest peer sequence seen
	lastSeen time.Time

	timer *time.Timer
	gen   int
}

type dpdTick struct {
	sa  *Sa
	gen int
}

// dpdInit arms periodic probes when policy wants them and the peer
// announced support
func (e *Engine) dpdInit(sa *Sa) {
	cfg := sa.Connection.Config
	if !cfg.DPDEnabled {
		return
	}
	if !sa.hidden.PeerSupportsDPD {
		e.log.WithFields(sa.Fields()).Debug("DPD enabled locally but peer did not announce support")
		return
	}
	sa.dpd.lastSeen = e.now()
	if sa.dpd.ourSeq == 0 {
		seq := make([]byte, 4)
		e.readRand(seq)
		// RFC 3706: start at a random value, high bit clear
		sa.dpd.ourSeq = binary.BigEndian.Uint32(seq) &^ (1 << 31)
		if sa.dpd.ourSeq == 0 {
			sa.dpd.ourSeq = 1
		}
	}
	e.armDpdTimer(sa, cfg.DPDInterval)
}

// handleDpdTick sends a probe, or declares the peer dead
func (e *Engine) handleDpdTick(t dpdTick) {
	sa := t.sa
	if t.gen != sa.dpd.gen {
		return // stale
	}
	if !sa.State.IsIsakmpSaEstablished() {
		return
	}
	cfg := sa.Connection.Config
	if sa.dpd.pending != 0 && e.now().Sub(sa.dpd.lastSeen) > cfg.DPDTimeout {
		e.log.WithFields(sa.Fields()).Warn("DPD: peer is dead, deleting SA")
		e.deleteSa(sa)
		return
	}
	sa.dpd.pending = sa.dpd.ourSeq
	e.sendDpdNotify(sa, protocol.R_U_THERE, sa.dpd.ourSeq)
	sa.dpd.ourSeq++
	e.armDpdTimer(sa, cfg.DPDInterval)
}

// dpdInOutAck answers an R_U_THERE with the matching ACK. The state is
// unchanged; the DPD idle clock resets.
func (e *Engine) dpdInOutAck(sa *Sa, md *Message, n *protocol.NotifyPayload) Result {
	p1 := sa.Parent()
	seq, ok := n.Seq()
	if !ok {
		e.log.WithFields(p1.Fields()).Warn("DPD: R_U_THERE has no sequence number")
		return Ignore()
	}
	if !spiPairMatches(n.Spi, p1) {
		e.log.WithFields(p1.Fields()).Warn("DPD: R_U_THERE has invalid SPI")
		return Ignore()
	}
	if p1.dpd.peerSeq != 0 && seq <= p1.dpd.peerSeq {
		e.log.WithFields(p1.Fields()).Debugf("DPD: old or duplicate R_U_THERE seq %d", seq)
		return Ignore()
	}
	p1.dpd.peerSeq = seq
	p1.dpd.lastSeen = e.now()
	e.sendDpdNotify(p1, protocol.R_U_THERE_ACK, seq)
	if p1.Connection.Config.DPDEnabled && p1.hidden.PeerSupportsDPD {
		e.armDpdTimer(p1, p1.Connection.Config.DPDInterval)
	}
	return Ignore()
}

// dpdInAck matches an R_U_THERE_ACK against our outstanding probe
func (e *Engine) dpdInAck(sa *Sa, n *protocol.NotifyPayload) Result {
	p1 := sa.Parent()
	seq, ok := n.Seq()
	if !ok {
		return Ignore()
	}
	if p1.dpd.pending != 0 && seq == p1.dpd.pending {
		p1.dpd.pending = 0
		p1.dpd.lastSeen = e.now()
	} else {
		e.log.WithFields(p1.Fields()).Debugf("DPD: unexpected ACK seq %d", seq)
	}
	return Ignore()
}

func (e *Engine) sendDpdNotify(sa *Sa, nt protocol.NotificationType, seq uint32) {
	msgid, err := e.freshMsgid(sa)
	if err != nil {
		return
	}
	seqB := make([]byte, 4)
	binary.BigEndian.PutUint32(seqB, seq)
	out := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         sa.SpiI,
			SpiR:         sa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
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
		NotificationType: nt,
		Spi:              append(append(protocol.Spi{}, sa.SpiI...), sa.SpiR...),
		Data:             seqB,
	})
	e.sendProtectedInfo(sa, out)
}

func spiPairMatches(spi []byte, sa *Sa) bool {
	if len(spi) != 2*protocol.COOKIE_LEN {
		return false
	}
	return spiKey(spi[:protocol.COOKIE_LEN]) == spiKey(sa.SpiI) &&
		spiKey(spi[protocol.COOKIE_LEN:]) == spiKey(sa.SpiR)
}
