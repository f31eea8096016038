package ike

import (
	"github.com/msgboxio/ikev1/protocol"
)

// buildNotification assembles an informational message carrying one
// notification payload. Error notifications ride unprotected when we
// have no keying material yet.
func buildNotification(spiI, spiR protocol.Spi, msgid uint32, nt protocol.NotificationType, data []byte) *OutgoingMessage {
	msg := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_INFO,
			MsgId:        msgid,
		},
		Payloads: protocol.MakePayloads(),
	}
	msg.Payloads.Add(&protocol.NotifyPayload{
		PayloadHeader:    &protocol.PayloadHeader{},
		Doi:              protocol.ISAKMP_DOI_IPSEC,
		ProtocolId:       protocol.PROTO_ISAKMP,
		NotificationType: nt,
		Data:             data,
	})
	return msg
}

// sendNotificationFor emits an error notification for a packet, from
// the SA when one exists, else echoing the packet's cookies.
func (e *Engine) sendNotificationFor(md *Message, sa *Sa, nt protocol.NotificationType) {
	var spiI, spiR protocol.Spi
	if sa != nil {
		spiI, spiR = sa.SpiI, sa.SpiR
		if nt == protocol.PAYLOAD_MALFORMED {
			sa.hidden.MalformedSent++
		}
	} else if md != nil {
		spiI, spiR = md.Header.SpiI, md.Header.SpiR
	}
	out := buildNotification(spiI, spiR, 0, nt, nil)
	b := encodeOutgoing(out, e.log)
	e.sendTo(b, remoteOf(md, sa))
	e.log.Infof("sent notification %s", nt)
}

// sendDelete announces the removal of an ISAKMP SA to the peer
func (e *Engine) sendDelete(sa *Sa) {
	if !sa.State.IsIsakmpSaEstablished() {
		return
	}
	msgid, err := e.freshMsgid(sa)
	if err != nil {
		return
	}
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
	spis := append(append(protocol.Spi{}, sa.SpiI...), sa.SpiR...)
	out.Payloads.Add(&protocol.DeletePayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Doi:           protocol.ISAKMP_DOI_IPSEC,
		ProtocolId:    protocol.PROTO_ISAKMP,
		Spis:          []protocol.Spi{spis},
	})
	e.sendProtectedInfo(sa, out)
}

// sendProtectedInfo attaches HASH(1) over the informational body and
// transmits it under a fresh phase 2 IV.
func (e *Engine) sendProtectedInfo(sa *Sa, out *OutgoingMessage) {
	p1 := sa.Parent()
	if !p1.tkm.SkeyidCalculated() {
		return
	}
	rest := protocol.EncodePayloads(out.Payloads, e.log)
	hash := p1.tkm.V1Hash(protocol.V1_HASH_1, out.Header.MsgId, nil, nil, rest)
	withHash := protocol.MakePayloads()
	withHash.Add(&protocol.HashPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: hash})
	for _, pl := range out.Payloads.Array {
		withHash.Add(pl)
	}
	out.Payloads = withHash

	savedIV := sa.NewIV
	sa.NewIV = p1.tkm.Phase2IV(p1.Phase1IV, out.Header.MsgId)
	b, err := encryptOutgoing(sa, out, e.log)
	sa.NewIV = savedIV // informational exchanges never advance the chain
	if err != nil {
		e.log.Warnf("could not encrypt informational: %s", err)
		return
	}
	e.send(sa, b)
}
