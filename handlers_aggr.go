package ike

import (
	"github.com/msgboxio/ikev1/crypto"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

// aggrOutI1 starts Aggressive Mode: --> HDR, SA, KE, Ni, IDii.
// The first message already carries key material, so the send waits on
// a helper.
func (e *Engine) aggrOutI1(sa *Sa) error {
	conn := sa.Connection
	saPl := defaultOakleyProposal(conn)
	suite, err := crypto.NewCipherSuite(saPl.Proposals[0].Transforms[0])
	if err != nil {
		return err
	}
	sa.Oakley = &Oakley{Suite: suite, Auth: suite.Auth, Life: suite.Life}
	sa.tkm = NewTkm(suite, e.randReader)
	sa.tkm.SaiB = saPl.Encode()
	sa.State = state.AGGR_I1
	e.sessions.Add(sa)

	tkm := sa.tkm
	e.submitHelper(sa, nil,
		func() error {
			if err := tkm.DhGenerate(); err != nil {
				return err
			}
			n, err := tkm.Nonce()
			if err != nil {
				return err
			}
			tkm.NiB = n
			return nil
		},
		func(sa *Sa, _ *Message, err error) Result {
			if err != nil {
				e.log.Warnf("aggressive mode initiation failed: %s", err)
				e.deleteSa(sa)
				return Ignore()
			}
			tkm.GxI = tkm.DhPublic
			out := &OutgoingMessage{
				Header: &protocol.IsakmpHeader{
					SpiI:         sa.SpiI,
					SpiR:         sa.SpiR,
					MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
					MinorVersion: protocol.ISAKMP_MINOR_VERSION,
					ExchangeType: protocol.ISAKMP_XCHG_AGGR,
				},
				Payloads: protocol.MakePayloads(),
			}
			out.Payloads.Add(saPl)
			out.Payloads.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.GxI})
			out.Payloads.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.NiB})
			out.Payloads.Add(localIdPayload(conn))
			for _, vid := range vendorPayloads(conn) {
				out.Payloads.Add(vid)
			}
			b := encodeOutgoing(out, e.log)
			sa.TPacket = b
			e.send(sa, b)
			e.armTimer(sa, state.EventRetransmit, conn.Config.RetransmitInterval)
			e.log.WithFields(sa.Fields()).Info("initiating aggressive mode")
			return Ignore()
		})
	return nil
}

// AGGR_R0: HDR, SA, KE, Ni, IDii --> HDR, SA, KE, Nr, IDir, HASH_R
func (e *Engine) aggrInI1OutR1(sa *Sa, md *Message) Result {
	conn := e.conns.ForPeer(md.RemoteAddr)
	if conn == nil {
		e.log.Warnf("initial aggressive mode message from %s rejected: no connection", md.RemoteAddr)
		return Ignore()
	}
	saPl, ok := md.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	prop, suite, note := selectOakleyProposal(saPl, conn)
	if note != protocol.NothingWrong {
		return Fail(note)
	}
	ke := md.Get(protocol.PayloadTypeKE).(*protocol.KePayload)
	nonce := md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)

	sa = e.newResponderSa(md, conn)
	md.sa = sa
	sa.Oakley = &Oakley{Suite: suite, Auth: suite.Auth, Life: suite.Life}
	sa.tkm = NewTkm(suite, e.randReader)
	sa.tkm.SaiB = saPl.Encode()
	sa.tkm.GxI = ke.Data
	sa.tkm.NiB = nonce.Data

	// the identity arrives unprotected; aggressive mode responders can
	// not switch connections later, so it must fit now
	if !e.decodePeerId(sa, md, false, true) {
		e.deleteSa(sa)
		md.sa = nil
		return Fail(protocol.INVALID_ID_INFORMATION)
	}

	tkm := sa.tkm
	psk := conn.PSK
	return e.submitHelper(sa, md,
		func() error {
			if err := tkm.DhGenerate(); err != nil {
				return err
			}
			n, err := tkm.Nonce()
			if err != nil {
				return err
			}
			tkm.NrB = n
			return tkm.DhCompute(tkm.GxI)
		},
		func(sa *Sa, md *Message, err error) Result {
			if err != nil {
				e.log.Warnf("dh computation failed: %s", err)
				return Fail(protocol.INVALID_KEY_INFORMATION)
			}
			tkm.GxR = tkm.DhPublic
			if err := tkm.Skeyid(sa.Oakley.Auth, psk); err != nil {
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			if err := tkm.DeriveKeys(sa.SpiI, sa.SpiR); err != nil {
				return InternalError()
			}
			sa.IV = tkm.Phase1IV(tkm.GxI, tkm.GxR)
			sa.Phase1IV = append([]byte{}, sa.IV...)
			sa.NewIV = append([]byte{}, sa.IV...)
			sa.hidden.SkeyidCalculated = true

			myId := localIdPayload(sa.Connection)
			hashR := tkm.MainModeHash(false, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, myId.Encode())

			reply := md.EchoReply(protocol.PayloadTypeSA, false)
			reply.Header.SpiR = sa.SpiR
			reply.Payloads.Add(acceptedSaPayload(saPl, prop, sa.Oakley.Suite))
			reply.Payloads.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.GxR})
			reply.Payloads.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.NrB})
			reply.Payloads.Add(myId)
			auth := authPayload(e, sa, hashR)
			if auth == nil {
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			reply.Payloads.Add(auth)
			for _, vid := range vendorPayloads(sa.Connection) {
				reply.Payloads.Add(vid)
			}
			md.reply = reply
			return Ok()
		})
}

// AGGR_I1: HDR, SA, KE, Nr, IDir, HASH_R --> HDR*, HASH_I
func (e *Engine) aggrInR1OutI2(sa *Sa, md *Message) Result {
	saPl, ok := md.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	if _, suite, note := selectOakleyProposal(saPl, sa.Connection); note != protocol.NothingWrong {
		return Fail(note)
	} else if suite.Auth.BaseAuth() != sa.Oakley.Auth.BaseAuth() {
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	oldSpiR := sa.SpiR
	sa.SpiR = append(protocol.Spi{}, md.Header.SpiR...)
	e.sessions.Rekey(sa, oldSpiR)

	tkm := sa.tkm
	tkm.GxR = md.Get(protocol.PayloadTypeKE).(*protocol.KePayload).Data
	tkm.NrB = md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload).Data
	psk := sa.Connection.PSK

	return e.submitHelper(sa, md,
		func() error {
			return tkm.DhCompute(tkm.GxR)
		},
		func(sa *Sa, md *Message, err error) Result {
			if err != nil {
				return Fail(protocol.INVALID_KEY_INFORMATION)
			}
			if err := tkm.Skeyid(sa.Oakley.Auth, psk); err != nil {
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			if err := tkm.DeriveKeys(sa.SpiI, sa.SpiR); err != nil {
				return InternalError()
			}
			sa.IV = tkm.Phase1IV(tkm.GxI, tkm.GxR)
			sa.Phase1IV = append([]byte{}, sa.IV...)
			sa.NewIV = append([]byte{}, sa.IV...)
			sa.hidden.SkeyidCalculated = true

			if !e.decodePeerId(sa, md, true, true) {
				return Fail(protocol.INVALID_ID_INFORMATION)
			}
			peerId := md.Get(protocol.PayloadTypeID).(*protocol.IdPayload)
			expected := tkm.MainModeHash(false, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, peerId.Encode())
			if !e.checkPhase1Auth(sa, md, expected) {
				return Fail(protocol.AUTHENTICATION_FAILED)
			}

			myId := localIdPayload(sa.Connection)
			hashI := tkm.MainModeHash(true, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, myId.Encode())
			reply := md.EchoReply(protocol.PayloadTypeHASH, true)
			auth := authPayload(e, sa, hashI)
			if auth == nil {
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			reply.Payloads.Add(auth)
			md.reply = reply
			return Ok()
		})
}

// AGGR_R1: HDR*, HASH_I --> done
func (e *Engine) aggrInI2(sa *Sa, md *Message) Result {
	tkm := sa.tkm
	peerIdB := sa.peerIdentityPayloadBytes()
	expected := tkm.MainModeHash(true, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, peerIdB)
	if !e.checkPhase1Auth(sa, md, expected) {
		return Fail(protocol.AUTHENTICATION_FAILED)
	}
	return Ok()
}

// peerIdentityPayloadBytes rebuilds the ID payload body the peer sent
// in its first aggressive message, for the final hash check
func (o *Sa) peerIdentityPayloadBytes() []byte {
	id := &protocol.IdPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		IdType:        o.peerIdentity.Kind,
		Data:          o.peerIdentity.Data,
	}
	return id.Encode()
}
