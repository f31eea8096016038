package ike

import (
	"crypto/hmac"

	"github.com/msgboxio/ikev1/crypto"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

// mainOutI1 starts Main Mode: --> HDR, SA. There is no microcode state
// for this; the SA enters MAIN_I1 waiting for the responder's choice.
func (e *Engine) mainOutI1(sa *Sa) error {
	conn := sa.Connection
	saPl := defaultOakleyProposal(conn)
	suite, err := crypto.NewCipherSuite(saPl.Proposals[0].Transforms[0])
	if err != nil {
		return err
	}
	sa.Oakley = &Oakley{Suite: suite, Auth: suite.Auth, Life: suite.Life}
	sa.tkm = NewTkm(suite, e.randReader)
	sa.tkm.SaiB = saPl.Encode()

	out := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         sa.SpiI,
			SpiR:         sa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_IDPROT,
		},
		Payloads: protocol.MakePayloads(),
	}
	out.Payloads.Add(saPl)
	for _, vid := range vendorPayloads(conn) {
		out.Payloads.Add(vid)
	}
	b := encodeOutgoing(out, e.log)
	sa.TPacket = b
	sa.State = state.MAIN_I1
	e.sessions.Add(sa)
	e.send(sa, b)
	e.armTimer(sa, state.EventRetransmit, conn.Config.RetransmitInterval)
	e.log.WithFields(sa.Fields()).Info("initiating main mode")
	return nil
}

// MAIN_R0: HDR, SA --> HDR, SA
func (e *Engine) mainInI1OutR1(sa *Sa, md *Message) Result {
	conn := e.conns.ForPeer(md.RemoteAddr)
	if conn == nil {
		e.log.Warnf("initial main mode message from %s rejected: no connection", md.RemoteAddr)
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

	sa = e.newResponderSa(md, conn)
	md.sa = sa
	sa.Oakley = &Oakley{Suite: suite, Auth: suite.Auth, Life: suite.Life}
	sa.tkm = NewTkm(suite, e.randReader)
	sa.tkm.SaiB = saPl.Encode()

	reply := md.EchoReply(protocol.PayloadTypeSA, false)
	reply.Header.SpiR = sa.SpiR
	reply.Payloads.Add(acceptedSaPayload(saPl, prop, suite))
	for _, vid := range vendorPayloads(conn) {
		reply.Payloads.Add(vid)
	}
	md.reply = reply
	return Ok()
}

// MAIN_I1: HDR, SA --> HDR, KE, Ni
func (e *Engine) mainInR1OutI2(sa *Sa, md *Message) Result {
	saPl, ok := md.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	// the responder must have chosen from our offer
	if _, suite, note := selectOakleyProposal(saPl, sa.Connection); note != protocol.NothingWrong {
		return Fail(note)
	} else if suite.Auth.BaseAuth() != sa.Oakley.Auth.BaseAuth() {
		e.log.Warn("responder switched authentication method")
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	// learn the responder cookie
	oldSpiR := sa.SpiR
	sa.SpiR = append(protocol.Spi{}, md.Header.SpiR...)
	e.sessions.Rekey(sa, oldSpiR)

	tkm := sa.tkm
	return e.submitHelper(sa, md,
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
		func(sa *Sa, md *Message, err error) Result {
			if err != nil {
				e.log.Warnf("dh generation failed: %s", err)
				return InternalError()
			}
			tkm.GxI = tkm.DhPublic
			reply := md.EchoReply(protocol.PayloadTypeKE, false)
			reply.Payloads.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.GxI})
			reply.Payloads.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.NiB})
			md.reply = reply
			return Ok()
		})
}

// MAIN_R1: HDR, KE, Ni --> HDR, KE, Nr
// The responder has everything for the exponentiation; SKEYID and the
// derived keys are computed here so the next (encrypted) message can be
// handled.
func (e *Engine) mainInI2OutR2(sa *Sa, md *Message) Result {
	ke, ok := md.Get(protocol.PayloadTypeKE).(*protocol.KePayload)
	nonce, ok2 := md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)
	if !ok || !ok2 {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	tkm := sa.tkm
	tkm.GxI = ke.Data
	tkm.NiB = nonce.Data
	psk := sa.Connection.PSK

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
			if err := tkm.DhCompute(tkm.GxI); err != nil {
				return err
			}
			return nil
		},
		func(sa *Sa, md *Message, err error) Result {
			if err != nil {
				e.log.Warnf("dh computation failed: %s", err)
				return Fail(protocol.INVALID_KEY_INFORMATION)
			}
			tkm.GxR = tkm.DhPublic
			if err := tkm.Skeyid(sa.Oakley.Auth, psk); err != nil {
				e.log.Warnf("skeyid: %s", err)
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			if err := tkm.DeriveKeys(sa.SpiI, sa.SpiR); err != nil {
				return InternalError()
			}
			sa.IV = tkm.Phase1IV(tkm.GxI, tkm.GxR)
			sa.Phase1IV = append([]byte{}, sa.IV...)
			sa.hidden.SkeyidCalculated = true

			reply := md.EchoReply(protocol.PayloadTypeKE, false)
			reply.Header.SpiR = sa.SpiR
			reply.Payloads.Add(&protocol.KePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.GxR})
			reply.Payloads.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: tkm.NrB})
			md.reply = reply
			return Ok()
		})
}

// MAIN_I2: HDR, KE, Nr --> HDR*, IDi1, HASH_I / [CERT,] SIG_I
func (e *Engine) mainInR2OutI3(sa *Sa, md *Message) Result {
	ke, ok := md.Get(protocol.PayloadTypeKE).(*protocol.KePayload)
	nonce, ok2 := md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)
	if !ok || !ok2 {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	tkm := sa.tkm
	tkm.GxR = ke.Data
	tkm.NrB = nonce.Data
	psk := sa.Connection.PSK

	return e.submitHelper(sa, md,
		func() error {
			return tkm.DhCompute(tkm.GxR)
		},
		func(sa *Sa, md *Message, err error) Result {
			if err != nil {
				e.log.Warnf("dh computation failed: %s", err)
				return Fail(protocol.INVALID_KEY_INFORMATION)
			}
			if err := tkm.Skeyid(sa.Oakley.Auth, psk); err != nil {
				e.log.Warnf("skeyid: %s", err)
				return Fail(protocol.AUTHENTICATION_FAILED)
			}
			if err := tkm.DeriveKeys(sa.SpiI, sa.SpiR); err != nil {
				return InternalError()
			}
			sa.IV = tkm.Phase1IV(tkm.GxI, tkm.GxR)
			sa.Phase1IV = append([]byte{}, sa.IV...)
			sa.NewIV = append([]byte{}, sa.IV...)
			sa.hidden.SkeyidCalculated = true

			idPl := localIdPayload(sa.Connection)
			hash := tkm.MainModeHash(true, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, idPl.Encode())

			reply := md.EchoReply(protocol.PayloadTypeID, true)
			reply.Payloads.Add(idPl)
			if auth := authPayload(e, sa, hash); auth == nil {
				return Fail(protocol.AUTHENTICATION_FAILED)
			} else {
				reply.Payloads.Add(auth)
			}
			md.reply = reply
			return Ok()
		})
}

// MAIN_R2: HDR*, IDi1, HASH_I --> HDR*, IDr1, HASH_R
// The first authenticated message with a peer ID: identity refinement
// runs here, possibly switching connections (responder, non-aggressive).
func (e *Engine) mainInI3OutR3(sa *Sa, md *Message) Result {
	if !e.decodePeerId(sa, md, false, false) {
		return Fail(protocol.INVALID_ID_INFORMATION)
	}
	idPl := md.Get(protocol.PayloadTypeID).(*protocol.IdPayload)
	tkm := sa.tkm
	expected := tkm.MainModeHash(true, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, idPl.Encode())
	if !e.checkPhase1Auth(sa, md, expected) {
		return Fail(protocol.AUTHENTICATION_FAILED)
	}
	sa.Oakley.DoingXauth = sa.Connection.XauthServer

	myId := localIdPayload(sa.Connection)
	hashR := tkm.MainModeHash(false, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, myId.Encode())
	reply := md.EchoReply(protocol.PayloadTypeID, true)
	reply.Payloads.Add(myId)
	auth := authPayload(e, sa, hashR)
	if auth == nil {
		return Fail(protocol.AUTHENTICATION_FAILED)
	}
	reply.Payloads.Add(auth)
	md.reply = reply
	return Ok()
}

// MAIN_I3: HDR*, IDr1, HASH_R --> done
func (e *Engine) mainInR3(sa *Sa, md *Message) Result {
	if !e.decodePeerId(sa, md, true, false) {
		return Fail(protocol.INVALID_ID_INFORMATION)
	}
	idPl := md.Get(protocol.PayloadTypeID).(*protocol.IdPayload)
	tkm := sa.tkm
	expected := tkm.MainModeHash(false, tkm.GxI, tkm.GxR, sa.SpiI, sa.SpiR, idPl.Encode())
	if !e.checkPhase1Auth(sa, md, expected) {
		return Fail(protocol.AUTHENTICATION_FAILED)
	}
	return Ok()
}

// checkPhase1Auth verifies HASH_x (PSK) or SIG_x (signature auth)
// against the expected main mode hash
func (e *Engine) checkPhase1Auth(sa *Sa, md *Message, expected []byte) bool {
	switch sa.Oakley.Auth.BaseAuth() {
	case protocol.OAKLEY_PRESHARED_KEY:
		hp, ok := md.Get(protocol.PayloadTypeHASH).(*protocol.HashPayload)
		if !ok {
			return false
		}
		if !hmac.Equal(expected, hp.Data) {
			e.log.WithFields(sa.Fields()).Warn("authentication hash mismatch (mismatch of preshared secrets?)")
			return false
		}
		return true
	case protocol.OAKLEY_RSA_SIG, protocol.OAKLEY_DSS_SIG:
		sig, ok := md.Get(protocol.PayloadTypeSIG).(*protocol.SigPayload)
		if !ok {
			return false
		}
		if err := e.signer.Verify(sa.peerIdentity, expected, sig.Data); err != nil {
			e.log.WithFields(sa.Fields()).Warnf("signature verification failed: %s", err)
			return false
		}
		return true
	}
	return false
}

// authPayload builds our HASH or SIG payload over the main mode hash
func authPayload(e *Engine, sa *Sa, hash []byte) protocol.Payload {
	switch sa.Oakley.Auth.BaseAuth() {
	case protocol.OAKLEY_PRESHARED_KEY:
		return &protocol.HashPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: hash}
	case protocol.OAKLEY_RSA_SIG, protocol.OAKLEY_DSS_SIG:
		sig, err := e.signer.Sign(hash)
		if err != nil {
			e.log.Warnf("could not sign: %s", err)
			return nil
		}
		return &protocol.SigPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: sig}
	}
	return nil
}

// selectOakleyProposal scans an offered SA payload for the first
// transform we can run and the connection accepts
func selectOakleyProposal(saPl *protocol.SaPayload, conn *Connection) (*protocol.Proposal, *crypto.CipherSuite, protocol.NotificationType) {
	if saPl.Doi != protocol.ISAKMP_DOI_IPSEC {
		return nil, nil, protocol.DOI_NOT_SUPPORTED
	}
	if saPl.Situation != protocol.SIT_IDENTITY_ONLY {
		return nil, nil, protocol.SITUATION_NOT_SUPPORTED
	}
	for _, prop := range saPl.Proposals {
		if prop.ProtocolId != protocol.PROTO_ISAKMP {
			continue
		}
		for _, tr := range prop.Transforms {
			suite, err := crypto.NewCipherSuite(tr)
			if err != nil {
				continue
			}
			if !conn.Auth.Accepts(suite.Auth) {
				continue
			}
			chosen := &protocol.Proposal{
				Number:     prop.Number,
				ProtocolId: prop.ProtocolId,
				Spi:        prop.Spi,
				Transforms: []*protocol.Transform{tr},
			}
			return chosen, suite, protocol.NothingWrong
		}
	}
	return nil, nil, protocol.NO_PROPOSAL_CHOSEN
}

// acceptedSaPayload echoes the offer narrowed to the chosen transform
func acceptedSaPayload(offer *protocol.SaPayload, prop *protocol.Proposal, suite *crypto.CipherSuite) *protocol.SaPayload {
	return &protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Doi:           offer.Doi,
		Situation:     offer.Situation,
		Proposals:     []*protocol.Proposal{prop},
	}
}
