package ike

import (
	"encoding/binary"
	"time"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

// buildHashedPayloads prepends the prescribed HASH(n) payload over the
// encoding of the rest
func buildHashedPayloads(tkm *Tkm, hashType protocol.V1HashType, msgid uint32,
	niB, nrB []byte, rest *protocol.Payloads, e *Engine) *protocol.Payloads {
	restB := protocol.EncodePayloads(rest, e.log)
	hash := tkm.V1Hash(hashType, msgid, niB, nrB, restB)
	out := protocol.MakePayloads()
	out.Add(&protocol.HashPayload{PayloadHeader: &protocol.PayloadHeader{}, Data: hash})
	for _, pl := range rest.Array {
		out.Add(pl)
	}
	return out
}

// defaultEspProposal builds the Phase 2 offer
func defaultEspProposal(conn *Connection, spi uint32) *protocol.SaPayload {
	life := uint32(conn.Config.SaIpsecLife / time.Second)
	tr := &protocol.Transform{
		Number:      1,
		TransformId: uint8(protocol.ESP_AES),
		Attributes: []*protocol.Attribute{
			{Type: uint16(protocol.SA_LIFE_TYPE), Value: uint32(protocol.OAKLEY_LIFE_SECONDS)},
			{Type: uint16(protocol.SA_LIFE_DURATION), IsTlv: true, Bytes: lifeBytes(life), Value: life},
			{Type: uint16(protocol.ENCAPSULATION_MODE), Value: uint32(protocol.ENCAPSULATION_MODE_TUNNEL)},
			{Type: uint16(protocol.AUTH_ALGORITHM), Value: uint32(protocol.AUTH_ALGORITHM_HMAC_SHA1)},
			{Type: uint16(protocol.KEY_LENGTH), Value: 128},
		},
	}
	return &protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Doi:           protocol.ISAKMP_DOI_IPSEC,
		Situation:     protocol.SIT_IDENTITY_ONLY,
		Proposals: []*protocol.Proposal{{
			Number:     1,
			ProtocolId: protocol.PROTO_IPSEC_ESP,
			Spi:        spiBytes(spi),
			Transforms: []*protocol.Transform{tr},
		}},
	}
}

// selectEspProposal scans a Phase 2 offer for a transform we support
func selectEspProposal(saPl *protocol.SaPayload) (*protocol.Proposal, *protocol.Transform, protocol.NotificationType) {
	for _, prop := range saPl.Proposals {
		if prop.ProtocolId != protocol.PROTO_IPSEC_ESP || len(prop.Spi) != 4 {
			continue
		}
		for _, tr := range prop.Transforms {
			switch protocol.EspTransformId(tr.TransformId) {
			case protocol.ESP_AES, protocol.ESP_3DES, protocol.ESP_CAMELLIA:
				return prop, tr, protocol.NothingWrong
			}
		}
	}
	return nil, nil, protocol.NO_PROPOSAL_CHOSEN
}

func espAttrs(tr *protocol.Transform) (life time.Duration, tunnel bool) {
	tunnel = true
	var lifeType, lifeDur uint32
	for _, attr := range tr.Attributes {
		switch protocol.IpsecAttrType(attr.Type) {
		case protocol.SA_LIFE_TYPE:
			lifeType = attr.Value
		case protocol.SA_LIFE_DURATION:
			lifeDur = attr.Value
		case protocol.ENCAPSULATION_MODE:
			tunnel = uint16(attr.Value) == protocol.ENCAPSULATION_MODE_TUNNEL
		}
	}
	if lifeType == uint32(protocol.OAKLEY_LIFE_SECONDS) {
		life = time.Duration(lifeDur) * time.Second
	}
	return
}

func (e *Engine) newSpi() uint32 {
	b := make([]byte, 4)
	for {
		e.readRand(b)
		if spi := binary.BigEndian.Uint32(b); spi != 0 {
			return spi
		}
	}
}

// selectorId encodes one end of the negotiated traffic selectors
func selectorId(sel Selector) *protocol.IpsecIdPayload {
	id := &protocol.IpsecIdPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Protocol:      sel.Protocol,
		Port:          sel.Port,
	}
	if sel.Net == nil {
		return nil
	}
	if ip4 := sel.Net.IP.To4(); ip4 != nil {
		id.IdType = protocol.ID_IPV4_ADDR_SUBNET
		id.Data = append(append([]byte{}, ip4...), sel.Net.Mask...)
	} else {
		id.IdType = protocol.ID_IPV6_ADDR_SUBNET
		id.Data = append(append([]byte{}, sel.Net.IP.To16()...), sel.Net.Mask...)
	}
	return id
}

// initiateQuickMode fires one Phase 2 negotiation on an established
// keying channel: --> HDR*, HASH(1), SA, Ni [, IDci, IDcr]
func (e *Engine) initiateQuickMode(parent *Sa, p *PendingP2) error {
	msgid, err := e.freshMsgid(parent)
	if err != nil {
		return err
	}
	conn := p.Connection
	child := &Sa{
		SpiI:       append(protocol.Spi{}, parent.SpiI...),
		SpiR:       append(protocol.Spi{}, parent.SpiR...),
		Connection: conn,
		Remote:     parent.Remote,
		Local:      parent.Local,
		initiator:  true,
		MsgId:      msgid,
		parent:     parent,
	}
	nonce, err := parent.tkm.Nonce()
	if err != nil {
		return err
	}
	child.phase2 = &phase2State{
		SpiIn:       e.newSpi(),
		NonceI:      nonce,
		EncapTunnel: true,
		IdCi:        selectorId(conn.Selectors.Local),
		IdCr:        selectorId(conn.Selectors.Remote),
	}

	rest := protocol.MakePayloads()
	rest.Add(defaultEspProposal(conn, child.phase2.SpiIn))
	rest.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: nonce})
	if child.phase2.IdCi != nil && child.phase2.IdCr != nil {
		rest.Add(child.phase2.IdCi)
		rest.Add(child.phase2.IdCr)
	}
	payloads := buildHashedPayloads(parent.tkm, protocol.V1_HASH_1, msgid, nil, nil, rest, e)

	out := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         child.SpiI,
			SpiR:         child.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_QUICK,
			MsgId:        msgid,
		},
		Payloads: payloads,
		Encrypt:  true,
	}
	child.NewIV = parent.tkm.Phase2IV(parent.Phase1IV, msgid)
	b, err := encryptOutgoing(child, out, e.log)
	if err != nil {
		return err
	}
	child.IV = append([]byte{}, child.NewIV...)
	child.TPacket = b
	child.State = state.QUICK_I1
	e.sessions.Add(child)
	e.send(child, b)
	e.armTimer(child, state.EventRetransmit, conn.Config.RetransmitInterval)
	e.log.WithFields(child.Fields()).Infof("initiating quick mode msgid=%08x", msgid)
	return nil
}

// QUICK_R0: HDR*, HASH(1), SA, Ni [, KE] [, IDci, IDcr] -->
// HDR*, HASH(2), SA, Nr [, IDci, IDcr]
// Installs the inbound IPsec SA.
func (e *Engine) quickInI1OutR1(parent *Sa, md *Message) Result {
	if md.Get(protocol.PayloadTypeKE) != nil {
		// PFS is negotiated through a KE payload we do not offer
		e.log.Warn("quick mode with PFS is not configured on this connection")
		return Fail(protocol.ATTRIBUTES_NOT_SUPPORTED)
	}
	saPl, ok := md.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	prop, tr, note := selectEspProposal(saPl)
	if note != protocol.NothingWrong {
		return Fail(note)
	}
	nonce := md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload)

	child := &Sa{
		SpiI:       append(protocol.Spi{}, parent.SpiI...),
		SpiR:       append(protocol.Spi{}, parent.SpiR...),
		Connection: parent.Connection,
		Remote:     md.RemoteAddr,
		Local:      parent.Local,
		MsgId:      md.Header.MsgId,
		parent:     parent,
	}
	child.NewIV = append([]byte{}, parent.NewIV...)
	child.State = state.QUICK_R0
	e.sessions.Add(child)
	md.sa = child

	life, tunnel := espAttrs(tr)
	p2 := &phase2State{
		SpiIn:       e.newSpi(),
		SpiOut:      binary.BigEndian.Uint32(prop.Spi),
		Transform:   tr,
		EncapTunnel: tunnel,
		NonceI:      nonce.Data,
		Life:        life,
	}
	if life > 0 && life < parent.Connection.Config.SaIpsecLife {
		p2.peerDictated = true
	}
	if ids := md.Chain(protocol.PayloadTypeID); len(ids) == 2 {
		p2.IdCi = ids[0].(*protocol.IpsecIdPayload)
		p2.IdCr = ids[1].(*protocol.IpsecIdPayload)
	}
	nr, err := parent.tkm.Nonce()
	if err != nil {
		return InternalError()
	}
	p2.NonceR = nr
	child.phase2 = p2

	// inbound IPsec SA can be used as soon as the peer sees HASH(2)
	params := saParams(child)
	params.Direction = "in"
	params.Keymat = parent.tkm.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, p2.SpiIn,
		p2.NonceI, p2.NonceR, keymatLen(tr))
	if err := e.cb.AddSa(child, params); err != nil {
		e.log.Warnf("could not install inbound IPsec SA: %s", err)
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	p2.installedIn = true

	rest := protocol.MakePayloads()
	accepted := &protocol.SaPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		Doi:           saPl.Doi,
		Situation:     saPl.Situation,
		Proposals: []*protocol.Proposal{{
			Number:     prop.Number,
			ProtocolId: prop.ProtocolId,
			Spi:        spiBytes(p2.SpiIn),
			Transforms: []*protocol.Transform{tr},
		}},
	}
	rest.Add(accepted)
	rest.Add(&protocol.NoncePayload{PayloadHeader: &protocol.PayloadHeader{}, Data: nr})
	if p2.IdCi != nil && p2.IdCr != nil {
		rest.Add(p2.IdCi)
		rest.Add(p2.IdCr)
	}
	reply := md.EchoReply(protocol.PayloadTypeHASH, true)
	reply.Payloads = buildHashedPayloads(parent.tkm, protocol.V1_HASH_2, md.Header.MsgId,
		p2.NonceI, nil, rest, e)
	md.reply = reply
	return Ok()
}

// QUICK_I1: HDR*, HASH(2), SA, Nr [, IDci, IDcr] --> HDR*, HASH(3)
// Installs both IPsec SAs.
func (e *Engine) quickInR1OutI2(sa *Sa, md *Message) Result {
	p2 := sa.phase2
	parent := sa.Parent()
	saPl, ok := md.Get(protocol.PayloadTypeSA).(*protocol.SaPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	prop, tr, note := selectEspProposal(saPl)
	if note != protocol.NothingWrong {
		return Fail(note)
	}
	p2.SpiOut = binary.BigEndian.Uint32(prop.Spi)
	p2.Transform = tr
	p2.NonceR = md.Get(protocol.PayloadTypeNonce).(*protocol.NoncePayload).Data
	life, tunnel := espAttrs(tr)
	p2.EncapTunnel = tunnel
	if life > 0 {
		p2.Life = life
		if life < sa.Connection.Config.SaIpsecLife {
			p2.peerDictated = true
		}
	}
	// the responder may tighten the lifetime via a notification
	for _, pl := range md.Chain(protocol.PayloadTypeN) {
		n := pl.(*protocol.NotifyPayload)
		if n.NotificationType == protocol.IPSEC_RESPONDER_LIFETIME && len(n.Data) >= 4 {
			secs := binary.BigEndian.Uint32(n.Data[len(n.Data)-4:])
			e.log.Infof("responder dictated an IPsec SA lifetime of %d seconds", secs)
			p2.Life = time.Duration(secs) * time.Second
			p2.peerDictated = true
		}
	}

	inParams := saParams(sa)
	inParams.Direction = "in"
	inParams.Keymat = parent.tkm.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, p2.SpiIn,
		p2.NonceI, p2.NonceR, keymatLen(tr))
	if err := e.cb.AddSa(sa, inParams); err != nil {
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	p2.installedIn = true

	outParams := saParams(sa)
	outParams.Direction = "out"
	outParams.Keymat = parent.tkm.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, p2.SpiOut,
		p2.NonceI, p2.NonceR, keymatLen(tr))
	if err := e.cb.AddSa(sa, outParams); err != nil {
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	p2.installedOut = true

	reply := md.EchoReply(protocol.PayloadTypeHASH, true)
	reply.Payloads = buildHashedPayloads(parent.tkm, protocol.V1_HASH_3, md.Header.MsgId,
		p2.NonceI, p2.NonceR, protocol.MakePayloads(), e)
	md.reply = reply
	return Ok()
}

// QUICK_R1: HDR*, HASH(3) --> done
// Installs the outbound IPsec SA.
func (e *Engine) quickInI2(sa *Sa, md *Message) Result {
	p2 := sa.phase2
	parent := sa.Parent()
	params := saParams(sa)
	params.Direction = "out"
	params.Keymat = parent.tkm.IpsecKeyMaterial(protocol.PROTO_IPSEC_ESP, p2.SpiOut,
		p2.NonceI, p2.NonceR, keymatLen(p2.Transform))
	if err := e.cb.AddSa(sa, params); err != nil {
		return Fail(protocol.NO_PROPOSAL_CHOSEN)
	}
	p2.installedOut = true
	return Ok()
}
