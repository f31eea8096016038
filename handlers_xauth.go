package ike

import (
	"net"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/msgboxio/ikev1/state"
)

// modeCfgVars is what a mode config exchange assigned to this side
type modeCfgVars struct {
	IP      net.IP
	Netmask net.IP
	DNS     []net.IP
}

// sendPhase15 wraps a mode config payload in HASH(1) and transmits it
// under the exchange's msgid. A fresh msgid seeds a fresh IV.
func (e *Engine) sendPhase15(sa *Sa, msgid uint32, cfg *protocol.ModeCfgPayload, freshIV bool) {
	rest := protocol.MakePayloads()
	rest.Add(cfg)
	payloads := buildHashedPayloads(sa.Parent().tkm, protocol.V1_HASH_1, msgid, nil, nil, rest, e)
	out := &OutgoingMessage{
		Header: &protocol.IsakmpHeader{
			SpiI:         sa.SpiI,
			SpiR:         sa.SpiR,
			MajorVersion: protocol.ISAKMP_MAJOR_VERSION,
			MinorVersion: protocol.ISAKMP_MINOR_VERSION,
			ExchangeType: protocol.ISAKMP_XCHG_MODE_CFG,
			MsgId:        msgid,
		},
		Payloads: payloads,
		Encrypt:  true,
	}
	if freshIV {
		sa.NewIV = sa.Parent().tkm.Phase2IV(sa.Parent().Phase1IV, msgid)
	}
	b, err := encryptOutgoing(sa, out, e.log)
	if err != nil {
		e.log.Warnf("could not send mode config message: %s", err)
		return
	}
	// commit the chain so the peer's continuation decrypts against the
	// block we just emitted
	sa.IV = append([]byte{}, sa.NewIV...)
	sa.TPacket = b
	e.send(sa, b)
}

func tlvAttr(t protocol.ModeCfgAttrType, value []byte) *protocol.Attribute {
	return &protocol.Attribute{Type: uint16(t), IsTlv: true, Bytes: value}
}

func tvAttr(t protocol.ModeCfgAttrType, value uint32) *protocol.Attribute {
	return &protocol.Attribute{Type: uint16(t), Value: value}
}

// sendXauthRequest opens the XAUTH conversation: the server challenges
// for login and password
func (e *Engine) sendXauthRequest(sa *Sa) {
	msgid, err := e.freshMsgid(sa)
	if err != nil {
		return
	}
	sa.phase15MsgId = msgid
	cfg := &protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_REQUEST,
		Attributes: []*protocol.Attribute{
			tvAttr(protocol.XAUTH_TYPE, 0),
			tlvAttr(protocol.XAUTH_USER_NAME, nil),
			tlvAttr(protocol.XAUTH_USER_PASSWORD, nil),
		},
	}
	e.sendPhase15(sa, msgid, cfg, true)
	e.armTimer(sa, state.EventRetransmit, sa.Connection.Config.RetransmitInterval)
}

// XAUTH_R0: the server receives the credential reply
func (e *Engine) xauthInR0(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok || cfg.CfgType != protocol.ISAKMP_CFG_REPLY {
		e.log.Warn("expected XAUTH credential reply")
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	var user, pass string
	if attr, found := cfg.GetAttr(protocol.XAUTH_USER_NAME); found {
		user = string(attr.Bytes)
	}
	if attr, found := cfg.GetAttr(protocol.XAUTH_USER_PASSWORD); found {
		pass = string(attr.Bytes)
	}
	status := uint32(0)
	if e.xauth.Check(user, pass) {
		status = 1
	}
	set := &protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_SET,
		Attributes:    []*protocol.Attribute{tvAttr(protocol.XAUTH_STATUS, status)},
	}
	e.sendPhase15(sa, md.Header.MsgId, set, false)
	if status == 0 {
		e.log.WithFields(sa.Fields()).Warnf("XAUTH: authentication failed for user %q", user)
		return Fatal()
	}
	e.log.WithFields(sa.Fields()).Infof("XAUTH: user %q authenticated", user)
	return Ok()
}

// XAUTH_R1: the server receives the status ack; phase 1 completes
func (e *Engine) xauthInR1(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok || cfg.CfgType != protocol.ISAKMP_CFG_ACK {
		e.log.Warn("expected XAUTH status ack")
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	if md.Header.MsgId != sa.phase15MsgId {
		// some implementations ack under a fresh msgid
		sa.hidden.XauthAckMsgid = true
	}
	sa.Oakley.DoingXauth = false
	return Ok()
}

// XAUTH_I0: the client receives the credential challenge. Re-entry
// after completion is idempotent: once authenticated we just repeat the
// reply without double authenticating.
func (e *Engine) xauthInI0(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok || cfg.CfgType != protocol.ISAKMP_CFG_REQUEST {
		e.log.Warn("expected XAUTH credential request")
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	conn := sa.Connection
	sa.phase15MsgId = md.Header.MsgId
	reply := md.EchoReply(protocol.PayloadTypeHASH, true)
	rest := protocol.MakePayloads()
	rest.Add(&protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_REPLY,
		Identifier:    cfg.Identifier,
		Attributes: []*protocol.Attribute{
			tlvAttr(protocol.XAUTH_USER_NAME, []byte(conn.XauthUser)),
			tlvAttr(protocol.XAUTH_USER_PASSWORD, []byte(conn.XauthPass)),
		},
	})
	reply.Payloads = buildHashedPayloads(sa.Parent().tkm, protocol.V1_HASH_1,
		md.Header.MsgId, nil, nil, rest, e)
	md.reply = reply
	return Ok()
}

// XAUTH_I1: the client receives the status set and acks it
func (e *Engine) xauthInI1(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok || cfg.CfgType != protocol.ISAKMP_CFG_SET {
		e.log.Warn("expected XAUTH status set")
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	status, found := cfg.GetAttr(protocol.XAUTH_STATUS)
	if !found || status.Value == 0 {
		e.log.WithFields(sa.Fields()).Warn("XAUTH: server rejected our credentials")
		return Fatal()
	}
	sa.hidden.XauthClientDone = true
	reply := md.EchoReply(protocol.PayloadTypeHASH, true)
	rest := protocol.MakePayloads()
	rest.Add(&protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_ACK,
		Identifier:    cfg.Identifier,
		Attributes:    []*protocol.Attribute{tvAttr(protocol.XAUTH_STATUS, 1)},
	})
	reply.Payloads = buildHashedPayloads(sa.Parent().tkm, protocol.V1_HASH_1,
		md.Header.MsgId, nil, nil, rest, e)
	md.reply = reply
	return Ok()
}

// sendModeCfgRequest pulls our address from the server
func (e *Engine) sendModeCfgRequest(sa *Sa) {
	msgid, err := e.freshMsgid(sa)
	if err != nil {
		return
	}
	sa.phase15MsgId = msgid
	sa.hidden.ModeCfgStarted = true
	cfg := &protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_REQUEST,
		Attributes: []*protocol.Attribute{
			tlvAttr(protocol.INTERNAL_IP4_ADDRESS, nil),
			tlvAttr(protocol.INTERNAL_IP4_NETMASK, nil),
			tlvAttr(protocol.INTERNAL_IP4_DNS, nil),
		},
	}
	e.changeState(sa, state.MODE_CFG_I1)
	e.sendPhase15(sa, msgid, cfg, true)
	e.armTimer(sa, state.EventRetransmit, sa.Connection.Config.RetransmitInterval)
}

// sendModeCfgSet pushes the peer's address; the dispatcher moved the
// state to MODE_CFG_R1 already
func (e *Engine) sendModeCfgSet(sa *Sa) {
	msgid, err := e.freshMsgid(sa)
	if err != nil {
		return
	}
	sa.phase15MsgId = msgid
	cfg := &protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_SET,
		Attributes:    addressAttrs(sa.Connection),
	}
	e.sendPhase15(sa, msgid, cfg, true)
	e.armTimer(sa, state.EventRetransmit, sa.Connection.Config.RetransmitInterval)
}

func addressAttrs(conn *Connection) (attrs []*protocol.Attribute) {
	if conn.ModeCfgIP != nil {
		attrs = append(attrs, tlvAttr(protocol.INTERNAL_IP4_ADDRESS, conn.ModeCfgIP.To4()))
	}
	if conn.ModeCfgNetmask != nil {
		attrs = append(attrs, tlvAttr(protocol.INTERNAL_IP4_NETMASK, conn.ModeCfgNetmask.To4()))
	}
	for _, dns := range conn.ModeCfgDNS {
		attrs = append(attrs, tlvAttr(protocol.INTERNAL_IP4_DNS, dns.To4()))
	}
	return
}

// MODE_CFG_R0: the server answers an address request
func (e *Engine) modeCfgInR0(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok || cfg.CfgType != protocol.ISAKMP_CFG_REQUEST {
		e.log.Warn("expected mode config request")
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	if sa.Connection.ModeCfgIP == nil {
		e.log.Warn("mode config requested but no address pool configured")
		return Fail(protocol.ATTRIBUTES_NOT_SUPPORTED)
	}
	sa.hidden.ModeCfgVarsSet = true
	reply := md.EchoReply(protocol.PayloadTypeHASH, true)
	rest := protocol.MakePayloads()
	rest.Add(&protocol.ModeCfgPayload{
		PayloadHeader: &protocol.PayloadHeader{},
		CfgType:       protocol.ISAKMP_CFG_REPLY,
		Identifier:    cfg.Identifier,
		Attributes:    addressAttrs(sa.Connection),
	})
	reply.Payloads = buildHashedPayloads(sa.Parent().tkm, protocol.V1_HASH_1,
		md.Header.MsgId, nil, nil, rest, e)
	md.reply = reply
	return Ok()
}

// modeCfgInR1 serves three arrivals: the client's pull reply, the
// push set toward a client, and the server's ack of its push.
func (e *Engine) modeCfgInR1(sa *Sa, md *Message) Result {
	cfg, ok := md.Get(protocol.PayloadTypeATTR).(*protocol.ModeCfgPayload)
	if !ok {
		return Fail(protocol.PAYLOAD_MALFORMED)
	}
	switch cfg.CfgType {
	case protocol.ISAKMP_CFG_REPLY:
		e.storeModeCfgVars(sa, cfg)
		return Ok()
	case protocol.ISAKMP_CFG_SET:
		e.storeModeCfgVars(sa, cfg)
		ack := &protocol.ModeCfgPayload{
			PayloadHeader: &protocol.PayloadHeader{},
			CfgType:       protocol.ISAKMP_CFG_ACK,
			Identifier:    cfg.Identifier,
		}
		e.sendPhase15(sa, md.Header.MsgId, ack, false)
		return Ok()
	case protocol.ISAKMP_CFG_ACK:
		// our push was acknowledged
		sa.hidden.ModeCfgVarsSet = true
		return Ok()
	}
	return Fail(protocol.PAYLOAD_MALFORMED)
}

func (e *Engine) storeModeCfgVars(sa *Sa, cfg *protocol.ModeCfgPayload) {
	if attr, ok := cfg.GetAttr(protocol.INTERNAL_IP4_ADDRESS); ok && len(attr.Bytes) == 4 {
		sa.modeCfg.IP = net.IP(attr.Bytes)
	}
	if attr, ok := cfg.GetAttr(protocol.INTERNAL_IP4_NETMASK); ok && len(attr.Bytes) == 4 {
		sa.modeCfg.Netmask = net.IP(attr.Bytes)
	}
	for _, attr := range cfg.Attributes {
		if protocol.ModeCfgAttrType(attr.Type) == protocol.INTERNAL_IP4_DNS && len(attr.Bytes) == 4 {
			sa.modeCfg.DNS = append(sa.modeCfg.DNS, net.IP(attr.Bytes))
		}
	}
	sa.hidden.ModeCfgVarsSet = true
	e.log.WithFields(sa.Fields()).Infof("mode config assigned address %s", sa.modeCfg.IP)
}
