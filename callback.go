package ike

import (
	"encoding/binary"
	"net"

	"github.com/msgboxio/ikev1/platform"
	"github.com/msgboxio/ikev1/protocol"
)

// OutgoingPacket is raw bytes bound for a peer, used when the caller
// owns the sockets
type OutgoingPacket struct {
	Data []byte
	net.Addr
}

// Callback is how the engine reaches its external collaborators: the
// transport (when no Conn is attached) and the kernel IPsec interface.
type Callback interface {
	SendMessage(*OutgoingPacket) error
	AddSa(*Sa, *platform.SaParams) error
	RemoveSa(*Sa, *platform.SaParams) error
}

type nullCallback struct{}

func (nullCallback) SendMessage(*OutgoingPacket) error      { return nil }
func (nullCallback) AddSa(*Sa, *platform.SaParams) error    { return nil }
func (nullCallback) RemoveSa(*Sa, *platform.SaParams) error { return nil }

// saParams flattens a Phase 2 SA into the kernel install block
func saParams(sa *Sa) *platform.SaParams {
	p2 := sa.phase2
	parent := sa.Parent()
	params := &platform.SaParams{
		Local:        addrIP(parent.Local),
		Remote:       addrIP(parent.Remote),
		IsInitiator:  parent.initiator,
		EspTransform: p2.Transform.TransformId,
		SpiIn:        p2.SpiIn,
		SpiOut:       p2.SpiOut,
		EncapTunnel:  p2.EncapTunnel,
	}
	if p2.IdCi != nil && p2.IdCr != nil {
		params.LocalNet = selectorNet(p2.IdCr)
		params.RemoteNet = selectorNet(p2.IdCi)
		if parent.initiator {
			params.LocalNet = selectorNet(p2.IdCi)
			params.RemoteNet = selectorNet(p2.IdCr)
		}
	}
	return params
}

// selectorNet turns a Phase 2 identification payload into a subnet
func selectorNet(id *protocol.IpsecIdPayload) *net.IPNet {
	switch id.IdType {
	case protocol.ID_IPV4_ADDR:
		return &net.IPNet{IP: net.IP(id.Data), Mask: net.CIDRMask(32, 32)}
	case protocol.ID_IPV4_ADDR_SUBNET:
		return &net.IPNet{IP: net.IP(id.Data[:4]), Mask: net.IPMask(id.Data[4:8])}
	case protocol.ID_IPV6_ADDR:
		return &net.IPNet{IP: net.IP(id.Data), Mask: net.CIDRMask(128, 128)}
	case protocol.ID_IPV6_ADDR_SUBNET:
		return &net.IPNet{IP: net.IP(id.Data[:16]), Mask: net.IPMask(id.Data[16:32])}
	}
	return nil
}

// keymatLen is the key material a Phase 2 transform consumes: cipher
// key plus HMAC-SHA1 authenticator key
func keymatLen(tr *protocol.Transform) int {
	encLen := 0
	switch protocol.EspTransformId(tr.TransformId) {
	case protocol.ESP_DES:
		encLen = 8
	case protocol.ESP_3DES:
		encLen = 24
	case protocol.ESP_AES, protocol.ESP_CAMELLIA:
		encLen = 16
		if attr, ok := tr.GetAttr(uint16(protocol.KEY_LENGTH)); ok {
			encLen = int(attr.Value) / 8
		}
	}
	return encLen + 20
}

func spiBytes(spi uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, spi)
	return b
}
