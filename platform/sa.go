// Package platform carries the parameter block the engine hands to the
// kernel IPsec interface, and a Linux xfrm driver for it. The engine
// only depends on SaParams; the driver is one possible collaborator.
package platform

import "net"

// SaParams describes one direction of a negotiated IPsec SA, flattened
// for installation.
type SaParams struct {
	Local, Remote net.IP
	// negotiated traffic selectors; nil means host to host
	LocalNet, RemoteNet *net.IPNet

	SpiIn, SpiOut uint32

	// "in" or "out"
	Direction string

	EspTransform uint8
	Keymat       []byte

	EncapTunnel bool
	IsInitiator bool
}
