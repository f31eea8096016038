package ike

import (
	"bytes"
	"io"
	"net"
	"os"
	"runtime"
	"syscall"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type Conn interface {
	ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error)
	WritePacket(reply []byte, remoteAddr net.Addr) error
	Close() error
}

var ErrorUdpOnly = errors.New("only udp is supported")

type pconnV4 struct {
	*ipv4.PacketConn
	nattFloat bool
}

type pconnV6 struct {
	*ipv6.PacketConn
	nattFloat bool
}

// normally, if we bind on a dual stack address on mac, receiving from
// v4 addresses does not give the remote address
func checkV4onX(address string) (bool, error) {
	if runtime.GOOS != "darwin" {
		return false, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return false, err
	}
	return addr.IP.To4() != nil, nil
}

// Listen opens the IKE socket. Port 4500 sockets speak the NAT-T
// framing: a 4 byte non-ESP marker precedes every IKE message.
func Listen(network, address string, log *logrus.Logger) (Conn, error) {
	isV4, err := checkV4onX(address)
	if err != nil {
		return nil, err
	}
	natt := false
	if addr, err := net.ResolveUDPAddr(network, address); err == nil {
		natt = addr.Port == protocol.IKE_NATT_PORT
	}
	if isV4 {
		return listenUDP4(address, natt, log)
	}
	switch network {
	case "udp4":
		return listenUDP4(address, natt, log)
	case "udp6", "udp":
		return listenUDP6(address, natt, log)
	}
	return nil, ErrorUdpOnly
}

func listenUDP4(localString string, natt bool, log *logrus.Logger) (*pconnV4, error) {
	udp, err := net.ListenPacket("udp4", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv4.NewPacketConn(udp)
	// the interface could be set to any (0.0.0.0); we need the exact
	// address the packet came on
	cf := ipv4.FlagTTL | ipv4.FlagSrc | ipv4.FlagDst | ipv4.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warnf("udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	log.Infof("socket listening: %s natt=%v", udp.LocalAddr(), natt)
	return &pconnV4{PacketConn: p, nattFloat: natt}, nil
}

func listenUDP6(localString string, natt bool, log *logrus.Logger) (*pconnV6, error) {
	udp, err := net.ListenPacket("udp", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv6.NewPacketConn(udp)
	cf := ipv6.FlagSrc | ipv6.FlagDst | ipv6.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warnf("udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	log.Infof("socket listening: %s natt=%v", udp.LocalAddr(), natt)
	return &pconnV6{PacketConn: p, nattFloat: natt}, nil
}

func protocolNotSupported(err error) bool {
	if opErr, ok := err.(*net.OpError); ok {
		if sysErr, ok := opErr.Err.(*os.SyscallError); ok {
			return sysErr.Err == syscall.EPROTONOSUPPORT
		}
	}
	return false
}

// stripMarker removes the non-ESP marker of NAT-T framing; frames
// without it are ESP-in-UDP and not ours to read.
func stripMarker(b []byte) ([]byte, bool) {
	if len(b) < protocol.NON_ESP_MARKER_LEN {
		return nil, false
	}
	if !bytes.Equal(b[:protocol.NON_ESP_MARKER_LEN], protocol.NonEspMarker) {
		return nil, false
	}
	return b[protocol.NON_ESP_MARKER_LEN:], true
}

func (p *pconnV4) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err != nil {
		return nil, nil, nil, err
	}
	b = b[:n]
	if cm != nil {
		localIP = cm.Dst
	}
	if p.nattFloat {
		stripped, ok := stripMarker(b)
		if !ok {
			return nil, nil, nil, io.ErrShortBuffer
		}
		b = stripped
	}
	return
}

func (p *pconnV4) WritePacket(reply []byte, remoteAddr net.Addr) error {
	if p.nattFloat {
		reply = append(append([]byte{}, protocol.NonEspMarker...), reply...)
	}
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	}
	if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

func (p *pconnV4) Close() error {
	return p.PacketConn.Close()
}

func (p *pconnV6) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err != nil {
		return nil, nil, nil, err
	}
	b = b[:n]
	if cm != nil {
		localIP = cm.Dst
	}
	if p.nattFloat {
		stripped, ok := stripMarker(b)
		if !ok {
			return nil, nil, nil, io.ErrShortBuffer
		}
		b = stripped
	}
	return
}

func (p *pconnV6) WritePacket(reply []byte, remoteAddr net.Addr) error {
	if p.nattFloat {
		reply = append(append([]byte{}, protocol.NonEspMarker...), reply...)
	}
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	}
	if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

func (p *pconnV6) Close() error {
	return p.PacketConn.Close()
}
