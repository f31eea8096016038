package ike

import (
	"bytes"
	"testing"

	"github.com/msgboxio/ikev1/protocol"
)

func TestStripMarker(t *testing.T) {
	msg := []byte{0xde, 0xad, 0xbe, 0xef}
	framed := append(append([]byte{}, protocol.NonEspMarker...), msg...)
	got, ok := stripMarker(framed)
	if !ok || !bytes.Equal(got, msg) {
		t.Errorf("stripMarker = %x, %v", got, ok)
	}
	// an ESP frame (non-zero SPI up front) is not ours
	if _, ok := stripMarker([]byte{0, 0, 0, 1, 1, 2, 3, 4}); ok {
		t.Error("ESP frame accepted as IKE")
	}
	if _, ok := stripMarker([]byte{0, 0}); ok {
		t.Error("short frame accepted")
	}
}

func TestMsgidBook(t *testing.T) {
	book := newMsgidBook()
	if book.Unique(0) {
		t.Error("zero msgid accepted")
	}
	if !book.Unique(42) {
		t.Error("fresh msgid rejected")
	}
	if book.Unique(42) {
		t.Error("reused msgid accepted")
	}
	book.Reserve(7)
	if book.Unique(7) {
		t.Error("reserved msgid accepted as fresh")
	}
	if !book.Reserved(7) || book.Reserved(8) {
		t.Error("reservation bookkeeping wrong")
	}
}

func TestSessionsLookups(t *testing.T) {
	s := NewSessions()
	spiI := protocol.Spi{1, 2, 3, 4, 5, 6, 7, 8}
	zero := make(protocol.Spi, 8)
	spiR := protocol.Spi{8, 7, 6, 5, 4, 3, 2, 1}

	sa := &Sa{SpiI: spiI, SpiR: zero}
	s.Add(sa)
	if got := s.FindInit(spiI, 0); got != sa {
		t.Error("FindInit failed for a half open SA")
	}
	if got := s.Find(spiI, spiR, 0); got != nil {
		t.Error("Find matched before the rcookie is known")
	}

	// responder cookie learned
	sa.SpiR = spiR
	s.Rekey(sa, zero)
	if got := s.Find(spiI, spiR, 0); got != sa {
		t.Error("Find failed after rekey")
	}
	if got := s.FindInit(spiI, 0); got != sa {
		t.Error("FindInit failed after rekey")
	}

	// children are distinct per msgid
	child := &Sa{SpiI: spiI, SpiR: spiR, MsgId: 0x99, parent: sa}
	s.Add(child)
	if got := s.Find(spiI, spiR, 0x99); got != child {
		t.Error("child lookup failed")
	}
	if got := s.Find(spiI, spiR, 0); got != sa {
		t.Error("parent lookup disturbed by child")
	}
	s.Remove(child)
	if got := s.Find(spiI, spiR, 0x99); got != nil {
		t.Error("removed child still found")
	}
}
