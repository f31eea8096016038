package ike

import (
	"encoding/binary"

	"github.com/msgboxio/ikev1/protocol"
)

type saKey struct {
	icookie, rcookie uint64
	msgid            uint32
}

func spiKey(spi protocol.Spi) uint64 {
	if len(spi) < protocol.COOKIE_LEN {
		return 0
	}
	return binary.BigEndian.Uint64(spi)
}

// Sessions indexes SAs three ways, mirroring the lookups the demux
// needs: by full cookie pair and msgid, by full cookie pair with zero
// msgid, and by initiator cookie alone (before the responder cookie is
// known to the peer).
type Sessions struct {
	byKey map[saKey]*Sa
}

func NewSessions() *Sessions {
	return &Sessions{byKey: make(map[saKey]*Sa)}
}

func (s *Sessions) key(sa *Sa) saKey {
	return saKey{spiKey(sa.SpiI), spiKey(sa.SpiR), sa.MsgId}
}

func (s *Sessions) Add(sa *Sa) {
	s.byKey[s.key(sa)] = sa
}

func (s *Sessions) Remove(sa *Sa) {
	delete(s.byKey, s.key(sa))
}

// Rekey moves an SA that just learned its responder cookie
func (s *Sessions) Rekey(sa *Sa, old protocol.Spi) {
	delete(s.byKey, saKey{spiKey(sa.SpiI), spiKey(old), sa.MsgId})
	s.Add(sa)
}

// Find by the full cookie pair and msgid
func (s *Sessions) Find(spiI, spiR protocol.Spi, msgid uint32) *Sa {
	return s.byKey[saKey{spiKey(spiI), spiKey(spiR), msgid}]
}

// FindInit finds a half open SA by initiator cookie only
func (s *Sessions) FindInit(spiI protocol.Spi, msgid uint32) *Sa {
	for k, sa := range s.byKey {
		if k.icookie == spiKey(spiI) && k.msgid == msgid {
			return sa
		}
	}
	return nil
}

func (s *Sessions) ForEach(action func(*Sa)) {
	for _, sa := range s.byKey {
		action(sa)
	}
}

func (s *Sessions) Len() int {
	return len(s.byKey)
}
