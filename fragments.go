package ike

import (
	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fragEntry buffers one received fragment, ordered by index on the SA
type fragEntry struct {
	index uint8
	last  bool
	data  []byte
}

// handleFragment ingests one IKE_FRAGMENTATION datagram. When the
// fragment completes the set, the reassembled buffer is handed back to
// the demux as if it had arrived as one datagram. The packet is always
// consumed.
func (e *Engine) handleFragment(sa *Sa, md *Message, body []byte, log *logrus.Logger) {
	if sa == nil {
		log.Debug("received IKE fragment, but have no state; ignoring packet")
		return
	}
	if !sa.Connection.Config.FragAllow {
		log.Debug("discarding IKE fragment packet - fragmentation not allowed by local policy")
		return
	}

	frag, err := decodeFragment(body)
	if err != nil {
		log.Warnf("bad fragment: %s", err)
		e.sendNotificationFor(md, sa, protocol.PAYLOAD_MALFORMED)
		return
	}
	log.Debugf("received IKE fragment id %d, number %d last=%v", frag.FragId, frag.Index, frag.Last())

	entry := &fragEntry{index: frag.Index, last: frag.Last(), data: frag.Data}
	inserted := false
	for i, f := range sa.fragments {
		if f.index == entry.index {
			// replace fragment with same index
			sa.fragments[i] = entry
			inserted = true
			break
		}
		if f.index > entry.index {
			sa.fragments = append(sa.fragments[:i],
				append([]*fragEntry{entry}, sa.fragments[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		sa.fragments = append(sa.fragments, entry)
	}

	whole := reassemble(sa.fragments)
	if whole == nil {
		return
	}
	releaseFragments(sa)
	// if receiving fragments, respond using fragments too, without
	// waiting for re-transmits
	sa.hidden.SeenFragments = true
	log.Debug("reassembled IKE message, processing as a single packet")
	e.processPacket(whole, md.RemoteAddr, md.LocalAddr)
}

// decodeFragment validates the fragment payload framing. The fragment
// must be the only payload of its message.
func decodeFragment(body []byte) (*protocol.FragmentPayload, error) {
	ph := &protocol.PayloadHeader{}
	if err := ph.DecodeHeader(body); err != nil {
		return nil, err
	}
	if int(ph.PayloadLength)+protocol.PAYLOAD_HEADER_LENGTH != len(body) {
		return nil, errors.Wrap(protocol.ErrInvalidSyntax, "fragment length mismatch")
	}
	if ph.NextPayload != protocol.PayloadTypeNone {
		return nil, errors.Wrap(protocol.ErrInvalidSyntax, "fragment with chained payload")
	}
	frag := &protocol.FragmentPayload{PayloadHeader: ph}
	if err := frag.Decode(body[protocol.PAYLOAD_HEADER_LENGTH:]); err != nil {
		return nil, err
	}
	return frag, nil
}

// reassemble returns the concatenation in index order once a last
// flagged fragment exists and indices 1..last are all present
func reassemble(frags []*fragEntry) []byte {
	last := 0
	for _, f := range frags {
		if f.last {
			last = int(f.index)
		}
	}
	if last == 0 {
		return nil
	}
	var buf []byte
	prev := 0
	for _, f := range frags {
		if int(f.index) != prev+1 {
			return nil // incomplete
		}
		prev = int(f.index)
		buf = append(buf, f.data...)
		if prev == last {
			return buf
		}
	}
	return nil
}

func releaseFragments(sa *Sa) {
	sa.fragments = nil
}
