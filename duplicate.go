package ike

import (
	"bytes"

	"github.com/msgboxio/ikev1/state"
	"github.com/sirupsen/logrus"
)

// isDuplicate recognises and, if necessary, responds to a duplicate.
// Compares against the SA's true current state, not the demux's derived
// from-state. Returns true when the packet was consumed here.
func (e *Engine) isDuplicate(sa *Sa, md *Message, log *logrus.Logger) bool {
	if len(sa.RPacket) == 0 || !bytes.Equal(sa.RPacket, md.Data) {
		return false
	}
	// Only re-transmit when the last state transition (triggered by
	// this packet the first time) included a reply.
	replied := sa.LastTransition != nil && sa.LastTransition.Flags.Has(state.Reply)
	retransmitOnDup := state.StateFlags(sa.State).Has(state.RetransmitOnDuplicate)
	if replied && retransmitOnDup {
		// transitions armed with SO_DISCARD always answer re-transmits;
		// otherwise cap the duplicates we will answer
		if sa.LastTransition.Timeout == state.EventSoDiscard ||
			e.countDuplicate(sa) {
			log.WithFields(sa.Fields()).Infof("retransmitting in response to duplicate packet; already %s", sa.State)
			e.resendRecorded(sa)
		} else {
			log.WithFields(sa.Fields()).Warnf("discarding duplicate packet -- exhausted retransmission; already %s", sa.State)
		}
	} else {
		log.WithFields(sa.Fields()).Debugf("discarding duplicate packet; already %s; replied=%v retransmit_on_duplicate=%v",
			sa.State, replied, retransmitOnDup)
	}
	return true
}

// countDuplicate applies the per SA duplicate cap; resets happen when a
// transition commits
func (e *Engine) countDuplicate(sa *Sa) bool {
	limit := sa.Connection.Config.MaximumAcceptedDuplicates
	if sa.dupCount < limit {
		sa.dupCount++
		return true
	}
	return false
}

// resendRecorded replays the last reply we sent on this SA
func (e *Engine) resendRecorded(sa *Sa) {
	if len(sa.TPacket) == 0 {
		return
	}
	e.send(sa, sa.TPacket)
}
