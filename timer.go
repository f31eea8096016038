package ike

import (
	"time"

	"github.com/msgboxio/ikev1/state"
)

// saTimer is the single armed transition timer of an SA. Timer
// callbacks run off-loop; the generation check on the loop side drops
// stale firings after a re-arm or SA deletion.
type saTimer struct {
	kind  state.EventType
	gen   int
	timer *time.Timer
}

type timerEvent struct {
	sa   *Sa
	kind state.EventType
	gen  int
}

// armTimer replaces any prior event before installing the next; this is
// mandatory, an SA has exactly one pending transition timer.
func (e *Engine) armTimer(sa *Sa, kind state.EventType, delay time.Duration) {
	gen := 0
	if sa.timer != nil {
		gen = sa.timer.gen + 1
	}
	e.disarmTimer(sa)
	t := &saTimer{kind: kind, gen: gen}
	ev := timerEvent{sa: sa, kind: kind, gen: gen}
	t.timer = time.AfterFunc(delay, func() {
		select {
		case e.timers <- ev:
		case <-e.done:
		}
	})
	sa.timer = t
}

func (e *Engine) disarmTimer(sa *Sa) {
	if sa.timer != nil {
		sa.timer.timer.Stop()
		sa.timer.gen++
		sa.timer = nil
	}
}

// handleTimer runs on the event loop
func (e *Engine) handleTimer(ev timerEvent) {
	sa := ev.sa
	if sa.timer == nil || sa.timer.gen != ev.gen {
		return // stale
	}
	sa.timer = nil
	log := e.log.WithFields(sa.Fields())

	switch ev.kind {
	case state.EventRetransmit:
		cfg := sa.Connection.Config
		if sa.retransmitCount >= cfg.RetransmitLimit {
			log.Warnf("max number of retransmissions reached in state %s; deleting SA", sa.State)
			e.deleteSa(sa)
			return
		}
		sa.retransmitCount++
		log.Debugf("retransmission %d in state %s", sa.retransmitCount, sa.State)
		e.resendRecorded(sa)
		// capped exponential backoff
		delay := cfg.RetransmitInterval << uint(sa.retransmitCount)
		if delay > 8*time.Second {
			delay = 8 * time.Second
		}
		e.armTimer(sa, state.EventRetransmit, delay)

	case state.EventSoDiscard:
		// half open abandonment, quietly
		log.Debugf("discarding half-open SA in state %s", sa.State)
		e.deleteSa(sa)

	case state.EventSaReplace:
		if sa.replaceIsExpire || sa.Connection.Config.DontRekey {
			log.Infof("SA lifetime expired in state %s; deleting", sa.State)
			e.deleteSa(sa)
			return
		}
		log.Infof("replacing SA in state %s", sa.State)
		conn := sa.Connection
		e.deleteSa(sa)
		if err := e.Initiate(conn); err != nil {
			log.Warnf("re-initiation failed: %s", err)
		}
	}
}

// dpdTimer is separate from the transition timer; probes run only on
// established SAs.
func (e *Engine) armDpdTimer(sa *Sa, delay time.Duration) {
	if sa.dpd.timer != nil {
		sa.dpd.timer.Stop()
	}
	gen := sa.dpd.gen
	sa.dpd.timer = time.AfterFunc(delay, func() {
		select {
		case e.dpdTicks <- dpdTick{sa: sa, gen: gen}:
		case <-e.done:
		}
	})
}
