package ike

// PendingP2 is a Phase 2 initiation waiting for its keying channel.
// Queued entries fire after the triggering transition commits, in
// insertion order.
type PendingP2 struct {
	Connection *Connection
}

func (e *Engine) queuePending(parent *Sa, p *PendingP2) {
	key := spiKey(parent.SpiI)
	e.pending[key] = append(e.pending[key], p)
}

// releasePending fires queued Phase 2 negotiations once Phase 1 is done
func (e *Engine) releasePending(parent *Sa) {
	key := spiKey(parent.SpiI)
	queue := e.pending[key]
	delete(e.pending, key)
	for _, p := range queue {
		if err := e.initiateQuickMode(parent, p); err != nil {
			e.log.WithFields(parent.Fields()).Warnf("pending phase 2 failed to start: %s", err)
		}
	}
}

func (e *Engine) dropPending(parent *Sa) {
	delete(e.pending, spiKey(parent.SpiI))
}
