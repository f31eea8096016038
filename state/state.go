// Package state holds the IKEv1 finite state machine: the state kinds,
// the microcode transition table, and the construction time checks over
// it. Remember that each state name in Main or Quick Mode describes
// what has happened in the past, not what this message is.
package state

import "fmt"

type State int

const (
	Undefined State = iota

	// Phase 1 Main Mode
	MAIN_R0
	MAIN_I1
	MAIN_R1
	MAIN_I2
	MAIN_R2
	MAIN_I3
	MAIN_R3
	MAIN_I4

	// Phase 1 Aggressive Mode
	AGGR_R0
	AGGR_I1
	AGGR_R1
	AGGR_I2
	AGGR_R2

	// Phase 2 Quick Mode
	QUICK_R0
	QUICK_I1
	QUICK_R1
	QUICK_I2
	QUICK_R2

	// Informational exchanges
	INFO
	INFO_PROTECTED

	// Phase 1.5: XAUTH server side
	XAUTH_R0
	XAUTH_R1

	// Phase 1.5: Mode Config
	MODE_CFG_R0
	MODE_CFG_R1
	MODE_CFG_R2
	MODE_CFG_I1

	// Phase 1.5: XAUTH client side
	XAUTH_I0
	XAUTH_I1

	stateRoof
)

func (s State) String() string {
	switch s {
	case Undefined:
		return "UNDEFINED"
	case MAIN_R0:
		return "MAIN_R0"
	case MAIN_I1:
		return "MAIN_I1"
	case MAIN_R1:
		return "MAIN_R1"
	case MAIN_I2:
		return "MAIN_I2"
	case MAIN_R2:
		return "MAIN_R2"
	case MAIN_I3:
		return "MAIN_I3"
	case MAIN_R3:
		return "MAIN_R3"
	case MAIN_I4:
		return "MAIN_I4"
	case AGGR_R0:
		return "AGGR_R0"
	case AGGR_I1:
		return "AGGR_I1"
	case AGGR_R1:
		return "AGGR_R1"
	case AGGR_I2:
		return "AGGR_I2"
	case AGGR_R2:
		return "AGGR_R2"
	case QUICK_R0:
		return "QUICK_R0"
	case QUICK_I1:
		return "QUICK_I1"
	case QUICK_R1:
		return "QUICK_R1"
	case QUICK_I2:
		return "QUICK_I2"
	case QUICK_R2:
		return "QUICK_R2"
	case INFO:
		return "INFO"
	case INFO_PROTECTED:
		return "INFO_PROTECTED"
	case XAUTH_R0:
		return "XAUTH_R0"
	case XAUTH_R1:
		return "XAUTH_R1"
	case MODE_CFG_R0:
		return "MODE_CFG_R0"
	case MODE_CFG_R1:
		return "MODE_CFG_R1"
	case MODE_CFG_R2:
		return "MODE_CFG_R2"
	case MODE_CFG_I1:
		return "MODE_CFG_I1"
	case XAUTH_I0:
		return "XAUTH_I0"
	case XAUTH_I1:
		return "XAUTH_I1"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) IsPhase1() bool {
	return s >= MAIN_R0 && s <= AGGR_R2
}

// IsPhase15 covers the XAUTH and Mode Config side channels
func (s State) IsPhase15() bool {
	return s >= XAUTH_R0 && s <= XAUTH_I1
}

func (s State) IsQuick() bool {
	return s >= QUICK_R0 && s <= QUICK_R2
}

func (s State) IsInfo() bool {
	return s == INFO || s == INFO_PROTECTED
}

// IsIsakmpSaEstablished: the Phase 1 negotiation has completed and the
// peer is authenticated
func (s State) IsIsakmpSaEstablished() bool {
	switch s {
	case MAIN_R3, MAIN_I4, AGGR_I2, AGGR_R2:
		return true
	}
	return false
}

// IsIsakmpEncrypted: keying material exists, so encrypted messages on
// the SA can be handled
func (s State) IsIsakmpEncrypted() bool {
	switch s {
	case MAIN_R2, MAIN_I3, MAIN_R3, MAIN_I4,
		AGGR_R1, AGGR_I2, AGGR_R2:
		return true
	}
	return s.IsPhase15() || s.IsQuick()
}

// IsModeCfgEstablished: the server pushed its config set and saw the ack
func (s State) IsModeCfgEstablished() bool {
	return s == MODE_CFG_R2
}
