package state

import (
	"strings"

	"github.com/msgboxio/ikev1/protocol"
)

// Flags parameterize a transition. The low bits are the Oakley auth
// classes the entry applies to; AuthAll also matches an SA that has not
// negotiated auth yet. The remainder describe the transition itself.
type Flags uint32

const (
	authNone Flags = 1 << iota // matches before negotiation
	AuthPSK
	authDSS
	authRSASig
	AuthPKE
	AuthRPKE

	Initiator
	FirstEncryptedInput
	InputEncrypted
	OutputEncrypted
	RetransmitOnDuplicate
	Reply
	ReleasePendingP2
	XAuthAuth
)

const (
	AuthDS  = authDSS | authRSASig
	AuthAll = authNone | AuthPSK | AuthDS | AuthPKE | AuthRPKE

	Encrypted = InputEncrypted | OutputEncrypted

	authMask = AuthAll
)

// AuthFlag maps a negotiated auth method onto its class bit
func AuthFlag(a protocol.AuthMethod) Flags {
	base := a.BaseAuth()
	if base > protocol.OAKLEY_RSA_REVISED_MODE {
		return 0
	}
	return 1 << uint(base)
}

func (f Flags) MatchesAuth(a protocol.AuthMethod) bool {
	return f&AuthFlag(a) != 0
}

func (f Flags) Has(bits Flags) bool {
	return f&bits == bits
}

func (f Flags) String() string {
	var names []string
	add := func(bit Flags, name string) {
		if f&bit != 0 {
			names = append(names, name)
		}
	}
	add(AuthPSK, "PSK")
	add(authDSS, "DSS")
	add(authRSASig, "RSASIG")
	add(AuthPKE, "PKE")
	add(AuthRPKE, "RPKE")
	add(Initiator, "INITIATOR")
	add(FirstEncryptedInput, "FIRST_ENCRYPTED_INPUT")
	add(InputEncrypted, "INPUT_ENCRYPTED")
	add(OutputEncrypted, "OUTPUT_ENCRYPTED")
	add(RetransmitOnDuplicate, "RETRANSMIT_ON_DUPLICATE")
	add(Reply, "REPLY")
	add(ReleasePendingP2, "RELEASE_PENDING_P2")
	add(XAuthAuth, "XAUTH_AUTH")
	return strings.Join(names, "|")
}

// PayloadSet is a bitset over v1 payload numbers. Legacy numbers above
// 63 are remapped by the decoder before membership checks.
type PayloadSet uint64

func P(ts ...protocol.PayloadType) (s PayloadSet) {
	for _, t := range ts {
		s |= 1 << uint(t)
	}
	return
}

func (s PayloadSet) Has(t protocol.PayloadType) bool {
	if t > 63 {
		return false
	}
	return s&(1<<uint(t)) != 0
}

func (s PayloadSet) Without(t protocol.PayloadType) PayloadSet {
	return s &^ (1 << uint(t))
}

func (s PayloadSet) Empty() bool {
	return s == 0
}

func (s PayloadSet) String() string {
	var names []string
	for t := protocol.PayloadType(1); t <= 63; t++ {
		if s.Has(t) {
			names = append(names, t.String())
		}
	}
	return strings.Join(names, "+")
}

// EventType is the single timer armed after a transition commits
type EventType int

const (
	EventNull EventType = iota
	EventRetransmit
	EventSaReplace
	EventSoDiscard
)

func (e EventType) String() string {
	switch e {
	case EventNull:
		return "NULL"
	case EventRetransmit:
		return "RETRANSMIT"
	case EventSaReplace:
		return "SA_REPLACE"
	case EventSoDiscard:
		return "SO_DISCARD"
	default:
		return "Unknown"
	}
}

// HandlerId names the processor for a transition; the engine registers
// the function for each id.
type HandlerId int

const (
	HandlerNone HandlerId = iota
	HandlerUnexpected
	HandlerInformational

	HandlerMainInI1OutR1
	HandlerMainInR1OutI2
	HandlerMainInI2OutR2
	HandlerMainInR2OutI3
	HandlerMainInI3OutR3
	HandlerMainInR3

	HandlerAggrInI1OutR1
	HandlerAggrInR1OutI2
	HandlerAggrInI2

	HandlerQuickInI1OutR1
	HandlerQuickInR1OutI2
	HandlerQuickInI2

	HandlerXauthInR0
	HandlerXauthInR1
	HandlerModeCfgInR0
	HandlerModeCfgInR1
	HandlerXauthInI0
	HandlerXauthInI1
)

// Transition is one row of the microcode table
type Transition struct {
	State, NextState State
	Flags            Flags
	Req, Opt         PayloadSet
	Timeout          EventType
	Handler          HandlerId
	Name             string
	HashType         protocol.V1HashType
}
