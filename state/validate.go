package state

import (
	"fmt"

	"github.com/msgboxio/ikev1/protocol"
)

// firstEntry[s] is the index into Table of the first transition for s
var firstEntry map[State]int

// stateFlags[s] accumulates the flags that describe the state itself
// rather than a single transition (currently just
// RetransmitOnDuplicate).
var stateFlags map[State]Flags

func init() {
	var err error
	firstEntry, stateFlags, err = Validate(Table)
	if err != nil {
		panic(err)
	}
}

// Lookup returns the transition for a state and negotiated auth method.
// Entries sharing a state are scanned in table order; an SA that has
// not negotiated auth yet (AUTH_NONE) matches the first entry.
func Lookup(s State, auth protocol.AuthMethod) (*Transition, bool) {
	i, ok := firstEntry[s]
	if !ok {
		return nil, false
	}
	if auth == protocol.AUTH_NONE {
		return &Table[i], true
	}
	for ; i < len(Table) && Table[i].State == s; i++ {
		if Table[i].Flags.MatchesAuth(auth) {
			return &Table[i], true
		}
	}
	return nil, false
}

// StateFlags returns the flags that apply to a state across all its
// transitions.
func StateFlags(s State) Flags {
	return stateFlags[s]
}

// Validate enforces the structural invariants of a microcode table:
//
//   - entries are grouped by state, in state order
//   - every non-info state's entries either start with an AuthAll entry,
//     or together cover exactly the PSK/DS/PKE/RPKE auth classes
//   - an encrypted post-authentication transition with a real handler
//     requires the HASH payload and declares a hash type
//   - no next state is Undefined; stay-in-state is an explicit self loop
//
// It returns the first-entry index and the per-state flags.
func Validate(table []Transition) (map[State]int, map[State]Flags, error) {
	first := make(map[State]int)
	flags := make(map[State]Flags)
	for i := range table {
		t := &table[i]
		if t.State <= Undefined || t.State >= stateRoof {
			return nil, nil, fmt.Errorf("transition %d: bad state %d", i, t.State)
		}
		if t.NextState <= Undefined || t.NextState >= stateRoof {
			return nil, nil, fmt.Errorf("transition %s (%s): bad next state %d",
				t.State, t.Name, t.NextState)
		}
		if t.Name == "" {
			return nil, nil, fmt.Errorf("transition %s -> %s missing name", t.State, t.NextState)
		}
		if fi, seen := first[t.State]; seen {
			if table[i-1].State != t.State {
				return nil, nil, fmt.Errorf("transitions for %s are not adjacent (first at %d)",
					t.State, fi)
			}
		} else {
			first[t.State] = i
		}
		flags[t.State] |= t.Flags & RetransmitOnDuplicate

		if t.Flags&InputEncrypted != 0 &&
			t.Flags&FirstEncryptedInput == 0 &&
			t.Handler != HandlerUnexpected {
			// the first encrypted message carries the authentication
			// itself; every other encrypted input needs HASH integrity
			if !t.Req.Has(protocol.PayloadTypeHASH) {
				return nil, nil, fmt.Errorf("transition %s -> %s (%s) missing HASH payload",
					t.State, t.NextState, t.Name)
			}
			if t.HashType == protocol.V1_HASH_NONE {
				return nil, nil, fmt.Errorf("transition %s -> %s (%s) missing HASH protection",
					t.State, t.NextState, t.Name)
			}
		}
	}

	// auth class coverage per state
	for s, i := range first {
		if table[i].Flags&authMask == AuthAll {
			continue
		}
		var covered Flags
		for j := i; j < len(table) && table[j].State == s; j++ {
			covered |= table[j].Flags & authMask
		}
		if covered != AuthPSK|AuthDS|AuthPKE|AuthRPKE {
			return nil, nil, fmt.Errorf("state %s covers auth classes %s, want PSK|DS|PKE|RPKE",
				s, covered)
		}
	}
	return first, flags, nil
}
