package state

import (
	"testing"

	"github.com/msgboxio/ikev1/protocol"
)

func TestTableValidates(t *testing.T) {
	if _, _, err := Validate(Table); err != nil {
		t.Fatal(err)
	}
}

// For every defined from-state, the first entry matches all auth
// classes unless the state is authentication sensitive, in which case
// the entries together cover exactly {PSK, DS, PKE, RPKE}.
func TestAuthClassCoverage(t *testing.T) {
	for s, i := range firstEntry {
		if Table[i].Flags&authMask == AuthAll {
			continue
		}
		var covered Flags
		for j := i; j < len(Table) && Table[j].State == s; j++ {
			covered |= Table[j].Flags & authMask
		}
		if covered != AuthPSK|AuthDS|AuthPKE|AuthRPKE {
			t.Errorf("state %s covers %s", s, covered)
		}
	}
}

// Every encrypted non-first input with a real handler requires HASH
// integrity protection.
func TestEncryptedInputsRequireHash(t *testing.T) {
	for i := range Table {
		tr := &Table[i]
		if tr.Flags&InputEncrypted == 0 ||
			tr.Flags&FirstEncryptedInput != 0 ||
			tr.Handler == HandlerUnexpected {
			continue
		}
		if !tr.Req.Has(protocol.PayloadTypeHASH) {
			t.Errorf("%s -> %s (%s) missing required HASH payload", tr.State, tr.NextState, tr.Name)
		}
		if tr.HashType == protocol.V1_HASH_NONE {
			t.Errorf("%s -> %s (%s) missing hash type", tr.State, tr.NextState, tr.Name)
		}
	}
}

func TestNoUndefinedNextStates(t *testing.T) {
	for i := range Table {
		if Table[i].NextState == Undefined {
			t.Errorf("entry %d (%s) has an undefined next state", i, Table[i].Name)
		}
	}
}

func TestLookupByAuthClass(t *testing.T) {
	// PSK and signature auth pick distinct MAIN_R2 entries
	psk, ok := Lookup(MAIN_R2, protocol.OAKLEY_PRESHARED_KEY)
	if !ok || !psk.Req.Has(protocol.PayloadTypeHASH) {
		t.Fatalf("psk entry: %+v", psk)
	}
	ds, ok := Lookup(MAIN_R2, protocol.OAKLEY_RSA_SIG)
	if !ok || !ds.Req.Has(protocol.PayloadTypeSIG) {
		t.Fatalf("ds entry: %+v", ds)
	}
	// XAUTH variants map down to their base class
	xds, ok := Lookup(MAIN_R2, protocol.XAUTHRespRSA)
	if !ok || xds != ds {
		t.Error("xauth rsa did not select the signature entry")
	}
	// before negotiation the first entry matches
	first, ok := Lookup(MAIN_R0, protocol.AUTH_NONE)
	if !ok || first.Handler != HandlerMainInI1OutR1 {
		t.Fatalf("initial entry: %+v", first)
	}
	// recognised but unimplemented auth classes land on unexpected
	pke, ok := Lookup(MAIN_R2, protocol.OAKLEY_RSA_ENC)
	if !ok || pke.Handler != HandlerUnexpected {
		t.Errorf("pke entry: %+v", pke)
	}
	if _, ok := Lookup(State(999), protocol.AUTH_NONE); ok {
		t.Error("lookup of unknown state succeeded")
	}
}

func TestValidateRejectsBrokenTables(t *testing.T) {
	// entries for one state must be adjacent
	scattered := []Transition{
		{State: MAIN_R0, NextState: MAIN_R1, Flags: AuthPSK, Timeout: EventNull, Handler: HandlerUnexpected, Name: "a"},
		{State: MAIN_I1, NextState: MAIN_I2, Flags: AuthAll, Timeout: EventNull, Handler: HandlerUnexpected, Name: "b"},
		{State: MAIN_R0, NextState: MAIN_R1, Flags: AuthDS | AuthPKE | AuthRPKE, Timeout: EventNull, Handler: HandlerUnexpected, Name: "c"},
	}
	if _, _, err := Validate(scattered); err == nil {
		t.Error("scattered table accepted")
	}

	// an encrypted input with a handler but no hash protection
	unprotected := []Transition{
		{State: QUICK_R1, NextState: QUICK_R2, Flags: AuthAll | Encrypted,
			Timeout: EventNull, Handler: HandlerQuickInI2, Name: "quick_inI2"},
	}
	if _, _, err := Validate(unprotected); err == nil {
		t.Error("unprotected encrypted transition accepted")
	}

	// partial auth coverage
	partial := []Transition{
		{State: MAIN_R2, NextState: MAIN_R3, Flags: AuthPSK, Req: P(protocol.PayloadTypeHASH),
			Timeout: EventNull, Handler: HandlerUnexpected, Name: "a"},
	}
	if _, _, err := Validate(partial); err == nil {
		t.Error("partial auth coverage accepted")
	}

	// undefined next state
	undef := []Transition{
		{State: MAIN_R0, NextState: Undefined, Flags: AuthAll, Timeout: EventNull,
			Handler: HandlerUnexpected, Name: "a"},
	}
	if _, _, err := Validate(undef); err == nil {
		t.Error("undefined next state accepted")
	}
}

func TestStateFlags(t *testing.T) {
	if !StateFlags(MAIN_R3).Has(RetransmitOnDuplicate) {
		t.Error("MAIN_R3 should retransmit on duplicate")
	}
	if StateFlags(MAIN_I1).Has(RetransmitOnDuplicate) {
		t.Error("MAIN_I1 should not retransmit on duplicate")
	}
}

func TestStatePredicates(t *testing.T) {
	if !MAIN_R0.IsPhase1() || !AGGR_R2.IsPhase1() || QUICK_R0.IsPhase1() {
		t.Error("IsPhase1")
	}
	if !XAUTH_I1.IsPhase15() || MAIN_R3.IsPhase15() {
		t.Error("IsPhase15")
	}
	if !QUICK_I2.IsQuick() || INFO.IsQuick() {
		t.Error("IsQuick")
	}
	for _, s := range []State{MAIN_R3, MAIN_I4, AGGR_I2, AGGR_R2} {
		if !s.IsIsakmpSaEstablished() {
			t.Errorf("%s should be established", s)
		}
	}
	if MAIN_R2.IsIsakmpSaEstablished() {
		t.Error("MAIN_R2 is not established")
	}
	if !MAIN_R2.IsIsakmpEncrypted() || MAIN_R1.IsIsakmpEncrypted() {
		t.Error("IsIsakmpEncrypted")
	}
}
