package state

import "github.com/msgboxio/ikev1/protocol"

// Table is ordered by State; all entries for one state are adjacent and
// FirstEntry points at the first of them. In Phase 1 the payload
// structure depends on the authentication method, so several entries may
// share a state, scanned in order for an auth class match.
//
// Entries that could only be reached through packet loss, and auth modes
// that are recognised but not processed (public key encryption and its
// revised variant), map to HandlerUnexpected. Those keep their own state
// as the next state: an unexpected message never advances anything.
var Table = []Transition{

	/***** Phase 1 Main Mode *****/

	// MAIN_R0: I1 --> R1
	// HDR, SA --> HDR, SA
	{State: MAIN_R0, NextState: MAIN_R1,
		Flags: AuthAll | Reply,
		Req:   P(protocol.PayloadTypeSA),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventSoDiscard,
		Handler: HandlerMainInI1OutR1, Name: "main_inI1_outR1"},

	// MAIN_I1: R1 --> I2
	// HDR, SA --> auth dependent; auth is not known yet, so one entry
	{State: MAIN_I1, NextState: MAIN_I2,
		Flags: AuthAll | Initiator | Reply,
		Req:   P(protocol.PayloadTypeSA),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventRetransmit,
		Handler: HandlerMainInR1OutI2, Name: "main_inR1_outI2"},

	// MAIN_R1: I2 --> R2
	// PSK, DS: HDR, KE, Ni --> HDR, KE, Nr
	{State: MAIN_R1, NextState: MAIN_R2,
		Flags: AuthPSK | AuthDS | Reply | RetransmitOnDuplicate,
		Req:   P(protocol.PayloadTypeKE, protocol.PayloadTypeNonce),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeNATD),
		Timeout: EventRetransmit,
		Handler: HandlerMainInI2OutR2, Name: "main_inI2_outR2"},

	{State: MAIN_R1, NextState: MAIN_R1,
		Flags: AuthPKE | Reply | RetransmitOnDuplicate,
		Req:   P(protocol.PayloadTypeKE, protocol.PayloadTypeID, protocol.PayloadTypeNonce),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeHASH),
		Timeout: EventRetransmit,
		Handler: HandlerUnexpected, Name: "unexpected"},

	{State: MAIN_R1, NextState: MAIN_R1,
		Flags: AuthRPKE | Reply | RetransmitOnDuplicate,
		Req:   P(protocol.PayloadTypeNonce, protocol.PayloadTypeKE, protocol.PayloadTypeID),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeHASH, protocol.PayloadTypeCERT),
		Timeout: EventRetransmit,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// from here on, output message must be encrypted

	// MAIN_I2: R2 --> I3
	// PSK, DS: HDR, KE, Nr --> HDR*, IDi1, HASH_I / SIG_I
	{State: MAIN_I2, NextState: MAIN_I3,
		Flags: AuthPSK | AuthDS | Initiator | OutputEncrypted | Reply,
		Req:   P(protocol.PayloadTypeKE, protocol.PayloadTypeNonce),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeNATD),
		Timeout: EventRetransmit,
		Handler: HandlerMainInR2OutI3, Name: "main_inR2_outI3"},

	{State: MAIN_I2, NextState: MAIN_I2,
		Flags: AuthPKE | AuthRPKE | Initiator | OutputEncrypted | Reply,
		Req:   P(protocol.PayloadTypeNonce, protocol.PayloadTypeKE, protocol.PayloadTypeID),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventRetransmit,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// from here on, input message must be encrypted

	// MAIN_R2: I3 --> R3
	// PSK: HDR*, IDi1, HASH_I --> HDR*, IDr1, HASH_R
	{State: MAIN_R2, NextState: MAIN_R3,
		Flags: AuthPSK | FirstEncryptedInput | Encrypted | Reply | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeID, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventSaReplace,
		Handler: HandlerMainInI3OutR3, Name: "main_inI3_outR3"},

	// DS: HDR*, IDi1, [ CERT, ] SIG_I --> HDR*, IDr1, [ CERT, ] SIG_R
	{State: MAIN_R2, NextState: MAIN_R3,
		Flags: AuthDS | FirstEncryptedInput | Encrypted | Reply | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeID, protocol.PayloadTypeSIG),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeCERT),
		Timeout: EventSaReplace,
		Handler: HandlerMainInI3OutR3, Name: "main_inI3_outR3"},

	{State: MAIN_R2, NextState: MAIN_R2,
		Flags: AuthPKE | AuthRPKE | FirstEncryptedInput | Encrypted | Reply | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventSaReplace,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// MAIN_I3: R3 --> done
	{State: MAIN_I3, NextState: MAIN_I4,
		Flags: AuthPSK | Initiator | FirstEncryptedInput | Encrypted | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeID, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventSaReplace,
		Handler: HandlerMainInR3, Name: "main_inR3"},

	{State: MAIN_I3, NextState: MAIN_I4,
		Flags: AuthDS | Initiator | FirstEncryptedInput | Encrypted | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeID, protocol.PayloadTypeSIG),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR, protocol.PayloadTypeCERT),
		Timeout: EventSaReplace,
		Handler: HandlerMainInR3, Name: "main_inR3"},

	{State: MAIN_I3, NextState: MAIN_I3,
		Flags: AuthPKE | AuthRPKE | Initiator | FirstEncryptedInput | Encrypted | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID, protocol.PayloadTypeCR),
		Timeout: EventSaReplace,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// MAIN_R3: can only get here due to packet loss
	{State: MAIN_R3, NextState: MAIN_R3,
		Flags: AuthAll | Encrypted | RetransmitOnDuplicate,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// MAIN_I4: can only get here due to packet loss
	{State: MAIN_I4, NextState: MAIN_I4,
		Flags: AuthAll | Initiator | Encrypted,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	/***** Phase 1 Aggressive Mode *****/

	// AGGR_R0:
	// PSK: HDR, SA, KE, Ni, IDii --> HDR, SA, KE, Nr, IDir, HASH_R
	// DS:  HDR, SA, KE, Ni, IDii --> HDR, SA, KE, Nr, IDir, [CERT,] SIG_R
	{State: AGGR_R0, NextState: AGGR_R1,
		Flags: AuthPSK | AuthDS | Reply,
		Req: P(protocol.PayloadTypeSA, protocol.PayloadTypeKE,
			protocol.PayloadTypeNonce, protocol.PayloadTypeID),
		Opt:     P(protocol.PayloadTypeVID, protocol.PayloadTypeNATD),
		Timeout: EventSoDiscard,
		Handler: HandlerAggrInI1OutR1, Name: "aggr_inI1_outR1"},

	{State: AGGR_R0, NextState: AGGR_R0, Flags: AuthPKE | AuthRPKE | Reply,
		Req:     P(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce, protocol.PayloadTypeID),
		Timeout: EventSoDiscard, Handler: HandlerUnexpected, Name: "unexpected"},

	// AGGR_I1:
	// PSK: HDR, SA, KE, Nr, IDir, HASH_R --> HDR*, HASH_I
	{State: AGGR_I1, NextState: AGGR_I2,
		Flags: AuthPSK | Initiator | OutputEncrypted | Reply | ReleasePendingP2,
		Req: P(protocol.PayloadTypeSA, protocol.PayloadTypeKE,
			protocol.PayloadTypeNonce, protocol.PayloadTypeID, protocol.PayloadTypeHASH),
		Opt:     P(protocol.PayloadTypeVID, protocol.PayloadTypeNATD),
		Timeout: EventSaReplace,
		Handler: HandlerAggrInR1OutI2, Name: "aggr_inR1_outI2"},

	// DS: HDR, SA, KE, Nr, IDir, [CERT,] SIG_R --> HDR*, [CERT,] SIG_I
	{State: AGGR_I1, NextState: AGGR_I2,
		Flags: AuthDS | Initiator | OutputEncrypted | Reply | ReleasePendingP2,
		Req: P(protocol.PayloadTypeSA, protocol.PayloadTypeKE,
			protocol.PayloadTypeNonce, protocol.PayloadTypeID, protocol.PayloadTypeSIG),
		Opt:     P(protocol.PayloadTypeVID, protocol.PayloadTypeNATD, protocol.PayloadTypeCERT),
		Timeout: EventSaReplace,
		Handler: HandlerAggrInR1OutI2, Name: "aggr_inR1_outI2"},

	{State: AGGR_I1, NextState: AGGR_I1, Flags: AuthPKE | AuthRPKE | Initiator | OutputEncrypted | Reply,
		Req:     P(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce, protocol.PayloadTypeID, protocol.PayloadTypeHASH),
		Timeout: EventSaReplace, Handler: HandlerUnexpected, Name: "unexpected"},

	// AGGR_R1:
	// PSK: HDR*, HASH_I --> done
	{State: AGGR_R1, NextState: AGGR_R2,
		Flags: AuthPSK | FirstEncryptedInput | OutputEncrypted |
			ReleasePendingP2 | RetransmitOnDuplicate,
		Req:     P(protocol.PayloadTypeHASH),
		Opt:     P(protocol.PayloadTypeVID, protocol.PayloadTypeNATD),
		Timeout: EventSaReplace,
		Handler: HandlerAggrInI2, Name: "aggr_inI2"},

	// DS: HDR*, SIG_I --> done
	{State: AGGR_R1, NextState: AGGR_R2,
		Flags: AuthDS | FirstEncryptedInput | OutputEncrypted |
			ReleasePendingP2 | RetransmitOnDuplicate,
		Req:     P(protocol.PayloadTypeSIG),
		Opt:     P(protocol.PayloadTypeVID, protocol.PayloadTypeNATD),
		Timeout: EventSaReplace,
		Handler: HandlerAggrInI2, Name: "aggr_inI2"},

	{State: AGGR_R1, NextState: AGGR_R1, Flags: AuthPKE | AuthRPKE | FirstEncryptedInput | OutputEncrypted,
		Req:     P(protocol.PayloadTypeHASH),
		Timeout: EventSaReplace, Handler: HandlerUnexpected, Name: "unexpected"},

	// AGGR_I2: can only get here due to packet loss
	{State: AGGR_I2, NextState: AGGR_I2,
		Flags: AuthAll | Initiator | RetransmitOnDuplicate,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// AGGR_R2: can only get here due to packet loss
	{State: AGGR_R2, NextState: AGGR_R2,
		Flags: AuthAll,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	/***** Phase 2 Quick Mode *****/

	// QUICK_R0:
	// HDR*, HASH(1), SA, Ni [, KE ] [, IDci, IDcr ] -->
	// HDR*, HASH(2), SA, Nr [, KE ] [, IDci, IDcr ]
	// Installs inbound IPsec SAs.
	{State: QUICK_R0, NextState: QUICK_R1,
		Flags: AuthAll | Encrypted | Reply,
		Req:   P(protocol.PayloadTypeHASH, protocol.PayloadTypeSA, protocol.PayloadTypeNonce),
		Opt:   P(protocol.PayloadTypeKE, protocol.PayloadTypeID, protocol.PayloadTypeNATOA),
		Timeout:  EventRetransmit,
		Handler:  HandlerQuickInI1OutR1, Name: "quick_inI1_outR1",
		HashType: protocol.V1_HASH_1},

	// QUICK_I1:
	// HDR*, HASH(2), SA, Nr [, KE ] [, IDci, IDcr ] --> HDR*, HASH(3)
	// Installs inbound and outbound IPsec SAs.
	{State: QUICK_I1, NextState: QUICK_I2,
		Flags: AuthAll | Initiator | Encrypted | Reply,
		Req:   P(protocol.PayloadTypeHASH, protocol.PayloadTypeSA, protocol.PayloadTypeNonce),
		Opt:   P(protocol.PayloadTypeKE, protocol.PayloadTypeID, protocol.PayloadTypeNATOA),
		Timeout:  EventSaReplace,
		Handler:  HandlerQuickInR1OutI2, Name: "quick_inR1_outI2",
		HashType: protocol.V1_HASH_2},

	// QUICK_R1: HDR*, HASH(3) --> done
	// Installs outbound IPsec SAs.
	{State: QUICK_R1, NextState: QUICK_R2,
		Flags: AuthAll | Encrypted,
		Req:   P(protocol.PayloadTypeHASH),
		Timeout:  EventSaReplace,
		Handler:  HandlerQuickInI2, Name: "quick_inI2",
		HashType: protocol.V1_HASH_3},

	// QUICK_I2: can only happen due to lost packet
	{State: QUICK_I2, NextState: QUICK_I2,
		Flags: AuthAll | Initiator | Encrypted | RetransmitOnDuplicate,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	// QUICK_R2: can only happen due to lost packet
	{State: QUICK_R2, NextState: QUICK_R2,
		Flags: AuthAll | Encrypted,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	/***** Informational exchanges *****/

	// INFO: HDR N/D; unencrypted
	{State: INFO, NextState: INFO,
		Flags: AuthAll,
		Timeout: EventNull,
		Handler: HandlerInformational, Name: "informational"},

	// INFO_PROTECTED: HDR* HASH(1) N/D
	{State: INFO_PROTECTED, NextState: INFO_PROTECTED,
		Flags: AuthAll | Encrypted,
		Req:   P(protocol.PayloadTypeHASH),
		Timeout:  EventNull,
		Handler:  HandlerInformational, Name: "informational",
		HashType: protocol.V1_HASH_1},

	/***** XAUTH server *****/

	{State: XAUTH_R0, NextState: XAUTH_R1,
		Flags: AuthAll | Encrypted,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventNull, // retransmit is done by the previous state
		Handler:  HandlerXauthInR0, Name: "xauth_inR0",
		HashType: protocol.V1_HASH_1},

	{State: XAUTH_R1, NextState: MAIN_R3,
		Flags: AuthAll | Encrypted,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventSaReplace,
		Handler:  HandlerXauthInR1, Name: "xauth_inR1",
		HashType: protocol.V1_HASH_1},

	/***** Mode Config *****/

	{State: MODE_CFG_R0, NextState: MODE_CFG_R1,
		Flags: AuthAll | Encrypted | Reply,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventSaReplace,
		Handler:  HandlerModeCfgInR0, Name: "modecfg_inR0",
		HashType: protocol.V1_HASH_1},

	{State: MODE_CFG_R1, NextState: MODE_CFG_R2,
		Flags: AuthAll | Encrypted,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventSaReplace,
		Handler:  HandlerModeCfgInR1, Name: "modecfg_inR1",
		HashType: protocol.V1_HASH_1},

	{State: MODE_CFG_R2, NextState: MODE_CFG_R2,
		Flags: AuthAll | Encrypted,
		Timeout: EventNull,
		Handler: HandlerUnexpected, Name: "unexpected"},

	{State: MODE_CFG_I1, NextState: MAIN_I4,
		Flags: AuthAll | Encrypted | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventSaReplace,
		Handler:  HandlerModeCfgInR1, Name: "modecfg_inR1",
		HashType: protocol.V1_HASH_1},

	/***** XAUTH client *****/

	{State: XAUTH_I0, NextState: XAUTH_I1,
		Flags: AuthAll | Encrypted | Reply | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventRetransmit,
		Handler:  HandlerXauthInI0, Name: "xauth_inI0",
		HashType: protocol.V1_HASH_1},

	{State: XAUTH_I1, NextState: MAIN_I4,
		Flags: AuthAll | Encrypted | Reply | ReleasePendingP2,
		Req:   P(protocol.PayloadTypeATTR, protocol.PayloadTypeHASH),
		Opt:   P(protocol.PayloadTypeVID),
		Timeout:  EventRetransmit,
		Handler:  HandlerXauthInI1, Name: "xauth_inI1",
		HashType: protocol.V1_HASH_1},
}
