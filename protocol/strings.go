package protocol

import "fmt"

func (p PayloadType) String() string {
	switch p {
	case PayloadTypeNone:
		return "None"
	case PayloadTypeSA:
		return "SA"
	case PayloadTypeP:
		return "Proposal"
	case PayloadTypeT:
		return "Transform"
	case PayloadTypeKE:
		return "KE"
	case PayloadTypeID:
		return "ID"
	case PayloadTypeCERT:
		return "CERT"
	case PayloadTypeCR:
		return "CR"
	case PayloadTypeHASH:
		return "HASH"
	case PayloadTypeSIG:
		return "SIG"
	case PayloadTypeNonce:
		return "Nonce"
	case PayloadTypeN:
		return "N"
	case PayloadTypeD:
		return "D"
	case PayloadTypeVID:
		return "VID"
	case PayloadTypeATTR:
		return "ATTR"
	case PayloadTypeSAK:
		return "SAK"
	case PayloadTypeNATD:
		return "NAT-D"
	case PayloadTypeNATOA:
		return "NAT-OA"
	case PayloadTypeNATDDrafts:
		return "NAT-D-drafts"
	case PayloadTypeNATOADrafts:
		return "NAT-OA-drafts"
	case PayloadTypeFragment:
		return "FRAG"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(p))
	}
}

func (p Payloads) String() string {
	var pls []PayloadType
	for _, pl := range p.Array {
		pls = append(pls, pl.Type())
	}
	return fmt.Sprintf("%v", pls)
}

func (et IkeExchangeType) String() string {
	switch et {
	case ISAKMP_XCHG_BASE:
		return "BASE"
	case ISAKMP_XCHG_IDPROT:
		return "IDPROT"
	case ISAKMP_XCHG_AO:
		return "AUTH_ONLY"
	case ISAKMP_XCHG_AGGR:
		return "AGGR"
	case ISAKMP_XCHG_INFO:
		return "INFO"
	case ISAKMP_XCHG_MODE_CFG:
		return "MODE_CFG"
	case ISAKMP_XCHG_QUICK:
		return "QUICK"
	case ISAKMP_XCHG_NGRP:
		return "NGRP"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(et))
	}
}

func (f IkeFlags) String() (ret string) {
	if f.IsEncrypted() {
		ret += "[E]"
	}
	if f.IsCommit() {
		ret += "[C]"
	}
	if f&FlagAuthOnly != 0 {
		ret += "[A]"
	}
	return
}

func (n NotificationType) String() string {
	switch n {
	case INVALID_PAYLOAD_TYPE:
		return "INVALID_PAYLOAD_TYPE"
	case DOI_NOT_SUPPORTED:
		return "DOI_NOT_SUPPORTED"
	case SITUATION_NOT_SUPPORTED:
		return "SITUATION_NOT_SUPPORTED"
	case INVALID_COOKIE:
		return "INVALID_COOKIE"
	case INVALID_MAJOR_VERSION:
		return "INVALID_MAJOR_VERSION"
	case INVALID_MINOR_VERSION:
		return "INVALID_MINOR_VERSION"
	case INVALID_EXCHANGE_TYPE:
		return "INVALID_EXCHANGE_TYPE"
	case INVALID_FLAGS:
		return "INVALID_FLAGS"
	case INVALID_MESSAGE_ID:
		return "INVALID_MESSAGE_ID"
	case INVALID_PROTOCOL_ID:
		return "INVALID_PROTOCOL_ID"
	case INVALID_SPI:
		return "INVALID_SPI"
	case INVALID_TRANSFORM_ID:
		return "INVALID_TRANSFORM_ID"
	case ATTRIBUTES_NOT_SUPPORTED:
		return "ATTRIBUTES_NOT_SUPPORTED"
	case NO_PROPOSAL_CHOSEN:
		return "NO_PROPOSAL_CHOSEN"
	case BAD_PROPOSAL_SYNTAX:
		return "BAD_PROPOSAL_SYNTAX"
	case PAYLOAD_MALFORMED:
		return "PAYLOAD_MALFORMED"
	case INVALID_KEY_INFORMATION:
		return "INVALID_KEY_INFORMATION"
	case INVALID_ID_INFORMATION:
		return "INVALID_ID_INFORMATION"
	case INVALID_CERT_ENCODING:
		return "INVALID_CERT_ENCODING"
	case INVALID_CERTIFICATE:
		return "INVALID_CERTIFICATE"
	case CERT_TYPE_UNSUPPORTED:
		return "CERT_TYPE_UNSUPPORTED"
	case INVALID_CERT_AUTHORITY:
		return "INVALID_CERT_AUTHORITY"
	case INVALID_HASH_INFORMATION:
		return "INVALID_HASH_INFORMATION"
	case AUTHENTICATION_FAILED:
		return "AUTHENTICATION_FAILED"
	case INVALID_SIGNATURE:
		return "INVALID_SIGNATURE"
	case ADDRESS_NOTIFICATION:
		return "ADDRESS_NOTIFICATION"
	case NOTIFY_SA_LIFETIME:
		return "NOTIFY_SA_LIFETIME"
	case CERTIFICATE_UNAVAILABLE:
		return "CERTIFICATE_UNAVAILABLE"
	case UNSUPPORTED_EXCHANGE_TYPE:
		return "UNSUPPORTED_EXCHANGE_TYPE"
	case UNEQUAL_PAYLOAD_LENGTHS:
		return "UNEQUAL_PAYLOAD_LENGTHS"
	case CONNECTED:
		return "CONNECTED"
	case IPSEC_RESPONDER_LIFETIME:
		return "IPSEC_RESPONDER_LIFETIME"
	case IPSEC_REPLAY_STATUS:
		return "IPSEC_REPLAY_STATUS"
	case IPSEC_INITIAL_CONTACT:
		return "IPSEC_INITIAL_CONTACT"
	case R_U_THERE:
		return "R_U_THERE"
	case R_U_THERE_ACK:
		return "R_U_THERE_ACK"
	case ISAKMP_N_CISCO_LOAD_BALANCE:
		return "ISAKMP_N_CISCO_LOAD_BALANCE"
	default:
		return fmt.Sprintf("Notify(%d)", uint16(n))
	}
}

func (a AuthMethod) String() string {
	switch a.BaseAuth() {
	case OAKLEY_PRESHARED_KEY:
		return "PSK"
	case OAKLEY_DSS_SIG:
		return "DSS"
	case OAKLEY_RSA_SIG:
		return "RSASIG"
	case OAKLEY_RSA_ENC:
		return "RSAENC"
	case OAKLEY_RSA_REVISED_MODE:
		return "RSAREV"
	default:
		return fmt.Sprintf("Auth(%d)", uint16(a))
	}
}

func (p ProtocolId) String() string {
	switch p {
	case PROTO_ISAKMP:
		return "ISAKMP"
	case PROTO_IPSEC_AH:
		return "AH"
	case PROTO_IPSEC_ESP:
		return "ESP"
	case PROTO_IPCOMP:
		return "IPCOMP"
	default:
		return fmt.Sprintf("Proto(%d)", uint8(p))
	}
}

func (t ModeCfgType) String() string {
	switch t {
	case ISAKMP_CFG_REQUEST:
		return "CFG_REQUEST"
	case ISAKMP_CFG_REPLY:
		return "CFG_REPLY"
	case ISAKMP_CFG_SET:
		return "CFG_SET"
	case ISAKMP_CFG_ACK:
		return "CFG_ACK"
	default:
		return fmt.Sprintf("Cfg(%d)", uint8(t))
	}
}
