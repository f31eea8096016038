package protocol

const (
	IKE_PORT      = 500
	IKE_NATT_PORT = 4500
)

const (
	ISAKMP_MAJOR_VERSION = 1
	ISAKMP_MINOR_VERSION = 0

	// major<<4 | minor; the only version byte that will ever exist for v1
	ISAKMP_VERSION = ISAKMP_MAJOR_VERSION<<4 | ISAKMP_MINOR_VERSION
)

const (
	IKE_HEADER_LEN        = 28
	PAYLOAD_HEADER_LENGTH = 4
	COOKIE_LEN            = 8

	// RFC 3948; prefixed to IKE packets on port 4500
	NON_ESP_MARKER_LEN = 4
)

// Spi is an ISAKMP cookie, 8 bytes
type Spi []byte

type PayloadType uint8

const (
	PayloadTypeNone  PayloadType = 0  // No Next Payload	[RFC2408]
	PayloadTypeSA    PayloadType = 1  // Security Association	[RFC2408]
	PayloadTypeP     PayloadType = 2  // Proposal	[RFC2408]
	PayloadTypeT     PayloadType = 3  // Transform	[RFC2408]
	PayloadTypeKE    PayloadType = 4  // Key Exchange	[RFC2408]
	PayloadTypeID    PayloadType = 5  // Identification	[RFC2408]
	PayloadTypeCERT  PayloadType = 6  // Certificate	[RFC2408]
	PayloadTypeCR    PayloadType = 7  // Certificate Request	[RFC2408]
	PayloadTypeHASH  PayloadType = 8  // Hash	[RFC2408]
	PayloadTypeSIG   PayloadType = 9  // Signature	[RFC2408]
	PayloadTypeNonce PayloadType = 10 // Nonce	[RFC2408]
	PayloadTypeN     PayloadType = 11 // Notification	[RFC2408]
	PayloadTypeD     PayloadType = 12 // Delete	[RFC2408]
	PayloadTypeVID   PayloadType = 13 // Vendor ID	[RFC2408]
	PayloadTypeATTR  PayloadType = 14 // Mode Config Attributes	[draft-ietf-ipsec-isakmp-mode-cfg]
	PayloadTypeSAK   PayloadType = 15 // SA KEK, Group DOI; abused by ancient NAT drafts

	PayloadTypeNATD  PayloadType = 20 // NAT-D	[RFC3947]
	PayloadTypeNATOA PayloadType = 21 // NAT-OA	[RFC3947]

	// private use, pre-RFC3947 drafts
	PayloadTypeNATDDrafts  PayloadType = 130
	PayloadTypeNATOADrafts PayloadType = 131
	PayloadTypeFragment    PayloadType = 132 // proprietary IKE fragmentation
)

type IkeExchangeType uint8

const (
	ISAKMP_XCHG_NONE     IkeExchangeType = 0
	ISAKMP_XCHG_BASE     IkeExchangeType = 1  // [RFC2408]
	ISAKMP_XCHG_IDPROT   IkeExchangeType = 2  // Main Mode	[RFC2409]
	ISAKMP_XCHG_AO       IkeExchangeType = 3  // Authentication Only	[RFC2408]
	ISAKMP_XCHG_AGGR     IkeExchangeType = 4  // Aggressive Mode	[RFC2409]
	ISAKMP_XCHG_INFO     IkeExchangeType = 5  // Informational	[RFC2408]
	ISAKMP_XCHG_MODE_CFG IkeExchangeType = 6  // Mode Config / XAUTH	[draft-ietf-ipsec-isakmp-mode-cfg]
	ISAKMP_XCHG_QUICK    IkeExchangeType = 32 // Quick Mode	[RFC2409]
	ISAKMP_XCHG_NGRP     IkeExchangeType = 33 // New Group Mode	[RFC2409]
)

type IkeFlags uint8

const (
	FlagEncryption IkeFlags = 1 << 0 // [RFC2408]
	FlagCommit     IkeFlags = 1 << 1 // ignored with a warning, see demux
	FlagAuthOnly   IkeFlags = 1 << 2 // [RFC2408]

	// never legitimately set; used by impair testing
	FlagReservedBogus IkeFlags = 1 << 5
)

func (f IkeFlags) IsEncrypted() bool {
	return f&FlagEncryption != 0
}
func (f IkeFlags) IsCommit() bool {
	return f&FlagCommit != 0
}

type DoiType uint32

const (
	ISAKMP_DOI_ISAKMP DoiType = 0
	ISAKMP_DOI_IPSEC  DoiType = 1
)

// SIT_IDENTITY_ONLY is the only situation we negotiate
const SIT_IDENTITY_ONLY uint32 = 1

type ProtocolId uint8

const (
	PROTO_ISAKMP    ProtocolId = 1
	PROTO_IPSEC_AH  ProtocolId = 2
	PROTO_IPSEC_ESP ProtocolId = 3
	PROTO_IPCOMP    ProtocolId = 4
)

// KEY_IKE is the only Phase 1 transform ID
const KEY_IKE uint8 = 1

type NotificationType uint16

const (
	// RFC 2408 3.14.1
	INVALID_PAYLOAD_TYPE      NotificationType = 1
	DOI_NOT_SUPPORTED         NotificationType = 2
	SITUATION_NOT_SUPPORTED   NotificationType = 3
	INVALID_COOKIE            NotificationType = 4
	INVALID_MAJOR_VERSION     NotificationType = 5
	INVALID_MINOR_VERSION     NotificationType = 6
	INVALID_EXCHANGE_TYPE     NotificationType = 7
	INVALID_FLAGS             NotificationType = 8
	INVALID_MESSAGE_ID        NotificationType = 9
	INVALID_PROTOCOL_ID       NotificationType = 10
	INVALID_SPI               NotificationType = 11
	INVALID_TRANSFORM_ID      NotificationType = 12
	ATTRIBUTES_NOT_SUPPORTED  NotificationType = 13
	NO_PROPOSAL_CHOSEN        NotificationType = 14
	BAD_PROPOSAL_SYNTAX       NotificationType = 15
	PAYLOAD_MALFORMED         NotificationType = 16
	INVALID_KEY_INFORMATION   NotificationType = 17
	INVALID_ID_INFORMATION    NotificationType = 18
	INVALID_CERT_ENCODING     NotificationType = 19
	INVALID_CERTIFICATE       NotificationType = 20
	CERT_TYPE_UNSUPPORTED     NotificationType = 21
	INVALID_CERT_AUTHORITY    NotificationType = 22
	INVALID_HASH_INFORMATION  NotificationType = 23
	AUTHENTICATION_FAILED     NotificationType = 24
	INVALID_SIGNATURE         NotificationType = 25
	ADDRESS_NOTIFICATION      NotificationType = 26
	NOTIFY_SA_LIFETIME        NotificationType = 27
	CERTIFICATE_UNAVAILABLE   NotificationType = 28
	UNSUPPORTED_EXCHANGE_TYPE NotificationType = 29
	UNEQUAL_PAYLOAD_LENGTHS   NotificationType = 30

	CONNECTED NotificationType = 16384

	// IPsec DOI, RFC 2407 4.6.3
	IPSEC_RESPONDER_LIFETIME NotificationType = 24576
	IPSEC_REPLAY_STATUS      NotificationType = 24577
	IPSEC_INITIAL_CONTACT    NotificationType = 24578

	// RFC 3706 DPD
	R_U_THERE     NotificationType = 36136
	R_U_THERE_ACK NotificationType = 36137

	// Cisco private use
	ISAKMP_N_CISCO_LOAD_BALANCE NotificationType = 40501
)

// NothingWrong is the empty value of a message's notification slot
const NothingWrong NotificationType = 0

type OakleyAttrType uint16

const (
	OAKLEY_ENCRYPTION_ALGORITHM  OakleyAttrType = 1
	OAKLEY_HASH_ALGORITHM        OakleyAttrType = 2
	OAKLEY_AUTHENTICATION_METHOD OakleyAttrType = 3
	OAKLEY_GROUP_DESCRIPTION     OakleyAttrType = 4
	OAKLEY_GROUP_TYPE            OakleyAttrType = 5
	OAKLEY_GROUP_PRIME           OakleyAttrType = 6
	OAKLEY_LIFE_TYPE             OakleyAttrType = 11
	OAKLEY_LIFE_DURATION         OakleyAttrType = 12
	OAKLEY_PRF                   OakleyAttrType = 13
	OAKLEY_KEY_LENGTH            OakleyAttrType = 14
)

const (
	OAKLEY_LIFE_SECONDS   uint16 = 1
	OAKLEY_LIFE_KILOBYTES uint16 = 2
)

type OakleyEncrId uint16

const (
	OAKLEY_DES_CBC      OakleyEncrId = 1
	OAKLEY_IDEA_CBC     OakleyEncrId = 2
	OAKLEY_BLOWFISH_CBC OakleyEncrId = 3
	OAKLEY_RC5_CBC      OakleyEncrId = 4
	OAKLEY_3DES_CBC     OakleyEncrId = 5
	OAKLEY_CAST_CBC     OakleyEncrId = 6
	OAKLEY_AES_CBC      OakleyEncrId = 7
	OAKLEY_CAMELLIA_CBC OakleyEncrId = 8
)

type OakleyHashId uint16

const (
	OAKLEY_MD5      OakleyHashId = 1
	OAKLEY_SHA1     OakleyHashId = 2
	OAKLEY_TIGER    OakleyHashId = 3
	OAKLEY_SHA2_256 OakleyHashId = 4
	OAKLEY_SHA2_384 OakleyHashId = 5
	OAKLEY_SHA2_512 OakleyHashId = 6
)

// AuthMethod is the negotiated Oakley authentication method. XAUTH
// variants from draft-beaulieu-ike-xauth map down to the base five via
// BaseAuth.
type AuthMethod uint16

const (
	AUTH_NONE               AuthMethod = 0
	OAKLEY_PRESHARED_KEY    AuthMethod = 1
	OAKLEY_DSS_SIG          AuthMethod = 2
	OAKLEY_RSA_SIG          AuthMethod = 3
	OAKLEY_RSA_ENC          AuthMethod = 4
	OAKLEY_RSA_REVISED_MODE AuthMethod = 5

	XAUTHInitPreShared AuthMethod = 65001
	XAUTHRespPreShared AuthMethod = 65002
	XAUTHInitDSS       AuthMethod = 65003
	XAUTHRespDSS       AuthMethod = 65004
	XAUTHInitRSA       AuthMethod = 65005
	XAUTHRespRSA       AuthMethod = 65006
	XAUTHInitRSAEnc    AuthMethod = 65007
	XAUTHRespRSAEnc    AuthMethod = 65008
	XAUTHInitRSARev    AuthMethod = 65009
	XAUTHRespRSARev    AuthMethod = 65010
)

// BaseAuth strips the XAUTH modifier from an auth method
func (a AuthMethod) BaseAuth() AuthMethod {
	switch a {
	case XAUTHInitPreShared, XAUTHRespPreShared:
		return OAKLEY_PRESHARED_KEY
	case XAUTHInitDSS, XAUTHRespDSS:
		return OAKLEY_DSS_SIG
	case XAUTHInitRSA, XAUTHRespRSA:
		return OAKLEY_RSA_SIG
	case XAUTHInitRSAEnc, XAUTHRespRSAEnc:
		return OAKLEY_RSA_ENC
	case XAUTHInitRSARev, XAUTHRespRSARev:
		return OAKLEY_RSA_REVISED_MODE
	}
	return a
}

func (a AuthMethod) IsXAuth() bool {
	return a >= XAUTHInitPreShared && a <= XAUTHRespRSARev
}

type DhGroupId uint16

const (
	MODP_768  DhGroupId = 1  // [RFC2409]
	MODP_1024 DhGroupId = 2  // [RFC2409]
	MODP_1536 DhGroupId = 5  // [RFC3526]
	MODP_2048 DhGroupId = 14 // [RFC3526]
	MODP_3072 DhGroupId = 15 // [RFC3526]
	MODP_4096 DhGroupId = 16 // [RFC3526]
)

type IdType uint8

const (
	// RFC 2407 4.6.2.1, shared by both ID payload shapes
	ID_IPV4_ADDR        IdType = 1
	ID_FQDN             IdType = 2
	ID_USER_FQDN        IdType = 3
	ID_IPV4_ADDR_SUBNET IdType = 4
	ID_IPV6_ADDR        IdType = 5
	ID_IPV6_ADDR_SUBNET IdType = 6
	ID_IPV4_ADDR_RANGE  IdType = 7
	ID_IPV6_ADDR_RANGE  IdType = 8
	ID_DER_ASN1_DN      IdType = 9
	ID_DER_ASN1_GN      IdType = 10
	ID_KEY_ID           IdType = 11
	ID_FROMCERT         IdType = 201 // local marker, never on the wire
)

type CertEncoding uint8

const (
	CERT_PKCS7             CertEncoding = 1
	CERT_PGP               CertEncoding = 2
	CERT_DNS_SIGNED_KEY    CertEncoding = 3
	CERT_X509_SIGNATURE    CertEncoding = 4
	CERT_X509_KEY_EXCHANGE CertEncoding = 5
	CERT_KERBEROS_TOKENS   CertEncoding = 6
	CERT_CRL               CertEncoding = 7
	CERT_ARL               CertEncoding = 8
	CERT_SPKI              CertEncoding = 9
	CERT_X509_ATTRIBUTE    CertEncoding = 10
)

type ModeCfgType uint8

const (
	ISAKMP_CFG_REQUEST ModeCfgType = 1
	ISAKMP_CFG_REPLY   ModeCfgType = 2
	ISAKMP_CFG_SET     ModeCfgType = 3
	ISAKMP_CFG_ACK     ModeCfgType = 4
)

type ModeCfgAttrType uint16

const (
	INTERNAL_IP4_ADDRESS    ModeCfgAttrType = 1
	INTERNAL_IP4_NETMASK    ModeCfgAttrType = 2
	INTERNAL_IP4_DNS        ModeCfgAttrType = 3
	INTERNAL_IP4_NBNS       ModeCfgAttrType = 4
	INTERNAL_ADDRESS_EXPIRY ModeCfgAttrType = 5
	INTERNAL_IP4_SUBNET     ModeCfgAttrType = 13
	SUPPORTED_ATTRIBUTES    ModeCfgAttrType = 14

	XAUTH_TYPE          ModeCfgAttrType = 16520
	XAUTH_USER_NAME     ModeCfgAttrType = 16521
	XAUTH_USER_PASSWORD ModeCfgAttrType = 16522
	XAUTH_PASSCODE      ModeCfgAttrType = 16523
	XAUTH_MESSAGE       ModeCfgAttrType = 16524
	XAUTH_CHALLENGE     ModeCfgAttrType = 16525
	XAUTH_DOMAIN        ModeCfgAttrType = 16526
	XAUTH_STATUS        ModeCfgAttrType = 16527
)

// EspTransformId for Quick Mode proposals, RFC 2407 4.4.4
type EspTransformId uint8

const (
	ESP_DES      EspTransformId = 2
	ESP_3DES     EspTransformId = 3
	ESP_NULL     EspTransformId = 11
	ESP_AES      EspTransformId = 12
	ESP_CAMELLIA EspTransformId = 22
)

// IPsec DOI attribute types for Phase 2 transforms, RFC 2407 4.5
type IpsecAttrType uint16

const (
	SA_LIFE_TYPE       IpsecAttrType = 1
	SA_LIFE_DURATION   IpsecAttrType = 2
	GROUP_DESCRIPTION  IpsecAttrType = 3
	ENCAPSULATION_MODE IpsecAttrType = 4
	AUTH_ALGORITHM     IpsecAttrType = 5
	KEY_LENGTH         IpsecAttrType = 6
)

const (
	ENCAPSULATION_MODE_TUNNEL    uint16 = 1
	ENCAPSULATION_MODE_TRANSPORT uint16 = 2
)

type AuthAlgorithm uint16

const (
	AUTH_ALGORITHM_HMAC_MD5      AuthAlgorithm = 1
	AUTH_ALGORITHM_HMAC_SHA1     AuthAlgorithm = 2
	AUTH_ALGORITHM_HMAC_SHA2_256 AuthAlgorithm = 5
)

// V1HashType selects the prescribed HASH(n) check for a transition
type V1HashType int

const (
	V1_HASH_NONE V1HashType = iota
	V1_HASH_1
	V1_HASH_2
	V1_HASH_3
)

var NonEspMarker = []byte{0, 0, 0, 0}
