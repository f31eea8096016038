package crypto

import (
	"time"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
)

// CipherSuite is the set of Phase 1 transforms picked out of an
// accepted Oakley proposal.
type CipherSuite struct {
	Prf     *Prf
	DhGroup *DhGroup

	KeyLen, BlockLen int
	Cipher           cipherFunc

	EncrId protocol.OakleyEncrId
	HashId protocol.OakleyHashId
	Auth   protocol.AuthMethod

	Life time.Duration
}

// NewCipherSuite interprets the attributes of a KEY_IKE transform.
// Attribute values it does not understand make the transform
// unacceptable; a proposal scan just moves to the next one.
func NewCipherSuite(tr *protocol.Transform) (*CipherSuite, error) {
	cs := &CipherSuite{}
	var lifeType, lifeDur uint32
	for _, attr := range tr.Attributes {
		switch protocol.OakleyAttrType(attr.Type) {
		case protocol.OAKLEY_ENCRYPTION_ALGORITHM:
			cs.EncrId = protocol.OakleyEncrId(attr.Value)
			var ok bool
			cs.BlockLen, cs.KeyLen, cs.Cipher, ok = cipherTransform(cs.EncrId)
			if !ok {
				return nil, errors.Errorf("unsupported cipher %d", attr.Value)
			}
		case protocol.OAKLEY_HASH_ALGORITHM:
			cs.HashId = protocol.OakleyHashId(attr.Value)
			var ok bool
			cs.Prf, ok = prfTransform(cs.HashId)
			if !ok {
				return nil, errors.Errorf("unsupported hash %d", attr.Value)
			}
		case protocol.OAKLEY_AUTHENTICATION_METHOD:
			cs.Auth = protocol.AuthMethod(attr.Value)
		case protocol.OAKLEY_GROUP_DESCRIPTION:
			grp, ok := kexAlgoMap[protocol.DhGroupId(attr.Value)]
			if !ok {
				return nil, errors.Errorf("unsupported dh group %d", attr.Value)
			}
			cs.DhGroup = grp
		case protocol.OAKLEY_KEY_LENGTH:
			cs.KeyLen = int(attr.Value) / 8
		case protocol.OAKLEY_LIFE_TYPE:
			lifeType = attr.Value
		case protocol.OAKLEY_LIFE_DURATION:
			lifeDur = attr.Value
		default:
			return nil, errors.Errorf("unsupported oakley attribute %d", attr.Type)
		}
	}
	if cs.Cipher == nil || cs.Prf == nil || cs.DhGroup == nil || cs.Auth == protocol.AUTH_NONE {
		return nil, errors.New("incomplete oakley transform")
	}
	if lifeType == uint32(protocol.OAKLEY_LIFE_SECONDS) {
		cs.Life = time.Duration(lifeDur) * time.Second
	}
	return cs, nil
}

// Group looks up a registered MODP group
func Group(id protocol.DhGroupId) (*DhGroup, bool) {
	grp, ok := kexAlgoMap[id]
	return grp, ok
}
