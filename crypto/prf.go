package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/msgboxio/ikev1/protocol"
)

// Prf is the negotiated pseudo random function. In IKEv1 it is always
// HMAC over the negotiated hash algorithm (RFC 2409 3.2). New exposes
// the bare hash, which IV derivation applies directly (Appendix B).
type Prf struct {
	Apply  func(key, data []byte) []byte
	New    func() hash.Hash
	Length int
	name   string
}

// Hash applies the bare negotiated hash
func (p *Prf) Hash(data ...[]byte) []byte {
	h := p.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func (p *Prf) String() string { return p.name }

func (p *Prf) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("{%q}", p.name)), nil
}

func prfTransform(hashId protocol.OakleyHashId) (*Prf, bool) {
	switch hashId {
	case protocol.OAKLEY_MD5:
		return &Prf{macPrf(md5.New), md5.New, md5.Size, "md5"}, true
	case protocol.OAKLEY_SHA1:
		return &Prf{macPrf(sha1.New), sha1.New, sha1.Size, "sha1"}, true
	case protocol.OAKLEY_SHA2_256:
		return &Prf{macPrf(sha256.New), sha256.New, sha256.Size, "sha256"}, true
	case protocol.OAKLEY_SHA2_384:
		return &Prf{macPrf(sha512.New384), sha512.New384, sha512.Size384, "sha384"}, true
	case protocol.OAKLEY_SHA2_512:
		return &Prf{macPrf(sha512.New), sha512.New, sha512.Size, "sha512"}, true
	default:
		return nil, false
	}
}

func macPrf(h func() hash.Hash) func(key, data []byte) []byte {
	return func(key, data []byte) []byte {
		mac := hmac.New(h, key)
		mac.Write(data)
		return mac.Sum(nil)
	}
}
