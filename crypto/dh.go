package crypto

import (
	"io"
	"math/big"

	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
)

// DhGroup is a MODP group suitable for Oakley key agreement
type DhGroup struct {
	Id   protocol.DhGroupId
	g, p *big.Int
	bits int
}

func (group *DhGroup) String() string {
	switch group.Id {
	case protocol.MODP_768:
		return "modp768"
	case protocol.MODP_1024:
		return "modp1024"
	case protocol.MODP_1536:
		return "modp1536"
	case protocol.MODP_2048:
		return "modp2048"
	}
	return "modp?"
}

// Generate picks a private exponent and its public value
func (group *DhGroup) Generate(randSource io.Reader) (private, public *big.Int, err error) {
	private, err = randInt(randSource, group.p)
	if err != nil {
		return
	}
	public = new(big.Int).Exp(group.g, private, group.p)
	return
}

// DiffieHellman computes the shared secret, left padded to the group
// size as RFC 2409 requires.
func (group *DhGroup) DiffieHellman(theirPublic, myPrivate *big.Int) ([]byte, error) {
	if theirPublic.Sign() <= 0 || theirPublic.Cmp(group.p) >= 0 {
		return nil, errors.New("DH public value out of bounds")
	}
	shared := new(big.Int).Exp(theirPublic, myPrivate, group.p)
	return shared.FillBytes(make([]byte, group.bits/8)), nil
}

// PublicBytes left pads the public value to the group size
func (group *DhGroup) PublicBytes(public *big.Int) []byte {
	return public.FillBytes(make([]byte, group.bits/8))
}

var kexAlgoMap = map[protocol.DhGroupId]*DhGroup{}

func hexInt(s string) *big.Int {
	bi, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad prime")
	}
	return bi
}

func addModpGroup(id protocol.DhGroupId, bits int, prime string) {
	kexAlgoMap[id] = &DhGroup{
		Id:   id,
		g:    big.NewInt(2),
		p:    hexInt(prime),
		bits: bits,
	}
}

func init() {
	// RFC 2409 6.1
	addModpGroup(protocol.MODP_768, 768,
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74"+
			"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437"+
			"4FE1356D6D51C245E485B576625E7EC6F44C42E9A63A3620FFFFFFFFFFFFFFFF")
	// RFC 2409 6.2
	addModpGroup(protocol.MODP_1024, 1024,
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74"+
			"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437"+
			"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF")
	// RFC 3526 2
	addModpGroup(protocol.MODP_1536, 1536,
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74"+
			"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437"+
			"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05"+
			"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB"+
			"9ED529077096966D670C354E4ABC9804F1746C08CA237327FFFFFFFFFFFFFFFF")
	// RFC 3526 3
	addModpGroup(protocol.MODP_2048, 2048,
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74"+
			"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F1437"+
			"4FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF05"+
			"98DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB"+
			"9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B"+
			"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF695581718"+
			"3995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF")
}

func randInt(randSource io.Reader, max *big.Int) (*big.Int, error) {
	b := make([]byte, (max.BitLen()+7)/8)
	if _, err := io.ReadFull(randSource, b); err != nil {
		return nil, err
	}
	return new(big.Int).Mod(new(big.Int).SetBytes(b), max), nil
}
