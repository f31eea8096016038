package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"

	camellia "github.com/dgryski/go-camellia"
	"github.com/msgboxio/ikev1/protocol"
	"github.com/pkg/errors"
)

// cipherFunc returns a CBC BlockMode over the key and iv
type cipherFunc func(key, iv []byte, isRead bool) (cipher.BlockMode, error)

// cipherTransform maps an Oakley encryption algorithm onto its block
// length, default key length and constructor. Phase 1 of IKEv1 is CBC
// only (RFC 2409 Appendix B).
func cipherTransform(cipherId protocol.OakleyEncrId) (blockLen, keyLen int, fn cipherFunc, ok bool) {
	switch cipherId {
	case protocol.OAKLEY_DES_CBC:
		return des.BlockSize, 8, cipherDES, true
	case protocol.OAKLEY_3DES_CBC:
		return des.BlockSize, 24, cipher3DES, true
	case protocol.OAKLEY_AES_CBC:
		return aes.BlockSize, 16, cipherAES, true
	case protocol.OAKLEY_CAMELLIA_CBC:
		return camellia.BlockSize, 16, cipherCamellia, true
	default:
		return 0, 0, nil, false
	}
}

func cipherDES(key, iv []byte, isRead bool) (cipher.BlockMode, error) {
	block, err := des.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return mode(block, iv, isRead), nil
}

func cipher3DES(key, iv []byte, isRead bool) (cipher.BlockMode, error) {
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	return mode(block, iv, isRead), nil
}

func cipherAES(key, iv []byte, isRead bool) (cipher.BlockMode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return mode(block, iv, isRead), nil
}

func cipherCamellia(key, iv []byte, isRead bool) (cipher.BlockMode, error) {
	block, err := camellia.New(key)
	if err != nil {
		return nil, err
	}
	return mode(block, iv, isRead), nil
}

func mode(block cipher.Block, iv []byte, isRead bool) cipher.BlockMode {
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

// Decrypt b in place. b must be a whole number of blocks; the caller
// checked this against the negotiated block size already.
func (cs *CipherSuite) Decrypt(b, key, iv []byte) error {
	if len(b)%cs.BlockLen != 0 {
		return errors.Errorf("decrypt: %d is not a multiple of block size %d", len(b), cs.BlockLen)
	}
	mode, err := cs.Cipher(key, iv, true)
	if err != nil {
		return err
	}
	mode.CryptBlocks(b, b)
	return nil
}

// Encrypt pads b out to a whole number of blocks and encrypts,
// returning the ciphertext. RFC 2408 wants zero padding.
func (cs *CipherSuite) Encrypt(b, key, iv []byte) ([]byte, error) {
	if pad := len(b) % cs.BlockLen; pad != 0 {
		b = append(b, make([]byte, cs.BlockLen-pad)...)
	}
	mode, err := cs.Cipher(key, iv, false)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	mode.CryptBlocks(out, b)
	return out, nil
}
