package sensor

import (
	"crypto/aes"
	"crypto/cipher"
)

// BlockSize is the cipher block size in bytes.
const BlockSize = aes.BlockSize

// zeroIV is the fixed initialization vector used by the radio link.
var zeroIV = make([]byte, BlockSize)

// Encrypt encrypts plaintext under key in CBC mode with a zero IV and no
// padding. len(plaintext) must be a multiple of BlockSize.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	mode, err := newCBC("Encrypt", plaintext, key, cipher.NewCBCEncrypter)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plaintext))
	mode.CryptBlocks(out, plaintext)
	return out, nil
}

// Decrypt is the inverse of Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	mode, err := newCBC("Decrypt", ciphertext, key, cipher.NewCBCDecrypter)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	mode.CryptBlocks(out, ciphertext)
	return out, nil
}

func newCBC(op string, data, key []byte, mode func(cipher.Block, []byte) cipher.BlockMode) (cipher.BlockMode, error) {
	if len(data)%BlockSize != 0 {
		return nil, Errorf(ErrCodeMalformedCiphertext, op,
			"length %d is not a multiple of %d", len(data), BlockSize)
	}
	if len(key) != KeyLen {
		return nil, Errorf(ErrCodeInvalidKey, op, "key must be %d bytes, got %d", KeyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidKey, Op: op, Message: "invalid key", Cause: err}
	}
	return mode(block, zeroIV), nil
}
