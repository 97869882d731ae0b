package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	// ErrNotBlockAligned means the ciphertext length is not a multiple of
	// the AES block size and cannot have been produced by CBC.
	ErrNotBlockAligned = errors.New("ciphertext is not block aligned")

	// ErrBadPadding means the trailing PKCS#7 padding is malformed,
	// usually a sign of a wrong key or IV.
	ErrBadPadding = errors.New("invalid pkcs7 padding")
)

// CBCDecrypt decrypts AES-CBC ciphertext with PKCS#7 padding removal.
// Key length selects AES-128/192/256. Only the first block of iv is
// consumed, which lets the key-as-IV fallback pass a 32-byte value.
func CBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	if len(iv) < aes.BlockSize {
		return nil, fmt.Errorf("iv is %d bytes, need at least %d", len(iv), aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:aes.BlockSize]).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

// CBCEncrypt is the inverse of CBCDecrypt. The pipeline itself never
// encrypts; this exists for round-trip verification and for callers
// producing test fixtures.
func CBCEncrypt(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	if len(iv) < aes.BlockSize {
		return nil, fmt.Errorf("iv is %d bytes, need at least %d", len(iv), aes.BlockSize)
	}

	padded := pkcs7Pad(plaintext)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:aes.BlockSize]).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

func pkcs7Pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
