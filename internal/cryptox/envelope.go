// Package cryptox implements the envelope-encryption engine: per-file
// symmetric encryption, per-recipient asymmetric key wrapping, keypair
// provisioning and plaintext digests. Plaintext and symmetric keys exist
// only transiently in memory and are never persisted unwrapped.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
)

// SymmetricKeySize is the AES-256 key length in bytes.
const SymmetricKeySize = 32

// GenerateSymmetricKey returns a fresh 256-bit key from crypto/rand.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EncryptPayload encrypts plaintext with AES-256-CBC under a fresh random
// 16-byte IV and returns base64(IV || ciphertext). The IV is never reused
// across calls, even for the same key. The blob layout is fixed: files
// encrypted earlier must stay decryptable.
func EncryptPayload(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptPayload reverses EncryptPayload. Malformed blobs, bad padding and
// cipher rejections all return common.ErrDecryption without detailing which
// check failed.
func DecryptPayload(blob string, key []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, common.ErrDecryption
	}
	if len(data) < aes.BlockSize || (len(data)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, common.ErrDecryption
	}
	if len(data) == aes.BlockSize {
		// IV only, no ciphertext blocks.
		return nil, common.ErrDecryption
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.ErrDecryption
	}

	iv, ciphertext := data[:aes.BlockSize], data[aes.BlockSize:]
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, common.ErrDecryption
	}
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, common.ErrDecryption
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, common.ErrDecryption
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, common.ErrDecryption
		}
	}
	return data[:len(data)-n], nil
}
