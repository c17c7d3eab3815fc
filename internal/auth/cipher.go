package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FieldCipher encrypts individual document fields (bank account numbers)
// with AES-256-GCM. Ciphertext is stored as "hex(nonce):hex(sealed)".
type FieldCipher struct {
	aead cipher.AEAD
}

func NewFieldCipher(key string) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FieldCipher{aead: aead}, nil
}

func (c *FieldCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plain), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt returns values that are not in the encrypted format unchanged, so
// records written before encryption was enabled still read.
func (c *FieldCipher) Decrypt(value string) (string, error) {
	noncePart, sealedPart, ok := strings.Cut(value, ":")
	if !ok || noncePart == "" || sealedPart == "" {
		return value, nil
	}
	nonce, err := hex.DecodeString(noncePart)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return value, nil
	}
	sealed, err := hex.DecodeString(sealedPart)
	if err != nil {
		return value, nil
	}
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt field: %w", err)
	}
	return string(plain), nil
}

// Mask shows only the last four characters.
func Mask(value string) string {
	if len(value) <= 4 {
		return value
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
