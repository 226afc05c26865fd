package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrDecrypt is returned when ciphertext fails authentication
var ErrDecrypt = errors.New("decryption failed")

const keySize = 32
const nonceSize = 24

// cipher seals and opens credential material with nacl secretbox. The nonce
// is prepended to the ciphertext.
type cipher struct {
	key [keySize]byte
}

func newCipher(hexKey string) (*cipher, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(raw))
	}
	c := &cipher{}
	copy(c.key[:], raw)
	return c, nil
}

func (c *cipher) seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

func (c *cipher) open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// GenerateKey produces a fresh hex-encoded secretbox key for config files
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
