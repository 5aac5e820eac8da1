package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// valueCipher wraps AES-256-GCM for vault values. Each sealed value is
// nonce-prefixed so records are self-contained.
type valueCipher struct {
	gcm cipher.AEAD
}

// resolveKey accepts 32 raw bytes or 64 hex characters (decoded to 32 bytes).
func resolveKey(key string) ([]byte, error) {
	switch len(key) {
	case 32:
		return []byte(key), nil
	case 64:
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decoding hex vault key: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("vault key must be 32 raw bytes or 64 hex characters, got %d characters", len(key))
	}
}

func newValueCipher(key string) (*valueCipher, error) {
	keyBytes, err := resolveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &valueCipher{gcm: gcm}, nil
}

func (c *valueCipher) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (c *valueCipher) open(sealed []byte) (string, error) {
	if len(sealed) < c.gcm.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := sealed[:c.gcm.NonceSize()], sealed[c.gcm.NonceSize():]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting vault value: %w", err)
	}
	return string(plaintext), nil
}
