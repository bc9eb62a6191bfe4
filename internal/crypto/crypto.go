// Package crypto provides the credential cipher used to protect bot tokens
// and webhook secrets at rest. Values are sealed with AES-256-GCM; each
// value kind is bound as additional authenticated data so a ciphertext
// cannot be replayed into a different column.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKeySize    = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")
)

// Purpose labels the kind of value being sealed.
type Purpose string

const (
	PurposeBotToken      Purpose = "bot-token"
	PurposeWebhookToken  Purpose = "webhook-token"
	PurposeWebhookURL    Purpose = "webhook-url"
	PurposeRedirectToken Purpose = "webhook-redirect-token"
)

// Cipher seals and opens credential values with a fixed AES-256 key.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a base64-encoded 32-byte key.
func New(keyBase64 string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode crypto key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM mode: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext for the given purpose. The returned bytes are
// nonce + ciphertext + tag, suitable for a BLOB column.
func (c *Cipher) Encrypt(plaintext string, purpose Purpose) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(purpose)), nil
}

// Decrypt opens a value sealed by Encrypt with the same purpose.
func (c *Cipher) Decrypt(sealed []byte, purpose Purpose) (string, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}

	return string(plaintext), nil
}
