package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCiphertextInvalid indicates a sealed value could not be opened.
var ErrCiphertextInvalid = errors.New("security: invalid ciphertext")

// KeyCipher seals provider credentials at rest with XChaCha20-Poly1305.
type KeyCipher struct {
	key []byte
}

// NewKeyCipher constructs a KeyCipher from a 32-byte key.
func NewKeyCipher(key []byte) (*KeyCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("security: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	copied := make([]byte, len(key))
	copy(copied, key)
	return &KeyCipher{key: copied}, nil
}

// Seal encrypts plaintext bound to the associated data and returns base64(nonce|ciphertext).
func (c *KeyCipher) Seal(plaintext, associatedData string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("security: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, errRand := rand.Read(nonce); errRand != nil {
		return "", fmt.Errorf("security: nonce: %w", errRand)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(associatedData))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal with the same associated data.
func (c *KeyCipher) Open(encoded, associatedData string) (string, error) {
	raw, errDecode := base64.StdEncoding.DecodeString(encoded)
	if errDecode != nil {
		return "", ErrCiphertextInvalid
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("security: init aead: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrCiphertextInvalid
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, errOpen := aead.Open(nil, nonce, ciphertext, []byte(associatedData))
	if errOpen != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}

// KeyHint returns the last four characters of a credential for display.
func KeyHint(secret string) string {
	runes := []rune(secret)
	if len(runes) <= 4 {
		return ""
	}
	return string(runes[len(runes)-4:])
}
