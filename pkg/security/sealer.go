package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1."

// ErrInvalidSealedValue signals ciphertext that is malformed or fails authentication.
var ErrInvalidSealedValue = errors.New("invalid sealed value")

// Sealer encrypts provider OAuth tokens before they are written to the database.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds an XChaCha20-Poly1305 sealer from a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "v1.<base64(nonce|ciphertext)>". The associated data binds the
// ciphertext to its owner so a token cannot be swapped between dojangs.
func (s *Sealer) Seal(plaintext, associated string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(associated))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, associated string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrInvalidSealedValue
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrInvalidSealedValue
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrInvalidSealedValue
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(associated))
	if err != nil {
		return "", ErrInvalidSealedValue
	}
	return string(plain), nil
}
