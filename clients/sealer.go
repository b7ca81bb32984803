package clients

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealInfo      = "passthru/client-record/v1"
	referenceInfo = "passthru/client-secret-ref/v1"
)

// Sealer encrypts client records at rest and derives keyed secret references.
// Both keys are derived from the process secret with HKDF-SHA256.
type Sealer struct {
	aead   cipher.AEAD
	refKey []byte
}

func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("[clients.NewSealer] empty secret")
	}
	encKey, err := deriveKey(secret, sealInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	refKey, err := deriveKey(secret, referenceInfo, sha256.Size)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("[clients.NewSealer] %w", err)
	}
	return &Sealer{aead: aead, refKey: refKey}, nil
}

func deriveKey(secret []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("[clients.deriveKey] %s: %w", info, err)
	}
	return key, nil
}

// Seal encrypts plaintext bound to aad and returns nonce||ciphertext as base64url.
func (s *Sealer) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("[Sealer.Seal] nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plaintext, aad)), nil
}

// Open reverses Seal. It fails if the data or aad were altered.
func (s *Sealer) Open(sealed string, aad []byte) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("[Sealer.Open] decode: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, fmt.Errorf("[Sealer.Open] sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("[Sealer.Open] %w", err)
	}
	return plaintext, nil
}

// Reference returns the keyed reference exposed in place of a client secret.
func (s *Sealer) Reference(secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, s.refKey)
	mac.Write([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// MatchesReference compares secret against ref in constant time.
func (s *Sealer) MatchesReference(secret, ref string) bool {
	if secret == "" || ref == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.Reference(secret)), []byte(ref)) == 1
}
