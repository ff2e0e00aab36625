package reversible

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// MinSecretBytes is the shortest configured secret DeriveKey accepts.
	MinSecretBytes = 16

	formatV1  byte = 1
	nonceSize      = 12
)

var (
	// ErrIntegrity is returned when a ciphertext fails authentication. A
	// tampered ciphertext and a ciphertext sealed under another key are not
	// distinguished.
	ErrIntegrity = errors.New("ciphertext integrity check failed")
	// ErrInvalidKey is returned for keys that are not KeySize bytes long.
	ErrInvalidKey = errors.New("invalid cipher key")
	// ErrWeakSecret is returned by DeriveKey for secrets below MinSecretBytes.
	ErrWeakSecret = errors.New("cipher secret too short")

	hkdfInfo       = []byte("credcore/reversible/v1")
	additionalData = []byte("credcore.legacy-credential")
)

// AESGCM seals and opens legacy credentials. Output layout:
//
//	version(1) || nonce(12) || ciphertext || tag(16)
//
// AESGCM is safe for concurrent use.
type AESGCM struct {
	aead cipher.AEAD
}

// DeriveKey stretches a configured secret into a KeySize key with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive cipher key: %w", err)
	}
	return key, nil
}

// NewAESGCM returns a cipher bound to key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	return &AESGCM{aead: aead}, nil
}

// Protect encrypts plaintext under a fresh random nonce.
func (c *AESGCM) Protect(plaintext []byte) ([]byte, error) {
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out[0] = formatV1
	if _, err := io.ReadFull(rand.Reader, out[1:1+nonceSize]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	return c.aead.Seal(out, out[1:1+nonceSize], plaintext, additionalData), nil
}

// Unprotect authenticates and decrypts a value produced by Protect.
func (c *AESGCM) Unprotect(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1+nonceSize+c.aead.Overhead() || ciphertext[0] != formatV1 {
		return nil, ErrIntegrity
	}

	nonce := ciphertext[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[1+nonceSize:], additionalData)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// Equal decrypts ciphertext and compares the recovered plaintext to
// candidate in constant time.
func (c *AESGCM) Equal(ciphertext, candidate []byte) (bool, error) {
	plaintext, err := c.Unprotect(ciphertext)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(plaintext, candidate) == 1, nil
}

// Protect is a one-shot helper around NewAESGCM and AESGCM.Protect.
func Protect(plaintext, key []byte) ([]byte, error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return c.Protect(plaintext)
}

// Unprotect is a one-shot helper around NewAESGCM and AESGCM.Unprotect.
func Unprotect(ciphertext, key []byte) ([]byte, error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return c.Unprotect(ciphertext)
}
