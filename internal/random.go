package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

// ResetTokenBytes is the entropy of a reset token before encoding.
const ResetTokenBytes = 16

var errResetTokenShape = errors.New("invalid reset token")

// NewResetToken returns ResetTokenBytes of crypto/rand output in base58.
// The alphabet is alphanumeric, so the token can sit in a URL path segment
// without escaping.
func NewResetToken() (string, error) {
	var raw [ResetTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base58.Encode(raw[:]), nil
}

// CheckResetToken rejects strings that could not have come from NewResetToken.
func CheckResetToken(token string) error {
	if token == "" || len(token) > 2*ResetTokenBytes {
		return errResetTokenShape
	}
	raw, err := base58.Decode(token)
	if err != nil || len(raw) != ResetTokenBytes {
		return errResetTokenShape
	}
	return nil
}

// DigestResetToken is the value persisted in place of the token.
func DigestResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
