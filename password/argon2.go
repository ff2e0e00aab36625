package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes bounds the input fed to argon2 when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooShort is returned by DeriveNew for passwords below MinPasswordBytes.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned by DeriveNew for passwords above MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrInvalidPHC is returned when an encoded digest cannot be parsed.
	ErrInvalidPHC = errors.New("invalid PHC string")
)

// Config is the argon2id work factor. It is fixed for the lifetime of an
// Argon2 value; every digest derived or verified by that value uses it.
type Config struct {
	Memory           uint32 // KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

// DefaultConfig returns m=64MiB, t=3, p=2 with a 16 byte salt and a 32 byte key.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MinPasswordBytes: 8,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 derives and verifies salted argon2id digests.
//
// Argon2 holds no mutable state and is safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher bound to it.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}

	return &Argon2{config: cfg}, nil
}

// Config returns the work factor in use.
func (a *Argon2) Config() Config {
	return a.config
}

// DeriveNew generates a fresh random salt and returns the argon2id digest of
// password under it.
//
// Password bytes are used exactly as provided; no Unicode normalization is applied.
func (a *Argon2) DeriveNew(password []byte) (digest, salt []byte, err error) {
	if len(password) < a.config.MinPasswordBytes {
		return nil, nil, ErrPasswordTooShort
	}
	if len(password) > a.config.MaxPasswordBytes {
		return nil, nil, ErrPasswordTooLong
	}

	salt = make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("read salt: %w", err)
	}

	return a.derive(password, salt), salt, nil
}

// Verify reports whether password hashes to expectedDigest under salt.
//
// A salt or digest of unexpected length yields false, the same answer as a
// wrong password. The final comparison runs in constant time.
func (a *Argon2) Verify(password, salt, expectedDigest []byte) bool {
	if uint32(len(salt)) != a.config.SaltLength || uint32(len(expectedDigest)) != a.config.KeyLength {
		return false
	}
	if len(password) > a.config.MaxPasswordBytes {
		return false
	}

	computed := a.derive(password, salt)
	return subtle.ConstantTimeCompare(computed, expectedDigest) == 1
}

// Burn performs one derivation against a throwaway salt and discards the
// result. Callers use it on lookup misses so that the miss costs the same as
// a real verification.
func (a *Argon2) Burn(password []byte) {
	if len(password) > a.config.MaxPasswordBytes {
		password = password[:a.config.MaxPasswordBytes]
	}
	salt := make([]byte, a.config.SaltLength)
	_ = a.derive(password, salt)
}

func (a *Argon2) derive(password, salt []byte) []byte {
	return argon2.IDKey(
		password,
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)
}

// EncodePHC renders digest and salt with the current work factor as
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
func (a *Argon2) EncodePHC(digest, salt []byte) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
}

// PHC is a parsed PHC string.
type PHC struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	Salt        []byte
	Digest      []byte
}

// ParsePHC decodes an argon2id PHC string. Both padded and unpadded base64 are accepted.
func ParsePHC(encoded string) (*PHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidPHC
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, fmt.Errorf("%w: version", ErrInvalidPHC)
	}

	phc := &PHC{}
	if err := parseParams(parts[3], phc); err != nil {
		return nil, err
	}

	if phc.Salt, err = decodeB64(parts[4]); err != nil || uint32(len(phc.Salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: salt", ErrInvalidPHC)
	}
	if phc.Digest, err = decodeB64(parts[5]); err != nil || len(phc.Digest) == 0 {
		return nil, fmt.Errorf("%w: hash", ErrInvalidPHC)
	}

	return phc, nil
}

// NeedsUpgrade reports whether encoded was produced with a weaker work factor
// than the one a is configured with.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	phc, err := ParsePHC(encoded)
	if err != nil {
		return false, err
	}

	return a.config.Memory > phc.Memory ||
		a.config.Time > phc.Time ||
		a.config.Parallelism > phc.Parallelism ||
		a.config.KeyLength != uint32(len(phc.Digest)), nil
}

func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parseParams(part string, phc *PHC) error {
	for _, pair := range strings.Split(part, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: params", ErrInvalidPHC)
		}

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return fmt.Errorf("%w: memory", ErrInvalidPHC)
			}
			phc.Memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return fmt.Errorf("%w: time", ErrInvalidPHC)
			}
			phc.Time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return fmt.Errorf("%w: parallelism", ErrInvalidPHC)
			}
			phc.Parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown param %q", ErrInvalidPHC, key)
		}
	}

	if phc.Memory == 0 || phc.Time == 0 || phc.Parallelism == 0 {
		return fmt.Errorf("%w: params", ErrInvalidPHC)
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MinPasswordBytes < 0:
		return errors.New("password minimum length must be >= 0")
	case cfg.MaxPasswordBytes < 0, cfg.MaxPasswordBytes > 0 && cfg.MaxPasswordBytes < cfg.MinPasswordBytes:
		return errors.New("password maximum length must be >= minimum length")
	}

	return nil
}
