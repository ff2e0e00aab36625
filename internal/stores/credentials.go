package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	credentialRecordVersionV1 = 1
	maxChunkLen               = 65535
	maxTxRetries              = 4
)

var (
	ErrCredentialNotFound         = errors.New("credential not found")
	ErrCredentialExists           = errors.New("credential already exists")
	ErrCredentialCorrupt          = errors.New("credential record corrupt")
	ErrCredentialRedisUnavailable = errors.New("credential redis unavailable")
)

// CredentialRecord is the stored form of one identity. Timestamps are unix
// seconds; ResetExpiresAt is zero when the outstanding token never expires.
type CredentialRecord struct {
	Identity       string
	Scheme         uint8
	Secret         []byte
	Salt           []byte
	ResetDigest    string
	ResetExpiresAt int64
	CreatedAt      int64
}

// CredentialStore keeps one binary record per identity under
// "<prefix>:<identity>" and a reverse index "<prefix>rst:<digest>" pointing
// from the outstanding reset token digest back to the identity.
type CredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCredentialStore(redisClient redis.UniversalClient, prefix string) *CredentialStore {
	if prefix == "" {
		prefix = "cred"
	}
	return &CredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CredentialStore) recordKey(identity string) string {
	return s.prefix + ":" + identity
}

func (s *CredentialStore) resetKey(digest string) string {
	return s.prefix + "rst:" + digest
}

// Create inserts record only if the identity is free.
func (s *CredentialStore) Create(ctx context.Context, record *CredentialRecord) error {
	encoded, err := encodeCredentialRecord(record)
	if err != nil {
		return err
	}

	created, err := s.redis.SetNX(ctx, s.recordKey(record.Identity), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
	if !created {
		return ErrCredentialExists
	}

	return nil
}

func (s *CredentialStore) Get(ctx context.Context, identity string) (*CredentialRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}

	return decodeCredentialRecord(data)
}

// BindReset attaches digest to identity, replacing any outstanding token.
// The record and the reverse index change in one MULTI so that a superseded
// digest can no longer resolve. indexTTL bounds the reverse index; zero keeps
// it until the digest is rebound or cleared.
func (s *CredentialStore) BindReset(ctx context.Context, identity, digest string, expiresAt int64, indexTTL time.Duration) error {
	key := s.recordKey(identity)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCredentialRecord(data)
			if err != nil {
				return err
			}

			previous := record.ResetDigest
			record.ResetDigest = digest
			record.ResetExpiresAt = expiresAt

			updated, err := encodeCredentialRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				if previous != "" && previous != digest {
					pipe.Del(ctx, s.resetKey(previous))
				}
				pipe.Set(ctx, s.resetKey(digest), identity, indexTTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mapCredentialErr(err)
	}

	return fmt.Errorf("%w: bind reset contention", ErrCredentialRedisUnavailable)
}

// LookupReset resolves digest to the record it is bound to. An index entry
// whose record has since been rebound to a different digest is treated as
// absent. Expiry is left to the caller.
func (s *CredentialStore) LookupReset(ctx context.Context, digest string) (*CredentialRecord, error) {
	identity, err := s.redis.Get(ctx, s.resetKey(digest)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}

	record, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(record.ResetDigest), []byte(digest)) != 1 {
		return nil, ErrCredentialNotFound
	}

	return record, nil
}

// ClearReset removes digest from identity. It fails with
// ErrCredentialNotFound when digest is no longer the outstanding token, which
// makes concurrent single-use confirmations race to exactly one winner.
func (s *CredentialStore) ClearReset(ctx context.Context, identity, digest string) error {
	key := s.recordKey(identity)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCredentialRecord(data)
			if err != nil {
				return err
			}
			if subtle.ConstantTimeCompare([]byte(record.ResetDigest), []byte(digest)) != 1 {
				return ErrCredentialNotFound
			}

			record.ResetDigest = ""
			record.ResetExpiresAt = 0

			updated, err := encodeCredentialRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				pipe.Del(ctx, s.resetKey(digest))
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mapCredentialErr(err)
	}

	return ErrCredentialNotFound
}

func mapCredentialErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrCredentialNotFound
	case errors.Is(err, ErrCredentialNotFound), errors.Is(err, ErrCredentialCorrupt):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCredentialRedisUnavailable, err)
	}
}

func encodeCredentialRecord(record *CredentialRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(credentialRecordVersionV1)
	buf.WriteByte(record.Scheme)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ResetExpiresAt); err != nil {
		return nil, err
	}

	for _, chunk := range [][]byte{
		[]byte(record.Identity),
		record.Secret,
		record.Salt,
		[]byte(record.ResetDigest),
	} {
		if err := writeChunk(&buf, chunk); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeCredentialRecord(data []byte) (*CredentialRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if version != credentialRecordVersionV1 {
		return nil, fmt.Errorf("%w: version %d", ErrCredentialCorrupt, version)
	}

	scheme, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	record := &CredentialRecord{Scheme: scheme}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ResetExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	chunks := make([][]byte, 4)
	for i := range chunks {
		if chunks[i], err = readChunk(reader); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
		}
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCredentialCorrupt)
	}

	record.Identity = string(chunks[0])
	record.Secret = chunks[1]
	record.Salt = chunks[2]
	record.ResetDigest = string(chunks[3])

	return record, nil
}

func writeChunk(buf *bytes.Buffer, chunk []byte) error {
	if len(chunk) > maxChunkLen {
		return errors.New("credential record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(chunk))); err != nil {
		return err
	}
	buf.Write(chunk)
	return nil
}

func readChunk(reader *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	chunk := make([]byte, n)
	if _, err := io.ReadFull(reader, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}
