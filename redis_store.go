package credcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credcore/internal/stores"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cred"

// RedisStore is the Redis-backed CredentialStore.
type RedisStore struct {
	store *stores.CredentialStore
	now   func() time.Time
}

// NewRedisStore returns a CredentialStore keeping records under prefix
// (default "cred").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{store: stores.NewCredentialStore(client, prefix), now: time.Now}
}

// WithClock returns a copy of s that measures reset index lifetimes against
// now. Builder applies its own clock this way.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	out := *s
	if now != nil {
		out.now = now
	}
	return &out
}

func (s *RedisStore) Create(ctx context.Context, record *CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return mapRedisStoreError(s.store.Create(ctx, toStoreRecord(record)))
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*CredentialRecord, error) {
	rec, err := s.store.Get(ctx, identity)
	if err != nil {
		return nil, mapRedisStoreError(err)
	}
	return fromStoreRecord(rec), nil
}

func (s *RedisStore) BindResetToken(ctx context.Context, identity, digest string, expiresAt time.Time) error {
	var (
		exp      int64
		indexTTL time.Duration
	)
	if !expiresAt.IsZero() {
		exp = expiresAt.Unix()
		indexTTL = max(expiresAt.Sub(s.now()), time.Second)
	}
	return mapRedisStoreError(s.store.BindReset(ctx, identity, digest, exp, indexTTL))
}

func (s *RedisStore) LookupResetToken(ctx context.Context, digest string) (*CredentialRecord, error) {
	rec, err := s.store.LookupReset(ctx, digest)
	if err != nil {
		return nil, mapRedisStoreError(err)
	}
	return fromStoreRecord(rec), nil
}

func (s *RedisStore) ClearResetToken(ctx context.Context, identity, digest string) error {
	return mapRedisStoreError(s.store.ClearReset(ctx, identity, digest))
}

func mapRedisStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCredentialNotFound):
		return ErrNotFound
	case errors.Is(err, stores.ErrCredentialExists):
		return ErrDuplicateIdentity
	case errors.Is(err, stores.ErrCredentialCorrupt):
		return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func toStoreRecord(r *CredentialRecord) *stores.CredentialRecord {
	rec := &stores.CredentialRecord{
		Identity:    r.Identity,
		Scheme:      uint8(r.Scheme),
		Secret:      r.Secret,
		Salt:        r.Salt,
		ResetDigest: r.ResetTokenDigest,
		CreatedAt:   r.CreatedAt.Unix(),
	}
	if !r.ResetExpiresAt.IsZero() {
		rec.ResetExpiresAt = r.ResetExpiresAt.Unix()
	}
	return rec
}

func fromStoreRecord(r *stores.CredentialRecord) *CredentialRecord {
	rec := &CredentialRecord{
		Identity:         r.Identity,
		Scheme:           Scheme(r.Scheme),
		Secret:           r.Secret,
		Salt:             r.Salt,
		ResetTokenDigest: r.ResetDigest,
		CreatedAt:        time.Unix(r.CreatedAt, 0).UTC(),
	}
	if r.ResetExpiresAt != 0 {
		rec.ResetExpiresAt = time.Unix(r.ResetExpiresAt, 0).UTC()
	}
	return rec
}
