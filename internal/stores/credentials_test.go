package stores

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCredentialStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *CredentialStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return mr, rdb, NewCredentialStore(rdb, "cred")
}

func testRecord(identity string) *CredentialRecord {
	return &CredentialRecord{
		Identity:  identity,
		Scheme:    1,
		Secret:    bytes.Repeat([]byte{0xAB}, 32),
		Salt:      bytes.Repeat([]byte{0x01}, 16),
		CreatedAt: 1700000000,
	}
}

func TestCredentialStoreCreateAndGet(t *testing.T) {
	_, _, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Identity != "a@x.com" || got.Scheme != 1 || got.CreatedAt != 1700000000 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !bytes.Equal(got.Secret, testRecord("").Secret) || !bytes.Equal(got.Salt, testRecord("").Salt) {
		t.Fatal("secret or salt did not round trip")
	}
	if got.ResetDigest != "" || got.ResetExpiresAt != 0 {
		t.Fatalf("expected no outstanding reset, got %+v", got)
	}
}

func TestCredentialStoreCreateDuplicate(t *testing.T) {
	_, _, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testRecord("a@x.com")); !errors.Is(err, ErrCredentialExists) {
		t.Fatalf("expected ErrCredentialExists, got %v", err)
	}
}

func TestCredentialStoreConcurrentCreateHasOneWinner(t *testing.T) {
	_, _, store := newTestCredentialStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Create(ctx, testRecord("race@x.com")); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one successful create, got %d", winners)
	}
}

func TestCredentialStoreGetMissing(t *testing.T) {
	_, _, store := newTestCredentialStore(t)

	if _, err := store.Get(context.Background(), "nobody@x.com"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCredentialStoreCorruptRecord(t *testing.T) {
	_, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := rdb.Set(ctx, "cred:a@x.com", []byte{9, 9, 9}, 0).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := store.Get(ctx, "a@x.com"); !errors.Is(err, ErrCredentialCorrupt) {
		t.Fatalf("expected ErrCredentialCorrupt, got %v", err)
	}
}

func TestCredentialStoreBindAndLookupReset(t *testing.T) {
	_, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.BindReset(ctx, "a@x.com", "digest-1", 0, 0); err != nil {
		t.Fatalf("BindReset failed: %v", err)
	}

	got, err := store.LookupReset(ctx, "digest-1")
	if err != nil {
		t.Fatalf("LookupReset failed: %v", err)
	}
	if got.Identity != "a@x.com" || got.ResetDigest != "digest-1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if ttl := rdb.TTL(ctx, "credrst:digest-1").Val(); ttl != -1 {
		t.Fatalf("expected non-expiring index, got ttl %v", ttl)
	}

	if _, err := store.LookupReset(ctx, "digest-unknown"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCredentialStoreRebindSupersedesPreviousToken(t *testing.T) {
	_, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.BindReset(ctx, "a@x.com", "digest-1", 0, 0); err != nil {
		t.Fatalf("BindReset failed: %v", err)
	}
	if err := store.BindReset(ctx, "a@x.com", "digest-2", 0, 0); err != nil {
		t.Fatalf("BindReset failed: %v", err)
	}

	if _, err := store.LookupReset(ctx, "digest-1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected superseded digest to be gone, got %v", err)
	}
	if rdb.Exists(ctx, "credrst:digest-1").Val() != 0 {
		t.Fatal("expected superseded index key to be deleted")
	}
	if _, err := store.LookupReset(ctx, "digest-2"); err != nil {
		t.Fatalf("expected latest digest to resolve, got %v", err)
	}
}

func TestCredentialStoreStaleIndexIgnored(t *testing.T) {
	_, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := rdb.Set(ctx, "credrst:forged", "a@x.com", 0).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := store.LookupReset(ctx, "forged"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected index without matching record digest to be rejected, got %v", err)
	}
}

func TestCredentialStoreBindResetWithExpiry(t *testing.T) {
	mr, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	expiresAt := time.Now().Add(10 * time.Minute).Unix()
	if err := store.BindReset(ctx, "a@x.com", "digest-1", expiresAt, 10*time.Minute); err != nil {
		t.Fatalf("BindReset failed: %v", err)
	}

	got, err := store.LookupReset(ctx, "digest-1")
	if err != nil {
		t.Fatalf("LookupReset failed: %v", err)
	}
	if got.ResetExpiresAt != expiresAt {
		t.Fatalf("expected expiry %d, got %d", expiresAt, got.ResetExpiresAt)
	}
	if ttl := rdb.TTL(ctx, "credrst:digest-1").Val(); ttl != 10*time.Minute {
		t.Fatalf("expected index key ttl of 10m, got %v", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.LookupReset(ctx, "digest-1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected expired index to be gone, got %v", err)
	}
}

func TestCredentialStoreBindResetMissingIdentity(t *testing.T) {
	_, _, store := newTestCredentialStore(t)

	err := store.BindReset(context.Background(), "nobody@x.com", "digest-1", 0, 0)
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCredentialStoreClearResetSingleWinner(t *testing.T) {
	_, rdb, store := newTestCredentialStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRecord("a@x.com")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.BindReset(ctx, "a@x.com", "digest-1", 0, 0); err != nil {
		t.Fatalf("BindReset failed: %v", err)
	}

	if err := store.ClearReset(ctx, "a@x.com", "digest-1"); err != nil {
		t.Fatalf("ClearReset failed: %v", err)
	}
	if err := store.ClearReset(ctx, "a@x.com", "digest-1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected second clear to fail, got %v", err)
	}
	if rdb.Exists(ctx, "credrst:digest-1").Val() != 0 {
		t.Fatal("expected index key to be deleted")
	}

	got, err := store.Get(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ResetDigest != "" {
		t.Fatalf("expected cleared digest, got %q", got.ResetDigest)
	}
}

func TestCredentialStoreRedisDown(t *testing.T) {
	mr, _, store := newTestCredentialStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "a@x.com")
	if !errors.Is(err, ErrCredentialRedisUnavailable) {
		t.Fatalf("expected ErrCredentialRedisUnavailable, got %v", err)
	}
}

func TestCredentialRecordCodecRejectsTrailingBytes(t *testing.T) {
	encoded, err := encodeCredentialRecord(testRecord("a@x.com"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if _, err := decodeCredentialRecord(append(encoded, 0)); !errors.Is(err, ErrCredentialCorrupt) {
		t.Fatalf("expected ErrCredentialCorrupt, got %v", err)
	}
	if _, err := decodeCredentialRecord(encoded[:len(encoded)-1]); !errors.Is(err, ErrCredentialCorrupt) {
		t.Fatalf("expected ErrCredentialCorrupt on truncation, got %v", err)
	}
}
