package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test", 0), mr
}

func testRecord() *Record {
	now := time.Now()
	return &Record{
		Identity:  "alice",
		Token:     "header.payload.signature",
		SavedAt:   now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestStoresRoundTripAndDeleteIdempotent(t *testing.T) {
	redisStore, _ := newRedisStoreTest(t)
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	stores := map[string]Store{
		"redis":  redisStore,
		"file":   fileStore,
		"memory": NewMemoryStore(),
	}
	ctx := context.Background()

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Load(ctx, "current"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound before save, got %v", err)
			}

			want := testRecord()
			if err := store.Save(ctx, "current", want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx, "current")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if *got != *want {
				t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
			}

			if err := store.Delete(ctx, "current"); err != nil {
				t.Fatalf("first delete: %v", err)
			}
			if err := store.Delete(ctx, "current"); err != nil {
				t.Fatalf("second delete: %v", err)
			}
			if _, err := store.Load(ctx, "current"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestRedisStoreTTLFollowsTokenExpiry(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	rec := testRecord()
	rec.ExpiresAt = time.Now().Add(10 * time.Minute).Unix()
	if err := store.Save(ctx, "k", rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	ttl := mr.TTL("test:sess:k")
	if ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := store.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreExpiredRecordNotWritten(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	rec := testRecord()
	rec.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(context.Background(), "k", rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists("test:sess:k") {
		t.Fatal("expired record must not be stored")
	}
}

func TestRedisStoreCorruptBlobIsDropped(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	if err := mr.Set("test:sess:k", "\x09garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Load(context.Background(), "k"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if mr.Exists("test:sess:k") {
		t.Fatal("corrupt blob should be deleted")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	mr.Close()
	err := store.Save(context.Background(), "k", testRecord())
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestFileStorePermissionsAndExpiry(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "k", testRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.sess"))
	if len(matches) != 1 {
		t.Fatalf("expected one session file, got %v", matches)
	}
	info, err := os.Stat(matches[0])
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := store.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be dropped, got %v", err)
	}
	if _, err := os.Stat(matches[0]); !os.IsNotExist(err) {
		t.Fatal("expired file should be removed")
	}
}
