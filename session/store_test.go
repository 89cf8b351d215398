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

func newRedisStoreTest(t *testing.T, retention time.Duration) (*RedisStore, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "sg", "", retention)
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSealConfig() SealConfig {
	return SealConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty store, got %+v, %v", got, err)
	}

	sess := testSession()
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.AccessToken != sess.AccessToken || got.UserID() != sess.UserID() {
		t.Fatalf("unexpected loaded session: %+v", got)
	}

	replacement := testSession()
	replacement.AccessToken = "rotated"
	if err := store.Save(ctx, replacement); err != nil {
		t.Fatalf("save replacement: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil || got.AccessToken != "rotated" {
		t.Fatalf("expected replacement session, got %+v, %v", got, err)
	}

	if err := store.Remove(ctx); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := store.Remove(ctx); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected empty store after remove, got %+v, %v", got, err)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, _, _, done := newRedisStoreTest(t, 0)
	defer done()
	exerciseStore(t, store)
}

func TestFileStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.bin")
	store, err := NewFileStore(path, []byte("device passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	exerciseStore(t, store)
}

func TestRedisStoreAppliesRetentionTTL(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t, 24*time.Hour)
	defer done()

	sess := testSession()
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	ttl := mr.TTL("sg:" + DefaultStorageKey)
	if ttl <= 24*time.Hour || ttl > 25*time.Hour+time.Minute {
		t.Fatalf("expected ttl of roughly 25h, got %v", ttl)
	}
}

func TestRedisStoreCorruptBlob(t *testing.T) {
	store, _, rdb, done := newRedisStoreTest(t, 0)
	defer done()
	ctx := context.Background()

	if err := rdb.Set(ctx, "sg:"+DefaultStorageKey, []byte("bad"), 0).Err(); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr, _, done := newRedisStoreTest(t, 0)
	defer done()
	mr.Close()

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ping to fail with ErrStoreUnavailable, got %v", err)
	}
}

func TestFileStoreReopenWithSamePassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	first, err := NewFileStore(path, []byte("device passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := first.Save(context.Background(), testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	second, err := NewFileStore(path, []byte("device passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := second.Load(context.Background())
	if err != nil || got == nil || got.RefreshToken != "refresh-token" {
		t.Fatalf("expected session from reopened store, got %+v, %v", got, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", perm)
	}
}

func TestFileStoreWrongPassphraseIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	writer, err := NewFileStore(path, []byte("device passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := writer.Save(context.Background(), testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	reader, err := NewFileStore(path, []byte("another passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := reader.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStoreTamperedFileIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	store, err := NewFileStore(path, []byte("device passphrase"), testSealConfig())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := store.Save(context.Background(), testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestSealConfigValidation(t *testing.T) {
	cases := []SealConfig{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16},
		{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 0, SaltLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 8},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := DefaultSealConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if _, err := NewFileStore("x", []byte("short"), testSealConfig()); err == nil {
		t.Fatal("expected short passphrase to be rejected")
	}
}
