package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"bookcal/internal/config"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "theme"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "theme")
	if err != nil || !ok || v != "dark" {
		t.Fatalf("expected dark, got %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Set(ctx, "theme", "light|contrast"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _, _ := s.Get(ctx, "theme"); v != "light|contrast" {
		t.Fatalf("expected overwrite to win, got %q", v)
	}
	if err := s.Set(ctx, "empty", ""); err != nil {
		t.Fatalf("set empty: %v", err)
	}
	if v, ok, _ := s.Get(ctx, "empty"); !ok || v != "" {
		t.Fatalf("expected present empty value, got %q ok=%v", v, ok)
	}
	if err := s.Remove(ctx, "theme"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "theme"); ok {
		t.Fatalf("expected key to be removed")
	}
	if err := s.Remove(ctx, "never-set"); err != nil {
		t.Fatalf("removing a missing key must not fail: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	s, err := NewFile(filepath.Join(t.TempDir(), "nested", "store.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	exerciseStore(t, s)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()
	first, _ := NewFile(path)
	if err := first.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	second, _ := NewFile(path)
	if v, ok, err := second.Get(ctx, "k"); err != nil || !ok || v != "v" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", v, ok, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestFileStoreRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, _ := NewFile(path)
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Fatalf("expected decode error on corrupt file")
	}
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set over corrupt file: %v", err)
	}
	if v, ok, err := s.Get(ctx, "k"); err != nil || !ok || v != "v" {
		t.Fatalf("expected recovered value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	s, err := OpenRedis(context.Background(), RedisOptions{Addr: srv.Addr(), Prefix: "bookcal:"})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer s.Close(context.Background())
	exerciseStore(t, s)

	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := srv.Get("bookcal:k"); err != nil || got != "v" {
		t.Fatalf("expected prefixed key in redis, got %q err=%v", got, err)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("BOOKCAL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BOOKCAL_TEST_MONGO_URI not set")
	}
	s, err := OpenMongo(context.Background(), uri, "bookcal_test", "kv_"+t.Name())
	if err != nil {
		t.Fatalf("open mongo: %v", err)
	}
	defer s.Close(context.Background())
	defer s.coll.Drop(context.Background())
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BOOKCAL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOOKCAL_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer s.Close(context.Background())
	for _, k := range []string{"theme", "empty"} {
		_ = s.Remove(context.Background(), k)
	}
	exerciseStore(t, s)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", s)
	}
	s, err = Open(ctx, config.StoreConfig{Backend: "FILE", Path: filepath.Join(t.TempDir(), "s.json")})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := s.(*File); !ok {
		t.Fatalf("expected *File, got %T", s)
	}
	if err := Close(ctx, s); err != nil {
		t.Fatalf("closing a connectionless store must be a no-op: %v", err)
	}
	if _, err := Open(ctx, config.StoreConfig{Backend: "etcd"}); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}
