package storage

import (
	"context"
	"path/filepath"
	"testing"

	"efinance/internal/credentials"
)

var _ credentials.Storage = (*SQLiteRepository)(nil)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "efinance.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if v := repo.SchemaVersion(); v != 1 {
		t.Fatalf("schema version = %d, want 1", v)
	}

	if _, ok, err := repo.Get(ctx, credentials.KeyAccessToken); err != nil || ok {
		t.Fatalf("expected empty table, ok=%v err=%v", ok, err)
	}
	if err := repo.Set(ctx, map[string]string{
		credentials.KeyAccessToken:  "a1",
		credentials.KeyRefreshToken: "r1",
		credentials.KeyUserData:     `{"id":3}`,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, map[string]string{credentials.KeyAccessToken: "a2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	tests := map[string]string{
		credentials.KeyAccessToken:  "a2",
		credentials.KeyRefreshToken: "r1",
		credentials.KeyUserData:     `{"id":3}`,
	}
	for key, want := range tests {
		got, ok, err := repo.Get(ctx, key)
		if err != nil || !ok || got != want {
			t.Errorf("Get(%s) = %q ok=%v err=%v, want %q", key, got, ok, err, want)
		}
	}

	if err := repo.Delete(ctx, credentials.Keys...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, key := range credentials.Keys {
		if _, ok, _ := repo.Get(ctx, key); ok {
			t.Errorf("%s still present", key)
		}
	}
}

func TestSQLiteRepositoryReopen(t *testing.T) {
	repo, path := newTestRepo(t)
	ctx := context.Background()
	if err := repo.Set(ctx, map[string]string{credentials.KeyRefreshToken: "keep"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	repo.Close()

	// Migrations are idempotent on an existing database.
	again, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if v, ok, _ := again.Get(ctx, credentials.KeyRefreshToken); !ok || v != "keep" {
		t.Fatalf("got %q ok=%v", v, ok)
	}
}
