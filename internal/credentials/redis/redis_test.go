package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"efinance/internal/credentials"
)

var _ credentials.Storage = (*Store)(nil)

// Requires a reachable server: REDIS_TEST_ADDR=localhost:6379 go test ./...
func TestStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()

	client, err := Connect(ctx, addr, os.Getenv("REDIS_TEST_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	key := "efinance:test:" + uuid.NewString()
	defer client.Del(ctx, key)
	s := New(client, key)

	if _, ok, err := s.Get(ctx, credentials.KeyAccessToken); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, map[string]string{
		credentials.KeyAccessToken:  "a",
		credentials.KeyRefreshToken: "r",
		credentials.KeyUserData:     `{"id":1}`,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, err := s.Get(ctx, credentials.KeyRefreshToken); err != nil || !ok || v != "r" {
		t.Fatalf("get = %q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(ctx, credentials.Keys...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, k := range credentials.Keys {
		if _, ok, _ := s.Get(ctx, k); ok {
			t.Fatalf("%s still present", k)
		}
	}
}

func TestNewDefaultsKey(t *testing.T) {
	if s := New(nil, ""); s.key != "efinance:session" {
		t.Fatalf("unexpected default key %q", s.key)
	}
}
