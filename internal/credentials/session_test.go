package credentials_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"efinance/internal/credentials"
	"efinance/internal/credentials/memory"
)

func TestSessionTokens(t *testing.T) {
	ctx := context.Background()
	s := credentials.NewSession(memory.New())

	if ok, _ := s.IsAuthenticated(ctx); ok {
		t.Fatal("empty session reported authenticated")
	}
	if err := s.SetTokens(ctx, "a1", "r1"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	if err := s.SetAccessToken(ctx, "a2"); err != nil {
		t.Fatalf("SetAccessToken: %v", err)
	}
	access, _ := s.AccessToken(ctx)
	refresh, _ := s.RefreshToken(ctx)
	if access != "a2" || refresh != "r1" {
		t.Fatalf("got access=%q refresh=%q", access, refresh)
	}

	// Refresh alone is not authenticated.
	store := memory.New()
	_ = store.Set(ctx, map[string]string{credentials.KeyRefreshToken: "r"})
	if ok, _ := credentials.NewSession(store).IsAuthenticated(ctx); ok {
		t.Fatal("refresh token alone counted as authenticated")
	}
}

func TestSessionUserAndClear(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := credentials.NewSession(store)

	var user struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	if ok, err := s.User(ctx, &user); ok || err != nil {
		t.Fatalf("expected no user, ok=%v err=%v", ok, err)
	}
	if err := s.SetUser(ctx, json.RawMessage(`{"id":7,"email":"a@b.c"}`)); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if err := s.SetUser(ctx, json.RawMessage(`{broken`)); err == nil {
		t.Fatal("expected invalid JSON error")
	}
	if ok, err := s.User(ctx, &user); !ok || err != nil || user.ID != 7 {
		t.Fatalf("unexpected user %+v ok=%v err=%v", user, ok, err)
	}

	_ = s.SetTokens(ctx, "a", "r")
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n := len(store.Snapshot()); n != 0 {
		t.Fatalf("expected empty store, %d keys left", n)
	}
}

func TestSessionStatus(t *testing.T) {
	ctx := context.Background()
	s := credentials.NewSession(memory.New())

	exp := time.Now().Add(-time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    42,
		"token_type": "access",
		"exp":        exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.SetTokens(ctx, token, "r")

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Authenticated || !st.HasRefresh || st.UserID != "42" || st.TokenType != "access" {
		t.Fatalf("unexpected status %+v", st)
	}
	if !st.ExpiresAt.Equal(exp) || !st.Expired(time.Now()) {
		t.Fatalf("unexpected expiry %v", st.ExpiresAt)
	}

	_ = s.SetAccessToken(ctx, "opaque-token")
	st, err = s.Status(ctx)
	if err != nil || !st.Authenticated || st.UserID != "" || st.Expired(time.Now()) {
		t.Fatalf("opaque token status %+v err=%v", st, err)
	}
}

func TestSessionStatusStringUserID(t *testing.T) {
	ctx := context.Background()
	s := credentials.NewSession(memory.New())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    "6f1c2b9e-3d4a-4e8b-9c7d-2a5f8e1b0c3d",
		"token_type": "access",
		"exp":        exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.SetTokens(ctx, token, "r")

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.UserID != "6f1c2b9e-3d4a-4e8b-9c7d-2a5f8e1b0c3d" || st.TokenType != "access" || !st.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected status %+v", st)
	}
}
