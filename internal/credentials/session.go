package credentials

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session is the typed view over a Storage holding one signed-in user.
type Session struct {
	store Storage
}

func NewSession(store Storage) *Session {
	return &Session{store: store}
}

// Storage returns the underlying key/value store.
func (s *Session) Storage() Storage { return s.store }

func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *Session) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// SetTokens stores a fresh credential pair. An empty refresh token leaves the
// stored one untouched.
func (s *Session) SetTokens(ctx context.Context, access, refresh string) error {
	values := map[string]string{KeyAccessToken: access}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}
	if err := s.store.Set(ctx, values); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

// SetAccessToken replaces only the access token.
func (s *Session) SetAccessToken(ctx context.Context, access string) error {
	if err := s.store.Set(ctx, map[string]string{KeyAccessToken: access}); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

// SetUser overwrites the cached user snapshot with the raw backend object.
func (s *Session) SetUser(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if !json.Valid(raw) {
		return fmt.Errorf("store user: invalid JSON")
	}
	if err := s.store.Set(ctx, map[string]string{KeyUserData: string(raw)}); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

// User decodes the cached snapshot into out. It reports false when none is stored.
func (s *Session) User(ctx context.Context, out any) (bool, error) {
	raw, err := s.get(ctx, KeyUserData)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode cached user: %w", err)
	}
	return true, nil
}

// Clear removes all three keys.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, Keys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether an access token is stored. A lone refresh
// token does not count.
func (s *Session) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.AccessToken(ctx)
	return token != "", err
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}
