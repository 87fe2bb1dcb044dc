package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Status summarizes the stored session without contacting the backend.
type Status struct {
	Authenticated bool
	HasRefresh    bool
	UserID        string
	TokenType     string
	ExpiresAt     time.Time
}

// Expired reports whether the access token's exp claim lies before now.
// Tokens without a readable exp are never reported as expired.
func (st Status) Expired(now time.Time) bool {
	return !st.ExpiresAt.IsZero() && now.After(st.ExpiresAt)
}

type accessClaims struct {
	// UserID is numeric or a string such as a UUID, depending on the backend.
	UserID    any    `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Status reads the session keys and the unverified claims of the access token.
// The signature is not checked; the backend remains the authority.
func (s *Session) Status(ctx context.Context) (Status, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return Status{}, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{Authenticated: access != "", HasRefresh: refresh != ""}
	if access == "" {
		return st, nil
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(access, &claims); err != nil {
		// Opaque tokens are valid too.
		return st, nil
	}
	if claims.UserID != nil {
		st.UserID = fmt.Sprint(claims.UserID)
	}
	st.TokenType = claims.TokenType
	if claims.ExpiresAt != nil {
		st.ExpiresAt = claims.ExpiresAt.Time
	}
	return st, nil
}
