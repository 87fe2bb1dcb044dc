package credentials

import "context"

// Persisted keys. Every backend stores exactly these three.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// Keys lists every key a session owns, in clearing order.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUserData}

// Storage is a small string key/value store.
// Set writes all pairs atomically with respect to readers of the same backend.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Closer is implemented by backends holding external resources.
type Closer interface {
	Close() error
}
