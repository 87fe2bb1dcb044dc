// Package backend selects and opens the credential store named by configuration.
package backend

import (
	"context"

	"efinance/internal/credentials"
)

// CleanupFunc releases resources held by a store.
type CleanupFunc func() error

// StoreResult contains the store and an optional cleanup function.
type StoreResult struct {
	Storage credentials.Storage
	Cleanup CleanupFunc
}

// Close runs Cleanup when one is set.
func (r *StoreResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates credential stores based on configuration
type Factory interface {
	CreateStore(ctx context.Context, config Config) (*StoreResult, error)
}

// Config holds configuration for store creation
type Config struct {
	Type BackendType

	// File specific
	CredentialFile string

	// SQLite specific
	SQLiteDBPath string

	// Redis specific
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// BackendType represents the type of credential store
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend, RedisBackend:
		return true
	default:
		return false
	}
}
