package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"efinance/internal/config"
	"efinance/internal/credentials"
	"efinance/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		CredentialStore: config.StoreSQLite,
		SQLiteDBPath:    "/tmp/x.db",
		RedisAddr:       "localhost:6379",
		RedisKey:        "k",
	}

	got, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, got.Type)
	assert.Equal(t, "/tmp/x.db", got.SQLiteDBPath)
	assert.Equal(t, "k", got.RedisKey)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	cfg.CredentialStore = "keychain"
	_, err = FromAppConfig(cfg)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"file", Config{Type: FileBackend, CredentialFile: "c.json"}, false},
		{"file without path", Config{Type: FileBackend}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"redis without addr", Config{Type: RedisBackend}, true},
		{"unknown", Config{Type: "etcd"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"memory", "file", "sqlite", "redis"}, GetBackendTypeStrings())
}

func TestCreateStore(t *testing.T) {
	dir := t.TempDir()
	factory := NewFactory(log.Discard().Logger)

	configs := map[string]Config{
		"memory": {Type: MemoryBackend},
		"file":   {Type: FileBackend, CredentialFile: filepath.Join(dir, "credentials.json")},
		"sqlite": {Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "efinance.db")},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			result, err := factory.CreateStore(ctx, cfg)
			require.NoError(t, err)
			defer func() { assert.NoError(t, result.Close()) }()

			require.NoError(t, result.Storage.Set(ctx, map[string]string{
				credentials.KeyAccessToken:  "a",
				credentials.KeyRefreshToken: "r",
				credentials.KeyUserData:     `{"id":1}`,
			}))
			v, ok, err := result.Storage.Get(ctx, credentials.KeyRefreshToken)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "r", v)

			require.NoError(t, result.Storage.Delete(ctx, credentials.Keys...))
			_, ok, err = result.Storage.Get(ctx, credentials.KeyAccessToken)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCreateStoreRejectsInvalidConfig(t *testing.T) {
	_, err := NewFactory(nil).CreateStore(context.Background(), Config{Type: SQLiteBackend})
	assert.Error(t, err)
}
