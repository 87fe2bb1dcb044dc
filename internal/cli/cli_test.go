package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"efinance/internal/api"
	"efinance/internal/api/apitest"
	"efinance/internal/config"
	"efinance/internal/core"
	"efinance/internal/log"
	"efinance/internal/services"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger, err := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	require.NoError(t, err)
	assert.Equal(t, log.ComponentApp, logger.Component())

	_, err = SetupLogger(&config.Config{LogLevel: "verbose", LogFormat: "text"})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EFINANCE_TEST_ENV_VALUE=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("EFINANCE_TEST_ENV_VALUE") })

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("EFINANCE_TEST_ENV_VALUE"))
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("CREDENTIAL_STORE", "memory")
	t.Setenv("API_BASE_URL", "https://finance.example.com/api/v1")
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://finance.example.com/api/v1", cfg.APIBaseURL)

	cfg, err = LoadAndValidateConfig(func(c *config.Config) { c.LogLevel = "debug" })
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("CREDENTIAL_STORE", "keychain")
	_, err = LoadAndValidateConfig()
	assert.Error(t, err)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		APIBaseURL:        baseURL,
		HTTPTimeout:       5 * time.Second,
		CredentialStore:   config.StoreFile,
		CredentialFile:    filepath.Join(t.TempDir(), "credentials.json"),
		CategoryCacheSize: 4,
		CategoryCacheTTL:  time.Minute,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func TestBootstrapPersistsSession(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.AddUser("grace@example.com", "hopper-1906")
	ctx := context.Background()
	cfg := testConfig(t, srv.BaseURL())

	app, err := Bootstrap(ctx, cfg, log.Discard())
	require.NoError(t, err)
	assert.Nil(t, app.Events)
	_, err = app.Auth.Login(ctx, "grace@example.com", "hopper-1906")
	require.NoError(t, err)
	require.NoError(t, app.Close())

	again, err := Bootstrap(ctx, cfg, log.Discard())
	require.NoError(t, err)
	defer again.Close()
	user, err := again.Auth.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", user.Email)
	assert.Contains(t, again.StoreDescription(), "credentials.json")
}

type recordingPublisher struct {
	kinds []core.SessionEventKind
	err   error
}

func (p *recordingPublisher) PublishSessionEvent(_ context.Context, kind core.SessionEventKind, _ string) error {
	p.kinds = append(p.kinds, kind)
	return p.err
}

func TestSessionEndedPublishesExpiry(t *testing.T) {
	pub := &recordingPublisher{}
	var changed int
	hook := sessionEnded(log.Discard(), pub, services.SessionListenerFunc(func(context.Context) { changed++ }))

	hook(context.Background(), &api.AuthError{Reason: api.ReasonNoRefreshToken})
	assert.Empty(t, pub.kinds)

	hook(context.Background(), &api.AuthError{Reason: api.ReasonRenewalFailed})
	pub.err = errors.New("broker down")
	hook(context.Background(), &api.AuthError{Reason: api.ReasonRejectedAfterRenewal})
	assert.Equal(t, []core.SessionEventKind{core.SessionExpired, core.SessionExpired}, pub.kinds)
	assert.Equal(t, 3, changed, "listeners run for every terminal 401")

	assert.NotPanics(t, func() {
		sessionEnded(log.Discard(), nil)(context.Background(), &api.AuthError{Reason: api.ReasonRenewalFailed})
	})
}
