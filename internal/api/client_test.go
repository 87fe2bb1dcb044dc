package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"efinance/internal/api"
	"efinance/internal/api/apitest"
	"efinance/internal/credentials"
	"efinance/internal/credentials/memory"
	"efinance/internal/log"
)

const (
	email    = "ada@example.com"
	password = "s3cret-pass"
)

type profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

func newClient(t *testing.T, baseURL string, opts ...api.Option) (*api.Client, *credentials.Session, *memory.Store) {
	t.Helper()
	store := memory.New()
	session := credentials.NewSession(store)
	opts = append([]api.Option{api.WithLogger(log.Discard().Logger)}, opts...)
	return api.New(baseURL, session, opts...), session, store
}

func signedIn(t *testing.T) (*apitest.Server, *api.Client, *credentials.Session, *memory.Store) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(email, password)

	client, session, store := newClient(t, srv.BaseURL())
	access, refresh := srv.Tokens(email)
	require.NoError(t, session.SetTokens(context.Background(), access, refresh))
	require.NoError(t, store.Set(context.Background(), map[string]string{credentials.KeyUserData: `{"id":1}`}))
	return srv, client, session, store
}

func TestRequest_AttachesStoredBearer(t *testing.T) {
	srv, client, session, _ := signedIn(t)
	ctx := context.Background()

	var p profile
	require.NoError(t, client.Get(ctx, "/auth/profile/", &p))
	assert.Equal(t, email, p.Email)

	access, _ := session.AccessToken(ctx)
	last, ok := srv.Last("/auth/profile/")
	require.True(t, ok)
	assert.Equal(t, "Bearer "+access, last.Header.Get("Authorization"))
	assert.Equal(t, "application/json", last.Header.Get("Accept"))
	assert.NotEmpty(t, last.Header.Get("X-Request-Id"))
}

func TestRequest_OmitsAuthorizationWithoutToken(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	client, _, _ := newClient(t, srv.BaseURL())

	require.NoError(t, client.Post(context.Background(), "/auth/password-reset/request/", map[string]string{"email": email}, nil))

	last, ok := srv.Last("/auth/password-reset/request/")
	require.True(t, ok)
	_, present := last.Header["Authorization"]
	assert.False(t, present, "Authorization header must be absent")
	assert.Equal(t, "application/json", last.Header.Get("Content-Type"))
}

func TestRequest_RenewsOnceAndRetries(t *testing.T) {
	srv, client, session, store := signedIn(t)
	ctx := context.Background()
	staleAccess, originalRefresh := srv.Tokens(email)
	require.NoError(t, session.SetTokens(ctx, staleAccess, originalRefresh))
	srv.ExpireAccess()

	var p profile
	require.NoError(t, client.Get(ctx, "/auth/profile/", &p))
	assert.Equal(t, email, p.Email)

	var sequence []string
	for _, r := range srv.Requests() {
		sequence = append(sequence, r.Method+" "+r.Path)
	}
	assert.Equal(t, []string{
		"GET /auth/profile/",
		"POST /auth/token/refresh/",
		"GET /auth/profile/",
	}, sequence)

	access, _ := session.AccessToken(ctx)
	refresh, _ := session.RefreshToken(ctx)
	assert.NotEqual(t, staleAccess, access)
	assert.Equal(t, originalRefresh, refresh, "refresh token must not rotate")
	assert.Contains(t, store.Snapshot(), credentials.KeyUserData)

	last, _ := srv.Last("/auth/profile/")
	assert.Equal(t, "Bearer "+access, last.Header.Get("Authorization"))
	reqs := srv.Requests()
	assert.Equal(t, reqs[0].Header.Get("X-Request-Id"), reqs[2].Header.Get("X-Request-Id"))
	_, present := reqs[1].Header["Authorization"]
	assert.False(t, present, "refresh call is unauthenticated")
}

func TestRequest_RenewalFailureClearsSession(t *testing.T) {
	srv, client, _, store := signedIn(t)
	srv.ExpireAccess()
	srv.FailRefresh(true)

	err := client.Get(context.Background(), "/auth/profile/", nil)

	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, api.ReasonRenewalFailed, authErr.Reason)
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Empty(t, store.Snapshot(), "all keys must be cleared")
	assert.Equal(t, 1, srv.Calls(http.MethodGet, "/auth/profile/"), "no retry after failed renewal")
}

func TestRequest_NoRefreshTokenTerminatesImmediately(t *testing.T) {
	srv, client, _, store := signedIn(t)
	require.NoError(t, store.Delete(context.Background(), credentials.KeyRefreshToken))
	srv.ExpireAccess()

	err := client.Get(context.Background(), "/auth/profile/", nil)

	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, api.ReasonNoRefreshToken, authErr.Reason)
	assert.Zero(t, srv.Calls("", "/auth/token/refresh/"))
	assert.Empty(t, store.Snapshot())

	rejection, ok := authErr.Rejection()
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rejection.Status)
	assert.Equal(t, "Given token not valid for any token type", rejection.Message)
}

func TestRequest_RetryRejectedIsFinal(t *testing.T) {
	srv, client, _, store := signedIn(t)
	srv.RejectAll(true)

	err := client.Get(context.Background(), "/auth/profile/", nil)

	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, api.ReasonRejectedAfterRenewal, authErr.Reason)
	assert.Equal(t, 1, srv.Calls("", "/auth/token/refresh/"))
	assert.Equal(t, 2, srv.Calls(http.MethodGet, "/auth/profile/"))
	assert.Empty(t, store.Snapshot())
}

func TestRequest_HTTPErrorKeepsCredentials(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail", http.StatusBadRequest, `{"detail":"bad input"}`, "bad input"},
		{"message wins over detail", http.StatusConflict, `{"message":"taken","detail":"ignored"}`, "taken"},
		{"error fallback", http.StatusBadRequest, `{"error":"Ancien mot de passe incorrect"}`, "Ancien mot de passe incorrect"},
		{"non json body", http.StatusBadGateway, `<html>bad gateway</html>`, "HTTP 502"},
		{"empty body", http.StatusInternalServerError, ``, "HTTP 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client, session, store := newClient(t, srv.URL)
			require.NoError(t, session.SetTokens(context.Background(), "a", "r"))

			err := client.Get(context.Background(), "/anything/", nil)

			var httpErr *api.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.message, httpErr.Message)
			assert.NotNil(t, httpErr.Body)
			assert.Equal(t, tt.status, api.StatusCode(err))
			assert.Len(t, store.Snapshot(), 2, "credentials untouched")
		})
	}
}

func TestRequest_EmptySuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	client, _, _ := newClient(t, srv.URL)

	out := profile{ID: 9}
	require.NoError(t, client.Delete(context.Background(), "/transactions/1/", &out))
	assert.Equal(t, int64(9), out.ID, "nothing decoded")
}

func TestRequest_NetworkErrorIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client, session, store := newClient(t, baseURL)
	require.NoError(t, session.SetTokens(context.Background(), "a", "r"))

	err := client.Get(context.Background(), "/auth/profile/", nil)

	var netErr *api.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodGet, netErr.Method)
	assert.Len(t, store.Snapshot(), 2)
}

func TestRequest_ConcurrentRenewalsCoalesce(t *testing.T) {
	srv, client, _, _ := signedIn(t)
	srv.ExpireAccess()
	srv.RefreshDelay(100 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Get(context.Background(), "/auth/profile/", nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Calls("", "/auth/token/refresh/"))
}

func TestRequest_SharedRenewalFailureEndsSessionOnce(t *testing.T) {
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(email, password)

	var ended atomic.Int32
	client, session, store := newClient(t, srv.BaseURL(), api.WithUnauthenticatedHandler(func(_ context.Context, err *api.AuthError) {
		if err.Reason == api.ReasonRenewalFailed {
			ended.Add(1)
		}
	}))
	access, refresh := srv.Tokens(email)
	require.NoError(t, session.SetTokens(context.Background(), access, refresh))
	srv.ExpireAccess()
	srv.FailRefresh(true)
	srv.RefreshDelay(100 * time.Millisecond)

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.Get(context.Background(), "/auth/profile/", nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	}
	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, 1, srv.Calls("", "/auth/token/refresh/"))
	assert.Empty(t, store.Snapshot())
}

func TestRequest_CallerHeaderReplacesDefault(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Values("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, session, _ := newClient(t, srv.URL)
	require.NoError(t, session.SetTokens(context.Background(), "stored", "r"))

	err := client.Request(context.Background(), "/auth/profile/", api.RequestOptions{
		Header: http.Header{"authorization": {"Token custom"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Token custom"}, got)
}

func TestRequest_CancelledWaiterLeavesRenewalRunning(t *testing.T) {
	srv, client, session, _ := signedIn(t)
	srv.ExpireAccess()
	srv.RefreshDelay(200 * time.Millisecond)
	stale, _ := session.AccessToken(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var patientErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		patientErr = client.Get(context.Background(), "/auth/profile/", nil)
	}()

	err := client.Get(ctx, "/auth/profile/", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, api.ErrUnauthenticated)

	wg.Wait()
	require.NoError(t, patientErr)
	access, _ := session.AccessToken(context.Background())
	assert.NotEqual(t, stale, access)
	assert.Equal(t, 1, srv.Calls("", "/auth/token/refresh/"))
}

func TestRequest_UnauthenticatedHandler(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	var calls atomic.Int32
	var reason api.AuthReason
	client, _, _ := newClient(t, srv.BaseURL(), api.WithUnauthenticatedHandler(func(_ context.Context, err *api.AuthError) {
		calls.Add(1)
		reason = err.Reason
	}))

	err := client.Get(context.Background(), "/auth/dashboard/", nil)
	require.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, api.ReasonNoRefreshToken, reason)
}

func TestRequest_MultipartRetrySendsSameBody(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	var contentTypes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/auth/token/refresh/" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access":"fresh"}`)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":5}`)
	}))
	defer srv.Close()

	client, session, _ := newClient(t, srv.URL)
	require.NoError(t, session.SetTokens(context.Background(), "stale", "r"))

	form := api.NewForm().Field("amount", "12.50").File("preuve", "receipt.png", []byte("\x89PNG..."))
	var out profile
	require.NoError(t, client.Post(context.Background(), "/transactions/", form, &out))
	assert.Equal(t, int64(5), out.ID)

	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, contentTypes[0], contentTypes[1])
	assert.Contains(t, contentTypes[0], "multipart/form-data; boundary=")
}

func TestRenew(t *testing.T) {
	t.Run("forces a refresh", func(t *testing.T) {
		srv, client, session, _ := signedIn(t)
		before, _ := session.AccessToken(context.Background())

		token, err := client.Renew(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, before, token)
		assert.Equal(t, 1, srv.Calls("", "/auth/token/refresh/"))
	})

	t.Run("failure clears", func(t *testing.T) {
		srv, client, _, store := signedIn(t)
		srv.FailRefresh(true)

		_, err := client.Renew(context.Background())
		var authErr *api.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, api.ReasonRenewalFailed, authErr.Reason)
		var httpErr *api.HTTPError
		assert.True(t, errors.As(err, &httpErr))
		assert.Empty(t, store.Snapshot())
	})
}
