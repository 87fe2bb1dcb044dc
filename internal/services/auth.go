package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"efinance/internal/api"
	"efinance/internal/core"
	"efinance/internal/credentials"
	"efinance/internal/log"
)

// Registration is the sign-up form.
type Registration struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// PasswordReset completes a reset started with RequestPasswordReset.
type PasswordReset struct {
	Email                string `json:"email"`
	Code                 string `json:"code"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// PasswordChange changes the password of the signed-in user.
type PasswordChange struct {
	OldPassword             string `json:"old_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

// ProfileUpdate carries the profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// AuthResult is what register and login hand back.
type AuthResult struct {
	Message string     `json:"message,omitempty"`
	User    *core.User `json:"user,omitempty"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type authResponse struct {
	Message string `json:"message"`
	tokenPair
	Tokens *tokenPair      `json:"tokens"`
	User   json.RawMessage `json:"user"`
}

// AuthService covers sign-up, sign-in and the profile endpoints.
type AuthService struct {
	client    AuthClient
	session   *credentials.Session
	events    EventPublisher
	listeners []SessionListener
	logger    *slog.Logger
}

func NewAuthService(client AuthClient, session *credentials.Session, events EventPublisher) *AuthService {
	return &AuthService{
		client:  client,
		session: session,
		events:  events,
		logger:  componentLogger(log.ComponentAuth),
	}
}

// OnSessionChange registers listeners run after sign-up, sign-in and sign-out,
// and after a sign-in attempt that ended the stored session.
func (s *AuthService) OnSessionChange(listeners ...SessionListener) {
	s.listeners = append(s.listeners, listeners...)
}

func (s *AuthService) sessionChanged(ctx context.Context) {
	for _, l := range s.listeners {
		l.SessionChanged(ctx)
	}
}

// Register creates an account. Tokens returned by the backend, at the top
// level or under "tokens", are stored together with the user snapshot.
func (s *AuthService) Register(ctx context.Context, in Registration) (AuthResult, error) {
	var resp authResponse
	if err := s.client.Post(ctx, "/auth/register/", in, &resp); err != nil {
		s.endedBy(ctx, err)
		return AuthResult{}, fmt.Errorf("register: %w", err)
	}
	result, err := s.storeAuth(ctx, resp)
	if err != nil {
		return AuthResult{}, fmt.Errorf("register: %w", err)
	}
	s.sessionChanged(ctx)
	s.logger.InfoContext(ctx, "account registered", log.FieldEmail, in.Email)
	s.publish(ctx, core.SessionRegistered, in.Email)
	return result, nil
}

// Login signs in and stores the credential pair and user snapshot.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := s.client.Post(ctx, "/auth/login/", body, &resp); err != nil {
		s.endedBy(ctx, err)
		return AuthResult{}, fmt.Errorf("login: %w", err)
	}
	result, err := s.storeAuth(ctx, resp)
	if err != nil {
		return AuthResult{}, fmt.Errorf("login: %w", err)
	}
	s.sessionChanged(ctx)
	s.logger.InfoContext(ctx, "signed in", log.FieldEmail, email)
	s.publish(ctx, core.SessionLogin, email)
	return result, nil
}

// endedBy notifies listeners when err means the client cleared the session.
func (s *AuthService) endedBy(ctx context.Context, err error) {
	if errors.Is(err, api.ErrUnauthenticated) {
		s.sessionChanged(ctx)
	}
}

func (s *AuthService) storeAuth(ctx context.Context, resp authResponse) (AuthResult, error) {
	pair := resp.tokenPair
	if resp.Tokens != nil && pair.Access == "" {
		pair = *resp.Tokens
	}
	if pair.Access != "" && pair.Refresh != "" {
		if err := s.session.SetTokens(ctx, pair.Access, pair.Refresh); err != nil {
			return AuthResult{}, err
		}
	}

	result := AuthResult{Message: resp.Message}
	if hasObject(resp.User) {
		var u core.User
		if err := json.Unmarshal(resp.User, &u); err != nil {
			return AuthResult{}, fmt.Errorf("decode user: %w", err)
		}
		if err := s.session.SetUser(ctx, resp.User); err != nil {
			return AuthResult{}, err
		}
		result.User = &u
	}
	return result, nil
}

// Logout blacklists the refresh token when one is stored and always clears
// local state. A session the backend already considers ended is not an error.
func (s *AuthService) Logout(ctx context.Context) error {
	var subject string
	if u, ok, _ := s.CachedUser(ctx); ok {
		subject = u.Email
	}

	refresh, err := s.session.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	var callErr error
	if refresh != "" {
		callErr = s.client.Post(ctx, "/auth/logout/", map[string]string{"refresh_token": refresh}, nil)
	}

	if err := s.session.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.sessionChanged(ctx)
	s.logger.InfoContext(ctx, "signed out", log.FieldEmail, subject)
	s.publish(ctx, core.SessionLogout, subject)

	if callErr != nil && !errors.Is(callErr, api.ErrUnauthenticated) {
		return fmt.Errorf("logout: %w", callErr)
	}
	return nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (core.Message, error) {
	var msg core.Message
	if err := s.client.Post(ctx, "/auth/password-reset/request/", map[string]string{"email": email}, &msg); err != nil {
		return core.Message{}, fmt.Errorf("request password reset: %w", err)
	}
	return msg, nil
}

func (s *AuthService) ValidateResetCode(ctx context.Context, email, code string) (core.Message, error) {
	var msg core.Message
	body := map[string]string{"email": email, "code": code}
	if err := s.client.Post(ctx, "/auth/password-reset/validate-code/", body, &msg); err != nil {
		return core.Message{}, fmt.Errorf("validate reset code: %w", err)
	}
	return msg, nil
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, in PasswordReset) (core.Message, error) {
	var msg core.Message
	if err := s.client.Post(ctx, "/auth/password-reset/confirm/", in, &msg); err != nil {
		return core.Message{}, fmt.Errorf("confirm password reset: %w", err)
	}
	return msg, nil
}

// CurrentUser fetches the profile and refreshes the cached snapshot.
func (s *AuthService) CurrentUser(ctx context.Context) (core.User, error) {
	var raw json.RawMessage
	if err := s.client.Get(ctx, "/auth/profile/", &raw); err != nil {
		return core.User{}, fmt.Errorf("get profile: %w", err)
	}
	return s.storeUser(ctx, raw)
}

// UpdateProfile sends the changed fields. The snapshot is refreshed from a
// "user" object in the response, or from the response itself.
func (s *AuthService) UpdateProfile(ctx context.Context, in ProfileUpdate) (core.User, error) {
	var raw json.RawMessage
	if err := s.client.Put(ctx, "/auth/profile/", in, &raw); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}

	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && hasObject(wrapped.User) {
		raw = wrapped.User
	}
	return s.storeUser(ctx, raw)
}

func (s *AuthService) storeUser(ctx context.Context, raw json.RawMessage) (core.User, error) {
	var u core.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return core.User{}, fmt.Errorf("decode user: %w", err)
	}
	if u.ID != 0 {
		if err := s.session.SetUser(ctx, raw); err != nil {
			return core.User{}, err
		}
	}
	return u, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, in PasswordChange) (core.Message, error) {
	var msg core.Message
	if err := s.client.Post(ctx, "/auth/change-password/", in, &msg); err != nil {
		return core.Message{}, fmt.Errorf("change password: %w", err)
	}
	return msg, nil
}

func (s *AuthService) Dashboard(ctx context.Context) (core.Dashboard, error) {
	var d core.Dashboard
	if err := s.client.Get(ctx, "/auth/dashboard/", &d); err != nil {
		return core.Dashboard{}, fmt.Errorf("get dashboard: %w", err)
	}
	return d, nil
}

// RefreshToken renews the access token on demand.
func (s *AuthService) RefreshToken(ctx context.Context) (string, error) {
	token, err := s.client.Renew(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	s.publish(ctx, core.SessionRenewed, "")
	return token, nil
}

func (s *AuthService) IsAuthenticated(ctx context.Context) (bool, error) {
	return s.session.IsAuthenticated(ctx)
}

// CachedUser returns the last stored snapshot without calling the backend.
func (s *AuthService) CachedUser(ctx context.Context) (core.User, bool, error) {
	var u core.User
	ok, err := s.session.User(ctx, &u)
	return u, ok, err
}

func (s *AuthService) Status(ctx context.Context) (credentials.Status, error) {
	return s.session.Status(ctx)
}

func (s *AuthService) publish(ctx context.Context, kind core.SessionEventKind, subject string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionEvent(ctx, kind, subject); err != nil {
		s.logger.WarnContext(ctx, "failed to publish session event",
			log.FieldEventKind, string(kind), log.FieldError, err)
	}
}

func hasObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}
