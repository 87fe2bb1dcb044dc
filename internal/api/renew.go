package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"efinance/internal/log"
)

const refreshEndpoint = "/auth/token/refresh/"

var errNoRefreshToken = errors.New("no refresh token stored")

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Renew exchanges the stored refresh token for a new access token. On failure
// the credentials are cleared and an *AuthError is returned.
func (c *Client) Renew(ctx context.Context) (string, error) {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return "", c.terminate(ctx, ReasonNoRefreshToken, nil)
	}

	return c.renew(ctx, current)
}

// renew coalesces concurrent renewals into one refresh call. stale is the
// access token the caller saw rejected; if the store already holds a
// different one, another caller renewed first and it is returned as is.
// A failed flight terminates the session once and every waiter receives the
// same *AuthError. A waiter whose ctx ends stops waiting but the shared
// renewal continues.
func (c *Client) renew(ctx context.Context, stale string) (string, error) {
	ch := c.renewals.DoChan("renew", func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		access, err := c.renewShared(flightCtx, stale)
		switch {
		case errors.Is(err, errNoRefreshToken):
			// Another terminal path already ended the session.
			c.clear(flightCtx)
			return "", &AuthError{Reason: ReasonNoRefreshToken, Err: err}
		case err != nil:
			return "", c.terminate(flightCtx, ReasonRenewalFailed, err)
		}
		return access, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) renewShared(ctx context.Context, stale string) (string, error) {
	current, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	if current != "" && current != stale {
		return current, nil
	}

	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refresh == "" {
		return "", errNoRefreshToken
	}

	access, err := c.refresh(ctx, refresh)
	if err != nil {
		return "", err
	}
	if err := c.store.SetAccessToken(ctx, access); err != nil {
		return "", fmt.Errorf("store renewed token: %w", err)
	}
	c.logger.InfoContext(ctx, "access token renewed", log.FieldOperation, log.OpRenew)
	return access, nil
}

// refresh is the unauthenticated POST to the refresh endpoint.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	body, err := encodeBody(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	target := c.url(refreshEndpoint, nil)

	resp, err := c.send(ctx, http.MethodPost, target, body, nil, "", newRequestID(), 1)
	if err != nil {
		return "", err
	}
	var out refreshResponse
	if err := c.handle(http.MethodPost, target, resp, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", errors.New("refresh response missing access token")
	}
	return out.Access, nil
}
