// Package services wraps backend endpoints in typed operations. Every service
// talks to the backend through the authenticated client in internal/api.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"efinance/internal/core"
	"efinance/internal/log"
)

// Requester is the subset of *api.Client the services call.
type Requester interface {
	Get(ctx context.Context, endpoint string, out any) error
	Post(ctx context.Context, endpoint string, body, out any) error
	Put(ctx context.Context, endpoint string, body, out any) error
	Patch(ctx context.Context, endpoint string, body, out any) error
	Delete(ctx context.Context, endpoint string, out any) error
}

// AuthClient adds explicit token renewal.
type AuthClient interface {
	Requester
	Renew(ctx context.Context) (string, error)
}

// EventPublisher receives session lifecycle events. *amqp.Client implements it.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, kind core.SessionEventKind, subject string) error
}

// SessionListener is told when the signed-in identity changes or ends.
type SessionListener interface {
	SessionChanged(ctx context.Context)
}

// SessionListenerFunc adapts a function to SessionListener.
type SessionListenerFunc func(ctx context.Context)

func (f SessionListenerFunc) SessionChanged(ctx context.Context) { f(ctx) }

func pageEndpoint(base string, page int) string {
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s?page=%d", base, page)
}

func componentLogger(component string) *slog.Logger {
	return slog.Default().With(log.FieldComponent, component)
}
