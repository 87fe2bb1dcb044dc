package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

// ErrUnauthenticated matches every *AuthError with errors.Is.
var ErrUnauthenticated = errors.New("unauthenticated")

// AuthReason says why a session was terminated.
type AuthReason string

const (
	// ReasonNoRefreshToken: a 401 arrived and no refresh token was stored.
	ReasonNoRefreshToken AuthReason = "no_refresh_token"
	// ReasonRenewalFailed: the refresh call failed.
	ReasonRenewalFailed AuthReason = "renewal_failed"
	// ReasonRejectedAfterRenewal: the retry with a fresh token still got 401.
	ReasonRejectedAfterRenewal AuthReason = "rejected_after_renewal"
)

// AuthError is returned after a terminal 401. Stored credentials have
// already been cleared when a caller sees it.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication required (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication required (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrUnauthenticated }

// Rejection returns the 401 the original request received. A failed renewal
// carries the refresh endpoint's response instead, so it reports none.
func (e *AuthError) Rejection() (*HTTPError, bool) {
	if e.Reason == ReasonRenewalFailed {
		return nil, false
	}
	var httpErr *HTTPError
	if errors.As(e.Err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// HTTPError is a non-2xx response the client could not recover from.
type HTTPError struct {
	Status  int
	Message string
	Body    map[string]any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// FieldErrors returns validation messages keyed by field, from bodies shaped
// like {"email": ["already taken"], "non_field_errors": ["..."]}.
func (e *HTTPError) FieldErrors() map[string][]string {
	out := make(map[string][]string)
	for field, v := range e.Body {
		switch field {
		case "message", "detail", "success", "error":
			continue
		}
		switch val := v.(type) {
		case string:
			out[field] = []string{val}
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out[field] = append(out[field], s)
				}
			}
		}
	}
	return out
}

// Field returns the first validation message for name, or "".
func (e *HTTPError) Field(name string) string {
	if msgs := e.FieldErrors()[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields lists the fields carrying validation messages, sorted.
func (e *HTTPError) Fields() []string {
	errs := e.FieldErrors()
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newHTTPError parses body best-effort. The message falls back from
// "message" to "detail", then "error", then "HTTP <status>".
func newHTTPError(status int, data []byte) *HTTPError {
	body := make(map[string]any)
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		body = make(map[string]any)
	}

	msg := fmt.Sprintf("HTTP %d", status)
	if s, ok := body["message"].(string); ok && s != "" {
		msg = s
	} else if s, ok := body["detail"].(string); ok && s != "" {
		msg = s
	} else if s, ok := body["error"].(string); ok && s != "" {
		msg = s
	}
	return &HTTPError{Status: status, Message: msg, Body: body}
}

// NetworkError means no response was received. It is never retried.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
