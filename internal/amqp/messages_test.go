package amqp

import (
	"testing"
	"time"

	"efinance/internal/core"
)

func TestNewSessionEventMessage(t *testing.T) {
	msg := NewSessionEventMessage(core.SessionLogout, "grace@example.com")

	if msg.Kind != core.SessionLogout || msg.Subject != "grace@example.com" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.ID == "" {
		t.Error("message id should be set")
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("timestamp should be recent")
	}
}

func TestSessionEventMessage_JSON(t *testing.T) {
	msg := &SessionEventMessage{
		ID:        "6f1c1e0c-8c62-4f43-9a55-0c3b8d8f3c11",
		Kind:      core.SessionRenewed,
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := SessionEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("SessionEventMessageFromJSON() error = %v", err)
	}
	if parsed.ID != msg.ID || parsed.Kind != msg.Kind || parsed.Subject != "" {
		t.Errorf("parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("parsed timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestSessionEventMessageFromJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"kind": 3}`},
		{"unknown kind", `{"id":"x","kind":"promoted","timestamp":"2024-01-01T00:00:00Z"}`},
		{"missing kind", `{"id":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SessionEventMessageFromJSON([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
