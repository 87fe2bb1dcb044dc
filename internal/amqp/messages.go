package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"efinance/internal/core"
)

// SessionEventMessage announces a credential lifecycle transition. Subject is
// the account email when known.
type SessionEventMessage struct {
	ID        string                `json:"id"`
	Kind      core.SessionEventKind `json:"kind"`
	Subject   string                `json:"subject,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

func NewSessionEventMessage(kind core.SessionEventKind, subject string) *SessionEventMessage {
	return &SessionEventMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}
}

func (m *SessionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SessionEventMessageFromJSON decodes a message and rejects unknown kinds.
func SessionEventMessageFromJSON(data []byte) (*SessionEventMessage, error) {
	var msg SessionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("unknown session event kind %q", msg.Kind)
	}
	return &msg, nil
}
